package reports

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet the report rows are written to.
const SheetName = "Reporte"

// Headers are the report columns in order.
var Headers = []string{
	"Codigo Asistente",
	"Codigo Bot",
	"Usuario de red bot runner",
	"Nombre Estacion Bot Runner",
	"ID Proceso",
	"No Radicado",
	"Matricuas",
	"Estado proceso",
	"Observación",
	"Fecha Inicio de ejecución",
	"Hora Inicio de ejecución",
	"Fecha Fin de ejecución",
	"Hora Fin de ejecución",
}

// Meta holds the identity columns repeated on every row.
type Meta struct {
	AssistantCode string
	BotCode       string
	NetworkUser   string
	Station       string
	PID           int
	Location      *time.Location
}

// WriteXLSX renders r as a spreadsheet to w.
func WriteXLSX(w io.Writer, r *Report, meta Meta) error {
	loc := meta.Location
	if loc == nil {
		loc = time.Local
	}
	start := r.StartedAt().In(loc)
	end := r.FinishedAt().In(loc)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &Headers); err != nil {
		return fmt.Errorf("write headers: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"366092"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, style); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for i, e := range r.Entries() {
		row := []any{
			meta.AssistantCode,
			meta.BotCode,
			meta.NetworkUser,
			meta.Station,
			strconv.Itoa(meta.PID),
			e.Ticket,
			strings.Join(e.SecondaryKeys, ", "),
			string(e.Outcome.Status()),
			e.Observation,
			start.Format(time.DateOnly),
			start.Format(time.TimeOnly),
			end.Format(time.DateOnly),
			end.Format(time.TimeOnly),
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "M", 22); err != nil {
		return fmt.Errorf("column width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
