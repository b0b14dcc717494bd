package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/expedite/internal/reports"
	"github.com/JaimeStill/expedite/pkg/pagination"
)

func newReportsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect and reconcile persisted report entries",
	}
	cmd.AddCommand(newReportsListCommand(opts), newReportsReconcileCommand(opts))
	return cmd
}

type listFlags struct {
	variant  string
	status   string
	ticket   string
	flagged  bool
	run      string
	since    string
	page     int
	pageSize int
	sort     string
	json     bool
}

// filters converts the command flags into repository filters.
func (f *listFlags) filters() (reports.Filters, error) {
	var out reports.Filters
	if f.variant != "" {
		out.Variant = &f.variant
	}
	if f.status != "" {
		out.Status = &f.status
	}
	if f.ticket != "" {
		out.Ticket = &f.ticket
	}
	if f.flagged {
		out.Flagged = &f.flagged
	}
	if f.run != "" {
		id, err := uuid.Parse(f.run)
		if err != nil {
			return out, fmt.Errorf("invalid --run: %w", err)
		}
		out.RunID = &id
	}
	if f.since != "" {
		t, err := time.Parse(time.DateOnly, f.since)
		if err != nil {
			return out, fmt.Errorf("invalid --since: want YYYY-MM-DD")
		}
		out.Since = &t
	}
	return out, nil
}

func newReportsListCommand(opts *rootOptions) *cobra.Command {
	f := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Page through persisted report entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filters, err := f.filters()
			if err != nil {
				return err
			}

			s, err := open(cmd.Context(), opts.configPath, true)
			if err != nil {
				return err
			}
			defer s.Close()

			page := pagination.ParseRequest(f.page, f.pageSize, f.sort, s.cfg.Pagination)
			result, err := s.domain.Reports.List(cmd.Context(), page, filters)
			if err != nil {
				return err
			}

			if f.json {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			return printRecords(cmd.OutOrStdout(), result)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.variant, "variant", "", "Only entries of this variant")
	flags.StringVar(&f.status, "status", "", "Only entries with this status (Exitoso, No Exitoso, Pendiente)")
	flags.StringVar(&f.ticket, "ticket", "", "Only entries whose ticket contains this text")
	flags.BoolVar(&f.flagged, "flagged", false, "Only entries awaiting reconciliation")
	flags.StringVar(&f.run, "run", "", "Only entries of this run ID")
	flags.StringVar(&f.since, "since", "", "Only runs started on or after this date (YYYY-MM-DD)")
	flags.IntVar(&f.page, "page", 1, "Page number")
	flags.IntVar(&f.pageSize, "page-size", 0, "Entries per page (default from configuration)")
	flags.StringVar(&f.sort, "sort", "", "Sort fields, e.g. -StartedAt,Ticket")
	flags.BoolVar(&f.json, "json", false, "Output as JSON")

	return cmd
}

func printRecords(w io.Writer, page *pagination.Page[reports.Record]) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tVARIANT\tTICKET\tSTATUS\tFLAGGED\tOBSERVATION")
	for _, r := range page.Items {
		flagged := ""
		if r.Flagged {
			flagged = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.StartedAt.Format(time.DateTime), r.Variant, r.Ticket, r.Status, flagged,
			strings.ReplaceAll(r.Observation, "\n", " "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "page %d of %d, %d entries\n", page.Page, page.Pages, page.Total); err != nil {
		return err
	}
	if page.HasNext() {
		_, err := fmt.Fprintf(w, "next: --page %d\n", page.Page+1)
		return err
	}
	return nil
}

func newReportsReconcileCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <entry-id>",
		Short: "Clear the flag of an entry whose case was updated by hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid entry id: %w", err)
			}

			s, err := open(cmd.Context(), opts.configPath, true)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.domain.Reports.Reconcile(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entry %s reconciled\n", id)
			return nil
		},
	}
}
