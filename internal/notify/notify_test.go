package notify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/JaimeStill/expedite/internal/cases"
	"github.com/JaimeStill/expedite/internal/graph"
	"github.com/JaimeStill/expedite/internal/notify"
)

const catalogYAML = `
signature: "<p>Atentamente, Expedición</p>"
default:
  attachment:
    subject: "Respuesta [Número PQRS]"
    body: "<html><body><p>Adjunto copia para [Nombre de la sociedad] ([Correo Electrónico]).</p></body></html>"
  link:
    subject: "Respuesta [Número PQRS]"
    body: "<html><body><p>Enlace: [\u200bEnlace Onedrive.pdf\u200b]</p></body></html>"
  no_attachments:
    subject: "Sin documentos [Número PQRS]"
    body: "<p>Sin documentos disponibles al [Fecha hoy].</p>"
variants:
  folder:
    link:
      subject: "Carpeta {numero_radicado}"
      body: "<p>{link} en {onedrive_path}</p>"
subcategories:
  Oficiales:
    attachment:
      subject: "Oficial [Número PQRS]"
      body: "<p>Oficial radicado el [Fecha de ingreso de la solicitud]</p>"
system:
  run_started:
    subject: "Inicio {tipo_proceso}"
    body: "<p>Ejecución {run_id} con {total} casos</p>"
  non_critical:
    subject: "Novedad {numero_radicado}"
    body: "<p>[Novedad identificada]</p>"
  case_error:
    subject: "Error caso {numero_radicado}"
    body: "<p>Error al procesar su caso: {mensaje}</p>"
  lock_busy:
    subject: "Bloqueo {tipo_proceso}"
    body: "<p>{novedad}</p>"
  report:
    subject: "Reporte {fecha_reporte}"
    body: "<p>{casos_exitosos}/{casos_error}/{casos_pendientes} de {total}</p>"
`

type mailer struct {
	sent []graph.Message
	err  error
}

func (m *mailer) SendMail(_ context.Context, msg graph.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newNotifier(t *testing.T, opts notify.Options) (*notify.Notifier, *mailer) {
	t.Helper()
	catalog, err := notify.ParseCatalog([]byte(catalogYAML))
	if err != nil {
		t.Fatalf("ParseCatalog() error = %v", err)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	opts.Now = func() time.Time { return time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC) }
	m := &mailer{}
	return notify.New(catalog, m, opts, discard()), m
}

func sampleCase() cases.Case {
	return cases.Case{
		ID:            "c-1",
		Reference:     "PQRS-100",
		Title:         "Caso Acme S.A.S. 02/03/2026 copias",
		SecondaryKeys: []string{"A1", "A2"},
		Email:         "cliente@example.com",
		CreatedAt:     time.Date(2026, time.March, 2, 15, 0, 0, 0, time.UTC),
		Subcategory:   "Particulares",
	}
}

func TestCatalogResolution(t *testing.T) {
	catalog, err := notify.ParseCatalog([]byte(catalogYAML))
	if err != nil {
		t.Fatalf("ParseCatalog() error = %v", err)
	}

	tests := []struct {
		name        string
		variant     string
		subcategory string
		kind        notify.Kind
		wantSubject string
	}{
		{"subcategory wins", "merge", "Oficiales", notify.KindAttachment, "Oficial [Número PQRS]"},
		{"variant before default", "folder", "Oficiales", notify.KindLink, "Carpeta {numero_radicado}"},
		{"default", "merge", "Particulares", notify.KindNoAttachments, "Sin documentos [Número PQRS]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl, err := catalog.ForCase(tt.variant, tt.subcategory, tt.kind)
			if err != nil {
				t.Fatalf("ForCase() error = %v", err)
			}
			if tpl.Subject != tt.wantSubject {
				t.Errorf("ForCase() subject = %q, want %q", tpl.Subject, tt.wantSubject)
			}
		})
	}

	if _, err := catalog.ForSystem(notify.UpdateFailed); !errors.Is(err, notify.ErrTemplateNotFound) {
		t.Errorf("ForSystem(update_failed) = %v, want ErrTemplateNotFound", err)
	}
	if _, err := (&notify.Catalog{}).ForCase("merge", "", notify.KindLink); !errors.Is(err, notify.ErrTemplateNotFound) {
		t.Errorf("ForCase() on empty catalog = %v, want ErrTemplateNotFound", err)
	}
}

func TestRender(t *testing.T) {
	v := notify.Values{
		"[Número PQRS]":         "PQRS-1",
		"[Correo electrónico]":  "a@b.co",
		"[Enlace Onedrive.pdf]": "https://x/y",
		"{link}":                "https://x/y",
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bracket", "Caso [Número PQRS]", "Caso PQRS-1"},
		{"curly", "Ver {link}", "Ver https://x/y"},
		{"capitalized alias", "Para [Correo Electrónico]", "Para a@b.co"},
		{"zero width spaces", "[\u200bEnlace Onedrive.pdf\u200b]", "https://x/y"},
		{"unknown kept", "{desconocido} [Otro]", "{desconocido} [Otro]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := notify.Render(tt.in, v); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSign(t *testing.T) {
	const sig = "<p>firma</p>"

	tests := []struct {
		name string
		body string
		want string
	}{
		{"before body close", "<html><body>x</body></html>", "<html><body>x<p>firma</p></body></html>"},
		{"append", "<p>x</p>", "<p>x</p><p>firma</p>"},
		{"already signed", "<p>x</p><p>firma</p>", "<p>x</p><p>firma</p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := notify.Sign(tt.body, sig); got != tt.want {
				t.Errorf("Sign() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeliverAttachment(t *testing.T) {
	n, m := newNotifier(t, notify.Options{Responsible: "ops@example.com"})

	att := &graph.Attachment{Name: "PQRS-100.pdf", ContentType: "application/pdf", Content: []byte("%PDF")}
	body, err := n.Deliver(context.Background(), notify.Delivery{
		Case:       sampleCase(),
		To:         "cliente@example.com",
		Variant:    "merge",
		Kind:       notify.KindAttachment,
		Attachment: att,
	})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if len(m.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(m.sent))
	}
	msg := m.sent[0]
	if msg.Subject != "Respuesta PQRS-100" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if len(msg.To) != 1 || msg.To[0] != "cliente@example.com" {
		t.Errorf("To = %v", msg.To)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].Name != "PQRS-100.pdf" {
		t.Errorf("Attachments = %+v", msg.Attachments)
	}
	want := "<p>Adjunto copia para Acme S.A.S. (cliente@example.com).</p><p>Atentamente, Expedición</p></body></html>"
	if !strings.HasSuffix(body, want) {
		t.Errorf("body = %q, want suffix %q", body, want)
	}
	if body != msg.HTML {
		t.Error("Deliver() must return the body that was sent")
	}
}

func TestDeliverSubcategoryDates(t *testing.T) {
	n, m := newNotifier(t, notify.Options{})
	c := sampleCase()
	c.Subcategory = "Oficiales"

	if _, err := n.Deliver(context.Background(), notify.Delivery{
		Case: c, To: c.Email, Variant: "merge", Kind: notify.KindAttachment,
	}); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if !strings.Contains(m.sent[0].HTML, "radicado el 02/03/2026") {
		t.Errorf("HTML = %q, want request date", m.sent[0].HTML)
	}
}

func TestDeliverLinkAndNoAttachments(t *testing.T) {
	n, m := newNotifier(t, notify.Options{})
	ctx := context.Background()

	if _, err := n.Deliver(ctx, notify.Delivery{
		Case: sampleCase(), To: "cliente@example.com", Variant: "folder",
		Kind: notify.KindLink, Link: "https://share/1", RemotePath: "Expedicion/PQRS-100",
	}); err != nil {
		t.Fatalf("Deliver(link) error = %v", err)
	}
	if got := m.sent[0].Subject; got != "Carpeta PQRS-100" {
		t.Errorf("link Subject = %q", got)
	}
	if !strings.Contains(m.sent[0].HTML, "https://share/1 en Expedicion/PQRS-100") {
		t.Errorf("link HTML = %q", m.sent[0].HTML)
	}

	if _, err := n.Deliver(ctx, notify.Delivery{
		Case: sampleCase(), To: "cliente@example.com", Variant: "folder", Kind: notify.KindNoAttachments,
	}); err != nil {
		t.Fatalf("Deliver(no_attachments) error = %v", err)
	}
	if !strings.Contains(m.sent[1].HTML, "04 de marzo de 2026") {
		t.Errorf("no_attachments HTML = %q, want long date", m.sent[1].HTML)
	}
}

func TestRedirect(t *testing.T) {
	n, m := newNotifier(t, notify.Options{Responsible: "ops@example.com", Redirect: "qa@example.com"})
	ctx := context.Background()

	if _, err := n.Deliver(ctx, notify.Delivery{
		Case: sampleCase(), To: "cliente@example.com", Variant: "merge", Kind: notify.KindAttachment,
	}); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if err := n.RunStarted(ctx, "merge", "run-1", 3); err != nil {
		t.Fatalf("RunStarted() error = %v", err)
	}

	for _, msg := range m.sent {
		if len(msg.To) != 1 || msg.To[0] != "qa@example.com" {
			t.Errorf("To = %v, want redirect address only", msg.To)
		}
	}
}

func TestSystemNotices(t *testing.T) {
	n, m := newNotifier(t, notify.Options{Responsible: "ops@example.com"})
	ctx := context.Background()

	if err := n.RunStarted(ctx, "merge", "run-7", 12); err != nil {
		t.Fatalf("RunStarted() error = %v", err)
	}
	if got := m.sent[0].HTML; !strings.Contains(got, "Ejecución run-7 con 12 casos") {
		t.Errorf("RunStarted HTML = %q", got)
	}

	if err := n.NonCritical(ctx, "merge", sampleCase(), "missing contact email"); err != nil {
		t.Fatalf("NonCritical() error = %v", err)
	}
	if got := m.sent[1]; got.Subject != "Novedad PQRS-100" || !strings.Contains(got.HTML, "missing contact email") {
		t.Errorf("NonCritical message = %+v", got)
	}

	if err := n.UpdateFailed(ctx, "merge", sampleCase(), errors.New("gone")); !errors.Is(err, notify.ErrTemplateNotFound) {
		t.Errorf("UpdateFailed() without template = %v, want ErrTemplateNotFound", err)
	}
}

func TestNoAttachmentsGoesToResponsible(t *testing.T) {
	n, m := newNotifier(t, notify.Options{Responsible: "ops@example.com"})

	if err := n.NoAttachments(context.Background(), "merge", sampleCase()); err != nil {
		t.Fatalf("NoAttachments() error = %v", err)
	}

	msg := m.sent[0]
	if len(msg.To) != 1 || msg.To[0] != "ops@example.com" {
		t.Errorf("To = %v, want responsible party only", msg.To)
	}
	if msg.Subject != "Sin documentos PQRS-100" {
		t.Errorf("Subject = %q, want the case no_attachments template", msg.Subject)
	}
}

func TestCaseErrorGoesToRequester(t *testing.T) {
	tests := []struct {
		name     string
		redirect string
		want     string
	}{
		{"production", "", "cliente@example.com"},
		{"qa", "qa@example.com", "qa@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, m := newNotifier(t, notify.Options{Responsible: "ops@example.com", Redirect: tt.redirect})

			err := n.CaseError(context.Background(), "merge", sampleCase(), "cliente@example.com", "deliver: upload timed out")
			if err != nil {
				t.Fatalf("CaseError() error = %v", err)
			}

			msg := m.sent[0]
			if len(msg.To) != 1 || msg.To[0] != tt.want {
				t.Errorf("To = %v, want %s", msg.To, tt.want)
			}
			if msg.Subject != "Error caso PQRS-100" || !strings.Contains(msg.HTML, "deliver: upload timed out") {
				t.Errorf("message = %+v", msg)
			}
		})
	}
}

func TestLockBusy(t *testing.T) {
	n, m := newNotifier(t, notify.Options{Responsible: "ops@example.com"})

	if err := n.LockBusy(context.Background(), "folder", errors.New("held by host-2")); err != nil {
		t.Fatalf("LockBusy() error = %v", err)
	}
	if got := m.sent[0]; got.To[0] != "ops@example.com" || got.Subject != "Bloqueo folder" || !strings.Contains(got.HTML, "held by host-2") {
		t.Errorf("LockBusy message = %+v", got)
	}
}

func TestSystemNoticeNeedsResponsible(t *testing.T) {
	n, m := newNotifier(t, notify.Options{})

	if err := n.RunStarted(context.Background(), "merge", "run-1", 0); !errors.Is(err, notify.ErrNoRecipients) {
		t.Errorf("RunStarted() = %v, want ErrNoRecipients", err)
	}
	if len(m.sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(m.sent))
	}
}

func TestReport(t *testing.T) {
	n, m := newNotifier(t, notify.Options{Responsible: "ops@example.com"})

	s := notify.Summary{
		RunID: "run-9", Variant: "folder",
		Date:  time.Date(2026, time.March, 4, 18, 0, 0, 0, time.UTC),
		Total: 10, Succeeded: 6, Failed: 1, Pending: 3,
	}
	att := &graph.Attachment{Name: "reporte.xlsx", Content: []byte("xlsx")}

	if err := n.Report(context.Background(), s, nil, att); err != nil {
		t.Fatalf("Report() error = %v", err)
	}

	msg := m.sent[0]
	if msg.To[0] != "ops@example.com" {
		t.Errorf("To = %v, want responsible fallback", msg.To)
	}
	if msg.Subject != "Reporte 04/03/2026" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "6/1/3 de 10") {
		t.Errorf("HTML = %q", msg.HTML)
	}
	if len(msg.Attachments) != 1 {
		t.Errorf("Attachments = %d, want 1", len(msg.Attachments))
	}
}
