package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/JaimeStill/expedite/internal/cases"
	"github.com/JaimeStill/expedite/internal/graph"
	"github.com/JaimeStill/expedite/pkg/formatting"
)

// Mailer sends a single HTML message. *graph.Client satisfies it.
type Mailer interface {
	SendMail(ctx context.Context, msg graph.Message) error
}

// Options configures addressing and dates for a Notifier.
type Options struct {
	// Responsible receives every operational notice.
	Responsible string
	// Redirect, when set, replaces every recipient. Used outside production.
	Redirect string
	// Location is the timezone dates are rendered in.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

// Notifier renders catalog templates and sends them through a Mailer.
type Notifier struct {
	catalog *Catalog
	mailer  Mailer
	opts    Options
	logger  *slog.Logger
}

// New creates a Notifier.
func New(catalog *Catalog, mailer Mailer, opts Options, logger *slog.Logger) *Notifier {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Notifier{
		catalog: catalog,
		mailer:  mailer,
		opts:    opts,
		logger:  logger.With("system", "notify"),
	}
}

// Delivery is the requester-facing message for one case.
type Delivery struct {
	Case       cases.Case
	To         string
	Variant    string
	Kind       Kind
	Link       string
	RemotePath string
	Attachment *graph.Attachment
}

// Deliver sends the case template of d.Kind to the requester and returns the
// rendered body, which doubles as the case response narrative.
func (n *Notifier) Deliver(ctx context.Context, d Delivery) (string, error) {
	tpl, err := n.catalog.ForCase(d.Variant, d.Case.Subcategory, d.Kind)
	if err != nil {
		return "", err
	}

	v := n.caseValues(d.Case, d.Variant)
	v["[Correo electrónico]"] = d.To
	v["[Enlace Onedrive.pdf]"] = d.Link
	v["{link}"] = d.Link
	v["{onedrive_path}"] = d.RemotePath

	msg := graph.Message{
		To:      []string{d.To},
		Subject: Render(tpl.Subject, v),
		HTML:    Sign(Render(tpl.Body, v), n.catalog.Signature),
	}
	if d.Attachment != nil {
		msg.Attachments = []graph.Attachment{*d.Attachment}
	}

	if err := n.send(ctx, msg); err != nil {
		return "", err
	}

	n.logger.InfoContext(ctx, "case notification sent", "case", d.Case.ID, "kind", d.Kind)
	return msg.HTML, nil
}

// RunStarted tells the responsible party a batch began.
func (n *Notifier) RunStarted(ctx context.Context, variant, runID string, candidates int) error {
	v := n.baseValues(variant)
	v["{run_id}"] = runID
	v["{total}"] = strconv.Itoa(candidates)
	return n.system(ctx, RunStarted, v)
}

// ConnectionError reports a pre-batch connectivity failure.
func (n *Notifier) ConnectionError(ctx context.Context, variant string, cause error) error {
	v := n.baseValues(variant)
	v["{novedad}"] = errText(cause)
	v["[Novedad identificada]"] = errText(cause)
	return n.system(ctx, ConnectionError, v)
}

// NonCritical reports a case that failed a precondition.
func (n *Notifier) NonCritical(ctx context.Context, variant string, c cases.Case, observation string) error {
	v := n.caseValues(c, variant)
	v["{novedad}"] = observation
	v["[Novedad identificada]"] = observation
	return n.system(ctx, NonCritical, v)
}

// ShareAdvisory reports a delivery that fell back to the plain web URL.
func (n *Notifier) ShareAdvisory(ctx context.Context, variant string, c cases.Case, link string, cause error) error {
	v := n.caseValues(c, variant)
	v["{link}"] = link
	v["[Enlace Onedrive.pdf]"] = link
	v["{novedad}"] = errText(cause)
	v["[Novedad identificada]"] = errText(cause)
	return n.system(ctx, ShareAdvisory, v)
}

// UpdateFailed reports a delivered case whose write-back failed.
func (n *Notifier) UpdateFailed(ctx context.Context, variant string, c cases.Case, cause error) error {
	v := n.caseValues(c, variant)
	v["{novedad}"] = errText(cause)
	v["[Novedad identificada]"] = errText(cause)
	return n.system(ctx, UpdateFailed, v)
}

// NoAttachments tells the responsible party that every document found for c
// was excluded by the filter. It renders the case's no_attachments template.
func (n *Notifier) NoAttachments(ctx context.Context, variant string, c cases.Case) error {
	tpl, err := n.catalog.ForCase(variant, c.Subcategory, KindNoAttachments)
	if err != nil {
		return err
	}
	return n.notice(ctx, string(KindNoAttachments), tpl, n.responsible(), n.caseValues(c, variant))
}

// CaseError tells the requester at to that c could not be processed.
func (n *Notifier) CaseError(ctx context.Context, variant string, c cases.Case, to, observation string) error {
	tpl, err := n.catalog.ForSystem(CaseError)
	if err != nil {
		return err
	}

	v := n.caseValues(c, variant)
	v["[Correo electrónico]"] = to
	v["{mensaje}"] = observation
	v["{novedad}"] = observation
	v["[Novedad identificada]"] = observation
	return n.notice(ctx, CaseError, tpl, []string{to}, v)
}

// LockBusy reports a run that did not start because the variant lock was
// held or could not be read.
func (n *Notifier) LockBusy(ctx context.Context, variant string, cause error) error {
	v := n.baseValues(variant)
	v["{novedad}"] = errText(cause)
	v["[Novedad identificada]"] = errText(cause)
	return n.system(ctx, LockBusy, v)
}

// Summary is the run tally rendered into the report notice.
type Summary struct {
	RunID     string
	Variant   string
	Date      time.Time
	Total     int
	Succeeded int
	Failed    int
	Pending   int
}

// Report sends the run report to recipients, or to the responsible party
// when recipients is empty.
func (n *Notifier) Report(ctx context.Context, s Summary, recipients []string, att *graph.Attachment) error {
	tpl, err := n.catalog.ForSystem(ReportReady)
	if err != nil {
		return err
	}

	v := n.baseValues(s.Variant)
	v["{run_id}"] = s.RunID
	v["{fecha_reporte}"] = formatting.ShortDate(s.Date.In(n.opts.Location))
	v["{total}"] = strconv.Itoa(s.Total)
	v["{casos_exitosos}"] = strconv.Itoa(s.Succeeded)
	v["{casos_error}"] = strconv.Itoa(s.Failed)
	v["{casos_pendientes}"] = strconv.Itoa(s.Pending)

	to := recipients
	if len(to) == 0 {
		to = n.responsible()
	}

	msg := graph.Message{
		To:      to,
		Subject: Render(tpl.Subject, v),
		HTML:    Sign(Render(tpl.Body, v), n.catalog.Signature),
	}
	if att != nil {
		msg.Attachments = []graph.Attachment{*att}
	}
	return n.send(ctx, msg)
}

func (n *Notifier) system(ctx context.Context, name string, v Values) error {
	tpl, err := n.catalog.ForSystem(name)
	if err != nil {
		return err
	}
	return n.notice(ctx, name, tpl, n.responsible(), v)
}

func (n *Notifier) notice(ctx context.Context, name string, tpl Template, to []string, v Values) error {
	err := n.send(ctx, graph.Message{
		To:      to,
		Subject: Render(tpl.Subject, v),
		HTML:    Sign(Render(tpl.Body, v), n.catalog.Signature),
	})
	if err != nil {
		return fmt.Errorf("%s notice: %w", name, err)
	}

	n.logger.InfoContext(ctx, "notice sent", "template", name)
	return nil
}

func (n *Notifier) responsible() []string {
	if n.opts.Responsible == "" {
		return nil
	}
	return []string{n.opts.Responsible}
}

func (n *Notifier) send(ctx context.Context, msg graph.Message) error {
	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		return ErrNoRecipients
	}
	if n.opts.Redirect != "" {
		n.logger.DebugContext(ctx, "recipients redirected", "original", to, "redirect", n.opts.Redirect)
		to = []string{n.opts.Redirect}
	}
	msg.To = to
	return n.mailer.SendMail(ctx, msg)
}

func (n *Notifier) baseValues(variant string) Values {
	now := n.opts.Now().In(n.opts.Location)
	return Values{
		"[Fecha hoy]":          formatting.LongDate(now),
		"[Fecha de respuesta]": formatting.ShortDate(now),
		"{tipo_proceso}":       variant,
	}
}

func (n *Notifier) caseValues(c cases.Case, variant string) Values {
	v := n.baseValues(variant)
	v["[Número PQRS]"] = c.Ticket()
	v["[Nombre de la sociedad]"] = c.Company()
	v["[CLIENTE]"] = c.Company()
	v["[Correo electrónico]"] = c.Email
	v["{case_id}"] = c.ID
	v["{ticket_number}"] = c.TicketNumber
	v["{numero_radicado}"] = c.Ticket()
	v["{matriculas}"] = strings.Join(c.SecondaryKeys, ", ")
	if !c.CreatedAt.IsZero() {
		v["[Fecha de ingreso de la solicitud]"] = formatting.ShortDate(c.CreatedAt.In(n.opts.Location))
	}
	return v
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
