package cases

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

const (
	entitySet = "sp_documentos"

	fieldNarrative = "sp_descripciondelasolucion"
	fieldResolved  = "sp_resolvercaso"
)

var selectFields = []string{
	"sp_documentoid",
	"sp_name",
	"sp_nroderadicado",
	"sp_titulopqrs",
	"invt_matriculasrequeridas",
	"invt_correoelectronico",
	"_ownerid_value",
	"_createdby_value",
	"createdon",
	"_sp_categoriapqrs_value",
	"_sp_subcategoriapqrs_value",
	"_invt_especificacion_value",
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidEmail reports whether s is a plausible mailbox address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// Client is the case-management system as seen by the pipeline.
type Client interface {
	// QueryPending returns unresolved cases matching tags, oldest first,
	// following server-driven paging up to the configured page limit.
	QueryPending(ctx context.Context, tags Tags) ([]Case, error)
	// Update writes the resolved flag and response narrative back to a case.
	// It returns ErrNotFound when the case no longer exists.
	Update(ctx context.Context, id string, resolved bool, narrative string) error
	// ResolveCreatorEmail returns the email address of a system user.
	ResolveCreatorEmail(ctx context.Context, userRef string) (string, error)
	// Ping verifies the Web API is reachable with the configured credentials.
	Ping(ctx context.Context) error
}

type dynamics struct {
	endpoint string
	scope    string
	pageSize int
	maxPages int
	cred     azcore.TokenCredential
	http     *http.Client
	logger   *slog.Logger
}

// New creates a Dynamics client authenticated with client-secret credentials.
func New(cfg *Config, logger *slog.Logger) (Client, error) {
	cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("create dynamics credential: %w", err)
	}
	return NewWithCredential(cfg, cred, &http.Client{Timeout: cfg.TimeoutDuration()}, logger), nil
}

// NewWithCredential creates a Dynamics client using an existing credential
// and HTTP client.
func NewWithCredential(cfg *Config, cred azcore.TokenCredential, hc *http.Client, logger *slog.Logger) Client {
	return &dynamics{
		endpoint: cfg.Endpoint(),
		scope:    cfg.Scope(),
		pageSize: cfg.PageSize,
		maxPages: cfg.MaxPages,
		cred:     cred,
		http:     hc,
		logger:   logger.With("system", "cases"),
	}
}

// Filter builds the OData filter selecting unresolved cases for tags.
func Filter(tags Tags) string {
	var parts []string
	if c := anyOf("_sp_subcategoriapqrs_value", tags.Subcategories); c != "" {
		parts = append(parts, c)
	}
	if c := anyOf("_invt_especificacion_value", tags.Specifications); c != "" {
		parts = append(parts, c)
	}
	parts = append(parts, fieldResolved+" eq false")
	return strings.Join(parts, " and ")
}

func anyOf(field string, values []string) string {
	if len(values) == 0 {
		return ""
	}
	conds := make([]string, len(values))
	for i, v := range values {
		conds[i] = fmt.Sprintf("%s eq '%s'", field, strings.ReplaceAll(v, "'", "''"))
	}
	return "(" + strings.Join(conds, " or ") + ")"
}

type record struct {
	ID            string    `json:"sp_documentoid"`
	Name          string    `json:"sp_name"`
	Filing        string    `json:"sp_nroderadicado"`
	Title         string    `json:"sp_titulopqrs"`
	Keys          string    `json:"invt_matriculasrequeridas"`
	Email         string    `json:"invt_correoelectronico"`
	Owner         string    `json:"_ownerid_value"`
	CreatedBy     string    `json:"_createdby_value"`
	CreatedOn     time.Time `json:"createdon"`
	Category      string    `json:"_sp_categoriapqrs_value"`
	Subcategory   string    `json:"_sp_subcategoriapqrs_value"`
	Specification string    `json:"_invt_especificacion_value"`
}

func (r record) toCase() Case {
	creator := r.Owner
	if creator == "" {
		creator = r.CreatedBy
	}
	return Case{
		ID:            r.ID,
		Reference:     r.Name,
		TicketNumber:  r.Filing,
		Title:         r.Title,
		SecondaryKeys: ParseKeys(r.Keys),
		Email:         strings.TrimSpace(r.Email),
		CreatorRef:    creator,
		CreatedAt:     r.CreatedOn,
		Category:      r.Category,
		Subcategory:   r.Subcategory,
		Specification: r.Specification,
	}
}

type page struct {
	Value    []record `json:"value"`
	NextLink string   `json:"@odata.nextLink"`
}

func (d *dynamics) QueryPending(ctx context.Context, tags Tags) ([]Case, error) {
	q := url.Values{}
	q.Set("$select", strings.Join(selectFields, ","))
	q.Set("$filter", Filter(tags))
	q.Set("$orderby", "createdon asc")
	next := d.endpoint + "/" + entitySet + "?" + q.Encode()

	var result []Case
	for n := 1; next != "" && n <= d.maxPages; n++ {
		var p page
		if err := d.do(ctx, http.MethodGet, next, nil, &p); err != nil {
			return nil, fmt.Errorf("query pending cases page %d: %w", n, err)
		}
		if len(p.Value) == 0 {
			break
		}
		for _, r := range p.Value {
			result = append(result, r.toCase())
		}
		next = p.NextLink
		if next != "" && n == d.maxPages {
			d.logger.WarnContext(ctx, "page limit reached, remaining cases deferred", "max_pages", d.maxPages)
		}
	}

	d.logger.InfoContext(ctx, "pending cases queried", "count", len(result))
	return result, nil
}

func (d *dynamics) Update(ctx context.Context, id string, resolved bool, narrative string) error {
	body := map[string]any{
		fieldNarrative: narrative,
		fieldResolved:  resolved,
	}
	target := fmt.Sprintf("%s/%s(%s)", d.endpoint, entitySet, url.PathEscape(trimGUID(id)))
	if err := d.do(ctx, http.MethodPatch, target, body, nil); err != nil {
		return fmt.Errorf("update case %s: %w", id, err)
	}
	d.logger.InfoContext(ctx, "case updated", "case", id, "resolved", resolved)
	return nil
}

type systemUser struct {
	InternalEmail string `json:"internalemailaddress"`
	DomainName    string `json:"domainname"`
}

func (d *dynamics) ResolveCreatorEmail(ctx context.Context, userRef string) (string, error) {
	ref := strings.TrimSpace(userRef)
	if ref == "" {
		return "", ErrNoCreatorEmail
	}
	if emailPattern.MatchString(ref) {
		return ref, nil
	}

	target := fmt.Sprintf(
		"%s/systemusers(%s)?%s",
		d.endpoint, url.PathEscape(trimGUID(ref)),
		url.Values{"$select": {"internalemailaddress,domainname"}}.Encode(),
	)

	var u systemUser
	if err := d.do(ctx, http.MethodGet, target, nil, &u); err != nil {
		return "", fmt.Errorf("%w: user %s: %w", ErrNoCreatorEmail, ref, err)
	}

	for _, candidate := range []string{u.InternalEmail, u.DomainName} {
		if emailPattern.MatchString(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: user %s", ErrNoCreatorEmail, ref)
}

func (d *dynamics) Ping(ctx context.Context) error {
	var who struct {
		UserID string `json:"UserId"`
	}
	if err := d.do(ctx, http.MethodGet, d.endpoint+"/WhoAmI", nil, &who); err != nil {
		return fmt.Errorf("ping dynamics: %w", err)
	}
	return nil
}

func (d *dynamics) do(ctx context.Context, method, target string, in, out any) error {
	tok, err := d.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{d.scope}})
	if err != nil {
		return fmt.Errorf("%w: acquire token: %w", ErrUnreachable, err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OData-MaxVersion", "4.0")
	req.Header.Set("OData-Version", "4.0")
	req.Header.Set("Prefer", fmt.Sprintf("odata.maxpagesize=%d", d.pageSize))
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPatch {
		// prevents PATCH from upserting a case that was deleted
		req.Header.Set("If-Match", "*")
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ResponseError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func trimGUID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "{}")
}
