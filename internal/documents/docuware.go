package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

type docuware struct {
	cfg    *Config
	base   *http.Client
	logger *slog.Logger

	mu     sync.Mutex
	client *http.Client
	dialog string
}

// New creates a DocuWare-backed System. Authentication happens lazily on
// the first call and is retried on later calls if it fails.
func New(cfg *Config, logger *slog.Logger) System {
	return NewWithClient(cfg, &http.Client{Timeout: cfg.TimeoutDuration()}, logger)
}

// NewWithClient creates a DocuWare-backed System that sends all requests,
// including discovery and token requests, through hc.
func NewWithClient(cfg *Config, hc *http.Client, logger *slog.Logger) System {
	return &docuware{
		cfg:    cfg,
		base:   hc,
		logger: logger.With("system", "documents"),
	}
}

type passwordSource struct {
	ctx      context.Context
	conf     *oauth2.Config
	username string
	password string
}

func (s *passwordSource) Token() (*oauth2.Token, error) {
	return s.conf.PasswordCredentialsToken(s.ctx, s.username, s.password)
}

// session returns an authorized client, discovering the identity service
// through its OpenID configuration on first use.
func (d *docuware) session(ctx context.Context) (*http.Client, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return d.client, d.dialog, nil
	}

	issuer, err := d.identityService(ctx)
	if err != nil {
		return nil, "", err
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, d.base), issuer)
	if err != nil {
		return nil, "", fmt.Errorf("%w: discover identity service: %w", ErrUnreachable, err)
	}

	endpoint := provider.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, d.base)
	src := &passwordSource{
		ctx: tokenCtx,
		conf: &oauth2.Config{
			ClientID: d.cfg.ClientID,
			Endpoint: endpoint,
			Scopes:   []string{d.cfg.Scope},
		},
		username: strings.TrimSpace(d.cfg.Username),
		password: strings.TrimSpace(d.cfg.Password),
	}

	tok, err := src.Token()
	if err != nil {
		return nil, "", fmt.Errorf("%w: authenticate %s: %w", ErrUnreachable, src.username, err)
	}

	client := oauth2.NewClient(tokenCtx, oauth2.ReuseTokenSource(tok, src))
	client.Timeout = d.base.Timeout

	dialog := d.cfg.SearchDialog
	if dialog == "" {
		if dialog, err = d.discoverDialog(ctx, client); err != nil {
			return nil, "", err
		}
	}

	d.client, d.dialog = client, dialog
	d.logger.InfoContext(ctx, "docuware session established", "file_cabinet", d.cfg.FileCabinet, "dialog", dialog)
	return client, dialog, nil
}

func (d *docuware) identityService(ctx context.Context) (string, error) {
	var info struct {
		IdentityServiceURL string `json:"IdentityServiceUrl"`
	}
	if err := d.doJSON(ctx, d.base, http.MethodGet, d.cfg.PlatformURL()+"/Home/IdentityServiceInfo", nil, &info); err != nil {
		return "", fmt.Errorf("identity service info: %w", err)
	}
	if info.IdentityServiceURL == "" {
		return "", fmt.Errorf("%w: identity service url missing", ErrUnreachable)
	}
	return info.IdentityServiceURL, nil
}

func (d *docuware) discoverDialog(ctx context.Context, client *http.Client) (string, error) {
	var res struct {
		Dialog []struct {
			ID string `json:"Id"`
		} `json:"Dialog"`
	}
	target := fmt.Sprintf("%s/FileCabinets/%s/Dialogs?DialogType=Search", d.cfg.PlatformURL(), url.PathEscape(d.cfg.FileCabinet))
	if err := d.doJSON(ctx, client, http.MethodGet, target, nil, &res); err != nil {
		return "", fmt.Errorf("discover search dialog: %w", err)
	}
	if len(res.Dialog) == 0 {
		return "", fmt.Errorf("%w: no search dialog in file cabinet %s", ErrRequestFailed, d.cfg.FileCabinet)
	}
	return res.Dialog[0].ID, nil
}

type condition struct {
	DBName string   `json:"DBName"`
	Value  []string `json:"Value"`
}

type sortOrder struct {
	Field     string `json:"Field"`
	Direction string `json:"Direction"`
}

type dialogQuery struct {
	Condition []condition `json:"Condition"`
	Operation string      `json:"Operation"`
	SortOrder []sortOrder `json:"SortOrder"`
	Start     int         `json:"Start"`
	Count     int         `json:"Count"`
}

type field struct {
	FieldName string          `json:"FieldName"`
	Item      json.RawMessage `json:"Item"`
}

type item struct {
	ID          json.RawMessage `json:"Id"`
	ContentType string          `json:"ContentType"`
	Fields      []field         `json:"Fields"`
}

type queryResult struct {
	Items []item `json:"Items"`
	Count struct {
		HasMore bool `json:"HasMore"`
	} `json:"Count"`
}

func (d *docuware) Search(ctx context.Context, key string) ([]Document, error) {
	client, dialog, err := d.session(ctx)
	if err != nil {
		return nil, err
	}

	value := key
	if !strings.HasPrefix(value, `"`) {
		value = `"` + value + `"`
	}

	q := dialogQuery{
		Condition: []condition{{DBName: d.cfg.KeyField, Value: []string{value}}},
		Operation: "And",
		SortOrder: []sortOrder{{Field: d.cfg.DateField, Direction: "Asc"}},
		Count:     d.cfg.PageSize,
	}
	target := fmt.Sprintf(
		"%s/FileCabinets/%s/Query/DialogExpression?%s",
		d.cfg.PlatformURL(), url.PathEscape(d.cfg.FileCabinet),
		url.Values{"DialogId": {dialog}}.Encode(),
	)

	var docs []Document
	for page := 1; page <= d.cfg.MaxPages; page++ {
		var res queryResult
		if err := d.doJSON(ctx, client, http.MethodPost, target, q, &res); err != nil {
			return nil, fmt.Errorf("search %s page %d: %w", key, page, err)
		}
		if len(res.Items) == 0 {
			break
		}
		for _, it := range res.Items {
			docs = append(docs, d.toDocument(it, key))
		}
		if !res.Count.HasMore {
			break
		}
		q.Start += len(res.Items)
	}

	d.logger.InfoContext(ctx, "documents found", "key", key, "count", len(docs))
	return docs, nil
}

func (d *docuware) toDocument(it item, key string) Document {
	fields := make(map[string]string, len(it.Fields))
	for _, f := range it.Fields {
		fields[f.FieldName] = rawString(f.Item)
	}
	return Document{
		ID:           rawString(it.ID),
		SecondaryKey: key,
		Type:         strings.TrimSpace(fields[d.cfg.TypeField]),
		Act:          strings.TrimSpace(fields[d.cfg.ActField]),
		CreatedAt:    ParseDate(fields[d.cfg.DateField]),
		ContentType:  it.ContentType,
		Fields:       fields,
	}
}

// rawString flattens a DocuWare field value: strings are unquoted, keyword
// lists are comma-joined, and anything else keeps its JSON text.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case '{':
		var kw struct {
			Keyword []string `json:"Keyword"`
		}
		if err := json.Unmarshal(raw, &kw); err == nil && len(kw.Keyword) > 0 {
			return strings.Join(kw.Keyword, ", ")
		}
	}
	return string(raw)
}

func (d *docuware) Open(ctx context.Context, doc Document) (io.ReadCloser, string, error) {
	client, _, err := d.session(ctx)
	if err != nil {
		return nil, "", err
	}

	target := fmt.Sprintf(
		"%s/FileCabinets/%s/Documents/%s/FileDownload?TargetFileType=Auto&KeepAnnotations=false",
		d.cfg.PlatformURL(), url.PathEscape(d.cfg.FileCabinet), url.PathEscape(doc.ID),
	)

	resp, err := d.send(ctx, client, http.MethodGet, target, nil, "*/*")
	if err != nil {
		return nil, "", fmt.Errorf("%w: document %s: %w", ErrDownloadFailed, doc.ID, err)
	}

	if resp.StatusCode == http.StatusInternalServerError {
		resp.Body.Close()
		d.logger.WarnContext(ctx, "file download failed, retrying through sections", "document", doc.ID)
		return d.openSection(ctx, client, doc)
	}
	if err := checkStatus(resp); err != nil {
		return nil, "", fmt.Errorf("%w: document %s: %w", ErrDownloadFailed, doc.ID, err)
	}

	return resp.Body, contentType(resp, doc.ContentType), nil
}

func (d *docuware) openSection(ctx context.Context, client *http.Client, doc Document) (io.ReadCloser, string, error) {
	var res struct {
		Section []struct {
			ID          string `json:"Id"`
			ContentType string `json:"ContentType"`
		} `json:"Section"`
	}
	target := fmt.Sprintf(
		"%s/FileCabinets/%s/Sections?%s",
		d.cfg.PlatformURL(), url.PathEscape(d.cfg.FileCabinet),
		url.Values{"docid": {doc.ID}}.Encode(),
	)
	if err := d.doJSON(ctx, client, http.MethodGet, target, nil, &res); err != nil {
		return nil, "", fmt.Errorf("%w: sections of %s: %w", ErrDownloadFailed, doc.ID, err)
	}
	if len(res.Section) == 0 {
		return nil, "", fmt.Errorf("%w: document %s has no sections", ErrDownloadFailed, doc.ID)
	}

	section := res.Section[0]
	target = fmt.Sprintf(
		"%s/FileCabinets/%s/Sections/%s/Data",
		d.cfg.PlatformURL(), url.PathEscape(d.cfg.FileCabinet), url.PathEscape(section.ID),
	)
	resp, err := d.send(ctx, client, http.MethodGet, target, nil, "*/*")
	if err != nil {
		return nil, "", fmt.Errorf("%w: section %s: %w", ErrDownloadFailed, section.ID, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, "", fmt.Errorf("%w: section %s: %w", ErrDownloadFailed, section.ID, err)
	}

	fallback := section.ContentType
	if fallback == "" {
		fallback = doc.ContentType
	}
	return resp.Body, contentType(resp, fallback), nil
}

func (d *docuware) Ping(ctx context.Context) error {
	client, _, err := d.session(ctx)
	if err != nil {
		return fmt.Errorf("ping docuware: %w", err)
	}

	var cabinet struct {
		Name string `json:"Name"`
	}
	target := fmt.Sprintf("%s/FileCabinets/%s", d.cfg.PlatformURL(), url.PathEscape(d.cfg.FileCabinet))
	if err := d.doJSON(ctx, client, http.MethodGet, target, nil, &cabinet); err != nil {
		return fmt.Errorf("ping docuware: %w", err)
	}
	return nil
}

func (d *docuware) doJSON(ctx context.Context, client *http.Client, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := d.send(ctx, client, method, target, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (d *docuware) send(ctx context.Context, client *http.Client, method, target string, body io.Reader, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return resp, nil
}

// checkStatus closes the body and returns a *ResponseError on non-2xx.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	defer resp.Body.Close()
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &ResponseError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
}

func contentType(resp *http.Response, fallback string) string {
	raw := resp.Header.Get("Content-Type")
	if raw == "" {
		raw = fallback
	}
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil || mt == "" || mt == "application/octet-stream" {
		if fallback != "" && fallback != raw {
			return fallback
		}
		return "application/pdf"
	}
	return mt
}
