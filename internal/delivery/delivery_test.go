package delivery_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/JaimeStill/expedite/internal/assembly"
	"github.com/JaimeStill/expedite/internal/cases"
	"github.com/JaimeStill/expedite/internal/delivery"
	"github.com/JaimeStill/expedite/internal/notify"
	"github.com/JaimeStill/expedite/pkg/lifecycle"
	"github.com/JaimeStill/expedite/pkg/storage"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errDenied = errors.New("access denied")

type drive struct {
	uploads   []string
	trees     []string
	userErr   error
	orgErr    error
	webErr    error
	uploadErr error
}

func (d *drive) UploadFile(_ context.Context, _, remote string) (delivery.Item, error) {
	if d.uploadErr != nil {
		return delivery.Item{}, d.uploadErr
	}
	d.uploads = append(d.uploads, remote)
	return delivery.Item{ID: "file-1", Path: remote}, nil
}

func (d *drive) UploadTree(_ context.Context, _, remote string) (delivery.Item, error) {
	if d.uploadErr != nil {
		return delivery.Item{}, d.uploadErr
	}
	d.trees = append(d.trees, remote)
	return delivery.Item{ID: "folder-1", Path: remote}, nil
}

func (d *drive) ShareWithUser(_ context.Context, _ delivery.Item, email, _ string) (string, error) {
	if d.userErr != nil {
		return "", d.userErr
	}
	return "https://share/user/" + email, nil
}

func (d *drive) ShareOrganization(context.Context, delivery.Item, string) (string, error) {
	if d.orgErr != nil {
		return "", d.orgErr
	}
	return "https://share/org", nil
}

func (d *drive) WebURL(context.Context, delivery.Item) (string, error) {
	if d.webErr != nil {
		return "", d.webErr
	}
	return "https://drive/web", nil
}

type sender struct {
	sent []notify.Delivery
}

func (s *sender) Deliver(_ context.Context, d notify.Delivery) (string, error) {
	s.sent = append(s.sent, d)
	return "<p>" + string(d.Kind) + "</p>", nil
}

type advisor struct {
	calls int
	link  string
	cause error
}

func (a *advisor) ShareAdvisory(_ context.Context, _ string, _ cases.Case, link string, cause error) error {
	a.calls++
	a.link = link
	a.cause = cause
	return nil
}

func target() delivery.Target {
	return delivery.Target{
		Case:      cases.Case{ID: "c-1", Reference: "PQRS/100"},
		Recipient: "cliente@example.com",
		Variant:   "folder",
	}
}

func TestFolderFallbackToWebURL(t *testing.T) {
	d := &drive{userErr: errDenied, orgErr: errDenied}
	s, a := &sender{}, &advisor{}
	strategy := delivery.NewFolderStrategy(d, s, a, delivery.Options{
		Variant:  "folder",
		BasePath: "Expedicion/Oficiales",
		Chain:    delivery.DefaultChain(d, "read"),
	}, discard())

	res, err := strategy.Deliver(context.Background(), &assembly.Deliverable{Kind: assembly.KindFolder, Path: t.TempDir()}, target())
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if res.Link != "https://drive/web" || res.Tier != delivery.TierWebURL || !res.Degraded {
		t.Errorf("Deliver() = %+v, want degraded web url delivery", res)
	}
	if a.calls != 1 {
		t.Errorf("advisory sent %d times, want exactly 1", a.calls)
	}
	if !errors.Is(a.cause, errDenied) {
		t.Errorf("advisory cause = %v, want tier errors", a.cause)
	}
	if len(d.trees) != 1 || d.trees[0] != "Expedicion/Oficiales/PQRS_100" {
		t.Errorf("trees = %v, want sanitized ticket folder", d.trees)
	}
	if len(s.sent) != 1 || s.sent[0].Kind != notify.KindLink || s.sent[0].Link != "https://drive/web" {
		t.Errorf("sent = %+v, want one link message", s.sent)
	}
}

func TestFolderFirstTierNoAdvisory(t *testing.T) {
	d := &drive{}
	a := &advisor{}
	strategy := delivery.NewFolderStrategy(d, &sender{}, a, delivery.Options{
		Variant: "folder",
		Chain:   delivery.DefaultChain(d, "read"),
	}, discard())

	res, err := strategy.Deliver(context.Background(), &assembly.Deliverable{Path: t.TempDir()}, target())
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if res.Tier != delivery.TierUser || res.Degraded {
		t.Errorf("Deliver() = %+v, want user tier", res)
	}
	if a.calls != 0 {
		t.Errorf("advisory sent %d times, want 0", a.calls)
	}
}

func TestChain(t *testing.T) {
	tests := []struct {
		name     string
		drive    *drive
		wantTier string
		wantErr  error
	}{
		{"user", &drive{}, delivery.TierUser, nil},
		{"organization", &drive{userErr: errDenied}, delivery.TierOrganization, nil},
		{"web url", &drive{userErr: errDenied, orgErr: errDenied}, delivery.TierWebURL, nil},
		{"all fail", &drive{userErr: errDenied, orgErr: errDenied, webErr: errDenied}, "", delivery.ErrShareFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := delivery.DefaultChain(tt.drive, "read").Run(context.Background(), delivery.Item{}, target())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if res.Tier != tt.wantTier {
				t.Errorf("Run() tier = %q, want %q", res.Tier, tt.wantTier)
			}
		})
	}
}

func TestChainUserTierNeedsRecipient(t *testing.T) {
	tgt := target()
	tgt.Recipient = ""

	res, err := delivery.DefaultChain(&drive{}, "read").Run(context.Background(), delivery.Item{}, tgt)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Tier != delivery.TierOrganization {
		t.Errorf("Run() tier = %q, want organization", res.Tier)
	}
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], delivery.ErrNoRecipient) {
		t.Errorf("Errors = %v, want ErrNoRecipient from user tier", res.Errors)
	}
}

func writeFile(t *testing.T, size int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "merged.pdf")
	if err := os.WriteFile(p, bytes.Repeat([]byte("x"), size), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestMergeAttachmentBelowThreshold(t *testing.T) {
	d, s := &drive{}, &sender{}
	strategy := delivery.NewMergeStrategy(d, s, &advisor{}, delivery.Options{
		Variant:   "merge",
		BasePath:  "Expedicion",
		Threshold: 1024,
		Chain:     delivery.DefaultChain(d, "read"),
	}, discard())

	p := writeFile(t, 100)
	res, err := strategy.Deliver(context.Background(), &assembly.Deliverable{Kind: assembly.KindMerged, Path: p, Size: 100}, target())
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if res.Channel != delivery.ChannelAttachment {
		t.Errorf("Channel = %q, want attachment", res.Channel)
	}
	if len(d.uploads) != 0 {
		t.Errorf("uploads = %v, want none", d.uploads)
	}
	att := s.sent[0].Attachment
	if att == nil || att.Name != "PQRS_100.pdf" || len(att.Content) != 100 {
		t.Errorf("attachment = %+v", att)
	}
	if res.Narrative != "<p>attachment</p>" {
		t.Errorf("Narrative = %q", res.Narrative)
	}
}

func TestMergeLinkAtThreshold(t *testing.T) {
	d, s := &drive{}, &sender{}
	strategy := delivery.NewMergeStrategy(d, s, &advisor{}, delivery.Options{
		Variant:   "merge",
		BasePath:  "Expedicion",
		Threshold: 1024,
		Chain:     delivery.DefaultChain(d, "read"),
	}, discard())

	p := writeFile(t, 1024)
	res, err := strategy.Deliver(context.Background(), &assembly.Deliverable{Kind: assembly.KindMerged, Path: p, Size: 1024}, target())
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if res.Channel != delivery.ChannelLink || res.Link != "https://share/user/cliente@example.com" {
		t.Errorf("Deliver() = %+v, want user link", res)
	}
	if len(d.uploads) != 1 || d.uploads[0] != "Expedicion/PQRS_100/c-1.pdf" {
		t.Errorf("uploads = %v", d.uploads)
	}
	if s.sent[0].Kind != notify.KindLink || s.sent[0].Attachment != nil {
		t.Errorf("sent = %+v, want link without attachment", s.sent[0])
	}
}

func TestUploadFailure(t *testing.T) {
	d := &drive{uploadErr: errDenied}
	strategy := delivery.NewFolderStrategy(d, &sender{}, &advisor{}, delivery.Options{
		Chain: delivery.DefaultChain(d, "read"),
	}, discard())

	_, err := strategy.Deliver(context.Background(), &assembly.Deliverable{Path: t.TempDir()}, target())
	if !errors.Is(err, delivery.ErrUploadFailed) || !errors.Is(err, errDenied) {
		t.Errorf("Deliver() = %v, want ErrUploadFailed wrapping cause", err)
	}
}

type resolver struct {
	email string
	err   error
}

func (r resolver) ResolveCreatorEmail(context.Context, string) (string, error) {
	return r.email, r.err
}

func TestRecipients(t *testing.T) {
	tests := []struct {
		name     string
		resolver resolver
		redirect string
		c        cases.Case
		want     string
		wantErr  error
	}{
		{"contact email", resolver{}, "", cases.Case{Email: " cliente@example.com "}, "cliente@example.com", nil},
		{"creator fallback", resolver{email: "creador@example.com"}, "", cases.Case{CreatorRef: "u-1"}, "creador@example.com", nil},
		{"unresolvable", resolver{err: cases.ErrNoCreatorEmail}, "", cases.Case{CreatorRef: "u-1"}, "", delivery.ErrNoRecipient},
		{"redirect", resolver{}, "qa@example.com", cases.Case{Email: "cliente@example.com"}, "qa@example.com", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := delivery.NewRecipients(tt.resolver, tt.redirect).Resolve(context.Background(), tt.c)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

var _ storage.System = (*blobStore)(nil)

type blobStore struct {
	objects map[string][]byte
}

func (b *blobStore) Start(*lifecycle.Coordinator) error { return nil }

func (b *blobStore) Upload(_ context.Context, key string, r io.Reader, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = data
	return nil
}

func (b *blobStore) URL(key string) (string, error) { return "https://blob/" + key, nil }

func (b *blobStore) SignedURL(key string) (string, error) {
	return "https://blob/" + key + "?sig=x", nil
}

func TestBlobDriveTree(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "A1", "X"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "A1", "X", "X 1.pdf"), []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := &blobStore{objects: map[string][]byte{}}
	d := delivery.NewBlobDrive(store, discard())
	ctx := context.Background()

	item, err := d.UploadTree(ctx, root, "folder/PQRS_100")
	if err != nil {
		t.Fatalf("UploadTree() error = %v", err)
	}
	if item.Path != "folder/PQRS_100.zip" {
		t.Errorf("item.Path = %q", item.Path)
	}

	data := store.objects["folder/PQRS_100.zip"]
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader() error = %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "A1/X/X 1.pdf" {
		t.Errorf("archive entries = %v", zr.File)
	}

	res, err := delivery.DefaultChain(d, "read").Run(ctx, item, target())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Tier != delivery.TierOrganization || res.Link != "https://blob/folder/PQRS_100.zip?sig=x" {
		t.Errorf("Run() = %+v, want signed url", res)
	}
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], delivery.ErrShareUnsupported) {
		t.Errorf("Errors = %v, want ErrShareUnsupported", res.Errors)
	}
}

func TestConfigFinalize(t *testing.T) {
	cfg := delivery.Config{}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if cfg.Drive != delivery.DriveOneDrive || cfg.ShareRole != "read" {
		t.Errorf("defaults = %+v", cfg)
	}

	bad := delivery.Config{Drive: "ftp"}
	if err := bad.Finalize(nil); !errors.Is(err, delivery.ErrUnknownDrive) {
		t.Errorf("Finalize() = %v, want ErrUnknownDrive", err)
	}
}
