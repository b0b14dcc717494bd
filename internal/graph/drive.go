package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/microsoftgraph/msgraph-sdk-go-core/fileuploader"
	"github.com/microsoftgraph/msgraph-sdk-go/drives"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
)

// Item is a OneDrive file or folder.
type Item struct {
	ID     string
	Name   string
	WebURL string
	Size   int64
}

func fromDriveItem(it models.DriveItemable) Item {
	if it == nil {
		return Item{}
	}
	return Item{
		ID:     deref(it.GetId()),
		Name:   deref(it.GetName()),
		WebURL: deref(it.GetWebUrl()),
		Size:   deref(it.GetSize()),
	}
}

// byPath addresses a drive item by its slash-separated path from the root.
func byPath(remote string) string {
	clean := strings.Trim(path.Clean("/"+remote), "/")
	if clean == "" {
		return "root"
	}
	return "root:/" + clean + ":"
}

// Item returns the drive item at remote, a slash-separated path from the
// drive root.
func (c *Client) Item(ctx context.Context, remote string) (Item, error) {
	it, err := c.get(ctx, byPath(remote))
	if err != nil {
		return Item{}, fmt.Errorf("get item %s: %w", remote, err)
	}
	return it, nil
}

func (c *Client) get(ctx context.Context, ref string) (Item, error) {
	driveID, err := c.drive(ctx)
	if err != nil {
		return Item{}, err
	}

	ctx, cancel := c.bound(ctx)
	defer cancel()

	it, err := c.api.Drives().ByDriveId(driveID).Items().ByDriveItemId(ref).Get(ctx, nil)
	if err != nil {
		return Item{}, wrap(err)
	}
	return fromDriveItem(it), nil
}

// EnsureFolder creates every missing folder along remote and returns the
// last one.
func (c *Client) EnsureFolder(ctx context.Context, remote string) (Item, error) {
	driveID, err := c.drive(ctx)
	if err != nil {
		return Item{}, err
	}

	var (
		current string
		folder  = Item{ID: "root"}
	)
	for seg := range strings.SplitSeq(strings.Trim(path.Clean("/"+remote), "/"), "/") {
		if seg == "" {
			continue
		}
		parent := folder.ID
		current = path.Join(current, seg)

		it, err := c.get(ctx, byPath(current))
		if err == nil {
			folder = it
			continue
		}
		if !IsNotFound(err) {
			return Item{}, fmt.Errorf("get folder %s: %w", current, err)
		}

		body := models.NewDriveItem()
		body.SetName(&seg)
		body.SetFolder(models.NewFolder())
		body.SetAdditionalData(map[string]any{"@microsoft.graph.conflictBehavior": "fail"})

		cctx, cancel := c.bound(ctx)
		created, err := c.api.Drives().ByDriveId(driveID).Items().ByDriveItemId(parent).Children().Post(cctx, body, nil)
		cancel()
		err = wrap(err)

		switch {
		case hasStatus(err, http.StatusConflict):
			if folder, err = c.get(ctx, byPath(current)); err != nil {
				return Item{}, fmt.Errorf("get folder %s: %w", current, err)
			}
		case err != nil:
			return Item{}, fmt.Errorf("create folder %s: %w", current, err)
		default:
			folder = fromDriveItem(created)
		}
	}
	return folder, nil
}

// Upload writes size bytes from r to remote, replacing any existing file.
// Files above the simple-upload limit go through an upload session.
func (c *Client) Upload(ctx context.Context, remote string, r io.ReadSeeker, size int64) (Item, error) {
	driveID, err := c.drive(ctx)
	if err != nil {
		return Item{}, err
	}
	target := c.api.Drives().ByDriveId(driveID).Items().ByDriveItemId(byPath(remote))

	if size <= c.simpleLimit {
		data, err := io.ReadAll(r)
		if err != nil {
			return Item{}, fmt.Errorf("read upload %s: %w", remote, err)
		}

		cctx, cancel := c.bound(ctx)
		defer cancel()

		it, err := target.Content().Put(cctx, data, nil)
		if err != nil {
			return Item{}, fmt.Errorf("upload %s: %w", remote, wrap(err))
		}
		c.logger.DebugContext(ctx, "file uploaded", "path", remote, "size", size)
		return fromDriveItem(it), nil
	}

	props := models.NewDriveItemUploadableProperties()
	props.SetAdditionalData(map[string]any{"@microsoft.graph.conflictBehavior": "replace"})
	body := drives.NewItemItemsItemCreateUploadSessionPostRequestBody()
	body.SetItem(props)

	cctx, cancel := c.bound(ctx)
	session, err := target.CreateUploadSession().Post(cctx, body, nil)
	cancel()
	if err != nil {
		return Item{}, fmt.Errorf("create upload session %s: %w", remote, wrap(err))
	}

	task := fileuploader.NewLargeFileUploadTask[models.DriveItemable](
		c.adapter, session, nopCloser{r}, c.chunk, models.CreateDriveItemFromDiscriminatorValue, nil,
	)
	res := task.Upload(func(current, total int64) {
		c.logger.DebugContext(ctx, "upload progress", "path", remote, "sent", current, "total", total)
	})
	if !res.GetUploadSucceeded() {
		return Item{}, fmt.Errorf("upload %s: %w", remote, sessionError(res.GetResponseErrors()))
	}

	c.logger.DebugContext(ctx, "file uploaded in session", "path", remote, "size", size)
	return fromDriveItem(res.GetItemResponse()), nil
}

// nopCloser adapts an io.ReadSeeker to the uploader's io.ReadSeekCloser.
type nopCloser struct {
	io.ReadSeeker
}

func (nopCloser) Close() error { return nil }

func sessionError(errs []error) error {
	if len(errs) == 0 {
		return fmt.Errorf("%w: upload session did not complete", ErrRequestFailed)
	}
	for i, err := range errs {
		errs[i] = wrap(err)
	}
	return errors.Join(errs...)
}

// UploadFile uploads the local file at src to remote.
func (c *Client) UploadFile(ctx context.Context, src, remote string) (Item, error) {
	f, err := os.Open(src)
	if err != nil {
		return Item{}, fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Item{}, fmt.Errorf("stat %s: %w", src, err)
	}
	return c.Upload(ctx, remote, f, info.Size())
}

// UploadTree mirrors the local directory root under remote and returns the
// remote folder.
func (c *Client) UploadTree(ctx context.Context, root, remote string) (Item, error) {
	if _, err := c.EnsureFolder(ctx, remote); err != nil {
		return Item{}, err
	}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := path.Join(remote, filepath.ToSlash(rel))
		if d.IsDir() {
			_, err := c.EnsureFolder(ctx, target)
			return err
		}
		_, err = c.UploadFile(ctx, p, target)
		return err
	})
	if err != nil {
		return Item{}, fmt.Errorf("upload tree %s: %w", remote, err)
	}

	return c.Item(ctx, remote)
}

// ShareWithUser grants email access to item without sending Graph's own
// invitation mail and returns the link to send instead.
func (c *Client) ShareWithUser(ctx context.Context, item Item, email, role string) (string, error) {
	driveID, err := c.drive(ctx)
	if err != nil {
		return "", err
	}

	recipient := models.NewDriveRecipient()
	recipient.SetEmail(&email)

	requireSignIn, sendInvitation := true, false
	body := drives.NewItemItemsItemInvitePostRequestBody()
	body.SetRecipients([]models.DriveRecipientable{recipient})
	body.SetRequireSignIn(&requireSignIn)
	body.SetSendInvitation(&sendInvitation)
	body.SetRoles([]string{role})

	cctx, cancel := c.bound(ctx)
	defer cancel()

	res, err := c.api.Drives().ByDriveId(driveID).Items().ByDriveItemId(item.ID).Invite().PostAsInvitePostResponse(cctx, body, nil)
	if err != nil {
		return "", fmt.Errorf("share %s with %s: %w", item.Name, email, wrap(err))
	}

	for _, p := range res.GetValue() {
		if link := p.GetLink(); link != nil && deref(link.GetWebUrl()) != "" {
			return deref(link.GetWebUrl()), nil
		}
	}
	if item.WebURL != "" {
		return item.WebURL, nil
	}
	return "", fmt.Errorf("%w: share %s with %s returned no link", ErrRequestFailed, item.Name, email)
}

// ShareOrganization creates an organization-scoped sharing link for item.
func (c *Client) ShareOrganization(ctx context.Context, item Item, role string) (string, error) {
	driveID, err := c.drive(ctx)
	if err != nil {
		return "", err
	}

	kind, scope := linkType(role), "organization"
	body := drives.NewItemItemsItemCreateLinkPostRequestBody()
	body.SetTypeEscaped(&kind)
	body.SetScope(&scope)

	cctx, cancel := c.bound(ctx)
	defer cancel()

	perm, err := c.api.Drives().ByDriveId(driveID).Items().ByDriveItemId(item.ID).CreateLink().Post(cctx, body, nil)
	if err != nil {
		return "", fmt.Errorf("create organization link for %s: %w", item.Name, wrap(err))
	}
	if link := perm.GetLink(); link != nil && deref(link.GetWebUrl()) != "" {
		return deref(link.GetWebUrl()), nil
	}
	return "", fmt.Errorf("%w: organization link for %s is empty", ErrRequestFailed, item.Name)
}

// WebURL returns the item's default web URL, fetching it when item does
// not carry one.
func (c *Client) WebURL(ctx context.Context, item Item) (string, error) {
	if item.WebURL != "" {
		return item.WebURL, nil
	}
	it, err := c.get(ctx, item.ID)
	if err != nil {
		return "", fmt.Errorf("get web url for %s: %w", item.ID, err)
	}
	if it.WebURL == "" {
		return "", fmt.Errorf("%w: item %s has no web url", ErrRequestFailed, item.ID)
	}
	return it.WebURL, nil
}

func linkType(role string) string {
	if role == "write" {
		return "edit"
	}
	return "view"
}
