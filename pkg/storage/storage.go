// Package storage publishes deliverables and report archives to Azure Blob
// Storage and hands out links to them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/JaimeStill/expedite/pkg/lifecycle"
)

// ErrInvalidKey is returned for empty keys and keys that escape the prefix.
var ErrInvalidKey = errors.New("invalid storage key")

// System is a write-and-link view of one blob container. Keys are slash
// separated and resolved under the configured prefix.
type System interface {
	// Start registers a startup check that creates the container if missing.
	Start(lc *lifecycle.Coordinator) error
	// Upload streams r to key. The blob is served as an attachment named
	// after the last key segment.
	Upload(ctx context.Context, key string, r io.Reader, contentType string) error
	// URL returns the unsigned blob URL for key.
	URL(key string) (string, error)
	// SignedURL returns a read-only SAS URL for key that expires after the
	// configured link expiry.
	SignedURL(key string) (string, error)
}

type container struct {
	client *azblob.Client
	name   string
	prefix string
	expiry time.Duration
	logger *slog.Logger
}

// New builds the blob client from cfg. The service is not contacted until
// Start or the first upload.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &container{
		client: client,
		name:   cfg.ContainerName,
		prefix: strings.Trim(cfg.Prefix, "/"),
		expiry: cfg.LinkExpiryDuration(),
		logger: logger.With("system", "storage", "container", cfg.ContainerName),
	}, nil
}

func (c *container) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup("storage", func(ctx context.Context) error {
		_, err := c.client.CreateContainer(ctx, c.name, nil)
		switch {
		case err == nil:
			c.logger.Info("storage container created")
		case bloberror.HasCode(err, bloberror.ContainerAlreadyExists):
			c.logger.Debug("storage container exists")
		default:
			return fmt.Errorf("create container %s: %w", c.name, err)
		}
		return nil
	})
	return nil
}

func (c *container) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	name, err := c.resolve(key)
	if err != nil {
		return err
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(name)})
	_, err = c.client.UploadStream(ctx, c.name, name, r, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType:        &contentType,
			BlobContentDisposition: &disposition,
		},
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}

	c.logger.DebugContext(ctx, "blob uploaded", "blob", name)
	return nil
}

func (c *container) URL(key string) (string, error) {
	name, err := c.resolve(key)
	if err != nil {
		return "", err
	}
	return c.blob(name).URL(), nil
}

func (c *container) SignedURL(key string) (string, error) {
	name, err := c.resolve(key)
	if err != nil {
		return "", err
	}

	expires := time.Now().UTC().Add(c.expiry)
	u, err := c.blob(name).GetSASURL(sas.BlobPermissions{Read: true}, expires, nil)
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", name, err)
	}
	return u, nil
}

func (c *container) blob(name string) *blob.Client {
	return c.client.ServiceClient().NewContainerClient(c.name).NewBlobClient(name)
}

// resolve cleans key and places it under the prefix.
func (c *container) resolve(key string) (string, error) {
	key = strings.Trim(strings.ReplaceAll(key, `\`, "/"), "/")
	if key == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for seg := range strings.SplitSeq(key, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return path.Join(c.prefix, path.Clean(key)), nil
}
