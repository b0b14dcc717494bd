// Package graph is a Microsoft Graph client for OneDrive delivery and
// outgoing mail, built on the Graph SDK.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	abstractions "github.com/microsoft/kiota-abstractions-go"
	absauth "github.com/microsoft/kiota-abstractions-go/authentication"
	azauth "github.com/microsoft/kiota-authentication-azure-go"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
)

const scope = "https://graph.microsoft.com/.default"

// Client calls Graph on behalf of the configured sender and drive owner.
type Client struct {
	api         *msgraphsdk.GraphServiceClient
	adapter     abstractions.RequestAdapter
	sender      string
	driveUser   string
	chunk       int64
	simpleLimit int64
	timeout     time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	driveID string
}

// New creates a Graph client authenticated with client-secret credentials.
func New(cfg *Config, logger *slog.Logger) (*Client, error) {
	cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("create graph credential: %w", err)
	}

	auth, err := azauth.NewAzureIdentityAuthenticationProviderWithScopes(cred, []string{scope})
	if err != nil {
		return nil, fmt.Errorf("create graph auth provider: %w", err)
	}
	return NewWithAuth(cfg, auth, nil, logger)
}

// NewWithAuth creates a Graph client over an authentication provider. A nil
// hc uses the SDK's default client with its retry and redirect middleware.
func NewWithAuth(cfg *Config, auth absauth.AuthenticationProvider, hc *http.Client, logger *slog.Logger) (*Client, error) {
	adapter, err := msgraphsdk.NewGraphRequestAdapterWithParseNodeFactoryAndSerializationWriterFactoryAndHttpClient(auth, nil, nil, hc)
	if err != nil {
		return nil, fmt.Errorf("create graph adapter: %w", err)
	}
	adapter.SetBaseUrl(cfg.BaseURL)

	return &Client{
		api:         msgraphsdk.NewGraphServiceClient(adapter),
		adapter:     adapter,
		sender:      cfg.Sender,
		driveUser:   cfg.DriveUser,
		chunk:       cfg.ChunkBytes(),
		simpleLimit: cfg.SimpleLimitBytes(),
		timeout:     cfg.TimeoutDuration(),
		logger:      logger.With("system", "graph"),
	}, nil
}

// Ping verifies the drive owner's OneDrive is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.drive(ctx); err != nil {
		return fmt.Errorf("ping graph: %w", err)
	}
	return nil
}

// drive returns the id of the drive owner's OneDrive, resolved once.
func (c *Client) drive(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.driveID != "" {
		return c.driveID, nil
	}

	ctx, cancel := c.bound(ctx)
	defer cancel()

	d, err := c.api.Users().ByUserId(c.driveUser).Drive().Get(ctx, nil)
	if err != nil {
		return "", wrap(err)
	}
	id := deref(d.GetId())
	if id == "" {
		return "", fmt.Errorf("%w: drive of %s has no id", ErrRequestFailed, c.driveUser)
	}
	c.driveID = id
	return id, nil
}

// bound applies the per-request timeout.
func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
