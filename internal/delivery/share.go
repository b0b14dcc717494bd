package delivery

import (
	"context"
	"errors"
	"fmt"
)

// Tier names.
const (
	TierUser         = "user"
	TierOrganization = "organization"
	TierWebURL       = "web_url"
)

// ShareTier is one way of producing a link the recipient can open.
type ShareTier interface {
	Name() string
	Share(ctx context.Context, item Item, t Target) (string, error)
}

// Shared is the outcome of a Chain run.
type Shared struct {
	Link string
	Tier string
	// Degraded is set when the winning tier grants no explicit access.
	Degraded bool
	// Errors holds the failure of every tier tried before the winner.
	Errors []error
}

// Cause joins the errors of the tiers that failed before the winner.
func (s Shared) Cause() error {
	return errors.Join(s.Errors...)
}

// Chain tries tiers in order and stops at the first that returns a link.
type Chain []ShareTier

// Run executes the chain. It fails only when every tier fails.
func (c Chain) Run(ctx context.Context, item Item, t Target) (Shared, error) {
	var res Shared
	for _, tier := range c {
		link, err := tier.Share(ctx, item, t)
		if err == nil && link == "" {
			err = errors.New("empty link")
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("%s: %w", tier.Name(), err))
			continue
		}

		res.Link = link
		res.Tier = tier.Name()
		if d, ok := tier.(interface{ Degraded() bool }); ok {
			res.Degraded = d.Degraded()
		}
		return res, nil
	}
	return res, fmt.Errorf("%w: %w", ErrShareFailed, res.Cause())
}

// DefaultChain is user grant, then organization link, then the plain web URL.
func DefaultChain(drive Drive, role string) Chain {
	return Chain{
		&UserTier{Drive: drive, Role: role},
		&OrganizationTier{Drive: drive, Role: role},
		&WebURLTier{Drive: drive},
	}
}

// UserTier grants the recipient access to the item.
type UserTier struct {
	Drive Drive
	Role  string
}

func (*UserTier) Name() string { return TierUser }

func (u *UserTier) Share(ctx context.Context, item Item, t Target) (string, error) {
	if t.Recipient == "" {
		return "", ErrNoRecipient
	}
	return u.Drive.ShareWithUser(ctx, item, t.Recipient, u.Role)
}

// OrganizationTier creates an organization-scoped link.
type OrganizationTier struct {
	Drive Drive
	Role  string
}

func (*OrganizationTier) Name() string { return TierOrganization }

func (o *OrganizationTier) Share(ctx context.Context, item Item, _ Target) (string, error) {
	return o.Drive.ShareOrganization(ctx, item, o.Role)
}

// WebURLTier returns the item's default URL without granting access.
type WebURLTier struct {
	Drive Drive
}

func (*WebURLTier) Name() string   { return TierWebURL }
func (*WebURLTier) Degraded() bool { return true }

func (w *WebURLTier) Share(ctx context.Context, item Item, _ Target) (string, error) {
	return w.Drive.WebURL(ctx, item)
}
