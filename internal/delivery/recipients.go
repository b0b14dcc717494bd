package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/JaimeStill/expedite/internal/cases"
)

// CreatorResolver looks up a case creator's email. cases.Client satisfies it.
type CreatorResolver interface {
	ResolveCreatorEmail(ctx context.Context, userRef string) (string, error)
}

// Recipients resolves who receives a case's deliverable.
type Recipients struct {
	resolver CreatorResolver
	redirect string
}

// NewRecipients creates a resolver. A non-empty redirect replaces every
// resolved address.
func NewRecipients(resolver CreatorResolver, redirect string) *Recipients {
	return &Recipients{resolver: resolver, redirect: strings.TrimSpace(redirect)}
}

// Resolve returns the case contact email, else the creator's email.
func (r *Recipients) Resolve(ctx context.Context, c cases.Case) (string, error) {
	if r.redirect != "" {
		return r.redirect, nil
	}
	if email := strings.TrimSpace(c.Email); email != "" {
		return email, nil
	}

	email, err := r.resolver.ResolveCreatorEmail(ctx, c.CreatorRef)
	if err != nil {
		return "", fmt.Errorf("%w: case %s: %w", ErrNoRecipient, c.ID, err)
	}
	return email, nil
}
