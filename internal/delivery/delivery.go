// Package delivery ships an assembled deliverable to the requester: inline
// attachment or uploaded copy, shared through an ordered fallback chain.
package delivery

import (
	"context"

	"github.com/JaimeStill/expedite/internal/assembly"
	"github.com/JaimeStill/expedite/internal/cases"
	"github.com/JaimeStill/expedite/internal/notify"
)

// Channel is how the requester receives the deliverable.
type Channel string

const (
	ChannelAttachment Channel = "attachment"
	ChannelLink       Channel = "link"
)

// Target identifies the case and resolved recipient of a delivery.
type Target struct {
	Case      cases.Case
	Recipient string
	Variant   string
}

// Result describes a completed delivery.
type Result struct {
	Channel    Channel
	Link       string
	Tier       string
	Degraded   bool
	RemotePath string
	// Narrative is the message body sent to the requester.
	Narrative string
}

// Strategy delivers a deliverable for one case.
type Strategy interface {
	Deliver(ctx context.Context, d *assembly.Deliverable, t Target) (*Result, error)
}

// Item is an uploaded file or folder in a Drive.
type Item struct {
	ID     string
	Name   string
	Path   string
	WebURL string
}

// Drive is the cloud storage a deliverable is uploaded to and shared from.
type Drive interface {
	UploadFile(ctx context.Context, src, remote string) (Item, error)
	UploadTree(ctx context.Context, root, remote string) (Item, error)
	ShareWithUser(ctx context.Context, item Item, email, role string) (string, error)
	ShareOrganization(ctx context.Context, item Item, role string) (string, error)
	WebURL(ctx context.Context, item Item) (string, error)
}

// Sender sends the requester correspondence. *notify.Notifier satisfies it.
type Sender interface {
	Deliver(ctx context.Context, d notify.Delivery) (string, error)
}

// Advisor receives the degraded-sharing notice. *notify.Notifier satisfies it.
type Advisor interface {
	ShareAdvisory(ctx context.Context, variant string, c cases.Case, link string, cause error) error
}
