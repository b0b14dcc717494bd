package graph

import (
	"bytes"
	"context"
	"fmt"

	"github.com/microsoftgraph/msgraph-sdk-go-core/fileuploader"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"
)

// inlineAttachmentLimit is the largest total attachment payload sendMail
// accepts in a single request.
const inlineAttachmentLimit = 3 * 1024 * 1024

// Attachment is a file attached to an outgoing message.
type Attachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// Message is an HTML mail sent from the configured sender.
type Message struct {
	To          []string
	Subject     string
	HTML        string
	Attachments []Attachment
}

func (msg Message) size() int {
	var total int
	for _, a := range msg.Attachments {
		total += len(a.Content)
	}
	return total
}

func (msg Message) draft(inline bool) models.Messageable {
	body := models.NewItemBody()
	kind := models.HTML_BODYTYPE
	body.SetContentType(&kind)
	body.SetContent(&msg.HTML)

	m := models.NewMessage()
	m.SetSubject(&msg.Subject)
	m.SetBody(body)

	to := make([]models.Recipientable, 0, len(msg.To))
	for _, addr := range msg.To {
		email := models.NewEmailAddress()
		email.SetAddress(&addr)
		r := models.NewRecipient()
		r.SetEmailAddress(email)
		to = append(to, r)
	}
	m.SetToRecipients(to)

	if inline && len(msg.Attachments) > 0 {
		atts := make([]models.Attachmentable, 0, len(msg.Attachments))
		for _, a := range msg.Attachments {
			fa := models.NewFileAttachment()
			fa.SetName(&a.Name)
			fa.SetContentType(&a.ContentType)
			fa.SetContentBytes(a.Content)
			atts = append(atts, fa)
		}
		m.SetAttachments(atts)
	}
	return m
}

// SendMail delivers msg. Attachments beyond the inline limit are uploaded to
// a draft through attachment upload sessions before sending.
func (c *Client) SendMail(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("%w: message %q has no recipients", ErrRequestFailed, msg.Subject)
	}
	if msg.size() > inlineAttachmentLimit {
		return c.sendLarge(ctx, msg)
	}

	save := true
	body := users.NewItemSendMailPostRequestBody()
	body.SetMessage(msg.draft(true))
	body.SetSaveToSentItems(&save)

	cctx, cancel := c.bound(ctx)
	defer cancel()

	if err := c.api.Users().ByUserId(c.sender).SendMail().Post(cctx, body, nil); err != nil {
		return fmt.Errorf("send mail %q: %w", msg.Subject, wrap(err))
	}
	c.logger.InfoContext(ctx, "mail sent", "subject", msg.Subject, "to", msg.To, "attachments", len(msg.Attachments))
	return nil
}

func (c *Client) sendLarge(ctx context.Context, msg Message) error {
	messages := c.api.Users().ByUserId(c.sender).Messages()

	cctx, cancel := c.bound(ctx)
	draft, err := messages.Post(cctx, msg.draft(false), nil)
	cancel()
	if err != nil {
		return fmt.Errorf("create draft %q: %w", msg.Subject, wrap(err))
	}
	id := deref(draft.GetId())
	if id == "" {
		return fmt.Errorf("%w: draft %q has no id", ErrRequestFailed, msg.Subject)
	}
	target := messages.ByMessageId(id)

	for _, a := range msg.Attachments {
		kind := models.FILE_ATTACHMENTTYPE
		size := int64(len(a.Content))
		item := models.NewAttachmentItem()
		item.SetAttachmentType(&kind)
		item.SetName(&a.Name)
		item.SetContentType(&a.ContentType)
		item.SetSize(&size)

		body := users.NewItemMessagesItemAttachmentsCreateUploadSessionPostRequestBody()
		body.SetAttachmentItem(item)

		cctx, cancel := c.bound(ctx)
		session, err := target.Attachments().CreateUploadSession().Post(cctx, body, nil)
		cancel()
		if err != nil {
			return fmt.Errorf("attachment session %s: %w", a.Name, wrap(err))
		}

		task := fileuploader.NewLargeFileUploadTask[models.AttachmentItemable](
			c.adapter, session, nopCloser{bytes.NewReader(a.Content)}, c.chunk, models.CreateAttachmentItemFromDiscriminatorValue, nil,
		)
		res := task.Upload(func(current, total int64) {
			c.logger.DebugContext(ctx, "attachment progress", "name", a.Name, "sent", current, "total", total)
		})
		if !res.GetUploadSucceeded() {
			return fmt.Errorf("upload attachment %s: %w", a.Name, sessionError(res.GetResponseErrors()))
		}
	}

	cctx, cancel = c.bound(ctx)
	defer cancel()
	if err := target.Send().Post(cctx, nil); err != nil {
		return fmt.Errorf("send draft %q: %w", msg.Subject, wrap(err))
	}
	c.logger.InfoContext(ctx, "mail sent via draft", "subject", msg.Subject, "to", msg.To, "attachments", len(msg.Attachments))
	return nil
}
