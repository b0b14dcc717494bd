package notify

import "errors"

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrNoRecipients     = errors.New("no recipients")
)
