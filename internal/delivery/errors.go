package delivery

import "errors"

var (
	ErrShareFailed      = errors.New("share failed")
	ErrShareUnsupported = errors.New("share mode not supported")
	ErrNoRecipient      = errors.New("no recipient")
	ErrUploadFailed     = errors.New("upload failed")
	ErrUnknownDrive     = errors.New("unknown drive")
)
