package documents

import (
	"errors"
	"fmt"
)

var (
	ErrUnreachable    = errors.New("document repository unreachable")
	ErrDownloadFailed = errors.New("document download failed")
	ErrRequestFailed  = errors.New("document repository request failed")
)

// ResponseError is a non-2xx response from the DocuWare platform.
type ResponseError struct {
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("docuware responded %d: %s", e.StatusCode, e.Body)
}

func (e *ResponseError) Unwrap() error {
	return ErrRequestFailed
}
