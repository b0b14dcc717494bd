package cases

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound       = errors.New("case not found")
	ErrUnreachable    = errors.New("case system unreachable")
	ErrNoCreatorEmail = errors.New("creator email not available")
	ErrRequestFailed  = errors.New("case system request failed")
)

// ResponseError is a non-2xx response from the Web API.
type ResponseError struct {
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("dynamics responded %d: %s", e.StatusCode, e.Body)
}

func (e *ResponseError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return ErrRequestFailed
}
