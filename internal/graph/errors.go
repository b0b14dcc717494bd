package graph

import (
	"errors"
	"fmt"
	"net/http"

	abstractions "github.com/microsoft/kiota-abstractions-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
)

var (
	ErrRequestFailed = errors.New("graph request failed")
)

// ResponseError is a non-2xx response from Microsoft Graph.
type ResponseError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph responded %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("graph responded %d: %s", e.StatusCode, e.Message)
}

func (e *ResponseError) Unwrap() error {
	return ErrRequestFailed
}

// wrap converts SDK errors into *ResponseError so callers can inspect the
// status without importing the SDK. Transport errors wrap ErrRequestFailed.
// Responses without an OData body keep only their status.
func wrap(err error) error {
	if err == nil {
		return nil
	}

	var oe *odataerrors.ODataError
	if errors.As(err, &oe) {
		re := &ResponseError{StatusCode: oe.ResponseStatusCode}
		if main := oe.GetErrorEscaped(); main != nil {
			re.Code = deref(main.GetCode())
			re.Message = deref(main.GetMessage())
		}
		if re.Message == "" {
			re.Message = oe.Error()
		}
		return re
	}

	var ae *abstractions.ApiError
	if errors.As(err, &ae) && ae.ResponseStatusCode != 0 {
		return &ResponseError{StatusCode: ae.ResponseStatusCode, Message: ae.Message}
	}
	return fmt.Errorf("%w: %w", ErrRequestFailed, err)
}

func hasStatus(err error, status int) bool {
	var re *ResponseError
	return errors.As(err, &re) && re.StatusCode == status
}

// IsNotFound reports whether err is a Graph 404.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}
