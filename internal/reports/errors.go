package reports

import "errors"

var (
	ErrNotFound  = errors.New("report entry not found")
	ErrDuplicate = errors.New("report entry already exists")
)
