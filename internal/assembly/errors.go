package assembly

import "errors"

var (
	ErrNoDocuments        = errors.New("no documents admitted")
	ErrAllDownloadsFailed = errors.New("all downloads failed")
	ErrMergeFailed        = errors.New("merge failed")
)
