package pipeline

import "errors"

var (
	ErrPreflight = errors.New("pre-batch check failed")
	ErrFetch     = errors.New("fetch candidate cases")
	ErrLock      = errors.New("execution lock unavailable")
)

// Observations recorded for terminal outcomes.
const (
	ObsProcessed        = "Processed"
	ObsNoDocuments      = "no documents available"
	ObsAllExcluded      = "all documents excluded"
	ObsAllDownloads     = "all downloads failed"
	ObsInterrupted      = "interrupted by time window"
	ObsNotReached       = "not processed: time window closed"
	ObsCancelled        = "run cancelled"
	ObsMissingEmail     = "missing contact email"
	ObsInvalidEmail     = "invalid contact email"
	ObsMissingTicket    = "missing ticket reference"
	ObsNoSecondaryKeys  = "no secondary keys"
	ObsUpdateFailedNote = "case update failed"
)
