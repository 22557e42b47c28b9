package internalerr

import "errors"

// Error categories of a batch run. Startup and listing errors abort the run;
// everything else is scoped to one file.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrConversion        = errors.New("conversion error")
	ErrRecognition       = errors.New("recognition error")
	ErrDocumentUpdate    = errors.New("document update error")
	ErrRelocation        = errors.New("relocation error")
	ErrPublish           = errors.New("publish error")
	ErrLedger            = errors.New("ledger error")
)
