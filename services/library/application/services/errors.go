package services

import (
	"fmt"

	"github.com/ghuser/bookreader/services/library/domain"
)

// ParsingFailedError carries the parser's failure report for one upload.
// It matches domain.ErrSourceParsingFailed or domain.ErrSourceReparsingFailed
// under errors.Is.
type ParsingFailedError struct {
	RequestID string
	SourceID  string
	Reason    string
	Reparse   bool
}

func (e *ParsingFailedError) Error() string {
	msg := fmt.Sprintf("%s (request %s", e.Unwrap(), e.RequestID)
	if e.SourceID != "" {
		msg += ", source " + e.SourceID
	}
	msg += ")"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ParsingFailedError) Unwrap() error {
	if e.Reparse {
		return domain.ErrSourceReparsingFailed
	}
	return domain.ErrSourceParsingFailed
}
