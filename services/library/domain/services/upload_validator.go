// Package services contains stateless domain services for the library bounded context.
// Domain services enforce business rules that operate purely on domain types
// and have zero external dependencies beyond stdlib and the domain layer.
package services

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/ghuser/bookreader/services/library/domain"
)

const maxFileNameLength = 255

// ValidateFileURL enforces that the worker can fetch the file: an absolute
// http or https URL with a host.
func ValidateFileURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: file url: %w", domain.ErrInvalidUpload, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: file url must use http or https", domain.ErrInvalidUpload)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: file url must have a host", domain.ErrInvalidUpload)
	}
	return nil
}

// ValidateFileName enforces business rules for the name shown to the reader:
//   - 1..255 characters after trimming
//   - no path separators
//   - no control characters (Unicode category Cc)
func ValidateFileName(name string) error {
	s := strings.TrimSpace(name)
	if s == "" {
		return fmt.Errorf("%w: file name must not be empty", domain.ErrInvalidUpload)
	}
	if len([]rune(s)) > maxFileNameLength {
		return fmt.Errorf("%w: file name must be at most %d characters", domain.ErrInvalidUpload, maxFileNameLength)
	}
	if strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("%w: file name must not contain path separators", domain.ErrInvalidUpload)
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: file name must not contain control characters", domain.ErrInvalidUpload)
		}
	}
	return nil
}

// ValidateUpload runs every upload rule and returns the first violation.
func ValidateUpload(fileURL, fileName string) error {
	if err := ValidateFileURL(fileURL); err != nil {
		return err
	}
	return ValidateFileName(fileName)
}
