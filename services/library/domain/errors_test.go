package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors_Distinct(t *testing.T) {
	all := []error{
		ErrEmptyCatalog, ErrBookNotFound, ErrBookAlreadyExists, ErrSessionNotFound,
		ErrPageOutOfRange, ErrSessionFinished, ErrSessionNotFinished, ErrInvalidUpload,
		ErrSourceParsingFailed, ErrSourceReparsingFailed, ErrUploadTimedOut,
	}
	for i, a := range all {
		if a == nil {
			t.Fatalf("error %d must not be nil", i)
		}
		for j, b := range all {
			if i != j && errors.Is(a, b) {
				t.Fatalf("%v must not match %v", a, b)
			}
		}
	}
}

func TestSentinelErrors_Messages(t *testing.T) {
	if ErrEmptyCatalog.Error() != "book must have at least one page" {
		t.Fatalf("unexpected message: %q", ErrEmptyCatalog.Error())
	}
	if ErrSessionNotFound.Error() != "session not found" {
		t.Fatalf("unexpected message: %q", ErrSessionNotFound.Error())
	}
}

func TestSentinelErrors_WrappedIdentity(t *testing.T) {
	wrapped := fmt.Errorf("source s1: %w", ErrEmptyCatalog)
	if !errors.Is(wrapped, ErrEmptyCatalog) {
		t.Fatal("errors.Is must match wrapped ErrEmptyCatalog")
	}

	wrapped2 := fmt.Errorf("%w: %w", ErrInvalidUpload, errors.New("file_url: scheme"))
	if !errors.Is(wrapped2, ErrInvalidUpload) {
		t.Fatal("errors.Is must match double-wrapped ErrInvalidUpload")
	}
}
