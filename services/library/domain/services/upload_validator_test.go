package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/ghuser/bookreader/services/library/domain"
)

func TestValidateFileURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"https", "https://files.example.com/book.epub", false},
		{"http with port", "http://localhost:9000/b/book.fb2", false},
		{"ftp scheme", "ftp://files.example.com/book.epub", true},
		{"relative", "/book.epub", true},
		{"no host", "https:///book.epub", true},
		{"garbage", "://", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFileURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateFileURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidUpload) {
				t.Fatalf("expected ErrInvalidUpload, got %v", err)
			}
		})
	}
}

func TestValidateFileName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", "War and Peace.epub", false},
		{"unicode", "Война и мир.fb2", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"slash", "a/b.epub", true},
		{"backslash", `a\b.epub`, true},
		{"control char", "book\x00.epub", true},
		{"too long", strings.Repeat("a", maxFileNameLength+1), true},
		{"max length", strings.Repeat("a", maxFileNameLength), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFileName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateFileName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateUpload_FirstViolation(t *testing.T) {
	err := ValidateUpload("ftp://x/y", "")
	if err == nil || !strings.Contains(err.Error(), "http or https") {
		t.Fatalf("expected url error first, got %v", err)
	}
	if err := ValidateUpload("https://x/y.epub", "y.epub"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
