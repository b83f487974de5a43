package domain

import "errors"

// Sentinel errors for the library domain. Use errors.Is() to check these.
var (
	// ErrEmptyCatalog indicates an attempt to create a book without pages.
	ErrEmptyCatalog = errors.New("book must have at least one page")

	// ErrBookNotFound indicates the requested book does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrBookAlreadyExists indicates a book for the same source was already materialized.
	ErrBookAlreadyExists = errors.New("book already exists")

	// ErrSessionNotFound indicates the reading session does not exist, belongs to
	// another reader, or was deleted.
	ErrSessionNotFound = errors.New("session not found")

	// ErrPageOutOfRange indicates a page number outside 1..pages.
	ErrPageOutOfRange = errors.New("page out of range")

	// ErrSessionFinished indicates the session was already finished.
	ErrSessionFinished = errors.New("session already finished")

	// ErrSessionNotFinished indicates a restart of a session that is still in progress.
	ErrSessionNotFinished = errors.New("session not finished")

	// ErrInvalidUpload indicates the upload request violates domain constraints.
	ErrInvalidUpload = errors.New("invalid upload")

	// ErrSourceParsingFailed indicates the parser reported failure for a first parse.
	ErrSourceParsingFailed = errors.New("source parsing failed")

	// ErrSourceReparsingFailed indicates the parser reported failure for a re-parse.
	ErrSourceReparsingFailed = errors.New("source reparsing failed")

	// ErrUploadTimedOut indicates no parse outcome arrived before the upload deadline.
	ErrUploadTimedOut = errors.New("upload timed out waiting for the parser")
)
