package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/bookreader/pkg/events"
	"github.com/ghuser/bookreader/services/library/domain"
	libevents "github.com/ghuser/bookreader/services/library/domain/events"
)

// Book is the catalog aggregate materialized from a parsed source. Empty
// string fields are absent metadata.
type Book struct {
	events.Recorder

	ID          uuid.UUID
	SourceID    string // unique per book; the worker's identity for the file
	Title       string
	CoverURL    string
	Description string
	Annotation  string
	Language    string
	Author      string
	Publisher   string
	Date        string
	DOI         string
	ISBN        string
	UUID        string
	JDCN        string
	Pages       []libevents.PageRef // reading order
	CreatedAt   time.Time
}

// NewBook builds a book for sourceID with the given ordered pages and
// records BookCreatedEvent. A book without pages is rejected with
// domain.ErrEmptyCatalog.
func NewBook(sourceID string, meta libevents.SourceMeta, pages []libevents.PageRef, now time.Time) (*Book, error) {
	if len(pages) == 0 {
		return nil, domain.ErrEmptyCatalog
	}
	b := &Book{
		ID:          uuid.New(),
		SourceID:    sourceID,
		Title:       meta.Title,
		CoverURL:    meta.CoverPath,
		Description: meta.Description,
		Annotation:  meta.Annotation,
		Language:    meta.Language,
		Author:      meta.Creator,
		Publisher:   meta.Publisher,
		Date:        meta.Date,
		DOI:         meta.DOI,
		ISBN:        meta.ISBN,
		UUID:        meta.UUID,
		JDCN:        meta.JDCN,
		Pages:       append([]libevents.PageRef(nil), pages...),
		CreatedAt:   now.UTC(),
	}
	b.Record(libevents.BookCreatedEvent{
		BookID:   b.ID,
		SourceID: b.SourceID,
		Pages:    append([]libevents.PageRef(nil), pages...),
	})
	return b, nil
}

// PageCount returns the number of pages.
func (b *Book) PageCount() int {
	return len(b.Pages)
}
