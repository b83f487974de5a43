package models

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/bookreader/services/library/domain"
	libevents "github.com/ghuser/bookreader/services/library/domain/events"
)

func newTestBook(t *testing.T, pages int) *Book {
	t.Helper()
	refs := make([]libevents.PageRef, pages)
	for i := range refs {
		refs[i].PageID = uuid.New()
	}
	b, err := NewBook("s1", libevents.SourceMeta{Title: "T"}, refs, time.Now())
	if err != nil {
		t.Fatalf("NewBook: %v", err)
	}
	return b
}

func TestNewSession(t *testing.T) {
	book := newTestBook(t, 3)
	userID := uuid.New()
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	s := NewSession(userID, book, "tg-1", "book.epub", now)
	if s.ID == uuid.Nil {
		t.Fatal("expected non-zero UUID for ID")
	}
	if s.UserID != userID || s.BookID != book.ID {
		t.Fatalf("ownership: %+v", s)
	}
	if s.CurrentPage != 1 || s.Pages != 3 {
		t.Fatalf("CurrentPage=%d Pages=%d", s.CurrentPage, s.Pages)
	}
	if s.FinishedAt != nil || s.DeletedAt != nil {
		t.Fatal("new session must be open")
	}
	if !s.CreatedAt.Equal(now) || !s.UpdatedAt.Equal(now) {
		t.Fatalf("timestamps: %v %v", s.CreatedAt, s.UpdatedAt)
	}
}

func TestSession_SetCurrentPage(t *testing.T) {
	book := newTestBook(t, 3)
	s := NewSession(uuid.New(), book, "", "", time.Now())

	for _, n := range []int{0, -1, 4} {
		if err := s.SetCurrentPage(n, time.Now()); !errors.Is(err, domain.ErrPageOutOfRange) {
			t.Fatalf("page %d: expected ErrPageOutOfRange, got %v", n, err)
		}
	}
	if s.CurrentPage != 1 {
		t.Fatalf("rejected moves must not change the page, got %d", s.CurrentPage)
	}

	later := time.Now().Add(time.Minute)
	if err := s.SetCurrentPage(3, later); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.CurrentPage != 3 || !s.UpdatedAt.Equal(later.UTC()) {
		t.Fatalf("CurrentPage=%d UpdatedAt=%v", s.CurrentPage, s.UpdatedAt)
	}
}

func TestSession_FinishRestart(t *testing.T) {
	s := NewSession(uuid.New(), newTestBook(t, 2), "", "", time.Now())

	if err := s.Restart(time.Now()); !errors.Is(err, domain.ErrSessionNotFinished) {
		t.Fatalf("restart of open session: got %v", err)
	}
	if err := s.Finish(time.Now()); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if s.FinishedAt == nil {
		t.Fatal("FinishedAt must be set")
	}
	if err := s.Finish(time.Now()); !errors.Is(err, domain.ErrSessionFinished) {
		t.Fatalf("second finish: got %v", err)
	}

	_ = s.SetCurrentPage(2, time.Now())
	if err := s.Restart(time.Now()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if s.FinishedAt != nil {
		t.Fatal("FinishedAt must be cleared")
	}
	if s.CurrentPage != 2 {
		t.Fatalf("restart must keep the current page, got %d", s.CurrentPage)
	}
}

func TestSession_Delete(t *testing.T) {
	s := NewSession(uuid.New(), newTestBook(t, 1), "", "", time.Now())
	if err := s.Delete(time.Now()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !s.Deleted() {
		t.Fatal("expected deleted session")
	}
	if err := s.Delete(time.Now()); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("second delete: got %v", err)
	}
}

func TestSession_Clone(t *testing.T) {
	book := newTestBook(t, 2)
	orig := NewSession(uuid.New(), book, "tg-1", "book.epub", time.Now())
	_ = orig.SetCurrentPage(2, time.Now())
	_ = orig.Finish(time.Now())

	other := uuid.New()
	c := orig.Clone(other, book, time.Now())
	if c.ID == orig.ID {
		t.Fatal("clone must get a new ID")
	}
	if c.UserID != other || c.BookID != book.ID {
		t.Fatalf("ownership: %+v", c)
	}
	if c.TelegramID != "tg-1" || c.FileName != "book.epub" {
		t.Fatalf("attachment: %+v", c)
	}
	if c.CurrentPage != 1 || c.FinishedAt != nil {
		t.Fatalf("clone must start fresh: %+v", c)
	}
}
