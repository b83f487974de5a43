package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/ghuser/bookreader/pkg/config"
	"github.com/ghuser/bookreader/pkg/database"
	"github.com/ghuser/bookreader/pkg/database/dbtest"
	"github.com/ghuser/bookreader/pkg/logger"
	"github.com/ghuser/bookreader/pkg/uow"
	"github.com/ghuser/bookreader/services/library/domain"
	"github.com/ghuser/bookreader/services/library/domain/models"
	"github.com/ghuser/bookreader/services/library/domain/repositories"
)

func nopLogger() logger.Logger {
	return logger.New(&config.Config{LogLevel: "error"})
}

// newUnitOfWork returns a unit of work on the recording driver.
func newUnitOfWork(t *testing.T, d uow.Dispatcher) (*uow.UnitOfWork, *dbtest.Recorder) {
	t.Helper()
	sqlDB, rec := dbtest.Open(t)
	return uow.New(database.New(sqlDB, nopLogger()), d, nopLogger()), rec
}

// store is an in-memory library. Writes made inside a unit of work become
// visible only after it commits.
type store struct {
	mu       sync.Mutex
	books    map[uuid.UUID]models.Book
	sources  map[string]uuid.UUID
	pages    map[uuid.UUID]models.Page
	sessions map[uuid.UUID]models.Session
}

func newStore() *store {
	return &store{
		books:    make(map[uuid.UUID]models.Book),
		sources:  make(map[string]uuid.UUID),
		pages:    make(map[uuid.UUID]models.Page),
		sessions: make(map[uuid.UUID]models.Session),
	}
}

func (st *store) apply(s *uow.Session, fn func()) {
	locked := func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		fn()
	}
	if s == nil {
		locked()
		return
	}
	s.AfterCommit(func(context.Context) { locked() })
}

func (st *store) bookCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.books)
}

func (st *store) pageCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.pages)
}

func (st *store) session(id uuid.UUID) (models.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

// seed stores b as if an earlier upload had committed it.
func (st *store) seed(b *models.Book) {
	b.PullEvents()
	st.mu.Lock()
	defer st.mu.Unlock()
	st.books[b.ID] = *b
	st.sources[b.SourceID] = b.ID
}

type bookRepo struct{ st *store }

func (r bookRepo) FindByID(_ context.Context, _ *uow.Session, id uuid.UUID) (*models.Book, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	b, ok := r.st.books[id]
	if !ok {
		return nil, domain.ErrBookNotFound
	}
	return &b, nil
}

func (r bookRepo) FindBySourceID(_ context.Context, _ *uow.Session, sourceID string) (*models.Book, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	id, ok := r.st.sources[sourceID]
	if !ok {
		return nil, domain.ErrBookNotFound
	}
	b, ok := r.st.books[id]
	if !ok {
		return nil, domain.ErrBookNotFound
	}
	return &b, nil
}

// Save reserves the source immediately, like a unique index would.
func (r bookRepo) Save(_ context.Context, s *uow.Session, book *models.Book) error {
	if s == nil {
		return uow.ErrNoSession
	}
	r.st.mu.Lock()
	if _, taken := r.st.sources[book.SourceID]; taken {
		r.st.mu.Unlock()
		return domain.ErrBookAlreadyExists
	}
	r.st.sources[book.SourceID] = book.ID
	r.st.mu.Unlock()

	s.Track(book)
	stored := *book
	r.st.apply(s, func() { r.st.books[stored.ID] = stored })
	return nil
}

type pageRepo struct{ st *store }

func (r pageRepo) Save(_ context.Context, s *uow.Session, page *models.Page) error {
	stored := *page
	r.st.apply(s, func() { r.st.pages[stored.ID] = stored })
	return nil
}

type sessionRepo struct{ st *store }

func (r sessionRepo) FindByID(_ context.Context, _ *uow.Session, id uuid.UUID) (*models.Session, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.sessions[id]
	if !ok || s.Deleted() {
		return nil, domain.ErrSessionNotFound
	}
	return &s, nil
}

func (r sessionRepo) FindOne(_ context.Context, _ *uow.Session, f repositories.SessionFilter) (*models.Session, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, s := range r.st.sessions {
		if s.UserID == f.UserID && s.BookID == f.BookID && !s.Deleted() {
			return &s, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (r sessionRepo) Save(_ context.Context, s *uow.Session, session *models.Session) error {
	stored := *session
	r.st.apply(s, func() { r.st.sessions[stored.ID] = stored })
	return nil
}

// tracker is an in-memory ReparseTracker.
type tracker struct {
	mu       sync.Mutex
	holders  map[string]string
	begun    []string
	finished []string
}

func newTracker() *tracker {
	return &tracker{holders: make(map[string]string)}
}

func (t *tracker) Begin(_ context.Context, sourceID, requestID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.begun = append(t.begun, sourceID)
	if h, ok := t.holders[sourceID]; ok {
		return h, nil
	}
	t.holders[sourceID] = requestID
	return requestID, nil
}

func (t *tracker) Finish(_ context.Context, sourceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finished = append(t.finished, sourceID)
	delete(t.holders, sourceID)
	return nil
}

func (t *tracker) held(sourceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.holders[sourceID]
	return ok
}

func (t *tracker) finishedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.finished)
}
