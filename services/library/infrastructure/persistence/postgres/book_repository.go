package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ghuser/bookreader/pkg/database"
	"github.com/ghuser/bookreader/pkg/uow"
	"github.com/ghuser/bookreader/services/library/domain"
	libevents "github.com/ghuser/bookreader/services/library/domain/events"
	"github.com/ghuser/bookreader/services/library/domain/models"
	"github.com/ghuser/bookreader/services/library/infrastructure/persistence/postgres/db"
)

// BookRepository implements repositories.BookRepository against PostgreSQL.
type BookRepository struct {
	db *database.Database
}

func NewBookRepository(database *database.Database) *BookRepository {
	return &BookRepository{db: database}
}

// Save inserts the book and its ordered page references, then moves the
// book's pending events into the session for publishing after commit.
// Without a session nothing would publish them, so nil is rejected.
// Returns ErrBookAlreadyExists when the source already has a book.
func (r *BookRepository) Save(ctx context.Context, s *uow.Session, book *models.Book) error {
	if s == nil {
		return uow.ErrNoSession
	}
	if err := r.insert(ctx, db.New(s.Tx()), book); err != nil {
		return err
	}
	s.Track(book)
	return nil
}

func (r *BookRepository) insert(ctx context.Context, q *db.Queries, book *models.Book) error {
	if err := q.InsertBook(ctx, db.InsertBookParams{
		ID:          book.ID,
		SourceID:    book.SourceID,
		Title:       nullString(book.Title),
		CoverUrl:    nullString(book.CoverURL),
		Description: nullString(book.Description),
		Annotation:  nullString(book.Annotation),
		Language:    nullString(book.Language),
		Author:      nullString(book.Author),
		Publisher:   nullString(book.Publisher),
		Date:        nullString(book.Date),
		Doi:         nullString(book.DOI),
		Isbn:        nullString(book.ISBN),
		Uuid:        nullString(book.UUID),
		Jdcn:        nullString(book.JDCN),
		CreatedAt:   book.CreatedAt,
	}); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrBookAlreadyExists
		}
		return fmt.Errorf("insert book: %w", err)
	}

	for i, p := range book.Pages {
		if err := q.InsertBookPage(ctx, db.InsertBookPageParams{
			BookID: book.ID,
			PageID: p.PageID,
			Number: int32(i + 1),
		}); err != nil {
			return fmt.Errorf("insert book page %d: %w", i+1, err)
		}
	}
	return nil
}

// FindByID returns ErrBookNotFound if no book has the given ID.
func (r *BookRepository) FindByID(ctx context.Context, s *uow.Session, id uuid.UUID) (*models.Book, error) {
	q := queries(r.db, s)
	var (
		row db.Book
		err error
	)
	if s != nil {
		row, err = q.GetBookByIDForUpdate(ctx, id)
	} else {
		row, err = q.GetBookByID(ctx, id)
	}
	return r.load(ctx, q, row, err)
}

// FindBySourceID returns ErrBookNotFound if the source has no book yet.
func (r *BookRepository) FindBySourceID(ctx context.Context, s *uow.Session, sourceID string) (*models.Book, error) {
	q := queries(r.db, s)
	var (
		row db.Book
		err error
	)
	if s != nil {
		row, err = q.GetBookBySourceIDForUpdate(ctx, sourceID)
	} else {
		row, err = q.GetBookBySourceID(ctx, sourceID)
	}
	return r.load(ctx, q, row, err)
}

func (r *BookRepository) load(ctx context.Context, q *db.Queries, row db.Book, err error) (*models.Book, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBookNotFound
		}
		return nil, fmt.Errorf("query book: %w", err)
	}
	ids, err := q.ListBookPageIDs(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("query book pages: %w", err)
	}
	book := rowToBook(row)
	book.Pages = make([]libevents.PageRef, len(ids))
	for i, id := range ids {
		book.Pages[i] = libevents.PageRef{PageID: id}
	}
	return book, nil
}

func rowToBook(row db.Book) *models.Book {
	return &models.Book{
		ID:          row.ID,
		SourceID:    row.SourceID,
		Title:       row.Title.String,
		CoverURL:    row.CoverUrl.String,
		Description: row.Description.String,
		Annotation:  row.Annotation.String,
		Language:    row.Language.String,
		Author:      row.Author.String,
		Publisher:   row.Publisher.String,
		Date:        row.Date.String,
		DOI:         row.Doi.String,
		ISBN:        row.Isbn.String,
		UUID:        row.Uuid.String,
		JDCN:        row.Jdcn.String,
		CreatedAt:   row.CreatedAt.UTC(),
	}
}
