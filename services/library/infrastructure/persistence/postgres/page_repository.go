package postgres

import (
	"context"
	"fmt"

	"github.com/ghuser/bookreader/pkg/database"
	"github.com/ghuser/bookreader/pkg/uow"
	"github.com/ghuser/bookreader/services/library/domain/models"
	"github.com/ghuser/bookreader/services/library/infrastructure/persistence/postgres/db"
)

// PageRepository implements repositories.PageRepository against PostgreSQL.
type PageRepository struct {
	db *database.Database
}

func NewPageRepository(database *database.Database) *PageRepository {
	return &PageRepository{db: database}
}

func (r *PageRepository) Save(ctx context.Context, s *uow.Session, page *models.Page) error {
	titles, err := encodeTitles(page.Titles)
	if err != nil {
		return fmt.Errorf("encode page titles: %w", err)
	}
	if err := queries(r.db, s).InsertPage(ctx, db.InsertPageParams{
		ID:      page.ID,
		Titles:  titles,
		Content: page.Content,
	}); err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}
