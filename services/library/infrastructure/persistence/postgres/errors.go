package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ghuser/bookreader/pkg/database"
	"github.com/ghuser/bookreader/pkg/uow"
	"github.com/ghuser/bookreader/services/library/infrastructure/persistence/postgres/db"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// queries returns queries bound to the session's transaction, or to the pool
// when s is nil.
func queries(pool *database.Database, s *uow.Session) *db.Queries {
	if s != nil {
		return db.New(s.Tx())
	}
	return db.New(pool.DB())
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func encodeTitles(titles []string) (json.RawMessage, error) {
	if len(titles) == 0 {
		return nil, nil
	}
	return json.Marshal(titles)
}
