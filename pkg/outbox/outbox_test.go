package outbox_test

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ghuser/bookreader/pkg/broker"
	"github.com/ghuser/bookreader/pkg/config"
	"github.com/ghuser/bookreader/pkg/database"
	"github.com/ghuser/bookreader/pkg/database/dbtest"
	"github.com/ghuser/bookreader/pkg/events"
	"github.com/ghuser/bookreader/pkg/logger"
	"github.com/ghuser/bookreader/pkg/outbox"
)

type staged struct {
	ID string `json:"id"`
}

var stagedKind = events.Kind{Channel: "test.outbox", TypeName: "StagedEvent"}

func (staged) Kind() events.Kind { return stagedKind }

type broken struct{}

func (broken) Kind() events.Kind { return events.Kind{} }

func nopLogger() logger.Logger {
	return logger.New(&config.Config{LogLevel: "error"})
}

func TestStage_WritesInsideCallerTransaction(t *testing.T) {
	sqlDB, rec := dbtest.Open(t)
	db := database.New(sqlDB, nopLogger())
	ob := outbox.New(db, nopLogger())

	err := db.WithTx(context.Background(), nil, func(tx *sql.Tx) error {
		return ob.Stage(context.Background(), tx, []events.Event{staged{ID: "1"}, broken{}})
	})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if rec.Commits() != 1 {
		t.Fatalf("commits: got %d", rec.Commits())
	}

	inserts := 0
	for _, stmt := range rec.Statements() {
		if strings.Contains(stmt, "watermill_"+outbox.Topic) {
			inserts++
		}
	}
	if inserts != 1 {
		t.Fatalf("expected one outbox insert, statements: %v", rec.Statements())
	}
}

// Integration test: skipped unless DATABASE_URL is set.
func TestOutboxIntegration(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping integration tests")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewPool(ctx, url, nopLogger())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer db.Close() //nolint:errcheck

	ob := outbox.New(db, nopLogger())
	if err := ob.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	ch := broker.NewMemoryChannel(nopLogger())
	defer ch.Close() //nolint:errcheck
	if err := ch.Setup(ctx); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	sub, err := ch.Subscribe(ctx, broker.Queue{AutoDelete: true}, stagedKind.RoutingKey(), true)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := ob.Run(ctx, broker.NewPublisher(ch)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer ob.Close() //nolint:errcheck

	err = db.WithTx(ctx, nil, func(tx *sql.Tx) error {
		return ob.Stage(ctx, tx, []events.Event{staged{ID: "forwarded"}})
	})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	select {
	case d := <-sub.Deliveries:
		if !strings.Contains(string(d.Body), `"forwarded"`) {
			t.Fatalf("unexpected body %s", d.Body)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("message was not forwarded")
	}
}
