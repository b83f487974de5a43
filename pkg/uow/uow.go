// Package uow runs business operations in a database transaction and
// publishes the domain events they raise only once the transaction commits.
//
// Events are buffered in the Session while the body runs. On success the
// transaction commits first and the buffered events are dispatched afterwards,
// in the order they were added. On failure the transaction rolls back and the
// buffer is discarded. A dispatch failure after commit cannot undo the commit;
// it is reported to the alert hook and the operation still succeeds.
//
// With an outbox Stager the events are instead written to the outbox inside
// the transaction and a separate forwarder publishes them.
package uow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ghuser/bookreader/pkg/database"
	"github.com/ghuser/bookreader/pkg/events"
	"github.com/ghuser/bookreader/pkg/logger"
	"github.com/ghuser/bookreader/pkg/telemetry"
)

var (
	// ErrPostCommitDispatch wraps dispatch failures that happened after commit.
	ErrPostCommitDispatch = errors.New("uow: post-commit dispatch failed")
	// ErrNoSession is returned by writes whose events can only be published
	// through a unit of work.
	ErrNoSession = errors.New("uow: operation requires a session")
)

// Dispatcher publishes events after commit.
type Dispatcher interface {
	Dispatch(ctx context.Context, evts ...events.Event) error
}

// Stager writes events to a transactional outbox.
type Stager interface {
	Stage(ctx context.Context, tx *sql.Tx, evts []events.Event) error
}

// AlertFunc receives operational alerts such as ErrPostCommitDispatch.
type AlertFunc func(ctx context.Context, err error)

// Aggregate is anything that records domain events for later publication.
type Aggregate interface {
	PullEvents() []events.Event
}

// Session is the transactional context handed to a unit of work body.
type Session struct {
	tx          *sql.Tx
	events      []events.Event
	afterCommit []func(context.Context)
}

// Tx returns the transaction. Repositories run their statements on it.
func (s *Session) Tx() *sql.Tx {
	return s.tx
}

// Track moves the pending events of each aggregate into the session buffer.
func (s *Session) Track(aggs ...Aggregate) {
	for _, a := range aggs {
		s.events = append(s.events, a.PullEvents()...)
	}
}

// Record appends events to the session buffer.
func (s *Session) Record(evts ...events.Event) {
	s.events = append(s.events, evts...)
}

// Events returns the buffered events in order.
func (s *Session) Events() []events.Event {
	return append([]events.Event(nil), s.events...)
}

// AfterCommit schedules fn to run after a successful commit, before events
// are dispatched. Hooks are dropped on rollback.
func (s *Session) AfterCommit(fn func(context.Context)) {
	s.afterCommit = append(s.afterCommit, fn)
}

// UnitOfWork opens read-committed transactions around business operations.
type UnitOfWork struct {
	db         *database.Database
	dispatcher Dispatcher
	stager     Stager
	alert      AlertFunc
	log        logger.Logger
}

type Option func(*UnitOfWork)

// WithOutbox stages events in the outbox inside the transaction instead of
// dispatching them after commit.
func WithOutbox(s Stager) Option {
	return func(u *UnitOfWork) { u.stager = s }
}

// WithAlert replaces the default alert hook, which logs and reports to Sentry.
func WithAlert(fn AlertFunc) Option {
	return func(u *UnitOfWork) { u.alert = fn }
}

func New(db *database.Database, dispatcher Dispatcher, log logger.Logger, opts ...Option) *UnitOfWork {
	u := &UnitOfWork{db: db, dispatcher: dispatcher, log: log}
	u.alert = u.defaultAlert
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Do runs fn in a transaction. fn's error is returned unchanged after
// rollback. A panic in fn rolls back and is re-raised.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	var sess *Session
	err := u.db.WithTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(tx *sql.Tx) error {
		sess = &Session{tx: tx}
		if err := fn(ctx, sess); err != nil {
			return err
		}
		if u.stager != nil && len(sess.events) > 0 {
			if err := u.stager.Stage(ctx, tx, sess.events); err != nil {
				return fmt.Errorf("uow: stage events: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// The commit is final; cancellation of the caller must not stop the
	// events that describe it.
	postCtx := context.WithoutCancel(ctx)
	for _, hook := range sess.afterCommit {
		hook(postCtx)
	}
	if u.stager != nil || len(sess.events) == 0 {
		return nil
	}
	if err := u.dispatcher.Dispatch(postCtx, sess.events...); err != nil {
		u.alert(postCtx, fmt.Errorf("%w: %w", ErrPostCommitDispatch, err))
	}
	return nil
}

func (u *UnitOfWork) defaultAlert(ctx context.Context, err error) {
	u.log.ErrorContext(ctx, "uow: committed changes have unpublished events", "error", err)
	telemetry.CaptureError(ctx, err, map[string]string{"component": "uow"})
}
