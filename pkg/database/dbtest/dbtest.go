// Package dbtest provides a recording database/sql driver for unit tests that
// need a real *sql.Tx without a running PostgreSQL.
package dbtest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"testing"
)

// Recorder observes every transaction and statement issued through the fake driver.
type Recorder struct {
	mu         sync.Mutex
	begins     int
	commits    int
	rollbacks  int
	isolation  []sql.IsolationLevel
	statements []string
	commitErr  error
	execErr    error
}

// Open returns a *sql.DB backed by a fresh Recorder. The pool is closed when t finishes.
func Open(t testing.TB) (*sql.DB, *Recorder) {
	t.Helper()
	rec := &Recorder{}
	db := sql.OpenDB(&connector{rec: rec})
	t.Cleanup(func() { _ = db.Close() })
	return db, rec
}

// FailCommit makes every following commit return err.
func (r *Recorder) FailCommit(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commitErr = err
}

// FailExec makes every following statement return err.
func (r *Recorder) FailExec(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execErr = err
}

func (r *Recorder) Begins() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.begins
}

func (r *Recorder) Commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commits
}

func (r *Recorder) Rollbacks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rollbacks
}

// Isolation returns the isolation level requested by each BeginTx, in order.
func (r *Recorder) Isolation() []sql.IsolationLevel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sql.IsolationLevel(nil), r.isolation...)
}

// Statements returns every executed query text, in order.
func (r *Recorder) Statements() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statements...)
}

func (r *Recorder) exec(query string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statements = append(r.statements, query)
	return r.execErr
}

type connector struct{ rec *Recorder }

func (c *connector) Connect(context.Context) (driver.Conn, error) { return &conn{rec: c.rec}, nil }
func (c *connector) Driver() driver.Driver                        { return fakeDriver{} }

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("dbtest: use Open")
}

type conn struct{ rec *Recorder }

func (c *conn) Prepare(query string) (driver.Stmt, error) { return &stmt{rec: c.rec, query: query}, nil }
func (c *conn) Close() error                              { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(_ context.Context, opts driver.TxOptions) (driver.Tx, error) {
	c.rec.mu.Lock()
	defer c.rec.mu.Unlock()
	c.rec.begins++
	c.rec.isolation = append(c.rec.isolation, sql.IsolationLevel(opts.Isolation))
	return &tx{rec: c.rec}, nil
}

func (c *conn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	if err := c.rec.exec(query); err != nil {
		return nil, err
	}
	return driver.RowsAffected(1), nil
}

func (c *conn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if err := c.rec.exec(query); err != nil {
		return nil, err
	}
	return emptyRows{}, nil
}

type tx struct{ rec *Recorder }

func (t *tx) Commit() error {
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()
	if t.rec.commitErr != nil {
		return t.rec.commitErr
	}
	t.rec.commits++
	return nil
}

func (t *tx) Rollback() error {
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()
	t.rec.rollbacks++
	return nil
}

type stmt struct {
	rec   *Recorder
	query string
}

func (s *stmt) Close() error  { return nil }
func (s *stmt) NumInput() int { return -1 }

func (s *stmt) Exec([]driver.Value) (driver.Result, error) {
	if err := s.rec.exec(s.query); err != nil {
		return nil, err
	}
	return driver.RowsAffected(1), nil
}

func (s *stmt) Query([]driver.Value) (driver.Rows, error) {
	if err := s.rec.exec(s.query); err != nil {
		return nil, err
	}
	return emptyRows{}, nil
}

type emptyRows struct{}

func (emptyRows) Columns() []string         { return nil }
func (emptyRows) Close() error              { return nil }
func (emptyRows) Next([]driver.Value) error { return io.EOF }
