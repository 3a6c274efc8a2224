// Package store persists generated view source in SQLite so that a process
// can load views without reparsing their markup. It works on any *sql.DB;
// callers choose the driver.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get for unknown virtual paths.
var ErrNotFound = errors.New("precompiled view not found")

// View is one precompiled view.
type View struct {
	VirtualPath string
	// SourceHash identifies the markup the source was generated from.
	SourceHash string
	Generated  string
	CompiledAt time.Time
}

// SetupSchema creates the precompiled_views table. It is idempotent.
func SetupSchema(db *sql.DB) error {
	const schemaViews = `
CREATE TABLE IF NOT EXISTS precompiled_views (
    virtual_path TEXT PRIMARY KEY,
    source_hash TEXT NOT NULL,
    generated TEXT NOT NULL,
    compiled_at INTEGER NOT NULL
);
`
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaViews); err != nil {
		return fmt.Errorf("could not create schema: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store reads and writes precompiled views through prepared statements.
type Store struct {
	db         *sql.DB
	stmtPut    *sql.Stmt
	stmtGet    *sql.Stmt
	stmtList   *sql.Stmt
	stmtDelete *sql.Stmt
}

// New prepares the store's statements. SetupSchema must have run.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	var err error
	if s.stmtPut, err = db.Prepare(`INSERT INTO precompiled_views (virtual_path, source_hash, generated, compiled_at) VALUES (?, ?, ?, ?)
ON CONFLICT(virtual_path) DO UPDATE SET source_hash = excluded.source_hash, generated = excluded.generated, compiled_at = excluded.compiled_at;`); err != nil {
		return nil, err
	}
	if s.stmtGet, err = db.Prepare(`SELECT source_hash, generated, compiled_at FROM precompiled_views WHERE virtual_path = ?;`); err != nil {
		s.Close()
		return nil, err
	}
	if s.stmtList, err = db.Prepare(`SELECT virtual_path, source_hash, generated, compiled_at FROM precompiled_views ORDER BY virtual_path;`); err != nil {
		s.Close()
		return nil, err
	}
	if s.stmtDelete, err = db.Prepare(`DELETE FROM precompiled_views WHERE virtual_path = ?;`); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the prepared statements. The database stays open.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{s.stmtPut, s.stmtGet, s.stmtList, s.stmtDelete} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// Put inserts or replaces v.
func (s *Store) Put(ctx context.Context, v View) error {
	if v.CompiledAt.IsZero() {
		v.CompiledAt = time.Now()
	}
	if _, err := s.stmtPut.ExecContext(ctx, v.VirtualPath, v.SourceHash, v.Generated, v.CompiledAt.Unix()); err != nil {
		return fmt.Errorf("failed to store view %s: %w", v.VirtualPath, err)
	}
	return nil
}

// Get returns the view stored under virtualPath, or ErrNotFound.
func (s *Store) Get(ctx context.Context, virtualPath string) (View, error) {
	v := View{VirtualPath: virtualPath}
	var compiledAt int64
	err := s.stmtGet.QueryRowContext(ctx, virtualPath).Scan(&v.SourceHash, &v.Generated, &compiledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return View{}, fmt.Errorf("%w: %s", ErrNotFound, virtualPath)
	}
	if err != nil {
		return View{}, err
	}
	v.CompiledAt = time.Unix(compiledAt, 0)
	return v, nil
}

// List returns every stored view ordered by virtual path.
func (s *Store) List(ctx context.Context) ([]View, error) {
	rows, err := s.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []View
	for rows.Next() {
		var (
			v          View
			compiledAt int64
		)
		if err = rows.Scan(&v.VirtualPath, &v.SourceHash, &v.Generated, &compiledAt); err != nil {
			return nil, err
		}
		v.CompiledAt = time.Unix(compiledAt, 0)
		views = append(views, v)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return views, nil
}

// Delete removes the view stored under virtualPath. Missing views are not
// an error.
func (s *Store) Delete(ctx context.Context, virtualPath string) error {
	_, err := s.stmtDelete.ExecContext(ctx, virtualPath)
	return err
}
