// Package dbpool implements the bounded, non-blocking database connection
// pool (spec component J), grounded on original_source's DBConnectionPool
// (Acquire returns a not-ok/nullptr result rather than blocking when the
// pool is exhausted) and on Tutu-Engine's internal/infra/sqlite/db.go for
// the modernc.org/sqlite WAL-mode open pattern.
//
// database/sql already pools *sql.Conn internally; Pool layers a counting
// semaphore on top so Acquire can report Resource-kind exhaustion the way
// the original's Acquire returns nullptr, instead of blocking a handler
// goroutine indefinitely.
package dbpool

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Pool wraps a single *sql.DB with a bounded, non-blocking admission gate.
type Pool struct {
	db  *sql.DB
	sem chan struct{}
}

// Open creates or opens the SQLite database at path, in WAL mode with a
// 5-second busy timeout, and bounds concurrent logical acquisitions to
// poolSize.
func Open(path string, poolSize int) (*Pool, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)

	p := &Pool{db: db, sem: make(chan struct{}, poolSize)}
	if err := p.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return p, nil
}

// Close shuts down the underlying database.
func (p *Pool) Close() error { return p.db.Close() }

// Acquire reserves one of the pool's poolSize slots and returns the shared
// *sql.DB handle to issue queries against, after a Ping confirms the
// database is reachable. Returns false without blocking if the pool is
// already at capacity, and returns false with the slot given back if the
// Ping fails (Resource-kind conditions the caller must handle, per spec §7).
func (p *Pool) Acquire() (*sql.DB, bool) {
	select {
	case p.sem <- struct{}{}:
		if err := p.db.Ping(); err != nil {
			<-p.sem
			return nil, false
		}
		return p.db, true
	default:
		return nil, false
	}
}

// Release returns a slot acquired by Acquire.
func (p *Pool) Release() {
	<-p.sem
}

// migrate creates the two tables spec §6 names, idempotently.
func (p *Pool) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS user_game_data (
			user_id INTEGER PRIMARY KEY,
			points  INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS user_skills (
			user_id  INTEGER NOT NULL,
			skill_id INTEGER NOT NULL,
			level    INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, skill_id)
		)`,
	}
	for _, m := range migrations {
		if _, err := p.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
