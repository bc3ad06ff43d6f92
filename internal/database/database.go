// Package database provides the sqlite-backed slot and booking store.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a slot or booking id does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrSlotConflict is returned when a slot already exists at the same
	// (technician, date, time) tuple.
	ErrSlotConflict = errors.New("slot already exists")
	// ErrSlotReferenced is returned when deleting a slot still referenced
	// by a non-cancelled booking.
	ErrSlotReferenced = errors.New("slot is referenced by an active booking")
	// ErrConcurrentModification is returned when a version-guarded write
	// loses the race against a concurrent writer.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrSlotUnavailable is returned when a reserve targets a slot that is
	// no longer available.
	ErrSlotUnavailable = errors.New("slot is not available")
)

// DB wraps sql.DB for the scheduling core.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// NewDB opens the database at path, applies connection settings and runs
// migrations.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL and busy timeout give the single-writer serialization point for
	// multi-slot transactions.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	instance := &DB{DB: db, path: path, logger: logger}
	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return instance, nil
}

// Path returns the on-disk location of the database file.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS slots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			technician_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'available',
			slot_type TEXT NOT NULL DEFAULT 'regular',
			notes TEXT NOT NULL DEFAULT '',
			hidden BOOLEAN NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(technician_id, date, time)
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			booking_ref TEXT UNIQUE NOT NULL,
			slot_id INTEGER NOT NULL,
			linked_slot_ids TEXT NOT NULL DEFAULT '[]',
			technician_id INTEGER NOT NULL DEFAULT 0,
			service_type TEXT NOT NULL,
			service_location TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending_form',
			customer_id TEXT NOT NULL DEFAULT 'pending',
			deposit_amount REAL NOT NULL DEFAULT 0,
			paid_amount REAL NOT NULL DEFAULT 0,
			tip_amount REAL NOT NULL DEFAULT 0,
			payment_method TEXT NOT NULL DEFAULT '',
			payment_status TEXT NOT NULL DEFAULT 'unpaid',
			invoice TEXT,
			notes TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (slot_id) REFERENCES slots(id)
		)`,

		`CREATE TABLE IF NOT EXISTS blocked_dates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_slots_tech_date ON slots(technician_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_date ON slots(date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_slot ON bookings(slot_id)`,
		`CREATE INDEX IF NOT EXISTS idx_blocked_dates_range ON blocked_dates(start_date, end_date)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// querier is satisfied by both *sql.DB and *sql.Tx so row helpers can be
// shared between plain reads and transactional writes.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is a database transaction scoped to the scheduling tables.
type Tx struct {
	tx *sql.Tx
}

// Begin starts a transaction.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction. Safe to defer after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
