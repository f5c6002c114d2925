package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"holders-backend/internal/models"
	"holders-backend/internal/utils"
)

const schema = `CREATE TABLE IF NOT EXISTS search_history (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	logo        TEXT NOT NULL,
	searched_at BIGINT NOT NULL,
	position    INTEGER NOT NULL
)`

// SQLStore keeps the history in a search_history table. It works with the
// sqlite3 and postgres drivers.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLStore opens dsn with driver ("sqlite3" or "postgres") and creates
// the table if needed.
func NewSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if driver != "sqlite3" && driver != "postgres" {
		return nil, utils.NewAppError(utils.ErrorTypeConfig, "BAD_DRIVER", "unsupported history driver", "HISTORY").
			WithDetails(driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite3" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	utils.HistoryLogger.Info("History table ready (%s)", driver)
	return &SQLStore{db: db, driver: driver}, nil
}

// bind rewrites ? placeholders to the driver's syntax
func (s *SQLStore) bind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Load(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, symbol, logo, searched_at FROM search_history ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			md         models.TokenMetadata
			searchedAt int64
		)
		if err := rows.Scan(&md.ID, &md.Name, &md.Symbol, &md.Logo, &searchedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		entries = append(entries, Entry{TokenMetadata: md, SearchedAt: time.UnixMilli(searchedAt).UTC()})
	}
	return entries, rows.Err()
}

// Save replaces the table contents in one transaction
func (s *SQLStore) Save(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM search_history"); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.bind(
		"INSERT INTO search_history (id, name, symbol, logo, searched_at, position) VALUES (?, ?, ?, ?, ?, ?)"))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID, e.Name, e.Symbol, e.Logo, e.SearchedAt.UnixMilli(), i); err != nil {
			return fmt.Errorf("failed to insert %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM search_history")
	return err
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
