package pairstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLite is the file-backed pair store used when no PostgreSQL host is
// configured.
type SQLite struct {
	db               *sql.DB
	name             string
	pairLifetimeDays int

	mu     sync.Mutex
	tables map[string]bool
}

func NewSQLite(path, name string, pairLifetimeDays int) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open pair store %s: %w", path, err)
	}
	return &SQLite{
		db:               db,
		name:             name,
		pairLifetimeDays: pairLifetimeDays,
		tables:           make(map[string]bool),
	}, nil
}

func (s *SQLite) CreateTable(ctx context.Context, pairID string) error {
	if err := validatePairID(pairID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			source_id TEXT PRIMARY KEY,
			target_id TEXT NOT NULL,
			inserted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, pairID))
	if err != nil {
		return fmt.Errorf("create table %s: %w", pairID, err)
	}
	s.mu.Lock()
	s.tables[pairID] = true
	s.mu.Unlock()
	return nil
}

func (s *SQLite) AddPair(ctx context.Context, pairID, sourceID, targetID string) error {
	if err := validatePairID(pairID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (source_id, target_id, inserted_at) VALUES (?, ?, CURRENT_TIMESTAMP)", pairID),
		sourceID, targetID)
	if err != nil {
		return fmt.Errorf("add pair %s: %w", pairID, err)
	}
	return nil
}

func (s *SQLite) GetTarget(ctx context.Context, pairID, sourceID string) (string, error) {
	if err := validatePairID(pairID); err != nil {
		return "", err
	}
	var targetID string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT target_id FROM %s WHERE source_id = ?", pairID), sourceID).Scan(&targetID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get target %s: %w", pairID, err)
	}
	return targetID, nil
}

func (s *SQLite) GetSource(ctx context.Context, pairID, targetID string) (string, error) {
	if err := validatePairID(pairID); err != nil {
		return "", err
	}
	var sourceID string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT source_id FROM %s WHERE target_id = ?", pairID), targetID).Scan(&sourceID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get source %s: %w", pairID, err)
	}
	return sourceID, nil
}

func (s *SQLite) DeletePair(ctx context.Context, pairID, sourceID string) error {
	if err := validatePairID(pairID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE source_id = ?", pairID), sourceID)
	if err != nil {
		return fmt.Errorf("delete pair %s: %w", pairID, err)
	}
	return nil
}

// Cleanup evicts rows older than the configured pair lifetime from every
// table created through this store.
func (s *SQLite) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	tables := make([]string, 0, len(s.tables))
	for t := range s.tables {
		tables = append(tables, t)
	}
	s.mu.Unlock()

	cutoff := fmt.Sprintf("-%d days", s.pairLifetimeDays)
	for _, table := range tables {
		res, err := s.db.ExecContext(ctx, fmt.Sprintf(
			"DELETE FROM %s WHERE inserted_at < datetime('now', ?)", table), cutoff)
		if err != nil {
			return fmt.Errorf("cleanup %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			slog.Debug("pairstore: evicted expired pairs", "store", s.name, "table", table, "rows", n)
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
