package pairstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgQuerier is the slice of pgxpool.Pool the store needs; tests substitute
// a pgxmock pool.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the pair store used when a PostgreSQL host is configured.
type Postgres struct {
	db               pgQuerier
	pool             *pgxpool.Pool
	name             string
	pairLifetimeDays int

	mu     sync.Mutex
	tables map[string]bool
}

func NewPostgres(ctx context.Context, host, user, password, dbname, name string, pairLifetimeDays int) (*Postgres, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s",
		url.QueryEscape(user), url.QueryEscape(password), host, dbname)
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database %s: %w", dbname, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database %s: %w", dbname, err)
	}
	return &Postgres{
		db:               pool,
		pool:             pool,
		name:             name,
		pairLifetimeDays: pairLifetimeDays,
		tables:           make(map[string]bool),
	}, nil
}

func (s *Postgres) CreateTable(ctx context.Context, pairID string) error {
	if err := validatePairID(pairID); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			source_id TEXT PRIMARY KEY,
			target_id TEXT NOT NULL,
			inserted_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, pairID))
	if err != nil {
		return fmt.Errorf("create table %s: %w", pairID, err)
	}
	s.mu.Lock()
	s.tables[pairID] = true
	s.mu.Unlock()
	return nil
}

func (s *Postgres) AddPair(ctx context.Context, pairID, sourceID, targetID string) error {
	if err := validatePairID(pairID); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (source_id, target_id, inserted_at) VALUES ($1, $2, now())
		ON CONFLICT (source_id) DO UPDATE SET target_id = EXCLUDED.target_id, inserted_at = now()`, pairID),
		sourceID, targetID)
	if err != nil {
		return fmt.Errorf("add pair %s: %w", pairID, err)
	}
	return nil
}

func (s *Postgres) GetTarget(ctx context.Context, pairID, sourceID string) (string, error) {
	if err := validatePairID(pairID); err != nil {
		return "", err
	}
	var targetID string
	err := s.db.QueryRow(ctx, fmt.Sprintf(
		"SELECT target_id FROM %s WHERE source_id = $1", pairID), sourceID).Scan(&targetID)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get target %s: %w", pairID, err)
	}
	return targetID, nil
}

func (s *Postgres) GetSource(ctx context.Context, pairID, targetID string) (string, error) {
	if err := validatePairID(pairID); err != nil {
		return "", err
	}
	var sourceID string
	err := s.db.QueryRow(ctx, fmt.Sprintf(
		"SELECT source_id FROM %s WHERE target_id = $1", pairID), targetID).Scan(&sourceID)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get source %s: %w", pairID, err)
	}
	return sourceID, nil
}

func (s *Postgres) DeletePair(ctx context.Context, pairID, sourceID string) error {
	if err := validatePairID(pairID); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE source_id = $1", pairID), sourceID)
	if err != nil {
		return fmt.Errorf("delete pair %s: %w", pairID, err)
	}
	return nil
}

func (s *Postgres) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	tables := make([]string, 0, len(s.tables))
	for t := range s.tables {
		tables = append(tables, t)
	}
	s.mu.Unlock()

	for _, table := range tables {
		tag, err := s.db.Exec(ctx, fmt.Sprintf(
			"DELETE FROM %s WHERE inserted_at < now() - make_interval(days => $1)", table),
			s.pairLifetimeDays)
		if err != nil {
			return fmt.Errorf("cleanup %s: %w", table, err)
		}
		if n := tag.RowsAffected(); n > 0 {
			slog.Debug("pairstore: evicted expired pairs", "store", s.name, "table", table, "rows", n)
		}
	}
	return nil
}

func (s *Postgres) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
