// Package pairstore persists the source to target message id mapping for
// each configured channel pair, one table per pair.
package pairstore

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"
)

// Store is the durable bidirectional lookup between source and target
// message ids for one endpoint's outgoing direction. Lookups return the
// empty string, not an error, when no row exists.
type Store interface {
	CreateTable(ctx context.Context, pairID string) error
	AddPair(ctx context.Context, pairID, sourceID, targetID string) error
	GetTarget(ctx context.Context, pairID, sourceID string) (string, error)
	GetSource(ctx context.Context, pairID, targetID string) (string, error)
	DeletePair(ctx context.Context, pairID, sourceID string) error
	Cleanup(ctx context.Context) error
	Close() error
}

// PairID names the table for one relay direction.
func PairID(sourceChannel, targetChannel string) string {
	return "pair_" + sourceChannel + "_" + targetChannel
}

// Pair ids are interpolated into SQL as table names, so they are
// restricted to the exact shape PairID produces.
var pairIDRe = regexp.MustCompile(`^pair_\d+_\d+$`)

func validatePairID(pairID string) error {
	if !pairIDRe.MatchString(pairID) {
		return fmt.Errorf("invalid pair id %q", pairID)
	}
	return nil
}

// RunCleanup periodically evicts expired rows from every store until the
// context is canceled. Store failures are logged and the loop keeps going.
func RunCleanup(ctx context.Context, interval time.Duration, stores ...Store) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, store := range stores {
				if err := store.Cleanup(ctx); err != nil {
					slog.Error("pairstore: cleanup failed", "error", err)
				}
			}
		}
	}
}

// CleanupInterval converts the configured cleanup period in days to a
// ticker interval, defaulting to daily.
func CleanupInterval(cleanupDays int) time.Duration {
	if cleanupDays <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(cleanupDays) * 24 * time.Hour
}
