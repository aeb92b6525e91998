package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sparklost/spacebar-bridge/internal/pairstore"
)

// Session extends Gateway with the lifecycle operations only the
// orchestrator uses.
type Session interface {
	Gateway
	Connect(ctx context.Context) error
	UpdatePresence(status, customStatus string, emoji json.RawMessage) error
	Close()
}

// Orchestrator owns the two gateway sessions and the two relay
// directions, plus the background pair store cleanup.
type Orchestrator struct {
	GatewayA, GatewayB Session

	DirectionAB, DirectionBA *Direction

	StoreA, StoreB  pairstore.Store
	CleanupInterval time.Duration

	CustomStatus      string
	CustomStatusEmoji json.RawMessage
}

// Run connects both gateways, waits for READY on each, then runs the
// relay loops until the context is canceled or a gateway fails. A nil
// return is a clean shutdown.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := o.GatewayA.Connect(ctx); err != nil {
		return err
	}
	if err := o.GatewayB.Connect(ctx); err != nil {
		o.GatewayA.Close()
		return err
	}
	defer o.GatewayA.Close()
	defer o.GatewayB.Close()

	if err := o.waitReady(ctx); err != nil {
		return err
	}
	slog.Info("bridge: both gateways ready")

	o.initTables(ctx)

	if o.CustomStatus != "" {
		// Spacebar does not implement presence updates; send only to
		// the Discord side.
		if err := o.GatewayA.UpdatePresence("online", o.CustomStatus, o.CustomStatusEmoji); err != nil {
			slog.Warn("bridge: presence update failed", "endpoint", o.GatewayA.Name(), "error", err)
		}
	}

	if o.CleanupInterval > 0 {
		go pairstore.RunCleanup(ctx, o.CleanupInterval, o.StoreA, o.StoreB)
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	for _, d := range []*Direction{o.DirectionAB, o.DirectionBA} {
		wg.Add(1)
		go func(d *Direction) {
			defer wg.Done()
			if err := d.Run(ctx); err != nil {
				errCh <- err
				cancel()
			}
		}(d)
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// waitReady polls both sessions until each has completed its handshake,
// aborting if either dies first.
func (o *Orchestrator) waitReady(ctx context.Context) error {
	slog.Info("bridge: waiting for gateways")
	for {
		if o.GatewayA.Ready() && o.GatewayB.Ready() {
			return nil
		}
		for _, gw := range []Session{o.GatewayA, o.GatewayB} {
			if err := gw.Err(); err != nil {
				return err
			}
			if !gw.Running() {
				return fmt.Errorf("%s gateway stopped before ready", gw.Name())
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// initTables creates the per-pair tables for both directions. A failed
// pair is logged and skipped; its events will not be mirrored.
func (o *Orchestrator) initTables(ctx context.Context) {
	for src, tgt := range o.DirectionAB.Bridges {
		if err := o.StoreA.CreateTable(ctx, pairstore.PairID(src, tgt)); err != nil {
			slog.Warn("bridge: channel pair not initialized", "direction", o.DirectionAB.Label, "source", src, "target", tgt, "error", err)
		}
	}
	for src, tgt := range o.DirectionBA.Bridges {
		if err := o.StoreB.CreateTable(ctx, pairstore.PairID(src, tgt)); err != nil {
			slog.Warn("bridge: channel pair not initialized", "direction", o.DirectionBA.Label, "source", src, "target", tgt, "error", err)
		}
	}
}
