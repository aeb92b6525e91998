package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sparklost/spacebar-bridge/internal/bridge"
	"github.com/sparklost/spacebar-bridge/internal/config"
	"github.com/sparklost/spacebar-bridge/internal/gateway"
	"github.com/sparklost/spacebar-bridge/internal/logging"
	"github.com/sparklost/spacebar-bridge/internal/metrics"
	"github.com/sparklost/spacebar-bridge/internal/pairstore"
	"github.com/sparklost/spacebar-bridge/internal/rest"
	"github.com/sparklost/spacebar-bridge/internal/tracing"
)

func runCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.json", "path to config file")
	return cmd
}

func run(cfg *config.Config) error {
	closeLog := logging.Setup("spacebar_bridge.log")
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.InitTracer("spacebar-bridge")
	if err != nil {
		slog.Warn("tracing init failed", "error", err)
	} else {
		defer shutdownTracer(context.Background())
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				slog.Error("metrics listener failed", "error", err)
			}
		}()
	}

	storeA, storeB, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer storeA.Close()
	defer storeB.Close()

	restA := rest.NewClient("Discord", cfg.Discord.Host, cfg.Discord.Token)
	restB := rest.NewClient("Spacebar", cfg.Spacebar.Host, cfg.Spacebar.Token)

	// Discord compresses the gateway stream; Spacebar does not.
	gwA := gateway.NewSession("Discord", cfg.Discord.Token, restA, true)
	gwB := gateway.NewSession("Spacebar", cfg.Spacebar.Token, restB, false)

	o := &bridge.Orchestrator{
		GatewayA: gwA,
		GatewayB: gwB,
		DirectionAB: bridge.NewDirection("discord>spacebar", gwA, restB, storeA, storeB,
			cfg.DiscordBridgeMap(), cfg.SpacebarGuildID, cfg.Discord.CDNHost),
		DirectionBA: bridge.NewDirection("spacebar>discord", gwB, restA, storeB, storeA,
			cfg.SpacebarBridgeMap(), cfg.DiscordGuildID, cfg.Spacebar.CDNHost),
		StoreA:            storeA,
		StoreB:            storeB,
		CleanupInterval:   pairstore.CleanupInterval(cfg.Database.CleanupDays),
		CustomStatus:      cfg.CustomStatus,
		CustomStatusEmoji: cfg.CustomStatusEmoji,
	}

	if err := o.Run(ctx); err != nil {
		slog.Error("bridge failed", "error", err)
		return err
	}
	slog.Info("bridge stopped")
	return nil
}

func openStores(ctx context.Context, cfg *config.Config) (pairstore.Store, pairstore.Store, error) {
	db := cfg.Database
	if cfg.UsePostgres() {
		storeA, err := pairstore.NewPostgres(ctx, db.PostgresqlHost, db.PostgresqlUser, db.PostgresqlPassword,
			"bridge_discord_msgs", "Discord", db.PairLifetimeDays)
		if err != nil {
			return nil, nil, err
		}
		storeB, err := pairstore.NewPostgres(ctx, db.PostgresqlHost, db.PostgresqlUser, db.PostgresqlPassword,
			"bridge_spacebar_msgs", "Spacebar", db.PairLifetimeDays)
		if err != nil {
			storeA.Close()
			return nil, nil, err
		}
		return storeA, storeB, nil
	}

	storeA, err := pairstore.NewSQLite(filepath.Join(db.DirPath, "discord.db"), "Discord", db.PairLifetimeDays)
	if err != nil {
		return nil, nil, err
	}
	storeB, err := pairstore.NewSQLite(filepath.Join(db.DirPath, "spacebar.db"), "Spacebar", db.PairLifetimeDays)
	if err != nil {
		storeA.Close()
		return nil, nil, err
	}
	return storeA, storeB, nil
}
