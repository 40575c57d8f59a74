package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hazemnasser/tank-orders/internal/config"
	"github.com/hazemnasser/tank-orders/internal/database"
	"github.com/hazemnasser/tank-orders/internal/metrics"
	"github.com/hazemnasser/tank-orders/internal/reservation"
)

// The sweeper is the background collaborator that releases over-due holds:
// it transitions expired active reservations to expired in batches, which
// drops them out of the availability sum.
func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.With().Str("service", "tank-orders-sweeper").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Dur("interval", cfg.Sweeper.Interval).
		Int("batch_size", cfg.Sweeper.BatchSize).
		Msg("sweeper starting")

	sweep(ctx, db, cfg.Sweeper.BatchSize)

	ticker := time.NewTicker(cfg.Sweeper.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sweeper stopping")
			return
		case <-ticker.C:
			sweep(ctx, db, cfg.Sweeper.BatchSize)
		}
	}
}

// sweep drains due reservations in batches until a pass comes back short,
// so a backlog clears in one tick instead of one batch per tick.
func sweep(ctx context.Context, db *sql.DB, batchSize int) {
	for {
		expired, err := reservation.ExpireDue(ctx, db, batchSize)
		if err != nil {
			log.Error().Err(err).Msg("expire reservations")
			return
		}
		if expired > 0 {
			log.Info().Int("expired", expired).Msg("reservations expired")
		}
		if expired < batchSize {
			return
		}
	}
}
