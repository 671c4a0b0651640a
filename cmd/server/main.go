/*
main.go - billing core reference server

Wires config, structured logging, the SQLite-backed store, the billing
services, and the thin HTTP surface together, then starts the nightly
scheduler on its own goroutine at 03:00 local time alongside the HTTP
listener, matching spec §5's "nightly scheduler runs on a single
dedicated worker" model.

STARTUP SEQUENCE:
  1. Load configuration (config.Load)
  2. Build the structured logger
  3. Open the SQLite-backed store
  4. Construct the billing services (generator, distributor, credit,
     aggregator, penalty refresher) and the scheduler's task pipeline
  5. Start the HTTP server and the scheduler loop
  6. On SIGINT/SIGTERM, stop accepting connections, drain, and exit

SEE ALSO:
  - api/server.go: router configuration
  - scheduler/scheduler.go: nightly task pipeline
  - store/sqlite/sqlite.go: database implementation
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/condomx/billing-core/aggregation"
	"github.com/condomx/billing-core/api"
	"github.com/condomx/billing-core/backup"
	"github.com/condomx/billing-core/billing"
	"github.com/condomx/billing-core/config"
	"github.com/condomx/billing-core/exchangerate"
	"github.com/condomx/billing-core/logging"
	"github.com/condomx/billing-core/money"
	"github.com/condomx/billing-core/notify"
	"github.com/condomx/billing-core/scheduler"
	"github.com/condomx/billing-core/store/sqlite"

	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config: " + err.Error())
	}

	logger := logging.New(cfg.Logging)
	logger.Info().Str("store_driver", cfg.Store.Driver).Msg("starting billing core")

	st, err := sqlite.New(cfg.Store.Path, cfg.Store.PoolLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	clock := money.SystemClock{}
	generator := billing.NewGenerator(st, clock)
	credit := billing.NewCreditService(st, clock)
	distributor := billing.NewDistributor(st, clock, credit)
	aggregator := aggregation.NewBuilder(st, clock)
	refresher := billing.NewPenaltyRefresher(st)

	handler := api.NewHandler(generator, distributor, credit, aggregator)
	if cfg.Notify.Enabled {
		sink := notify.NewSMTPSink(cfg.Notify.SMTPHost, cfg.Notify.SMTPPort, cfg.Notify.From, nil)
		handler.Notify = &notify.BestEffortSink{Sink: sink, Logger: logger}
	}
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Address).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sched := buildScheduler(st, clock, logger, cfg, refresher)
	go runNightlyLoop(sched, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
}

// buildScheduler wires the three nightly tasks (spec §4.7) onto the
// scheduler pipeline in the required order: backup, then penalty
// refresh, then exchange-rate fetch.
func buildScheduler(st *sqlite.Store, clock money.Clock, logger zerolog.Logger, cfg *config.Config, refresher *billing.PenaltyRefresher) *scheduler.Scheduler {
	tasks := []scheduler.Task{
		{
			Name:    "backup",
			Timeout: scheduler.DefaultBackupTimeout,
			Run: func(ctx context.Context) error {
				if !cfg.Backup.Enabled {
					return nil
				}
				awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Backup.Region))
				if err != nil {
					return err
				}
				objects := backup.NewS3ObjectStore(s3.NewFromConfig(awsCfg))
				task := backup.NewTask(st, objects, cfg.Backup.Bucket, cfg.Backup.KeyPrefix)
				_, _, err = task.Export(ctx, money.ISODate(clock.Now()))
				return err
			},
		},
		{
			Name:    "penalty_refresh",
			Timeout: scheduler.DefaultPenaltyTimeout,
			Run: func(ctx context.Context) error {
				clientIDs, err := billing.ListClientIDs(ctx, st)
				if err != nil {
					return err
				}
				asOf := money.ISODate(clock.Now())
				for _, clientID := range clientIDs {
					if _, err := refresher.RefreshClient(ctx, clientID, asOf); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Name:    "exchange_rate",
			Timeout: scheduler.DefaultExchangeRateTimeout,
			Run: func(ctx context.Context) error {
				if !cfg.ExchangeRate.Enabled {
					return nil
				}
				provider := exchangerate.NewHTTPProvider(cfg.ExchangeRate.BaseURL, cfg.ExchangeRate.Timeout, cfg.ExchangeRate.MaxRetries)
				task := exchangerate.NewTask(st, provider, "MXN", "USD")
				_, err := task.Run(ctx, money.ISODate(clock.Now()))
				return err
			},
		},
	}
	return scheduler.New(st, clock, logger, tasks)
}

// runNightlyLoop sleeps until each local 03:00 and runs the scheduler
// once, matching spec §4.7's "run once per 24-hour window at 03:00
// local time". Scheduler.RunOnce releases its lease at the end of each
// run, so the lease only rejects a concurrent run (Conflict); a second
// RunOnce on the same day runs every task again and overwrites that
// day's run log.
func runNightlyLoop(sched *scheduler.Scheduler, logger zerolog.Logger) {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		time.Sleep(time.Until(next))

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		if _, err := sched.RunOnce(ctx); err != nil {
			logger.Warn().Err(err).Msg("nightly scheduler run finished with issues")
		}
		cancel()
	}
}
