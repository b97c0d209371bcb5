package main

import (
	"FeeMint/internal/config"
	"FeeMint/internal/engine"
	"FeeMint/internal/ingestion"
	"FeeMint/internal/mint"
	"FeeMint/internal/observability"
	"FeeMint/internal/persistence"
	"FeeMint/internal/query"
	"FeeMint/internal/scheduler"
	"FeeMint/internal/server"
	"FeeMint/internal/valuation"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

func main() {
	log := observability.NewLogger("feemint")
	log.Info().Msg("feemint starting")

	configPath := os.Getenv("FEEMINT_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("load config")
	}

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Service.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("postgres connected")

	// --- Run SQL migrations ---
	migrator := persistence.NewMigrator(db, cfg.Service.MigrationsDir, log)
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	store := persistence.NewStore(db)

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.Service.NATSURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	log.Info().Msg("nats connected")

	if err := ingestion.EnsureStreams(ctx, js, log); err != nil {
		log.Fatal().Err(err).Msg("ensure ledger feed stream")
	}
	if err := ingestion.EnsureMintStream(ctx, js, log); err != nil {
		log.Fatal().Err(err).Msg("ensure mint stream")
	}

	// --- Checkpoint worker and mint publisher ---
	checkpointChan := make(chan engine.CheckpointOutput, cfg.Service.EventQueueSize)
	mintNotifyChan := make(chan mint.MintRecord, cfg.Service.EventQueueSize)

	checkpointWorker := persistence.NewCheckpointWorker(
		store, checkpointChan,
		cfg.Service.CheckpointBatchSize, cfg.Service.CheckpointFlush.Std(),
		metrics, log,
	)
	checkpointWorker.NotifyMints(mintNotifyChan)

	mintPublisher := ingestion.NewMintPublisher(js, mintNotifyChan, log)

	// --- Shared clients ---
	valuations := valuation.NewNATSProvider(nc, cfg.Service.SubmitTimeout.Std())
	ledgerClient := mint.NewNATSLedgerClient(nc, cfg.Service.LedgerEndpoint)

	// --- Per-fund engines ---
	manager := engine.NewManager(log)
	for _, f := range cfg.Funds {
		records := mint.NewRecordLog(f.FundID, store)
		seqs, err := store.RecentMintSequences(ctx, f.FundID, 1000)
		if err != nil {
			log.Fatal().Err(err).Str("fund", f.FundID).Msg("warm mint record log")
		}
		records.Warm(seqs)

		submitter := mint.NewSubmitter(
			f.FundID, f.Destination, ledgerClient, records,
			cfg.Service.SubmitTimeout.Std(), log,
		)

		eng, err := engine.New(engine.Config{
			FundID:      f.FundID,
			AnnualRate:  f.AnnualRateScaled(),
			DailyCap:    f.DailyCapScaled(),
			FundCreated: f.Created,
			Scheduler: scheduler.Config{
				MinMintThreshold:     f.MinMintThresholdScaled(),
				MaxMintInterval:      f.MaxMintInterval.Std(),
				CongestionMultiplier: f.CongestionMultiplierScaled(),
				BaselineFee:          f.BaselineFee,
				FeeTolerance:         f.FeeToleranceScaled(),
			},
		}, valuations, submitter, checkpointChan, metrics, log)
		if err != nil {
			log.Fatal().Err(err).Str("fund", f.FundID).Msg("build engine")
		}

		st, found, err := store.LoadFeeState(ctx, f.FundID)
		if err != nil {
			log.Fatal().Err(err).Str("fund", f.FundID).Msg("load fee state")
		}
		if found {
			eng.Restore(st)
			log.Info().
				Str("fund", f.FundID).
				Uint64("sequence", st.LastLedgerSequence).
				Int64("accrued", st.AccruedUnminted).
				Msg("restored fee state")
		} else {
			log.Info().Str("fund", f.FundID).Msg("cold start, no persisted state")
		}

		runner := engine.NewRunner(eng, cfg.Service.EventQueueSize, log)
		if err := manager.Register(f.FundID, runner); err != nil {
			log.Fatal().Err(err).Str("fund", f.FundID).Msg("register fund")
		}
	}

	// --- Ingestion ---
	subscriber := ingestion.NewNATSSubscriber(js, manager, metrics, log)
	if err := subscriber.Subscribe(ctx); err != nil {
		log.Fatal().Err(err).Msg("nats subscribe")
	}

	// --- Operator API ---
	queryService := query.NewQueryService(store)
	httpServer := server.NewHTTPServer(cfg.Service.HTTPAddr, queryService, manager, healthChecker, log)

	// --- Daily summary job ---
	summaryCron := cron.New()
	_, err = summaryCron.AddFunc(cfg.Service.SummaryCron, func() {
		runDailySummary(ctx, queryService, manager.FundIDs(), log)
	})
	if err != nil {
		log.Fatal().Err(err).Str("cron", cfg.Service.SummaryCron).Msg("schedule daily summary")
	}
	summaryCron.Start()
	defer summaryCron.Stop()

	// --- Start goroutines ---
	errChan := make(chan error, 8)

	workerDone := make(chan struct{})
	publisherDone := make(chan struct{})
	managerDone := make(chan struct{})
	go func() { errChan <- checkpointWorker.Run(ctx); close(workerDone) }()
	go func() { errChan <- mintPublisher.Run(ctx); close(publisherDone) }()
	go func() { errChan <- manager.Run(ctx); close(managerDone) }()
	go func() { errChan <- httpServer.Run(ctx) }()

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:    cfg.Service.MetricsAddr,
			Handler: metricsMux,
		}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		log.Info().Str("addr", cfg.Service.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	healthChecker.SetReady(true)
	log.Info().
		Int("funds", len(cfg.Funds)).
		Str("http", cfg.Service.HTTPAddr).
		Str("metrics", cfg.Service.MetricsAddr).
		Msg("feemint ready")

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	// --- Graceful shutdown: stop intake first, then flush checkpoints ---
	subscriber.Stop()
	cancel()

	// Runners finish their in-flight event before honoring the cancel, so a
	// channel is closed only once its last sender has exited: manager before
	// checkpointChan, worker before mintNotifyChan.
	<-managerDone
	close(checkpointChan)
	<-workerDone
	close(mintNotifyChan)
	<-publisherDone

	log.Info().Msg("feemint shutdown complete")
}

// runDailySummary logs the trailing-day mint activity for every fund.
func runDailySummary(ctx context.Context, qs *query.QueryService, fundIDs []string, log zerolog.Logger) {
	for _, fundID := range fundIDs {
		summary, err := qs.GetFundSummary(ctx, fundID, time.Now())
		if errors.Is(err, query.ErrFundNotFound) {
			log.Info().Str("fund", fundID).Msg("no checkpointed state yet, skipping summary")
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("fund", fundID).Msg("daily summary failed")
			continue
		}
		state, err := qs.GetFundState(ctx, fundID)
		if err != nil {
			log.Error().Err(err).Str("fund", fundID).Msg("daily summary state failed")
			continue
		}
		log.Info().
			Str("fund", fundID).
			Int64("minted_last_24h", summary.MintedLast24h).
			Int64("accrued_unminted", state.AccruedUnminted).
			Int64("carry_deficit", state.CarryForwardDeficit).
			Str("scheduler_state", state.SchedulerState).
			Msg("daily fee summary")

		if state.CarryForwardDeficit > 0 {
			log.Warn().
				Str("fund", fundID).
				Int64("carry_deficit", state.CarryForwardDeficit).
				Msg("carry-forward deficit outstanding")
		}
	}
}
