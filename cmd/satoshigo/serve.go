package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/satoshigo/hunt/internal/api"
	"github.com/satoshigo/hunt/internal/broadcast"
	"github.com/satoshigo/hunt/internal/claim"
	"github.com/satoshigo/hunt/internal/config"
	"github.com/satoshigo/hunt/internal/dispatcher"
	"github.com/satoshigo/hunt/internal/influx"
	"github.com/satoshigo/hunt/internal/lifecycle"
	"github.com/satoshigo/hunt/internal/logging"
	"github.com/satoshigo/hunt/internal/materialize"
	"github.com/satoshigo/hunt/internal/monitor"
	"github.com/satoshigo/hunt/internal/payment"
	"github.com/satoshigo/hunt/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the broadcast feed",
	Long: `Start the hunt engine: the REST API under /api/v1, the websocket
broadcast feed at /api/v1/ws and the background monitor that retries paid
fundings whose materialization failed.

Storage, payments, broadcast relay, InfluxDB, Graylog and OpenTelemetry are
configured in satoshigo.cfg.json or through SATOSHIGO_* environment variables.

Examples:
  satoshigo serve
  SATOSHIGO_SERVER_ADDR=:9000 satoshigo serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := setupServices(time.Now())
	defer func() { _ = svc.close(context.Background()) }()
	logger := svc.Logger
	logger.Info("Starting up...", "version", CurrentVersion, "build", BuildDate)

	store, err := createStorageBackend(config.GetStorageConfig(), svc.SlogManager)
	if err != nil {
		return err
	}
	if err := store.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage backend", "error", err)
		}
	}()

	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	// broadcast
	bc := config.GetBroadcastConfig()
	var publishers broadcast.Multi
	var hub *broadcast.Hub
	if bc.Hub {
		hub = broadcast.NewHub(logger)
		publishers = append(publishers, hub)
	}
	if bc.Relay.URL != "" {
		relay := broadcast.NewRelay(broadcast.Config{URL: bc.Relay.URL, Secret: bc.Relay.Secret}, logger)
		if err := relay.Init(); err != nil {
			logger.Error("Failed to connect broadcast relay", "url", bc.Relay.URL, "error", err)
		} else {
			defer func() { _ = relay.Close() }()
			publishers = append(publishers, relay)
			logger.Info("Broadcast relay connected", "url", bc.Relay.URL)
		}
	}

	// influx
	ic := config.GetInfluxConfig()
	influxManager := influx.NewManager(influx.Config{
		Enabled:    ic.Enabled,
		URL:        ic.URL,
		Token:      ic.Token,
		Org:        ic.Org,
		Bucket:     ic.Bucket,
		BackupPath: ic.BackupPath,
	}, svc.SlogManager.Zerolog("influx"))
	defer func() {
		if err := influxManager.Close(); err != nil {
			logger.Error("Failed to close InfluxDB", "error", err)
		}
	}()
	var points worker.PointWriter
	if ic.Enabled {
		if err := influxManager.Connect(ctx); err != nil {
			logger.Error("Failed to set up InfluxDB", "error", err)
		} else {
			points = influxManager
		}
	}

	workerManager := worker.NewManager(worker.Dependencies{
		Publisher: publishers,
		Points:    points,
		Logger:    logger,
	})
	if err := workerManager.RegisterHandlers(eventDispatcher, bc.BufferSize); err != nil {
		return fmt.Errorf("register worker handlers: %w", err)
	}
	logger.Info("Worker handlers registered with dispatcher")

	pc := config.GetPaymentConfig()
	payments, err := createPaymentProvider(pc, logger)
	if err != nil {
		return err
	}

	gc := config.GetGameConfig()
	materializer, err := materialize.New(materialize.Dependencies{
		Store:         store,
		Events:        eventDispatcher,
		Rand:          rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())),
		Logger:        logger,
		CaptureRadius: gc.CaptureRadius,
	})
	if err != nil {
		return err
	}
	claims, err := claim.New(claim.Dependencies{
		Store:          store,
		Events:         eventDispatcher,
		Logger:         logger,
		ProximityCheck: gc.ProximityCheck,
	})
	if err != nil {
		return err
	}
	lifecycleManager, err := lifecycle.New(lifecycle.Dependencies{
		Store:          store,
		Payments:       payments,
		Materializer:   materializer,
		Logger:         logger,
		PaymentTimeout: pc.Timeout,
		Retries:        pc.Retries,
		RetryBase:      pc.RetryBase,
	})
	if err != nil {
		return err
	}

	walletCfg, err := config.GetWallets()
	if err != nil {
		return err
	}
	wallets, err := api.NewWallets(walletCfg)
	if err != nil {
		return err
	}
	if len(walletCfg) == 0 {
		logger.Warn("No wallets configured, operator routes will reject every key")
	}

	sc := config.GetServerConfig()
	apiDeps := api.Dependencies{
		Lifecycle: lifecycleManager,
		Claims:    claims,
		Wallets:   wallets,
		Logger:    logger,
		Timeout:   sc.WriteTimeout,
	}
	if hub != nil {
		apiDeps.Broadcast = hub
	}
	apiServer, err := api.NewServer(apiDeps)
	if err != nil {
		return err
	}

	monitorDeps := monitor.Dependencies{
		Pending:    lifecycleManager,
		Dispatcher: eventDispatcher,
		Points:     points,
		Logger:     logger,
		Interval:   gc.PendingInterval,
	}
	if hub != nil {
		monitorDeps.Hub = hub
	}
	monitorService := monitor.NewService(monitorDeps)
	if err := monitorService.Start(); err != nil {
		return err
	}

	// the websocket route is hijacked, so request deadlines come from the
	// router's timeout middleware instead of http.Server.WriteTimeout
	httpServer := &http.Server{
		Addr:              sc.Addr,
		Handler:           apiServer.Routes(),
		ReadHeaderTimeout: sc.ReadTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", sc.Addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down...")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if hub != nil {
		errs = append(errs, hub.Close())
	}
	monitorService.Stop()
	if err := eventDispatcher.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher shutdown: %w", err))
	}
	logger.Info("Shutdown complete")
	return errors.Join(errs...)
}

// createPaymentProvider builds the configured payment rail.
func createPaymentProvider(pc config.PaymentConfig, logger *slog.Logger) (payment.Provider, error) {
	switch pc.Type {
	case "lnbits":
		logger.Info("Using LNbits payment rail", "url", pc.URL)
		return payment.NewClient(pc.URL, &http.Client{Timeout: pc.Timeout}), nil
	case "ledger", "":
		logger.Warn("Using in-memory payment ledger, invoices are not real", "autoSettle", pc.AutoSettle)
		return payment.NewLedger(pc.AutoSettle), nil
	default:
		return nil, fmt.Errorf("unknown payment type %q", pc.Type)
	}
}
