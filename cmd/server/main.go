// Command server runs the fiscal POS backend: HTTP API, receipt chain, and
// the queued-report retry worker. Wiring lives here; logic lives in internal.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"lithipos/internal/device"
	"lithipos/internal/fiscal"
	"lithipos/internal/fiscalday"
	"lithipos/internal/gateway"
	"lithipos/internal/keys"
	"lithipos/internal/ledger"
	"lithipos/internal/operator"
	"lithipos/internal/platform/config"
	"lithipos/internal/platform/httpserver"
	"lithipos/internal/platform/logger"
	"lithipos/internal/platform/metrics"
	"lithipos/internal/platform/postgres"
	"lithipos/internal/platform/redis"
	"lithipos/internal/reporting"
	"lithipos/internal/signing"
	"lithipos/internal/storage"
	httptransport "lithipos/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		logger.New().Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store   storage.Store
		opStore operator.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		store = storage.NewPostgres(db)
		opStore = storage.NewPostgresOperatorStore(db)
		log.Info("using postgres storage")
	} else {
		store = storage.NewInMemoryStore()
		opStore = storage.NewInMemoryOperatorStore()
		log.Warn("DATABASE_URL not set, using in-memory storage")
	}

	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	var lockBackend goredis.UniversalClient
	if redisClient != nil {
		lockBackend = redisClient.Client
		defer redisClient.Close()
	}

	keyManager := keys.NewManager(cfg.KeysDir, keys.WithCSRSubject(
		cfg.Authority.CertPrefix,
		cfg.Authority.CertCountry,
		cfg.Authority.CertOrganization,
	))
	signer := signing.NewSigner(keyManager)

	var gw gateway.Client
	if cfg.Authority.Mock {
		gw = &gateway.MockClient{Latency: 50 * time.Millisecond}
		log.Warn("authority mock enabled, reports never leave this process")
	} else {
		gw = gateway.NewHTTPClient(cfg.Authority, log)
	}

	m := metrics.New()
	deviceSvc := device.NewService(store)
	daySvc := fiscalday.NewService(store, log)
	ledgerSvc := ledger.NewService(store, store, signer, cfg.TaxRate, m, log)
	reporter := reporting.NewReporter(gw, ledgerSvc, cfg.TaxRate, cfg.Authority.Timeout, m, log)
	worker := reporting.NewWorker(reporter, store, cfg.ReportRetryInterval, lockBackend, log)

	operatorSvc := operator.NewService(opStore, cfg.JWTSigningKey)
	if cfg.DatabaseURL == "" {
		// Dev convenience only; production operators are provisioned out of band.
		if err := operatorSvc.SeedDefault(ctx, "manager", "0000"); err != nil {
			return err
		}
	}

	fiscalSvc := fiscal.NewService(keyManager, deviceSvc, daySvc, ledgerSvc, gw, reporter, m, log)

	handler := httptransport.NewHandler(fiscalSvc, operatorSvc, operatorSvc, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return worker.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped")
	return nil
}
