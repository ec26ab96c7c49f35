package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/recibos/internal/adapter/driven/bridge"
	"github.com/ericfisherdev/recibos/internal/adapter/driven/browser"
	"github.com/ericfisherdev/recibos/internal/adapter/driven/docformat"
	"github.com/ericfisherdev/recibos/internal/adapter/driven/filestore"
	"github.com/ericfisherdev/recibos/internal/adapter/driven/opener"
	"github.com/ericfisherdev/recibos/internal/adapter/driven/sedapal"
	sqliteadapter "github.com/ericfisherdev/recibos/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/recibos/internal/adapter/driving/http"
	"github.com/ericfisherdev/recibos/internal/application"
	"github.com/ericfisherdev/recibos/internal/config"
	"github.com/ericfisherdev/recibos/internal/domain/model"
	"github.com/ericfisherdev/recibos/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"bridge_mode", cfg.BridgeMode(),
		"documents_dir", cfg.DocumentsDir,
		"credential_storage", cfg.SecretKey != nil,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Create the metrics registry.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.MustNewMetrics(reg)

	// 4. Open database (dual reader/writer with WAL mode) and migrate.
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	slog.Info("migrations complete", "schema_version", version)

	// 5. Wire storage adapters.
	credentialStore := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)
	documentCatalog := sqliteadapter.NewDocumentRepo(db)
	documentStore := filestore.NewStore(cfg.DocumentsDir)
	slog.Info("document store ready", "dir", documentStore.Dir())
	systemOpener := opener.NewSystem(cfg.OpenDocuments)

	// 6. Resolve portal credentials: stored credentials take priority over env vars.
	creds, err := application.ResolveCredentials(ctx, credentialStore, model.PortalCredentials{
		Email:    cfg.PortalEmail,
		Password: cfg.PortalPassword,
	})
	if err != nil {
		slog.Warn("stored credentials unavailable, using environment", "error", err)
	}
	provider := application.NewCredentialProvider(creds)
	if !provider.HasCredentials() && !cfg.BridgeMode() {
		slog.Info("no portal credentials configured, searches fail until they are set via PUT /api/credentials")
	}

	fetchCfg := application.FetchConfig{
		PageSize:    cfg.PageSize,
		PageCap:     cfg.PageCap,
		ResultLimit: cfg.ResultLimit,
		CacheTTL:    cfg.CacheTTL,
	}

	// 7. Wire the bill source: a remote bridge, or the portal behind a browser login.
	var (
		fetcher  *application.BillFetcher
		source   application.DocumentSource
		session  *application.SessionManager
		launcher *browser.RodLauncher
	)
	if cfg.BridgeMode() {
		bridgeClient := bridge.NewClient(cfg.BridgeURL, slog.Default(), m)
		if err := bridgeClient.Ping(ctx); err != nil {
			slog.Warn("bridge not reachable yet", "url", cfg.BridgeURL, "error", err)
		}
		fetcher = application.NewBridgeBillFetcher(bridgeClient, fetchCfg, slog.Default(), m)
		source = application.NewBridgeDocumentSource(bridgeClient)
		slog.Info("bridge mode", "url", cfg.BridgeURL)
	} else {
		launcher = browser.NewRodLauncher(cfg.ChromeURL, cfg.Headless, slog.Default())
		loginCfg := browser.DefaultConfig(cfg.LoginURL)
		loginCfg.PageLoadTimeout = cfg.PageLoadTimeout
		loginCfg.FieldAttempts = cfg.FieldAttempts
		loginCfg.FieldRetryInterval = cfg.FieldRetryInterval
		loginCfg.RedirectPollInterval = cfg.RedirectPollInterval
		loginCfg.RedirectTimeout = cfg.RedirectTimeout
		automator := browser.NewAutomator(launcher, browser.DefaultScript(), loginCfg, slog.Default(), m)

		session = application.NewSessionManager(automator, provider, application.SessionConfig{
			TokenTTL:         cfg.TokenTTL,
			LoginDeadline:    cfg.LoginDeadline,
			LoginWaitTimeout: cfg.LoginWaitTimeout,
		}, slog.Default())

		portal := sedapal.NewClient(cfg.PortalBaseURL, slog.Default(), m)
		fetcher = application.NewBillFetcher(portal, session, fetchCfg, slog.Default(), m)
		source = application.NewPortalDocumentSource(portal, session)
		slog.Info("portal mode", "base_url", cfg.PortalBaseURL, "remote_chrome", cfg.ChromeURL != "")
	}

	// 8. Create application services. No share target exists on a server.
	retriever := application.NewDocumentRetriever(
		source,
		docformat.Tool{},
		documentStore,
		documentCatalog,
		systemOpener,
		nil,
		cfg.FilePrefix,
		slog.Default(),
		m,
	)
	history := application.NewSearchHistory(application.DefaultHistorySize)

	// 9. Create HTTP handler and register API routes.
	apiHandler := httphandler.NewHandler(fetcher, retriever, session, history, provider, credentialStore,
		httphandler.Limits{PageSize: cfg.PageSize, PageCap: cfg.PageCap, ResultLimit: cfg.ResultLimit},
		slog.Default())
	metricsHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	handler := httphandler.NewServeMux(apiHandler, slog.Default(), m, cfg.CORSOrigins, metricsHandler)

	// A search may include a full browser login, so writes get the login deadline on top.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.LoginDeadline + 60*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	// 10. Log startup complete.
	slog.Info("recibos started",
		"listen_addr", cfg.ListenAddr,
		"page_size", cfg.PageSize,
		"page_cap", cfg.PageCap,
		"result_limit", cfg.ResultLimit,
	)

	// 11. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 12. Graceful shutdown: drain HTTP, cancel any login, stop the browser.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	if session != nil {
		session.Clear()
	}
	if launcher != nil {
		if err := launcher.Close(); err != nil {
			slog.Error("browser shutdown error", "error", err)
		}
	}

	// 13. Log shutdown complete.
	slog.Info("shutdown complete")
	return nil
}
