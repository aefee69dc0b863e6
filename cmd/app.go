package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/dayplanner/internal/aggregator"
	"github.com/teemow/dayplanner/internal/calendar"
	"github.com/teemow/dayplanner/internal/config"
	"github.com/teemow/dayplanner/internal/credential"
	"github.com/teemow/dayplanner/internal/executor"
	"github.com/teemow/dayplanner/internal/google"
	"github.com/teemow/dayplanner/internal/ics"
	"github.com/teemow/dayplanner/internal/instrumentation"
	"github.com/teemow/dayplanner/internal/logging"
	"github.com/teemow/dayplanner/internal/server"
	"github.com/teemow/dayplanner/internal/tasks"
)

// envConfigPath names the config file when --config is not given.
const envConfigPath = "DAYPLANNER_CONFIG"

// resolveConfigPath returns the --config flag, then DAYPLANNER_CONFIG, then
// the XDG default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv(envConfigPath); p != "" {
		return p
	}
	return config.DefaultPath()
}

// loadConfig loads and validates the configuration, applying the logging flags.
func loadConfig() (*config.Config, error) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// newLogger writes to stderr; stdout belongs to the MCP stdio transport.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(os.Stderr, cfg.Logging.Format, cfg.Logging.Level)
}

// openStore opens the configured credential backend. The returned close
// function is never nil.
func openStore(ctx context.Context, cfg *config.Config) (credential.Store, func(), error) {
	key, err := cfg.EncryptionKey()
	if err != nil {
		return nil, nil, err
	}
	enc, err := credential.NewEncryption(key)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Credential.Store {
	case config.StoreMemory:
		return credential.NewMemoryStore(), func() {}, nil
	case config.StoreSQLite:
		store, err := credential.OpenSQLiteStore(ctx, cfg.CredentialPath(), enc)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.StoreValkey:
		store, err := credential.NewValkeyStore(cfg.Credential.ValkeyAddr, enc)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return credential.NewFileStore(cfg.CredentialPath(), enc), func() {}, nil
	}
}

// app holds the components shared by serve, overview and auth.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	location *time.Location
	schedule aggregator.Config

	credentials *credential.Manager
	executor    *executor.Executor
	calendar    *calendar.Client
	tasks       *tasks.Client
	feeds       *ics.Fetcher
	aggregator  *aggregator.Aggregator

	oauth      *oauth2.Config
	closeStore func()
}

// newApp builds the credential manager, executor, adapters and aggregator.
// metrics may be nil.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *instrumentation.Metrics) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	sched, err := aggregator.ConfigFrom(cfg)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	oauthConf := google.OAuthConfig(cfg.Credential.ClientID, cfg.Credential.ClientSecret)
	creds := credential.NewManager(store, google.NewRefresher(oauthConf, nil),
		credential.WithLogger(logger),
		credential.WithMetrics(metrics),
		credential.WithAccount(cfg.Credential.Account),
		credential.WithSafetyMargin(cfg.Credential.SafetyMargin),
		credential.WithRefreshTimeout(cfg.Credential.RefreshTimeout),
	)

	exec := executor.New(executor.ConfigFrom(cfg), creds,
		executor.WithLogger(logger),
		executor.WithMetrics(metrics),
		executor.WithClassifier(executor.ClassifierFunc(google.Classify)),
	)

	httpClient := executor.NewHTTPClient(nil)
	cal, err := calendar.NewClient(ctx, exec, google.ClientOptions(httpClient, "")...)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}
	cal.SetLogger(logger)

	tsk, err := tasks.NewClient(ctx, exec, google.ClientOptions(httpClient, "")...)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("failed to create tasks client: %w", err)
	}
	tsk.SetLogger(logger)

	feeds := ics.NewFetcher(nil, ics.WithLogger(logger), ics.WithMetrics(metrics))

	agg := aggregator.New(sched, cal, tsk,
		aggregator.WithLogger(logger),
		aggregator.WithMetrics(metrics),
		aggregator.WithFeeds(feeds),
	)

	return &app{
		cfg:         cfg,
		logger:      logger,
		location:    loc,
		schedule:    sched,
		credentials: creds,
		executor:    exec,
		calendar:    cal,
		tasks:       tsk,
		feeds:       feeds,
		aggregator:  agg,
		oauth:       oauthConf,
		closeStore:  closeStore,
	}, nil
}

// dependencies returns the server dependencies for the MCP tools.
func (a *app) dependencies(metrics *instrumentation.Metrics, audit *instrumentation.AuditLogger) server.Dependencies {
	return server.Dependencies{
		Credentials: a.credentials,
		Executor:    a.executor,
		Calendar:    a.calendar,
		Tasks:       a.tasks,
		Aggregator:  a.aggregator,
		Metrics:     metrics,
		Audit:       audit,
		OAuth:       a.oauth,
		Location:    a.location,
		Schedule:    a.schedule,
	}
}

// Close releases the credential store.
func (a *app) Close() {
	if a.closeStore != nil {
		a.closeStore()
	}
}
