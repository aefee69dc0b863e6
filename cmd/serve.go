package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/config"
	"github.com/teemow/dayplanner/internal/credential"
	"github.com/teemow/dayplanner/internal/instrumentation"
	"github.com/teemow/dayplanner/internal/logging"
	"github.com/teemow/dayplanner/internal/resources"
	"github.com/teemow/dayplanner/internal/server"
	"github.com/teemow/dayplanner/internal/tools/calendar_tools"
	"github.com/teemow/dayplanner/internal/tools/day_tools"
	"github.com/teemow/dayplanner/internal/tools/google_tools"
	"github.com/teemow/dayplanner/internal/tools/tasks_tools"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// serveOptions collects the serve flags.
type serveOptions struct {
	yolo      bool
	keepAlive bool
	metrics   MetricsConfig
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP (Model Context Protocol) server on stdio to provide day
planning tools for AI assistants.

The server offers a day overview, calendar event and free-time tools and task
tools. Write tools (creating, updating and deleting events and tasks) are only
registered with --yolo.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadMetricsEnvVars(cmd, &opts.metrics)

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.yolo, "yolo", false, "Enable write operations (creating, updating and deleting events and tasks). Default is read-only mode.")
	cmd.Flags().BoolVar(&opts.keepAlive, "keep-alive", true, "Refresh the credential on the credential.keep_alive schedule while serving")
	cmd.Flags().BoolVar(&opts.metrics.Enabled, "metrics-enabled", false, "Enable the metrics and health server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(parent context.Context, cfg *config.Config, opts serveOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	// Create a context that can be cancelled by signals
	shutdownCtx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	a, err := newApp(shutdownCtx, cfg, logger, provider.Metrics())
	if err != nil {
		return err
	}
	defer a.Close()

	audit := instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging)
	serverContext, err := server.NewServerContext(shutdownCtx, a.dependencies(provider.Metrics(), audit))
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("server context shutdown failed", logging.Err(err))
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("dayplanner", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)

	readOnly := !opts.yolo
	if err := registerAllTools(mcpSrv, serverContext, readOnly); err != nil {
		return err
	}

	if opts.metrics.Enabled {
		metricsServer, err := startMetricsServer(opts.metrics, provider, server.NewHealthChecker(serverContext), logger)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Warn("metrics server shutdown failed", logging.Err(err))
			}
		}()
	}

	if opts.keepAlive {
		scheduler, err := startKeepAlive(shutdownCtx, cfg.Credential.KeepAlive, a.credentials, logger)
		if err != nil {
			return err
		}
		defer func() { <-scheduler.Stop().Done() }()
	}

	logger.Info("starting dayplanner MCP server",
		slog.String("transport", "stdio"),
		slog.Bool("read_only", readOnly),
		slog.String("timezone", cfg.Timezone))

	return runStdioServer(shutdownCtx, mcpSrv)
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	select {
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
	case <-ctx.Done():
	}
	return nil
}

// registerAllTools registers all MCP tools and resources
func registerAllTools(mcpSrv *mcpserver.MCPServer, ctx *server.ServerContext, readOnly bool) error {
	// Define all tool registrations
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Day",
			register: func() error {
				return day_tools.RegisterDayTools(mcpSrv, ctx)
			},
		},
		{
			name: "Calendar",
			register: func() error {
				return calendar_tools.RegisterCalendarTools(mcpSrv, ctx, readOnly)
			},
		},
		{
			name: "Tasks",
			register: func() error {
				return tasks_tools.RegisterTasksTools(mcpSrv, ctx, readOnly)
			},
		},
		{
			name: "Google Authorization",
			register: func() error {
				return google_tools.RegisterGoogleTools(mcpSrv, ctx)
			},
		},
		{
			name: "Planner Resources",
			register: func() error {
				return resources.RegisterResources(mcpSrv, ctx)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}

	return nil
}

// startMetricsServer serves /metrics and the health probes in the background.
func startMetricsServer(cfg MetricsConfig, provider *instrumentation.Provider, health *server.HealthChecker, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    cfg.Addr,
		Enabled:                 cfg.Enabled,
		InstrumentationProvider: provider,
		Health:                  health,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	// A bind failure surfaces immediately.
	select {
	case err := <-metricsErr:
		if err != nil {
			return nil, fmt.Errorf("metrics server failed to start: %w", err)
		}
	case <-time.After(200 * time.Millisecond):
		logger.Info("metrics server started", slog.String("addr", metricsServer.Addr()))
	}
	return metricsServer, nil
}

// credentialAcquirer is the part of credential.Manager the keep-alive job needs.
type credentialAcquirer interface {
	Acquire(ctx context.Context) (credential.Credential, error)
}

// startKeepAlive refreshes the credential on spec so that the first tool
// call after an idle period does not pay for the refresh.
func startKeepAlive(ctx context.Context, spec string, creds credentialAcquirer, logger *slog.Logger) (*cron.Cron, error) {
	cronLogger := logging.NewCronLogger(logger)
	scheduler := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	_, err := scheduler.AddFunc(spec, keepAliveJob(ctx, creds, logger))
	if err != nil {
		return nil, fmt.Errorf("invalid credential.keep_alive schedule %q: %w", spec, err)
	}
	scheduler.Start()
	return scheduler, nil
}

func keepAliveJob(ctx context.Context, creds credentialAcquirer, logger *slog.Logger) func() {
	return func() {
		if ctx.Err() != nil {
			return
		}
		c, err := creds.Acquire(ctx)
		if err != nil {
			logger.Warn("credential keep-alive failed", logging.Kind(string(apperr.KindOf(err))), logging.Err(err))
			return
		}
		logger.Debug("credential keep-alive", slog.Time("expiry", c.Expiry))
	}
}

// loadMetricsEnvVars applies METRICS_ENABLED and METRICS_ADDR unless the
// flags were set explicitly.
func loadMetricsEnvVars(cmd *cobra.Command, cfg *MetricsConfig) {
	if !cmd.Flags().Changed("metrics-enabled") {
		if v := os.Getenv("METRICS_ENABLED"); v != "" {
			if enabled, err := strconv.ParseBool(v); err == nil {
				cfg.Enabled = enabled
			}
		}
	}
	if !cmd.Flags().Changed("metrics-addr") {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			cfg.Addr = addr
		}
	}
}

// parseCommaSeparatedList splits s on commas, trimming whitespace and
// dropping empty entries. An empty s yields nil.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
