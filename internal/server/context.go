package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/dayplanner/internal/aggregator"
	"github.com/teemow/dayplanner/internal/calendar"
	"github.com/teemow/dayplanner/internal/credential"
	"github.com/teemow/dayplanner/internal/executor"
	"github.com/teemow/dayplanner/internal/instrumentation"
	"github.com/teemow/dayplanner/internal/tasks"
)

// Dependencies are the core components built by the command layer.
type Dependencies struct {
	Credentials *credential.Manager
	Executor    *executor.Executor
	Calendar    *calendar.Client
	Tasks       *tasks.Client
	Aggregator  *aggregator.Aggregator
	Metrics     *instrumentation.Metrics
	Audit       *instrumentation.AuditLogger
	// OAuth is the client configuration for the in-chat authorization tools.
	// It may be nil when no client id is configured.
	OAuth *oauth2.Config

	// Location is the default timezone for tools that take local times.
	Location *time.Location
	// Schedule carries the working hours used by the free-time tools.
	Schedule aggregator.Config
}

// ServerContext holds the core components shared by all tool handlers.
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	deps     Dependencies
	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new server context. Credentials, Calendar,
// Tasks and Aggregator are required.
func NewServerContext(ctx context.Context, deps Dependencies) (*ServerContext, error) {
	switch {
	case deps.Credentials == nil:
		return nil, errors.New("credential manager is required")
	case deps.Calendar == nil:
		return nil, errors.New("calendar client is required")
	case deps.Tasks == nil:
		return nil, errors.New("tasks client is required")
	case deps.Aggregator == nil:
		return nil, errors.New("aggregator is required")
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		deps:   deps,
	}, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Credentials returns the credential manager
func (sc *ServerContext) Credentials() *credential.Manager {
	return sc.deps.Credentials
}

// Executor returns the request executor, which may be nil in tests.
func (sc *ServerContext) Executor() *executor.Executor {
	return sc.deps.Executor
}

// CalendarClient returns the Calendar adapter
func (sc *ServerContext) CalendarClient() *calendar.Client {
	return sc.deps.Calendar
}

// TasksClient returns the Tasks adapter
func (sc *ServerContext) TasksClient() *tasks.Client {
	return sc.deps.Tasks
}

// Aggregator returns the day aggregator
func (sc *ServerContext) Aggregator() *aggregator.Aggregator {
	return sc.deps.Aggregator
}

// Metrics returns the metrics recorder. A nil recorder is safe to use.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.deps.Metrics
}

// AuditLogger returns the tool audit logger, which may be nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.deps.Audit
}

// OAuthConfig returns the OAuth client configuration, which may be nil.
func (sc *ServerContext) OAuthConfig() *oauth2.Config {
	return sc.deps.OAuth
}

// Location returns the default timezone
func (sc *ServerContext) Location() *time.Location {
	return sc.deps.Location
}

// Schedule returns the working-hours settings
func (sc *ServerContext) Schedule() aggregator.Config {
	return sc.deps.Schedule
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
