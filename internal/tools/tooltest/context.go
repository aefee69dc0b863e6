package tooltest

import (
	"context"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/dayplanner/internal/aggregator"
	"github.com/teemow/dayplanner/internal/calendar"
	"github.com/teemow/dayplanner/internal/credential"
	"github.com/teemow/dayplanner/internal/executor"
	"github.com/teemow/dayplanner/internal/google"
	"github.com/teemow/dayplanner/internal/schedule"
	"github.com/teemow/dayplanner/internal/server"
	"github.com/teemow/dayplanner/internal/tasks"
)

// Schedule is the working-hours setup used by NewServerContext.
var Schedule = aggregator.Config{
	Calendars:     []string{"primary"},
	TaskLists:     []string{"@default"},
	Timezone:      "UTC",
	WorkStart:     schedule.MustParseClock("09:00"),
	WorkEnd:       schedule.MustParseClock("17:00"),
	MinFreeWindow: 30 * time.Minute,
	Timeout:       5 * time.Second,
}

// NewServerContext wires the real credential manager, executor, adapters
// and aggregator against g. The stored credential stays valid for the
// whole test. mods may adjust the dependencies before the context is built.
func NewServerContext(t testing.TB, g *Google, mods ...func(*server.Dependencies)) *server.ServerContext {
	t.Helper()
	ctx := context.Background()

	srv := g.Server()
	t.Cleanup(srv.Close)

	creds := credential.NewManager(credential.NewMemoryStore(), nil)
	err := creds.Bootstrap(ctx, credential.Credential{
		AccessToken:  "test-access",
		RefreshToken: "test-refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("failed to bootstrap credential: %v", err)
	}

	exec := executor.New(executor.Config{
		MaxAttempts:       2,
		MaxNetworkRetries: 1,
		BaseBackoff:       time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		QuotaWindow:       time.Minute,
		QuotaMaxRequests:  1000,
		QuotaMaxWait:      time.Second,
		RequestTimeout:    5 * time.Second,
	}, creds, executor.WithClassifier(executor.ClassifierFunc(google.Classify)))

	httpClient := executor.NewHTTPClient(nil)
	cal, err := calendar.NewClient(ctx, exec, google.ClientOptions(httpClient, srv.URL+"/")...)
	if err != nil {
		t.Fatalf("failed to create calendar client: %v", err)
	}
	tsk, err := tasks.NewClient(ctx, exec, google.ClientOptions(httpClient, srv.URL+"/")...)
	if err != nil {
		t.Fatalf("failed to create tasks client: %v", err)
	}

	deps := server.Dependencies{
		Credentials: creds,
		Executor:    exec,
		Calendar:    cal,
		Tasks:       tsk,
		Aggregator:  aggregator.New(Schedule, cal, tsk),
		Location:    time.UTC,
		Schedule:    Schedule,
	}
	for _, mod := range mods {
		mod(&deps)
	}

	sc, err := server.NewServerContext(ctx, deps)
	if err != nil {
		t.Fatalf("failed to create server context: %v", err)
	}
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

// Request builds a tool call request with the given arguments.
func Request(name string, args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}
