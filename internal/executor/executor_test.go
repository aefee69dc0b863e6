package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptrace"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/credential"
)

type fakeTokens struct {
	mu        sync.Mutex
	token     string
	refreshes []string
	err       error

	// acquireErrs and refreshErrs are returned once each, in order.
	acquireErrs  []error
	refreshErrs  []error
	acquireCalls int
}

func (f *fakeTokens) Acquire(context.Context) (credential.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquireCalls++
	if len(f.acquireErrs) > 0 {
		err := f.acquireErrs[0]
		f.acquireErrs = f.acquireErrs[1:]
		return credential.Credential{}, err
	}
	if f.err != nil {
		return credential.Credential{}, f.err
	}
	return credential.Credential{AccessToken: f.token}, nil
}

func (f *fakeTokens) ForceRefresh(_ context.Context, stale string) (credential.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes = append(f.refreshes, stale)
	if len(f.refreshErrs) > 0 {
		err := f.refreshErrs[0]
		f.refreshErrs = f.refreshErrs[1:]
		return credential.Credential{}, err
	}
	f.token = f.token + "+"
	return credential.Credential{AccessToken: f.token}, nil
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

type statusErr struct {
	code       int
	retryAfter time.Duration
}

func (e *statusErr) Error() string { return fmt.Sprintf("status %d", e.code) }

var testClassifier = ClassifierFunc(func(err error) Verdict {
	var se *statusErr
	if errors.As(err, &se) {
		switch se.code {
		case 401:
			return Verdict{Class: ClassUnauthorized}
		case 429:
			return Verdict{Class: ClassThrottled, RetryAfter: se.retryAfter}
		case 503:
			return Verdict{Class: ClassNetwork}
		case 400:
			return Verdict{Class: ClassFatal, Err: apperr.Validation("", "summary", "bad request")}
		}
	}
	return DefaultClassifier.Classify(err)
})

func testConfig() Config {
	return Config{
		MaxAttempts:       5,
		MaxNetworkRetries: 3,
		BaseBackoff:       500 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		JitterFraction:    0.2,
		QuotaWindow:       time.Minute,
		QuotaMaxRequests:  100,
		QuotaMaxWait:      30 * time.Second,
	}
}

func newTestExecutor(cfg Config, tokens TokenSource, clock *fakeClock) *Executor {
	return New(cfg, tokens,
		WithClassifier(testClassifier),
		WithClock(clock.Now),
		WithSleep(clock.Sleep),
		WithRandom(func() float64 { return 0.5 }),
	)
}

// scripted returns a Do func that yields errs in order, then succeeds.
func scripted(calls *int, errs ...error) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		if *calls <= len(errs) {
			return errs[*calls-1]
		}
		return nil
	}
}

func TestExecute_InjectsToken(t *testing.T) {
	clock := newFakeClock()
	e := newTestExecutor(testConfig(), &fakeTokens{token: "tok"}, clock)

	var seen string
	err := e.Execute(context.Background(), Request{Service: "calendar", Operation: "list", Do: func(ctx context.Context) error {
		seen, _ = AccessTokenFrom(ctx)
		return nil
	}})
	require.NoError(t, err)
	assert.Equal(t, "tok", seen)
	assert.Equal(t, 1, e.QuotaState().RequestsInWindow)
}

func TestExecute_ThrottledTwiceThenSuccess(t *testing.T) {
	clock := newFakeClock()
	e := newTestExecutor(testConfig(), &fakeTokens{token: "tok"}, clock)

	calls := 0
	err := e.Execute(context.Background(), Request{Service: "calendar", Operation: "list",
		Do: scripted(&calls, &statusErr{code: 429}, &statusErr{code: 429})})
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	// base*2^n plus 0.5 of the 20% jitter band.
	assert.Equal(t, []time.Duration{550 * time.Millisecond, 1100 * time.Millisecond}, clock.sleeps)
	assert.Equal(t, 3, e.QuotaState().RequestsInWindow, "every attempt is counted")
}

func TestExecute_RetryAfter(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter time.Duration
		want       time.Duration
	}{
		{name: "shorter hint ignored", retryAfter: 100 * time.Millisecond, want: 500 * time.Millisecond},
		{name: "longer hint honoured", retryAfter: 5 * time.Second, want: 5 * time.Second},
		{name: "hint capped", retryAfter: time.Hour, want: 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.JitterFraction = 0
			clock := newFakeClock()
			e := newTestExecutor(cfg, &fakeTokens{token: "tok"}, clock)

			calls := 0
			err := e.Execute(context.Background(), Request{Service: "tasks", Operation: "list",
				Do: scripted(&calls, &statusErr{code: 429, retryAfter: tt.retryAfter})})
			require.NoError(t, err)
			assert.Equal(t, []time.Duration{tt.want}, clock.sleeps)
		})
	}
}

func TestExecute_BackoffCapped(t *testing.T) {
	cfg := testConfig()
	cfg.JitterFraction = 0
	cfg.MaxAttempts = 10
	cfg.BaseBackoff = time.Second
	cfg.MaxBackoff = 5 * time.Second
	clock := newFakeClock()
	e := newTestExecutor(cfg, &fakeTokens{token: "tok"}, clock)

	throttled := make([]error, 5)
	for i := range throttled {
		throttled[i] = &statusErr{code: 429}
	}
	calls := 0
	require.NoError(t, e.Execute(context.Background(), Request{Service: "calendar", Operation: "list", Do: scripted(&calls, throttled...)}))

	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second,
	}, clock.sleeps)
}

func TestExecute_RateLimitedAfterMaxAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 2
	clock := newFakeClock()
	e := newTestExecutor(cfg, &fakeTokens{token: "tok"}, clock)

	calls := 0
	err := e.Execute(context.Background(), Request{Service: "calendar", Operation: "list", Do: func(context.Context) error {
		calls++
		return &statusErr{code: 429}
	}})
	assert.ErrorIs(t, err, apperr.ErrRateLimited)
	assert.Equal(t, 3, calls)
	assert.Len(t, clock.sleeps, 2)
}

func TestExecute_UnauthorizedRefreshesOnce(t *testing.T) {
	clock := newFakeClock()
	tokens := &fakeTokens{token: "tok"}
	e := newTestExecutor(testConfig(), tokens, clock)

	var seen []string
	calls := 0
	err := e.Execute(context.Background(), Request{Service: "calendar", Operation: "get", Do: func(ctx context.Context) error {
		calls++
		tok, _ := AccessTokenFrom(ctx)
		seen = append(seen, tok)
		if calls == 1 {
			return &statusErr{code: 401}
		}
		return nil
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"tok", "tok+"}, seen)
	assert.Equal(t, []string{"tok"}, tokens.refreshes)
	assert.Empty(t, clock.sleeps)
}

func TestExecute_SecondUnauthorizedIsPermanent(t *testing.T) {
	clock := newFakeClock()
	tokens := &fakeTokens{token: "tok"}
	e := newTestExecutor(testConfig(), tokens, clock)

	calls := 0
	err := e.Execute(context.Background(), Request{Service: "calendar", Operation: "get", Do: func(context.Context) error {
		calls++
		return &statusErr{code: 401}
	}})
	assert.ErrorIs(t, err, apperr.ErrPermanentAuth)
	assert.Equal(t, 2, calls)
	assert.Len(t, tokens.refreshes, 1)
}

func TestExecute_AcquireFailure(t *testing.T) {
	clock := newFakeClock()
	tokens := &fakeTokens{err: apperr.Newf(apperr.KindPermanentAuth, "credential.refresh", "revoked")}
	e := newTestExecutor(testConfig(), tokens, clock)

	called := false
	err := e.Execute(context.Background(), Request{Service: "calendar", Operation: "get", Do: func(context.Context) error {
		called = true
		return nil
	}})
	assert.ErrorIs(t, err, apperr.ErrPermanentAuth)
	assert.False(t, called)
}

func transientAuth() error {
	return apperr.New(apperr.KindTransientAuth, "credential.refresh", errors.New("token endpoint 503"))
}

func TestExecute_TransientAuthRetried(t *testing.T) {
	cfg := testConfig()
	cfg.JitterFraction = 0
	clock := newFakeClock()
	tokens := &fakeTokens{token: "tok", acquireErrs: []error{transientAuth(), transientAuth()}}
	e := newTestExecutor(cfg, tokens, clock)

	calls := 0
	err := e.Execute(context.Background(), Request{Service: "calendar", Operation: "list", Write: true,
		Do: scripted(&calls)})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 3, tokens.acquireCalls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, clock.sleeps)
}

func TestExecute_TransientAuthBudget(t *testing.T) {
	cfg := testConfig()
	clock := newFakeClock()
	tokens := &fakeTokens{err: transientAuth()}
	e := newTestExecutor(cfg, tokens, clock)

	calls := 0
	err := e.Execute(context.Background(), Request{Service: "calendar", Operation: "list", Do: scripted(&calls)})
	assert.ErrorIs(t, err, apperr.ErrTransientAuth)
	assert.Equal(t, 0, calls)
	assert.Equal(t, cfg.MaxNetworkRetries+1, tokens.acquireCalls)
	assert.Len(t, clock.sleeps, cfg.MaxNetworkRetries)
}

func TestExecute_ForceRefreshTransientRetried(t *testing.T) {
	clock := newFakeClock()
	tokens := &fakeTokens{token: "tok", refreshErrs: []error{transientAuth()}}
	e := newTestExecutor(testConfig(), tokens, clock)

	calls := 0
	err := e.Execute(context.Background(), Request{Service: "tasks", Operation: "list",
		Do: scripted(&calls, &statusErr{code: 401})})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"tok", "tok"}, tokens.refreshes)
	assert.Len(t, clock.sleeps, 1)
}

func TestExecute_NetworkRetries(t *testing.T) {
	cfg := testConfig()
	cfg.JitterFraction = 0
	clock := newFakeClock()
	e := newTestExecutor(cfg, &fakeTokens{token: "tok"}, clock)

	calls := 0
	err := e.Execute(context.Background(), Request{Service: "tasks", Operation: "list",
		Do: scripted(&calls, syscall.ECONNRESET, &statusErr{code: 503})})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, clock.sleeps)

	calls = 0
	err = e.Execute(context.Background(), Request{Service: "tasks", Operation: "list", Do: func(context.Context) error {
		calls++
		return syscall.ECONNRESET
	}})
	assert.ErrorIs(t, err, apperr.ErrNetwork)
	assert.Equal(t, cfg.MaxNetworkRetries+1, calls)
}

func TestExecute_ThrottleAndNetworkBudgetsAreSeparate(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 1
	cfg.MaxNetworkRetries = 1
	clock := newFakeClock()
	e := newTestExecutor(cfg, &fakeTokens{token: "tok"}, clock)

	calls := 0
	err := e.Execute(context.Background(), Request{Service: "tasks", Operation: "list",
		Do: scripted(&calls, &statusErr{code: 429}, syscall.ECONNRESET)})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func wroteThenFail(err error) func(context.Context) error {
	return func(ctx context.Context) error {
		if trace := httptrace.ContextClientTrace(ctx); trace != nil && trace.WroteRequest != nil {
			trace.WroteRequest(httptrace.WroteRequestInfo{})
		}
		return err
	}
}

func TestExecute_WriteSafety(t *testing.T) {
	t.Run("sent write is not retried", func(t *testing.T) {
		clock := newFakeClock()
		e := newTestExecutor(testConfig(), &fakeTokens{token: "tok"}, clock)

		calls := 0
		do := wroteThenFail(syscall.ECONNRESET)
		err := e.Execute(context.Background(), Request{Service: "calendar", Operation: "create", Write: true,
			Do: func(ctx context.Context) error { calls++; return do(ctx) }})
		assert.ErrorIs(t, err, apperr.ErrNetwork)
		assert.Equal(t, 1, calls)
	})

	t.Run("unsent write is retried once", func(t *testing.T) {
		clock := newFakeClock()
		e := newTestExecutor(testConfig(), &fakeTokens{token: "tok"}, clock)

		calls := 0
		err := e.Execute(context.Background(), Request{Service: "calendar", Operation: "create", Write: true,
			Do: func(context.Context) error { calls++; return syscall.ECONNREFUSED }})
		assert.ErrorIs(t, err, apperr.ErrNetwork)
		assert.Equal(t, 2, calls)
	})

	t.Run("rejected write is retried once", func(t *testing.T) {
		clock := newFakeClock()
		e := newTestExecutor(testConfig(), &fakeTokens{token: "tok"}, clock)

		calls := 0
		do := wroteThenFail(&statusErr{code: 429})
		err := e.Execute(context.Background(), Request{Service: "tasks", Operation: "create", Write: true,
			Do: func(ctx context.Context) error { calls++; return do(ctx) }})
		assert.ErrorIs(t, err, apperr.ErrRateLimited)
		assert.Equal(t, 2, calls)
	})

	t.Run("write after refresh is not retried again", func(t *testing.T) {
		clock := newFakeClock()
		e := newTestExecutor(testConfig(), &fakeTokens{token: "tok"}, clock)

		calls := 0
		err := e.Execute(context.Background(), Request{Service: "tasks", Operation: "update", Write: true,
			Do: scripted(&calls, &statusErr{code: 401}, &statusErr{code: 429})})
		assert.ErrorIs(t, err, apperr.ErrRateLimited)
		assert.Equal(t, 2, calls)
	})
}

func TestExecute_Fatal(t *testing.T) {
	clock := newFakeClock()
	e := newTestExecutor(testConfig(), &fakeTokens{token: "tok"}, clock)

	calls := 0
	err := e.Execute(context.Background(), Request{Service: "calendar", Operation: "create",
		Do: scripted(&calls, &statusErr{code: 400})})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "summary", apperr.FieldOf(err))
	assert.Contains(t, err.Error(), "calendar.create")
	assert.Equal(t, 1, calls)

	calls = 0
	err = e.Execute(context.Background(), Request{Service: "calendar", Operation: "get",
		Do: scripted(&calls, errors.New("boom"))})
	assert.ErrorIs(t, err, apperr.ErrProvider)
	assert.Equal(t, 1, calls)
}

func TestExecute_PerAttemptTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = 10 * time.Millisecond
	cfg.MaxNetworkRetries = 1
	clock := newFakeClock()
	e := newTestExecutor(cfg, &fakeTokens{token: "tok"}, clock)

	calls := 0
	err := e.Execute(context.Background(), Request{Service: "calendar", Operation: "list", Do: func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	}})
	assert.ErrorIs(t, err, apperr.ErrNetwork)
	assert.Equal(t, 2, calls)
}

func TestExecute_CancelledDuringBackoff(t *testing.T) {
	cfg := testConfig()
	cfg.BaseBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	e := New(cfg, &fakeTokens{token: "tok"}, WithClassifier(testClassifier))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	err := e.Execute(ctx, Request{Service: "calendar", Operation: "list", Do: func(context.Context) error {
		return &statusErr{code: 429}
	}})
	assert.ErrorIs(t, err, apperr.ErrCancelled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecute_QuotaWaitsForWindow(t *testing.T) {
	cfg := testConfig()
	cfg.QuotaMaxRequests = 2
	cfg.QuotaMaxWait = time.Minute
	clock := newFakeClock()
	e := newTestExecutor(cfg, &fakeTokens{token: "tok"}, clock)

	ok := func(context.Context) error { return nil }
	for range 2 {
		require.NoError(t, e.Execute(context.Background(), Request{Service: "calendar", Operation: "list", Do: ok}))
	}
	require.NoError(t, clock.Sleep(context.Background(), 15*time.Second))
	clock.sleeps = nil

	require.NoError(t, e.Execute(context.Background(), Request{Service: "calendar", Operation: "list", Do: ok}))
	assert.Equal(t, []time.Duration{45 * time.Second}, clock.sleeps)

	st := e.QuotaState()
	assert.Equal(t, 1, st.RequestsInWindow)
	assert.Equal(t, 2, st.MaxPerWindow)
}

func TestExecute_QuotaExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.QuotaMaxRequests = 1
	cfg.QuotaMaxWait = 10 * time.Second
	clock := newFakeClock()
	e := newTestExecutor(cfg, &fakeTokens{token: "tok"}, clock)

	ok := func(context.Context) error { return nil }
	require.NoError(t, e.Execute(context.Background(), Request{Service: "tasks", Operation: "list", Do: ok}))

	called := false
	err := e.Execute(context.Background(), Request{Service: "tasks", Operation: "list", Do: func(context.Context) error {
		called = true
		return nil
	}})
	assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)
	assert.False(t, called)
	assert.Empty(t, clock.sleeps)
}

func TestCall(t *testing.T) {
	clock := newFakeClock()
	e := newTestExecutor(testConfig(), &fakeTokens{token: "tok"}, clock)

	attempts := 0
	got, err := Call(context.Background(), e, Request{Service: "tasks", Operation: "get"}, func(context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "partial", &statusErr{code: 429}
		}
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", got)

	got, err = Call(context.Background(), e, Request{Service: "tasks", Operation: "get"}, func(context.Context) (string, error) {
		return "ignored", &statusErr{code: 400}
	})
	assert.Error(t, err)
	assert.Empty(t, got)
}
