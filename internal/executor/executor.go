package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http/httptrace"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/config"
	"github.com/teemow/dayplanner/internal/credential"
	"github.com/teemow/dayplanner/internal/instrumentation"
	"github.com/teemow/dayplanner/internal/logging"
)

// TokenSource hands out credentials. credential.Manager implements it.
type TokenSource interface {
	Acquire(ctx context.Context) (credential.Credential, error)
	ForceRefresh(ctx context.Context, staleAccessToken string) (credential.Credential, error)
}

// Request is one logical provider call. Do performs a single attempt and
// must use the context it is given.
type Request struct {
	Service   string
	Operation string
	Write     bool
	Do        func(ctx context.Context) error
}

// Config holds the retry, quota and timeout settings.
type Config struct {
	MaxAttempts       int
	MaxNetworkRetries int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	JitterFraction    float64
	QuotaWindow       time.Duration
	QuotaMaxRequests  int
	QuotaMaxWait      time.Duration
	RequestTimeout    time.Duration
}

// ConfigFrom extracts the executor settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		MaxNetworkRetries: cfg.Retry.MaxNetworkRetries,
		BaseBackoff:       cfg.Retry.BaseBackoff,
		MaxBackoff:        cfg.Retry.MaxBackoff,
		JitterFraction:    cfg.Retry.JitterFraction,
		QuotaWindow:       cfg.Quota.Window,
		QuotaMaxRequests:  cfg.Quota.MaxRequests,
		QuotaMaxWait:      cfg.Quota.MaxWait,
		RequestTimeout:    cfg.Timeouts.Request,
	}
}

// Executor runs Requests. It is safe for concurrent use.
type Executor struct {
	cfg        Config
	tokens     TokenSource
	quota      *Quota
	classifier Classifier
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	random     func() float64
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithMetrics records attempts, retries and quota waits.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(e *Executor) { e.metrics = metrics }
}

// WithClassifier sets the provider classifier.
func WithClassifier(c Classifier) Option {
	return func(e *Executor) { e.classifier = c }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithSleep replaces the cancellable sleep used for every wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// WithRandom replaces the jitter source. It must return values in [0, 1).
func WithRandom(random func() float64) Option {
	return func(e *Executor) { e.random = random }
}

// New creates an Executor.
func New(cfg Config, tokens TokenSource, opts ...Option) *Executor {
	e := &Executor{
		cfg:        cfg,
		tokens:     tokens,
		quota:      NewQuota(cfg.QuotaWindow, cfg.QuotaMaxRequests),
		classifier: DefaultClassifier,
		logger:     slog.Default(),
		now:        time.Now,
		sleep:      sleepContext,
		random:     rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// QuotaState returns a snapshot of the quota counter.
func (e *Executor) QuotaState() QuotaState {
	return e.quota.State()
}

// Call runs fn through e and returns its result.
func Call[T any](ctx context.Context, e *Executor, req Request, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	req.Do = func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}
	if err := e.Execute(ctx, req); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// callState is the retry bookkeeping of one Execute call.
type callState struct {
	op            string
	throttled     int
	network       int
	authRefreshed bool
	writeRetried  bool
	quotaWaited   time.Duration
	throttleBO    *backoff.ExponentialBackOff
	networkBO     *backoff.ExponentialBackOff
}

// Execute runs req until it succeeds or fails terminally.
func (e *Executor) Execute(ctx context.Context, req Request) error {
	id := ulid.Make().String()
	ctx, span := instrumentation.StartProviderSpan(ctx, req.Service, req.Operation,
		attribute.String(instrumentation.SpanAttrRequestID, id),
		attribute.Bool(instrumentation.SpanAttrWrite, req.Write),
	)
	defer span.End()

	logger := e.logger.With(
		logging.RequestID(id),
		logging.Service(req.Service),
		logging.Operation(req.Operation),
	)

	st := &callState{
		op:         req.Service + "." + req.Operation,
		throttleBO: e.newBackOff(),
		networkBO:  e.newBackOff(),
	}

	err := e.run(ctx, req, st, logger)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		logger.Debug("provider call failed", logging.Kind(string(apperr.KindOf(err))), logging.Err(err))
		return err
	}
	instrumentation.SetSpanSuccess(span)
	return nil
}

func (e *Executor) run(ctx context.Context, req Request, st *callState, logger *slog.Logger) error {
	for attempt := 1; ; attempt++ {
		if err := e.reserve(ctx, req, st, logger); err != nil {
			return err
		}

		cred, err := e.acquire(ctx, req, st, logger, e.tokens.Acquire)
		if err != nil {
			return err
		}

		wrote, err := e.attempt(ctx, req, cred.AccessToken)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return apperr.Cancelled(st.op, ctxErr)
		}

		v := e.classifier.Classify(err)
		log := logger.With(logging.Attempt(attempt))

		var wait time.Duration
		switch v.Class {
		case ClassUnauthorized:
			if st.authRefreshed {
				return apperr.New(apperr.KindPermanentAuth, st.op, fmt.Errorf("provider rejected refreshed credential: %w", err))
			}
			if !e.allowWriteRetry(req, st) {
				return apperr.New(apperr.KindTransientAuth, st.op, err)
			}
			st.authRefreshed = true
			e.metrics.RecordRetry(ctx, req.Service, instrumentation.RetryAuth)
			log.Info("access token rejected, refreshing")
			stale := cred.AccessToken
			forceRefresh := func(ctx context.Context) (credential.Credential, error) {
				return e.tokens.ForceRefresh(ctx, stale)
			}
			if _, err := e.acquire(ctx, req, st, log, forceRefresh); err != nil {
				return err
			}
			continue

		case ClassThrottled:
			st.throttled++
			if st.throttled > e.cfg.MaxAttempts {
				return apperr.New(apperr.KindRateLimited, st.op,
					fmt.Errorf("still throttled after %d retries: %w", e.cfg.MaxAttempts, err))
			}
			if !e.allowWriteRetry(req, st) {
				return apperr.New(apperr.KindRateLimited, st.op, err)
			}
			wait = e.backoffWait(st.throttleBO, v.RetryAfter)
			e.metrics.RecordRetry(ctx, req.Service, instrumentation.RetryThrottled)

		case ClassNetwork:
			st.network++
			if st.network > e.cfg.MaxNetworkRetries {
				return apperr.New(apperr.KindNetwork, st.op,
					fmt.Errorf("giving up after %d network retries: %w", e.cfg.MaxNetworkRetries, err))
			}
			if req.Write && wrote {
				return apperr.New(apperr.KindNetwork, st.op,
					fmt.Errorf("write may have been applied, not retrying: %w", err))
			}
			if !e.allowWriteRetry(req, st) {
				return apperr.New(apperr.KindNetwork, st.op, err)
			}
			wait = e.backoffWait(st.networkBO, v.RetryAfter)
			e.metrics.RecordRetry(ctx, req.Service, instrumentation.RetryNetwork)

		default:
			if v.Err != nil {
				return withOp(v.Err, st.op)
			}
			return apperr.New(apperr.KindProvider, st.op, err)
		}

		log.Warn("retrying provider call",
			slog.String("reason", v.Class.String()),
			logging.Wait(wait),
			logging.Err(err))
		if err := e.sleep(ctx, wait); err != nil {
			return apperr.Cancelled(st.op, err)
		}
	}
}

// acquire runs fetch, retrying transient auth failures on the network
// retry budget. No request has been sent at this point, so writes may retry too.
func (e *Executor) acquire(ctx context.Context, req Request, st *callState, logger *slog.Logger,
	fetch func(ctx context.Context) (credential.Credential, error)) (credential.Credential, error) {
	for {
		cred, err := fetch(ctx)
		if err == nil {
			return cred, nil
		}
		if apperr.KindOf(err) != apperr.KindTransientAuth {
			return credential.Credential{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return credential.Credential{}, apperr.Cancelled(st.op, ctxErr)
		}

		st.network++
		if st.network > e.cfg.MaxNetworkRetries {
			return credential.Credential{}, apperr.New(apperr.KindTransientAuth, st.op,
				fmt.Errorf("giving up after %d credential retries: %w", e.cfg.MaxNetworkRetries, err))
		}
		wait := e.backoffWait(st.networkBO, 0)
		e.metrics.RecordRetry(ctx, req.Service, instrumentation.RetryAuth)
		logger.Warn("credential unavailable, retrying",
			logging.Wait(wait),
			logging.Err(err))
		if err := e.sleep(ctx, wait); err != nil {
			return credential.Credential{}, apperr.Cancelled(st.op, err)
		}
	}
}

// reserve blocks until the quota grants a slot or the cumulative wait
// would exceed the configured maximum.
func (e *Executor) reserve(ctx context.Context, req Request, st *callState, logger *slog.Logger) error {
	for {
		if err := ctx.Err(); err != nil {
			return apperr.Cancelled(st.op, err)
		}
		wait := e.quota.Reserve(e.now())
		if wait <= 0 {
			return nil
		}
		if st.quotaWaited+wait > e.cfg.QuotaMaxWait {
			return apperr.Newf(apperr.KindQuotaExceeded, st.op,
				"local quota of %d requests per %s exhausted, next slot in %s",
				e.cfg.QuotaMaxRequests, e.cfg.QuotaWindow, wait.Round(time.Millisecond))
		}
		e.metrics.RecordQuotaWait(ctx, req.Service, wait)
		logger.Debug("waiting for quota window", logging.Wait(wait))
		if err := e.sleep(ctx, wait); err != nil {
			return apperr.Cancelled(st.op, err)
		}
		st.quotaWaited += wait
	}
}

// attempt runs one dispatch under the per-attempt timeout and reports
// whether the request reached the wire.
func (e *Executor) attempt(ctx context.Context, req Request, token string) (bool, error) {
	actx := ctx
	if e.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
		defer cancel()
	}

	var wrote atomic.Bool
	actx = httptrace.WithClientTrace(actx, &httptrace.ClientTrace{
		WroteRequest: func(httptrace.WroteRequestInfo) { wrote.Store(true) },
	})
	actx = WithAccessToken(actx, token)

	start := e.now()
	err := req.Do(actx)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = e.classifier.Classify(err).Class.String()
	}
	e.metrics.RecordProviderRequest(ctx, req.Service, req.Operation, status, e.now().Sub(start))
	return wrote.Load(), err
}

// allowWriteRetry consumes the single retry a write is allowed.
func (e *Executor) allowWriteRetry(req Request, st *callState) bool {
	if !req.Write {
		return true
	}
	if st.writeRetried {
		return false
	}
	st.writeRetried = true
	return true
}

func (e *Executor) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     e.cfg.BaseBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         e.cfg.MaxBackoff,
	}
	b.Reset()
	return b
}

// backoffWait returns min(max, base*2^n) plus jitter in [0, fraction*wait).
// A longer provider hint replaces the computed wait, capped at max.
func (e *Executor) backoffWait(b *backoff.ExponentialBackOff, retryAfter time.Duration) time.Duration {
	wait := min(b.NextBackOff(), e.cfg.MaxBackoff)
	if retryAfter > wait {
		wait = min(retryAfter, e.cfg.MaxBackoff)
	}
	if e.cfg.JitterFraction > 0 {
		wait += time.Duration(e.random() * e.cfg.JitterFraction * float64(wait))
	}
	return wait
}

func withOp(err error, op string) error {
	if ae, ok := err.(*apperr.Error); ok && ae.Op == "" {
		cp := *ae
		cp.Op = op
		return &cp
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
