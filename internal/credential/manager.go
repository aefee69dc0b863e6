package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/instrumentation"
	"github.com/teemow/dayplanner/internal/logging"
)

// Default timing used when no option overrides it.
const (
	DefaultSafetyMargin   = 5 * time.Minute
	DefaultRefreshTimeout = 15 * time.Second
	DefaultAccount        = "default"
)

// Manager hands out valid credentials for one account.
type Manager struct {
	account        string
	store          Store
	refresher      Refresher
	logger         *slog.Logger
	metrics        *instrumentation.Metrics
	now            func() time.Time
	margin         time.Duration
	refreshTimeout time.Duration

	mu     sync.Mutex
	cached *Credential
	loaded bool

	flight singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics records refresh outcomes.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSafetyMargin sets how long a token must stay valid to be handed out.
func WithSafetyMargin(d time.Duration) Option {
	return func(m *Manager) { m.margin = d }
}

// WithRefreshTimeout bounds one refresh round trip.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) { m.refreshTimeout = d }
}

// WithAccount selects the stored account.
func WithAccount(account string) Option {
	return func(m *Manager) { m.account = account }
}

// NewManager creates a Manager. The stored credential is loaded lazily.
func NewManager(store Store, refresher Refresher, opts ...Option) *Manager {
	m := &Manager{
		account:        DefaultAccount,
		store:          store,
		refresher:      refresher,
		logger:         slog.Default(),
		now:            time.Now,
		margin:         DefaultSafetyMargin,
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(slog.String("component", "credential"))
	return m
}

// Account returns the managed account name.
func (m *Manager) Account() string {
	return m.account
}

// Acquire returns a credential valid for at least the safety margin,
// refreshing it if needed. Concurrent callers share one refresh.
func (m *Manager) Acquire(ctx context.Context) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, apperr.Cancelled("credential.acquire", err)
	}

	cur, err := m.current(ctx)
	if err != nil {
		return Credential{}, err
	}
	if cur != nil && cur.ValidAt(m.now(), m.margin) {
		return clone(*cur), nil
	}
	return m.refresh(ctx, false, "")
}

// ForceRefresh refreshes after the provider rejected staleAccessToken. If
// another caller already replaced that token, the newer credential is
// returned without a second refresh.
func (m *Manager) ForceRefresh(ctx context.Context, staleAccessToken string) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, apperr.Cancelled("credential.force_refresh", err)
	}
	return m.refresh(ctx, true, staleAccessToken)
}

func (m *Manager) refresh(ctx context.Context, force bool, stale string) (Credential, error) {
	ch := m.flight.DoChan(m.account, func() (any, error) {
		return m.doRefresh(ctx, force, stale)
	})

	select {
	case <-ctx.Done():
		return Credential{}, apperr.Cancelled(refreshOp, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		return clone(res.Val.(Credential)), nil
	}
}

// doRefresh runs once per flight. It is detached from the caller's
// cancellation so that one impatient caller cannot fail the others.
func (m *Manager) doRefresh(parent context.Context, force bool, stale string) (Credential, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), m.refreshTimeout)
	defer cancel()

	ctx, span := instrumentation.StartSpan(ctx, "credential.refresh")
	defer span.End()

	cur, err := m.current(ctx)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return Credential{}, err
	}
	if cur != nil && cur.ValidAt(m.now(), m.margin) && (!force || (stale != "" && cur.AccessToken != stale)) {
		instrumentation.SetSpanSuccess(span)
		return *cur, nil
	}
	if cur == nil || cur.RefreshToken == "" {
		err := apperr.Newf(apperr.KindPermanentAuth, refreshOp,
			"no credential stored for account %q, run \"dayplanner auth\"", m.account)
		instrumentation.SetSpanError(span, err)
		return Credential{}, err
	}

	start := m.now()
	fresh, err := m.refresher.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		return Credential{}, m.refreshFailed(ctx, span, err)
	}

	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cur.RefreshToken
	}
	if len(fresh.Scopes) == 0 {
		fresh.Scopes = slices.Clone(cur.Scopes)
	}

	if err := m.store.Save(ctx, m.account, fresh); err != nil {
		err = apperr.New(apperr.KindTransientAuth, refreshOp, fmt.Errorf("failed to persist refreshed credential: %w", err))
		m.metrics.RecordCredentialRefresh(ctx, instrumentation.RefreshTransient)
		m.logger.Error("credential refresh not persisted", logging.Err(err))
		instrumentation.SetSpanError(span, err)
		return Credential{}, err
	}

	m.mu.Lock()
	m.cached = &fresh
	m.loaded = true
	m.mu.Unlock()

	m.metrics.RecordCredentialRefresh(ctx, instrumentation.RefreshSuccess)
	m.logger.Info("credential refreshed",
		logging.Duration(m.now().Sub(start)),
		slog.Time("expiry", fresh.Expiry))
	instrumentation.SetSpanSuccess(span)
	return fresh, nil
}

// refreshFailed applies the failure policy: a permanent failure discards the
// credential everywhere, a transient one keeps it for the next attempt.
func (m *Manager) refreshFailed(ctx context.Context, span trace.Span, err error) error {
	defer instrumentation.SetSpanError(span, err)

	switch apperr.KindOf(err) {
	case apperr.KindPermanentAuth:
		m.mu.Lock()
		m.cached = nil
		m.loaded = true
		m.mu.Unlock()
		if derr := m.store.Delete(ctx, m.account); derr != nil {
			m.logger.Warn("failed to delete revoked credential", logging.Err(derr))
		}
		m.metrics.RecordCredentialRefresh(ctx, instrumentation.RefreshPermanent)
		m.logger.Error("credential revoked, re-authorization required", logging.Err(err))
		return err
	case apperr.KindTransientAuth, apperr.KindCancelled:
	default:
		err = apperr.New(apperr.KindTransientAuth, refreshOp, err)
	}
	m.metrics.RecordCredentialRefresh(ctx, instrumentation.RefreshTransient)
	m.logger.Warn("credential refresh failed", logging.Err(err))
	return err
}

// current returns the cached credential, loading it from the store on first use.
func (m *Manager) current(ctx context.Context) (*Credential, error) {
	m.mu.Lock()
	if m.loaded {
		c := m.cached
		m.mu.Unlock()
		return c, nil
	}
	m.mu.Unlock()

	stored, err := m.store.Load(ctx, m.account)
	switch {
	case errors.Is(err, ErrNotFound):
	case errors.Is(err, ErrUndecodable):
		return nil, m.discardUnreadable(ctx, err)
	case err != nil:
		return nil, apperr.New(apperr.KindTransientAuth, "credential.load", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		if err == nil {
			m.cached = &stored
		}
		m.loaded = true
	}
	return m.cached, nil
}

// discardUnreadable drops a stored credential that can never be decoded so
// that the next call asks for re-authorization instead of failing forever.
func (m *Manager) discardUnreadable(ctx context.Context, cause error) error {
	m.mu.Lock()
	m.cached = nil
	m.loaded = true
	m.mu.Unlock()
	if derr := m.store.Delete(ctx, m.account); derr != nil {
		m.logger.Warn("failed to delete unreadable credential", logging.Err(derr))
	}
	err := apperr.New(apperr.KindPermanentAuth, "credential.load",
		fmt.Errorf("%w, run \"dayplanner auth\"", cause))
	m.logger.Error("stored credential unreadable, re-authorization required", logging.Err(err))
	return err
}

// Bootstrap stores a credential obtained interactively.
func (m *Manager) Bootstrap(ctx context.Context, c Credential) error {
	if c.RefreshToken == "" {
		return apperr.Validation("credential.bootstrap", "refresh_token",
			"credential has no refresh token, re-run consent with offline access")
	}
	if err := m.store.Save(ctx, m.account, c); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	m.mu.Lock()
	m.cached = &c
	m.loaded = true
	m.mu.Unlock()

	m.logger.Info("credential stored", slog.Time("expiry", c.Expiry))
	return nil
}

// Status reports on the current credential.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	cur, err := m.current(ctx)
	if err != nil {
		return Status{Account: m.account}, err
	}
	st := Status{Account: m.account}
	if cur == nil {
		return st, nil
	}
	now := m.now()
	st.HasCredential = cur.RefreshToken != ""
	st.Valid = cur.ValidAt(now, m.margin)
	st.Expiry = cur.Expiry
	if cur.Expiry.After(now) {
		st.ExpiresIn = cur.Expiry.Sub(now).Truncate(time.Second)
	}
	st.Scopes = slices.Clone(cur.Scopes)
	return st, nil
}

// Clear forgets the credential in memory and in the store.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.cached = nil
	m.loaded = true
	m.mu.Unlock()
	return m.store.Delete(ctx, m.account)
}

func clone(c Credential) Credential {
	c.Scopes = slices.Clone(c.Scopes)
	return c
}
