package ics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/config"
	"github.com/teemow/dayplanner/internal/instrumentation"
	"github.com/teemow/dayplanner/internal/logging"
	"github.com/teemow/dayplanner/internal/model"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodySize    = 10 << 20
	fetchOp        = "ics.fetch"
)

// Source is one subscribed feed.
type Source struct {
	ID   string
	Name string
	URL  string
}

// SourceName returns the aggregation source name "ics:<id>".
func (s Source) SourceName() string {
	return "ics:" + s.ID
}

// SourcesFrom converts the configured subscriptions.
func SourcesFrom(cfg []config.ICSSource) []Source {
	out := make([]Source, 0, len(cfg))
	for _, c := range cfg {
		out = append(out, Source{ID: c.ID, Name: c.Name, URL: c.URL})
	}
	return out
}

// FetchResult is the body of a feed and whether it came from the cache.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool
}

type cacheEntry struct {
	etag         string
	lastModified string
	body         []byte
}

// Fetcher downloads feeds, honoring ETag and Last-Modified. The last good
// body of every URL is kept in memory and served when the feed is
// unchanged or temporarily unreachable.
type Fetcher struct {
	client  *http.Client
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// WithMetrics records fetch outcomes.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(f *Fetcher) { f.metrics = metrics }
}

// NewFetcher creates a Fetcher. A nil client gets a 15 second timeout.
func NewFetcher(client *http.Client, opts ...Option) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	f := &Fetcher{
		client: client,
		logger: slog.Default(),
		cache:  map[string]cacheEntry{},
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = logging.WithService(f.logger, instrumentation.ServiceICS)
	return f
}

// Events fetches src and returns its occurrences overlapping [start, end).
// Floating times in the feed are read in start's location.
func (f *Fetcher) Events(ctx context.Context, src Source, start, end time.Time) ([]model.Event, error) {
	res, err := f.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	parsed, err := Parse(src, res.Body, start.Location(), f.logger)
	if err != nil {
		return nil, err
	}
	return Expand(parsed, start, end, f.logger), nil
}

// Fetch downloads src, sending the cached validators. A 304 response or a
// failure with a cached body available returns the cached body.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, apperr.Validation(fetchOp, "url", "ics source %q has no url", src.ID)
	}

	ctx, span := instrumentation.StartProviderSpan(ctx, instrumentation.ServiceICS, instrumentation.OperationFetch)
	defer span.End()

	logger := f.logger.With(logging.Source(src.SourceName()), slog.String("host", redactURL(src.URL)))
	start := time.Now()

	res, status, err := f.fetch(ctx, src, logger)
	f.metrics.RecordProviderRequest(ctx, instrumentation.ServiceICS, instrumentation.OperationFetch, status, time.Since(start))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return FetchResult{}, err
	}
	instrumentation.SetSpanSuccess(span)
	return res, nil
}

func (f *Fetcher) fetch(ctx context.Context, src Source, logger *slog.Logger) (FetchResult, string, error) {
	f.mu.Lock()
	cached, hasCache := f.cache[src.URL]
	f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, instrumentation.StatusError, apperr.Validation(fetchOp, "url", "invalid ics url: %v", err)
	}
	req.Header.Set("Accept", "text/calendar")
	if hasCache {
		if cached.etag != "" {
			req.Header.Set("If-None-Match", cached.etag)
		}
		if cached.lastModified != "" {
			req.Header.Set("If-Modified-Since", cached.lastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return FetchResult{}, instrumentation.StatusError, apperr.Cancelled(fetchOp, ctxErr)
		}
		if hasCache {
			logger.Warn("ics fetch failed, using cached body", logging.Err(err))
			return FetchResult{Source: src, Body: cached.body, FromCache: true}, instrumentation.StatusError, nil
		}
		return FetchResult{}, instrumentation.StatusError, apperr.New(apperr.KindNetwork, fetchOp, fmt.Errorf("failed to fetch %s: %w", src.ID, err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
		if err != nil {
			return FetchResult{}, instrumentation.StatusError, apperr.New(apperr.KindNetwork, fetchOp, fmt.Errorf("failed to read %s: %w", src.ID, err))
		}
		if len(body) > maxBodySize {
			return FetchResult{}, instrumentation.StatusError, apperr.Newf(apperr.KindProvider, fetchOp, "feed %s exceeds %d bytes", src.ID, maxBodySize)
		}
		f.mu.Lock()
		f.cache[src.URL] = cacheEntry{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
			body:         body,
		}
		f.mu.Unlock()
		logger.Debug("ics fetched", slog.Int("bytes", len(body)))
		return FetchResult{Source: src, Body: body}, instrumentation.StatusSuccess, nil

	case http.StatusNotModified:
		if !hasCache {
			return FetchResult{}, instrumentation.StatusError, apperr.Newf(apperr.KindProvider, fetchOp, "feed %s answered 304 without a cached body", src.ID)
		}
		logger.Debug("ics not modified")
		return FetchResult{Source: src, Body: cached.body, FromCache: true}, instrumentation.StatusSuccess, nil
	}

	err = statusError(src, resp.StatusCode)
	if hasCache && apperr.Retryable(err) {
		logger.Warn("ics fetch failed, using cached body", logging.Err(err))
		return FetchResult{Source: src, Body: cached.body, FromCache: true}, instrumentation.StatusError, nil
	}
	return FetchResult{}, instrumentation.StatusError, err
}

func statusError(src Source, code int) error {
	err := fmt.Errorf("feed %s returned %d %s", src.ID, code, http.StatusText(code))
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return apperr.New(apperr.KindNotFound, fetchOp, err)
	case code == http.StatusTooManyRequests:
		return apperr.New(apperr.KindRateLimited, fetchOp, err)
	case code >= 500:
		return apperr.New(apperr.KindNetwork, fetchOp, err)
	default:
		return apperr.New(apperr.KindProvider, fetchOp, err)
	}
}

// redactURL keeps only the host; feed paths and queries often carry secrets.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(invalid)"
	}
	return u.Host
}
