package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/config"
	"github.com/teemow/dayplanner/internal/ics"
	"github.com/teemow/dayplanner/internal/instrumentation"
	"github.com/teemow/dayplanner/internal/logging"
	"github.com/teemow/dayplanner/internal/model"
	"github.com/teemow/dayplanner/internal/schedule"
)

const op = "aggregator.day_overview"

// EventLister lists the events of one calendar overlapping [start, end).
type EventLister interface {
	ListEvents(ctx context.Context, calendarID string, start, end time.Time) ([]model.Event, error)
}

// TaskLister lists the tasks of one task list.
type TaskLister interface {
	ListTasks(ctx context.Context, taskListID string, includeCompleted bool) ([]model.Task, error)
}

// FeedReader reads the occurrences of an ICS subscription.
type FeedReader interface {
	Events(ctx context.Context, src ics.Source, start, end time.Time) ([]model.Event, error)
}

// Config selects the sources and the day parameters.
type Config struct {
	Calendars []string
	TaskLists []string
	Feeds     []ics.Source

	Timezone      string
	WorkStart     schedule.ClockTime
	WorkEnd       schedule.ClockTime
	MinFreeWindow time.Duration

	// FetchBuffer widens the event window on both sides of the day so that
	// events spanning midnight are caught.
	FetchBuffer time.Duration
	// Timeout bounds one GetDayOverview call. Zero means no limit.
	Timeout time.Duration
}

// ConfigFrom derives the aggregator settings from the application config.
func ConfigFrom(cfg *config.Config) (Config, error) {
	start, err := schedule.ParseClock(cfg.WorkStart)
	if err != nil {
		return Config{}, err
	}
	end, err := schedule.ParseClock(cfg.WorkEnd)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Calendars:     slices.Clone(cfg.Calendars),
		TaskLists:     slices.Clone(cfg.TaskLists),
		Feeds:         ics.SourcesFrom(cfg.ICS),
		Timezone:      cfg.Timezone,
		WorkStart:     start,
		WorkEnd:       end,
		MinFreeWindow: cfg.MinFreeWindow,
		FetchBuffer:   cfg.Timeouts.FetchBuffer,
		Timeout:       cfg.Timeouts.Aggregate,
	}, nil
}

// Aggregator builds day overviews from the configured sources.
type Aggregator struct {
	cfg     Config
	events  EventLister
	tasks   TaskLister
	feeds   FeedReader
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

// WithMetrics records aggregation outcomes and failed sources.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(a *Aggregator) { a.metrics = metrics }
}

// WithFeeds enables the configured ICS subscriptions.
func WithFeeds(feeds FeedReader) Option {
	return func(a *Aggregator) { a.feeds = feeds }
}

// New creates an Aggregator.
func New(cfg Config, events EventLister, tasks TaskLister, opts ...Option) *Aggregator {
	a := &Aggregator{
		cfg:    cfg,
		events: events,
		tasks:  tasks,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.WithOperation(a.logger, op)
	return a
}

// source is one unit of parallel work. Exactly one of the result slices is
// filled by run.
type source struct {
	name string
	run  func(ctx context.Context) ([]model.Event, []model.Task, error)
}

type result struct {
	events []model.Event
	tasks  []model.Task
	err    error
}

// GetDayOverview returns the overview of date (YYYY-MM-DD) in timezone. An
// empty timezone uses the configured one, a nil taskListIDs the configured
// task lists. A view with failed sources is returned together with a nil
// error; its Err method reports the partial failure.
func (a *Aggregator) GetDayOverview(ctx context.Context, date, timezone string, taskListIDs []string) (model.DayView, error) {
	start := time.Now()

	ctx, span := instrumentation.StartSpan(ctx, op, attribute.String(instrumentation.SpanAttrDate, date))
	defer span.End()

	view, outcome, err := a.dayOverview(ctx, date, timezone, taskListIDs)
	a.metrics.RecordDayOverview(ctx, outcome, time.Since(start))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return model.DayView{}, err
	}
	span.SetAttributes(
		attribute.Int("events", view.EventsCount),
		attribute.Int("failed_sources", len(view.FailedSources)),
	)
	instrumentation.SetSpanSuccess(span)
	return view, nil
}

func (a *Aggregator) dayOverview(ctx context.Context, date, timezone string, taskListIDs []string) (model.DayView, string, error) {
	if timezone == "" {
		timezone = a.cfg.Timezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		return model.DayView{}, instrumentation.OverviewFailed,
			apperr.Validation(op, "timezone", "unknown timezone %q", timezone)
	}
	dayStart, dayEnd, err := schedule.DayBounds(date, loc)
	if err != nil {
		return model.DayView{}, instrumentation.OverviewFailed, err
	}
	if !a.cfg.WorkStart.Before(a.cfg.WorkEnd) {
		return model.DayView{}, instrumentation.OverviewFailed,
			apperr.Validation(op, "work_end", "working hours end %s must be after start %s", a.cfg.WorkEnd, a.cfg.WorkStart)
	}
	if taskListIDs == nil {
		taskListIDs = a.cfg.TaskLists
	}

	fetchCtx := ctx
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	sources := a.sources(dayStart.Add(-a.cfg.FetchBuffer), dayEnd.Add(a.cfg.FetchBuffer), taskListIDs)
	results := make([]result, len(sources))

	// A revoked credential fails every source, so it stops the others early.
	g, gctx := errgroup.WithContext(fetchCtx)
	for i, src := range sources {
		g.Go(func() error {
			evs, tks, err := src.run(gctx)
			results[i] = result{events: evs, tasks: tks, err: err}
			if apperr.KindOf(err) == apperr.KindPermanentAuth {
				return err
			}
			return nil
		})
	}
	authErr := g.Wait()

	if err := ctx.Err(); err != nil {
		return model.DayView{}, instrumentation.OverviewFailed, apperr.Cancelled(op, err)
	}
	if authErr != nil {
		return model.DayView{}, instrumentation.OverviewFailed, authErr
	}

	var (
		events   []model.Event
		tasks    []model.Task
		failures []model.SourceFailure
		firstErr error
	)
	seen := map[eventKey]struct{}{}
	for i, res := range results {
		name := sources[i].name
		if res.err != nil {
			kind := apperr.KindOf(res.err)
			if firstErr == nil {
				firstErr = res.err
			}
			failures = append(failures, model.SourceFailure{Source: name, Kind: kind, Error: res.err.Error()})
			a.metrics.RecordSourceFailure(ctx, name, string(kind))
			a.logger.Warn("source failed", logging.Source(name), logging.Kind(string(kind)), logging.Err(res.err))
			continue
		}
		for _, ev := range res.events {
			k := eventKey{id: ev.ID, start: ev.Start.UnixNano()}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			events = append(events, ev)
		}
		tasks = append(tasks, res.tasks...)
	}

	if len(sources) > 0 && len(failures) == len(sources) {
		return model.DayView{}, instrumentation.OverviewFailed,
			fmt.Errorf("all %d sources failed: %w", len(sources), firstErr)
	}

	view, err := schedule.BuildDayView(schedule.DayInput{
		Date:          date,
		Location:      loc,
		Events:        events,
		Tasks:         tasks,
		WorkStart:     a.cfg.WorkStart,
		WorkEnd:       a.cfg.WorkEnd,
		MinFreeWindow: a.cfg.MinFreeWindow,
	})
	if err != nil {
		return model.DayView{}, instrumentation.OverviewFailed, err
	}

	outcome := instrumentation.OverviewComplete
	if len(failures) > 0 {
		view.Partial = true
		view.FailedSources = failures
		outcome = instrumentation.OverviewPartial
	}
	a.logger.Debug("day overview built",
		slog.String("date", date),
		slog.Int("sources", len(sources)),
		slog.Int("failed", len(failures)))
	return view, outcome, nil
}

type eventKey struct {
	id    string
	start int64
}

// sources lists the work in a fixed order: calendars, feeds, task lists.
// Duplicate ids are fetched once.
func (a *Aggregator) sources(from, to time.Time, taskListIDs []string) []source {
	var out []source

	if a.events != nil {
		for _, id := range unique(a.cfg.Calendars) {
			out = append(out, source{
				name: "calendar:" + id,
				run: func(ctx context.Context) ([]model.Event, []model.Task, error) {
					evs, err := a.events.ListEvents(ctx, id, from, to)
					return evs, nil, err
				},
			})
		}
	}

	if a.feeds != nil {
		for _, feed := range a.cfg.Feeds {
			out = append(out, source{
				name: feed.SourceName(),
				run: func(ctx context.Context) ([]model.Event, []model.Task, error) {
					evs, err := a.feeds.Events(ctx, feed, from, to)
					return evs, nil, err
				},
			})
		}
	}

	if a.tasks != nil {
		for _, id := range unique(taskListIDs) {
			out = append(out, source{
				name: "tasks:" + id,
				run: func(ctx context.Context) ([]model.Event, []model.Task, error) {
					tks, err := a.tasks.ListTasks(ctx, id, false)
					return nil, tks, err
				},
			})
		}
	}

	return out
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
