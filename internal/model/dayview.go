package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/teemow/dayplanner/internal/apperr"
)

// AgendaKind tags an agenda entry.
type AgendaKind string

// Agenda entry kinds, in tie-break order.
const (
	AgendaEvent AgendaKind = "event"
	AgendaTask  AgendaKind = "task"
	AgendaFree  AgendaKind = "free"
)

// AgendaItem is one entry of the time-ordered agenda.
type AgendaItem struct {
	Kind  AgendaKind `json:"kind"`
	Ref   string     `json:"ref,omitempty"`
	Title string     `json:"title,omitempty"`
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
}

// SourceFailure flags a source that could not be fetched.
type SourceFailure struct {
	Source string      `json:"source"`
	Kind   apperr.Kind `json:"kind"`
	Error  string      `json:"error"`
}

// DayView is the composed overview of a single day.
type DayView struct {
	Date     string    `json:"date"`
	DayName  string    `json:"day_name"`
	Timezone string    `json:"timezone"`
	DayStart time.Time `json:"day_start"`
	DayEnd   time.Time `json:"day_end"`
	Working  Interval  `json:"working_hours"`

	Events           []Event      `json:"events"`
	AllDayEvents     []Event      `json:"all_day_events"`
	Conflicts        []Conflict   `json:"conflicts"`
	FreeWindows      []Interval   `json:"free_windows"`
	DueTasks         []Task       `json:"due_tasks"`
	OverdueTasks     []Task       `json:"overdue_tasks"`
	UnscheduledTasks []Task       `json:"unscheduled_tasks"`
	Agenda           []AgendaItem `json:"agenda"`

	EventsCount   int `json:"events_count"`
	TasksDueCount int `json:"tasks_due_count"`
	OverdueCount  int `json:"overdue_count"`
	FreeMinutes   int `json:"free_minutes"`
	BusyMinutes   int `json:"busy_minutes"`

	Partial       bool            `json:"partial"`
	FailedSources []SourceFailure `json:"failed_sources,omitempty"`
}

// Err returns a partial aggregation error when one or more sources failed.
func (v DayView) Err() error {
	if !v.Partial || len(v.FailedSources) == 0 {
		return nil
	}
	names := make([]string, 0, len(v.FailedSources))
	for _, f := range v.FailedSources {
		names = append(names, f.Source)
	}
	return apperr.New(apperr.KindPartialAggregation, "aggregator.day_overview",
		fmt.Errorf("failed sources: %s", strings.Join(names, ", ")))
}
