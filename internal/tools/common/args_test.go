package common

import (
	"reflect"
	"testing"
	"time"

	"github.com/teemow/dayplanner/internal/apperr"
)

func TestStringArg(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]interface{}
		expected string
	}{
		{name: "missing", args: map[string]interface{}{}, expected: "primary"},
		{name: "provided", args: map[string]interface{}{"calendarId": "work"}, expected: "work"},
		{name: "empty string", args: map[string]interface{}{"calendarId": ""}, expected: "primary"},
		{name: "wrong type", args: map[string]interface{}{"calendarId": 123}, expected: "primary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StringArg(tt.args, "calendarId", "primary"); got != tt.expected {
				t.Errorf("StringArg() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestRequiredString(t *testing.T) {
	if _, err := RequiredString(map[string]interface{}{"eventId": "  "}, "eventId"); apperr.FieldOf(err) != "eventId" {
		t.Errorf("expected validation error on eventId, got %v", err)
	}
	got, err := RequiredString(map[string]interface{}{"eventId": "e1"}, "eventId")
	if err != nil || got != "e1" {
		t.Errorf("RequiredString() = %q, %v", got, err)
	}
}

func TestOptionalArgs(t *testing.T) {
	args := map[string]interface{}{"notes": "", "allDay": false}

	if p := OptionalString(args, "notes"); p == nil || *p != "" {
		t.Errorf("expected explicit empty notes, got %v", p)
	}
	if p := OptionalString(args, "title"); p != nil {
		t.Errorf("expected nil title, got %q", *p)
	}
	if p := OptionalBool(args, "allDay"); p == nil || *p {
		t.Errorf("expected explicit false, got %v", p)
	}
	if p := OptionalBool(args, "missing"); p != nil {
		t.Errorf("expected nil, got %v", *p)
	}
	if got := NumberArg(map[string]interface{}{"n": float64(45)}, "n", 30); got != 45 {
		t.Errorf("NumberArg() = %v, expected 45", got)
	}
	if got := NumberArg(args, "n", 30); got != 30 {
		t.Errorf("NumberArg() default = %v, expected 30", got)
	}
}

func TestListArg(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		expected []string
	}{
		{name: "single", value: "a@example.com", expected: []string{"a@example.com"}},
		{name: "comma separated", value: "a@example.com, b@example.com", expected: []string{"a@example.com", "b@example.com"}},
		{name: "empty entries", value: "a@example.com,, ,", expected: []string{"a@example.com"}},
		{name: "array", value: []interface{}{"work", 1, " home "}, expected: []string{"work", "home"}},
		{name: "empty", value: "", expected: nil},
		{name: "missing", value: nil, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]interface{}{}
			if tt.value != nil {
				args["list"] = tt.value
			}
			if got := ListArg(args, "list"); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ListArg() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestDateOrToday(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	now := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		value    string
		expected string
		wantErr  bool
	}{
		{name: "missing is today in location", value: "", expected: "2025-03-11"},
		{name: "today", value: "today", expected: "2025-03-11"},
		{name: "tomorrow", value: "tomorrow", expected: "2025-03-12"},
		{name: "explicit", value: "2025-04-01", expected: "2025-04-01"},
		{name: "invalid", value: "04/01/2025", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DateOrToday(map[string]interface{}{"date": tt.value}, "date", berlin, now)
			if tt.wantErr {
				if apperr.KindOf(err) != apperr.KindValidation {
					t.Errorf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("DateOrToday() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestDueArg(t *testing.T) {
	due, dateOnly, err := DueArg("due", "2025-03-10")
	if err != nil || !dateOnly || !due.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("DueArg(date) = %v, %v, %v", due, dateOnly, err)
	}

	due, dateOnly, err = DueArg("due", "2025-03-10T15:00:00+01:00")
	if err != nil || dateOnly || !due.Equal(time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)) {
		t.Errorf("DueArg(instant) = %v, %v, %v", due, dateOnly, err)
	}

	if _, _, err := DueArg("due", "2025-03-10T15:00:00"); apperr.FieldOf(err) != "due" {
		t.Errorf("expected validation error for naive time, got %v", err)
	}
}

func TestLocation(t *testing.T) {
	loc, err := Location(map[string]interface{}{}, "timezone", time.UTC)
	if err != nil || loc != time.UTC {
		t.Errorf("Location() default = %v, %v", loc, err)
	}
	if _, err := Location(map[string]interface{}{"timezone": "Mars/Olympus"}, "timezone", time.UTC); apperr.FieldOf(err) != "timezone" {
		t.Errorf("expected validation error on timezone, got %v", err)
	}
}
