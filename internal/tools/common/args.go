package common

import (
	"strings"
	"time"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/model"
)

// StringArg returns a string argument, or def when it is missing or empty.
func StringArg(args map[string]interface{}, name, def string) string {
	if v, ok := args[name].(string); ok && v != "" {
		return v
	}
	return def
}

// RequiredString returns a non-empty string argument.
func RequiredString(args map[string]interface{}, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", apperr.Validation("tool.args", name, "%s is required", name)
	}
	return v, nil
}

// OptionalString returns a pointer to a string argument, or nil when the
// argument was not passed. An explicit empty string is kept.
func OptionalString(args map[string]interface{}, name string) *string {
	v, ok := args[name].(string)
	if !ok {
		return nil
	}
	return &v
}

// BoolArg returns a boolean argument, or def when it is missing.
func BoolArg(args map[string]interface{}, name string, def bool) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return def
}

// OptionalBool returns a pointer to a boolean argument, or nil when missing.
func OptionalBool(args map[string]interface{}, name string) *bool {
	v, ok := args[name].(bool)
	if !ok {
		return nil
	}
	return &v
}

// NumberArg returns a numeric argument. JSON numbers arrive as float64.
func NumberArg(args map[string]interface{}, name string, def float64) float64 {
	switch v := args[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// ListArg splits a comma-separated argument. Arrays of strings are accepted
// too. Empty entries are dropped and a missing argument yields nil.
func ListArg(args map[string]interface{}, name string) []string {
	var raw []string
	switch v := args[name].(type) {
	case string:
		raw = strings.Split(v, ",")
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case []string:
		raw = v
	}

	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// DateOrToday returns a YYYY-MM-DD argument. Missing, "today" and
// "tomorrow" are resolved against now in loc.
func DateOrToday(args map[string]interface{}, name string, loc *time.Location, now time.Time) (string, error) {
	date := StringArg(args, name, "")
	if date == "" || date == "today" {
		return now.In(loc).Format(model.DateLayout), nil
	}
	if date == "tomorrow" {
		return now.In(loc).AddDate(0, 0, 1).Format(model.DateLayout), nil
	}
	if _, err := model.ParseDate(name, date); err != nil {
		return "", err
	}
	return date, nil
}

// DueArg parses a task due value. A bare date (YYYY-MM-DD) yields a
// date-only due; anything else must be RFC 3339 with an offset.
func DueArg(name, value string) (time.Time, bool, error) {
	if len(value) == len(model.DateLayout) {
		t, err := model.ParseDate(name, value)
		return t, true, err
	}
	t, err := model.ParseInstant(name, value)
	return t, false, err
}

// Location resolves a timezone argument, falling back to def.
func Location(args map[string]interface{}, name string, def *time.Location) (*time.Location, error) {
	tz := StringArg(args, name, "")
	if tz == "" {
		if def == nil {
			return time.UTC, nil
		}
		return def, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, apperr.Validation("tool.args", name, "unknown timezone %q", tz)
	}
	return loc, nil
}
