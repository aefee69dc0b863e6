package google

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/executor"
)

// Error reasons reported by Google APIs in error items.
const (
	reasonRateLimit      = "rateLimitExceeded"
	reasonUserRateLimit  = "userRateLimitExceeded"
	reasonQuotaExceeded  = "quotaExceeded"
	reasonDailyLimit     = "dailyLimitExceeded"
	reasonInsufficient   = "insufficientPermissions"
	reasonDuplicate      = "duplicate"
	reasonRequiredField  = "required"
	reasonInvalidField   = "invalid"
	reasonTimeRangeEmpty = "timeRangeEmpty"
)

// Classify translates a Google API failure for the executor. Transport
// failures fall through to executor.ClassifyNetwork.
func Classify(err error) executor.Verdict {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return executor.DefaultClassifier.Classify(err)
	}

	reasons := make(map[string]bool, len(gerr.Errors))
	for _, item := range gerr.Errors {
		reasons[item.Reason] = true
	}

	fatal := func(kind apperr.Kind) executor.Verdict {
		return executor.Verdict{Class: executor.ClassFatal, Err: apperr.New(kind, "", err)}
	}

	switch code := gerr.Code; {
	case code == http.StatusUnauthorized:
		return executor.Verdict{Class: executor.ClassUnauthorized}
	case code == http.StatusTooManyRequests:
		return executor.Verdict{Class: executor.ClassThrottled, RetryAfter: retryAfter(gerr.Header, time.Now())}
	case code == http.StatusForbidden && (reasons[reasonRateLimit] || reasons[reasonUserRateLimit]):
		return executor.Verdict{Class: executor.ClassThrottled, RetryAfter: retryAfter(gerr.Header, time.Now())}
	case code == http.StatusForbidden && (reasons[reasonQuotaExceeded] || reasons[reasonDailyLimit]):
		return fatal(apperr.KindQuotaExceeded)
	case code == http.StatusForbidden && reasons[reasonInsufficient]:
		return fatal(apperr.KindPermanentAuth)
	case code == http.StatusNotFound, code == http.StatusGone:
		return fatal(apperr.KindNotFound)
	case code == http.StatusBadRequest:
		return executor.Verdict{Class: executor.ClassFatal, Err: &apperr.Error{
			Kind:  apperr.KindValidation,
			Field: invalidField(gerr),
			Err:   err,
		}}
	case code == http.StatusInternalServerError, code == http.StatusBadGateway,
		code == http.StatusServiceUnavailable, code == http.StatusGatewayTimeout:
		return executor.Verdict{Class: executor.ClassNetwork, RetryAfter: retryAfter(gerr.Header, time.Now())}
	default:
		return fatal(apperr.KindProvider)
	}
}

// IsDuplicate reports whether err is Google's response to inserting an id
// that already exists.
func IsDuplicate(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != http.StatusConflict {
		return false
	}
	if len(gerr.Errors) == 0 {
		return true
	}
	for _, item := range gerr.Errors {
		if item.Reason == reasonDuplicate {
			return true
		}
	}
	return false
}

// invalidField names the rejected input when Google says which one it was.
func invalidField(gerr *googleapi.Error) string {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case reasonTimeRangeEmpty:
			return "end"
		case reasonRequiredField, reasonInvalidField:
			if f := fieldFromMessage(item.Message); f != "" {
				return f
			}
		}
	}
	return "request"
}

// fieldFromMessage extracts the field from messages such as
// "Invalid value for: start".
func fieldFromMessage(msg string) string {
	if _, after, ok := strings.Cut(msg, "for: "); ok {
		return strings.TrimSpace(strings.TrimSuffix(after, "."))
	}
	return ""
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
