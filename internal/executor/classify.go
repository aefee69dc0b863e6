package executor

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/teemow/dayplanner/internal/apperr"
)

// Class is the retry category of a failed attempt.
type Class int

const (
	// ClassFatal is not retried.
	ClassFatal Class = iota
	// ClassUnauthorized triggers one forced credential refresh.
	ClassUnauthorized
	// ClassThrottled backs off and retries.
	ClassThrottled
	// ClassNetwork backs off and retries on the network budget.
	ClassNetwork
)

func (c Class) String() string {
	switch c {
	case ClassUnauthorized:
		return "unauthorized"
	case ClassThrottled:
		return "throttled"
	case ClassNetwork:
		return "network"
	default:
		return "error"
	}
}

// Verdict is a classifier's decision about one failed attempt.
type Verdict struct {
	Class Class
	// RetryAfter is the provider's explicit retry hint, if any.
	RetryAfter time.Duration
	// Err is the classified error returned when the attempt is not retried.
	Err error
}

// Classifier recognises provider-specific failure signals.
type Classifier interface {
	Classify(err error) Verdict
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(err error) Verdict

// Classify calls f.
func (f ClassifierFunc) Classify(err error) Verdict {
	return f(err)
}

// DefaultClassifier recognises transport failures only. Everything else is
// a fatal provider error.
var DefaultClassifier = ClassifierFunc(func(err error) Verdict {
	if v, ok := ClassifyNetwork(err); ok {
		return v
	}
	if apperr.KindOf(err) != apperr.KindProvider {
		return Verdict{Class: ClassFatal, Err: err}
	}
	return Verdict{Class: ClassFatal, Err: apperr.New(apperr.KindProvider, "", err)}
})

// ClassifyNetwork reports whether err is a transport-level failure: a
// timeout, a reset or refused connection, a DNS failure or a truncated
// response.
func ClassifyNetwork(err error) (Verdict, bool) {
	network := Verdict{Class: ClassNetwork, Err: apperr.New(apperr.KindNetwork, "", err)}

	if errors.Is(err, context.DeadlineExceeded) {
		return network, true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return network, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return network, true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return network, true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return network, true
	}
	return Verdict{}, false
}
