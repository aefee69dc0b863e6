package executor

import (
	"context"
	"errors"
	"net/http"
)

type tokenKey struct{}

// WithAccessToken returns a context carrying the bearer token for one attempt.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// AccessTokenFrom returns the token placed by WithAccessToken.
func AccessTokenFrom(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenKey{}).(string)
	return tok, ok && tok != ""
}

// ErrNoAccessToken is returned by Transport for requests made outside an
// executor attempt.
var ErrNoAccessToken = errors.New("no access token in request context")

// Transport sets the Authorization header from the request context.
type Transport struct {
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, ok := AccessTokenFrom(req.Context())
	if !ok {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, ErrNoAccessToken
	}

	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+tok)
	return t.base().RoundTrip(out)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// NewHTTPClient returns a client whose requests are authorized by the
// executor. Per-attempt deadlines come from the context, so the client has
// no timeout of its own.
func NewHTTPClient(base http.RoundTripper) *http.Client {
	return &http.Client{Transport: &Transport{Base: base}}
}
