package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/dayplanner/internal/apperr"
)

// Refresher exchanges a refresh token for a new credential. Errors must be
// classified as apperr.KindTransientAuth or apperr.KindPermanentAuth.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Credential, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, refreshToken string) (Credential, error)

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (Credential, error) {
	return f(ctx, refreshToken)
}

// OAuthRefresher refreshes against an OAuth2 token endpoint.
type OAuthRefresher struct {
	Config     *oauth2.Config
	HTTPClient *http.Client
}

const refreshOp = "credential.refresh"

// Refresh performs the refresh_token grant.
func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (Credential, error) {
	if r.Config == nil {
		return Credential{}, apperr.Newf(apperr.KindPermanentAuth, refreshOp, "no OAuth client configured")
	}
	if r.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTPClient)
	}

	// An already expired token forces the token source to hit the endpoint.
	src := r.Config.TokenSource(ctx, &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return Credential{}, ClassifyRefreshError(err)
	}
	return FromToken(tok), nil
}

// permanentCodes are OAuth error codes that no retry will fix.
var permanentCodes = map[string]bool{
	"invalid_grant":       true,
	"invalid_client":      true,
	"unauthorized_client": true,
	"access_denied":       true,
	"invalid_scope":       true,
}

// ClassifyRefreshError maps a token endpoint failure to an auth error kind.
// Revoked or invalid grants and other 4xx responses are permanent; server
// errors, throttling and transport failures are transient.
func ClassifyRefreshError(err error) error {
	if errors.Is(err, context.Canceled) {
		return apperr.Cancelled(refreshOp, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.New(apperr.KindTransientAuth, refreshOp, fmt.Errorf("token endpoint timed out: %w", err))
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if permanentCodes[re.ErrorCode] {
			return apperr.New(apperr.KindPermanentAuth, refreshOp, err)
		}
		if re.Response != nil {
			status := re.Response.StatusCode
			switch {
			case status == http.StatusTooManyRequests, status >= 500:
				return apperr.New(apperr.KindTransientAuth, refreshOp, err)
			case status >= 400:
				return apperr.New(apperr.KindPermanentAuth, refreshOp, err)
			}
		}
	}
	return apperr.New(apperr.KindTransientAuth, refreshOp, err)
}
