package google

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/dayplanner/internal/credential"
)

// OutOfBandRedirect makes Google display the authorization code for the user
// to paste back into the CLI.
const OutOfBandRedirect = "urn:ietf:wg:oauth:2.0:oob"

// OAuthConfig returns the OAuth2 configuration for the calendar and tasks APIs.
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  OutOfBandRedirect,
		Scopes:       DefaultOAuthScopes,
	}
}

// AuthURL returns the consent URL. Offline access with forced consent makes
// Google issue a refresh token even if the user granted access before.
func AuthURL(conf *oauth2.Config, state string) string {
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for the first credential.
func Exchange(ctx context.Context, conf *oauth2.Config, code string) (credential.Credential, error) {
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return credential.Credential{}, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	cred := credential.FromToken(tok)
	if len(cred.Scopes) == 0 {
		cred.Scopes = append([]string(nil), conf.Scopes...)
	}
	return cred, nil
}

// NewRefresher returns a refresher for the Google token endpoint.
func NewRefresher(conf *oauth2.Config, httpClient *http.Client) *credential.OAuthRefresher {
	return &credential.OAuthRefresher{Config: conf, HTTPClient: httpClient}
}
