package google

import (
	"net/http"

	"google.golang.org/api/option"
)

// ClientOptions returns the API client options for a calendar or tasks
// service. httpClient is expected to come from executor.NewHTTPClient so that
// authorization happens per attempt. A non-empty endpoint overrides the
// Google endpoint, which tests use to point at an httptest server.
func ClientOptions(httpClient *http.Client, endpoint string) []option.ClientOption {
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}
