// Package credential owns the OAuth credential lifecycle.
//
// A Manager hands out access tokens that stay valid for at least the
// configured safety margin, refreshing through a Refresher when needed.
// Concurrent callers share a single refresh. Refreshed credentials are
// written to a Store before they are cached or returned, so a crash never
// loses a rotated refresh token.
//
// Stores are available for a JSON file under the XDG data directory, a
// SQLite database, a Valkey server and process memory. All of them share
// one codec that can encrypt payloads with AES-256-GCM.
package credential
