package credential

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Credential is an OAuth credential. It is handed out by value; callers
// never share the Manager's copy.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// ValidAt reports whether the access token is usable at now with at least
// margin left before expiry.
func (c Credential) ValidAt(now time.Time, margin time.Duration) bool {
	if c.AccessToken == "" || c.Expiry.IsZero() {
		return false
	}
	return now.Before(c.Expiry.Add(-margin))
}

// Token converts the credential to an oauth2.Token.
func (c Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
}

// FromToken builds a Credential from an oauth2.Token. Granted scopes are
// read from the "scope" field of the token response when present.
func FromToken(t *oauth2.Token) Credential {
	if t == nil {
		return Credential{}
	}
	c := Credential{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
	if scope, ok := t.Extra("scope").(string); ok && scope != "" {
		c.Scopes = strings.Fields(scope)
	}
	return c
}

// Status describes the cached credential without exposing any token.
type Status struct {
	Account       string        `json:"account"`
	HasCredential bool          `json:"has_credential"`
	Valid         bool          `json:"valid"`
	Expiry        time.Time     `json:"expiry,omitzero"`
	ExpiresIn     time.Duration `json:"expires_in"`
	Scopes        []string      `json:"scopes,omitempty"`
}
