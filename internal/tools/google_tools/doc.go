// Package google_tools provides MCP tools for Google OAuth authorization.
//
// This package registers tools that allow AI assistants to:
//   - Get the OAuth authorization URL for Google Calendar and Google Tasks
//   - Save the OAuth authorization code to complete authorization
//   - Check whether a credential is stored and when it expires
//
// The OAuth flow mirrors "dayplanner auth":
//  1. Call google_get_auth_url to get the authorization URL
//  2. User visits the URL and authorizes access
//  3. User provides the authorization code
//  4. Call google_save_auth_code with the code to store the credential
//
// The stored refresh token is used by the credential manager, which keeps
// the access token fresh from then on.
package google_tools
