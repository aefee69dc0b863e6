// Package google holds the Google-specific glue shared by the calendar and
// tasks adapters: OAuth client configuration, the consent flow used by
// "dayplanner auth", API client options, and classification of Google API
// errors into the shared error taxonomy.
package google
