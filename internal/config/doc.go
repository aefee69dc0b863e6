// Package config loads dayplanner settings.
//
// Values are layered: built-in defaults, then a YAML or TOML file (chosen by
// extension), then DAYPLANNER_* environment variables. Command-line flags are
// applied on top by the cmd package. Normalize fills zero values with the
// defaults and Validate rejects inconsistent settings.
package config
