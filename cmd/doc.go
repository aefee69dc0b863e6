// Package cmd implements the command-line interface for dayplanner.
//
// This package provides the following commands:
//   - serve: Start the MCP server to provide day planning tools for AI assistants
//   - overview: Print the day overview for a date as JSON
//   - auth: Authorize Google Calendar and Tasks access, show or clear the credential
//   - config: Write a starter configuration file or print the effective one
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// The serve command is the default command when no subcommand is specified.
package cmd
