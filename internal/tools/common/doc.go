// Package common provides shared helpers for the MCP tool packages:
// argument parsing, result shaping and the instrumented handler wrapper.
package common
