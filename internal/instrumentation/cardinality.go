package instrumentation

import "strings"

// SourceType reduces an aggregation source name such as "calendar:work@x.com"
// or "ics:holidays" to its type ("calendar", "ics"). Calendar and list ids
// are unbounded and must not become metric labels by default.
func SourceType(source string) string {
	kind, _, ok := strings.Cut(source, ":")
	if !ok || kind == "" {
		return "unknown"
	}
	return kind
}

// Common operation names for provider metrics.
const (
	OperationList     = "list"
	OperationListAll  = "list_lists"
	OperationGet      = "get"
	OperationCreate   = "create"
	OperationUpdate   = "update"
	OperationDelete   = "delete"
	OperationComplete = "complete"
	OperationFetch    = "fetch"
	OperationRefresh  = "refresh"
)
