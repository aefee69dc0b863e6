package batch

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/instrumentation"
)

// Result represents the result of a single operation in a batch
type Result struct {
	ID     string      `json:"id"`
	Status string      `json:"status"` // "success" or "error"
	Result interface{} `json:"result,omitempty"`
	Kind   apperr.Kind `json:"kind,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// BatchResult represents the aggregated results of a batch operation
type BatchResult struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// ParseStringOrArray parses a parameter that can be either a single string or an array of strings.
// Some clients send arrays as a JSON-encoded string; those are decoded too.
func ParseStringOrArray(param interface{}, paramName string) ([]string, error) {
	const op = "batch.parse"

	if param == nil {
		return nil, apperr.Validation(op, paramName, "%s is required", paramName)
	}

	var result []string

	switch v := param.(type) {
	case string:
		if v == "" {
			return nil, apperr.Validation(op, paramName, "%s cannot be empty", paramName)
		}
		var decoded []string
		if strings.HasPrefix(v, "[") && json.Unmarshal([]byte(v), &decoded) == nil {
			items := make([]interface{}, len(decoded))
			for i, d := range decoded {
				items[i] = d
			}
			return ParseStringOrArray(items, paramName)
		}
		result = []string{v}
	case []interface{}:
		if len(v) == 0 {
			return nil, apperr.Validation(op, paramName, "%s cannot be empty", paramName)
		}
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, apperr.Validation(op, paramName, "%s[%d] must be a string", paramName, i)
			}
			if str == "" {
				return nil, apperr.Validation(op, paramName, "%s[%d] cannot be empty", paramName, i)
			}
			result = append(result, str)
		}
	default:
		return nil, apperr.Validation(op, paramName, "%s must be a string or array of strings", paramName)
	}

	return result, nil
}

// Summarize counts the outcomes of a batch.
func Summarize(results []Result) BatchResult {
	br := BatchResult{
		Total:   len(results),
		Results: results,
	}

	for _, r := range results {
		if r.Status == instrumentation.StatusSuccess {
			br.Successful++
		} else {
			br.Failed++
		}
	}
	return br
}

// ProcessBatch executes fn on each id in order and collects the results.
// Once ctx is done the remaining ids are reported as cancelled without
// calling fn.
func ProcessBatch(ctx context.Context, ids []string, fn func(ctx context.Context, id string) (interface{}, error)) []Result {
	results := make([]Result, 0, len(ids))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			results = append(results, NewErrorResult(id, apperr.Cancelled("batch", err)))
			continue
		}
		res, err := fn(ctx, id)
		if err != nil {
			results = append(results, NewErrorResult(id, err))
			continue
		}
		results = append(results, NewSuccessResult(id, res))
	}

	return results
}

// NewSuccessResult creates a success result
func NewSuccessResult(id string, result interface{}) Result {
	return Result{
		ID:     id,
		Status: instrumentation.StatusSuccess,
		Result: result,
	}
}

// NewErrorResult creates an error result
func NewErrorResult(id string, err error) Result {
	return Result{
		ID:     id,
		Status: instrumentation.StatusError,
		Kind:   apperr.KindOf(err),
		Error:  err.Error(),
	}
}
