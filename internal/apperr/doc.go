// Package apperr defines the error taxonomy shared by the credential manager,
// the request executor, the provider adapters and the day aggregator.
//
// Every failure that crosses a component boundary is an *Error carrying a Kind.
// Callers branch on the kind with errors.Is against the exported sentinels:
//
//	if errors.Is(err, apperr.ErrPermanentAuth) {
//		// re-run the setup flow
//	}
//
// Validation errors additionally name the offending input field.
package apperr
