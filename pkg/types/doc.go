// Package types defines the shared response contract and error taxonomy
// for the query optimization service.
//
// Every call to the orchestrator produces a Response of the same shape,
// regardless of outcome. The Source field tells the caller where the
// optimization came from:
//
//   - SourceHistory: a previously validated result was reused
//   - SourceEngine:  the optimization engine produced a fresh result
//   - SourceError:   a critical-path failure occurred; Explanation carries
//     the diagnostic and the suggestion lists are empty
//
// Errors cross component boundaries as wrapped sentinels so callers can
// classify them with errors.Is:
//
//	if errors.Is(err, types.ErrNotFound) {
//	    // feedback against an unknown result
//	}
package types
