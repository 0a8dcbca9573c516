// ABOUTME: Package router dispatches aggregated tool calls to backends.
// ABOUTME: All routing failures surface as error-flagged tool results.

package router
