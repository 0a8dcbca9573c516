// Package dedupe suppresses duplicate JSON-RPC requests within a
// session using a time-windowed cache, so a client retrying a POST does
// not run the same tool call twice.
package dedupe
