// ABOUTME: Package mcp exposes the aggregated tool surface to MCP clients.
// ABOUTME: Supports Streamable HTTP, legacy SSE, and stdio transports.

// Package mcp implements the gateway's client-facing protocol layer.
// All three transports share one session registry and one dispatch
// path into the aggregation router, so a tool call behaves identically
// regardless of how it arrived.
package mcp
