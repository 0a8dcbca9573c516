// ABOUTME: Package gateway assembles and runs the aggregation service.

// Package gateway wires configuration, the audit store, the profile
// manager, the router, and the MCP server into one runnable service
// with graceful shutdown.
package gateway
