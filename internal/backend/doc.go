// ABOUTME: Package backend manages live connections to individual tool servers.
// ABOUTME: Each connection speaks MCP over stdio or streamable HTTP.

// Package backend opens and owns connections to the tool servers a
// profile names. A connection is established with a full MCP handshake,
// captures the backend's tool list once at connect time, and then serves
// invocations until the profile that created it is deactivated.
//
// Connections are strictly profile-scoped. Deactivation closes every
// connection and nothing is reused across a profile switch, so two
// activations of the same profile always observe the same behavior as a
// fresh start.
package backend
