// ABOUTME: Package store persists gateway audit records in SQLite.
// ABOUTME: Optional; the gateway runs fully without it.

// Package store records tool invocations and profile activations for
// after-the-fact inspection. Only metadata is stored. Tool arguments and
// results never touch the database.
package store
