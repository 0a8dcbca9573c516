// ABOUTME: Package session is the transport-agnostic registry of client sessions.
// ABOUTME: IDs are unguessable UUIDs; closing is idempotent.

package session
