// ABOUTME: Package registry tracks the qualified tool names of the active profile.
// ABOUTME: Rebuilt on every activation; cleared on every deactivation.

// Package registry maintains the mapping from caller-facing qualified
// tool names to the backends that own them. A qualified name is the
// backend ID, an underscore, then the tool's original name. Because
// backend IDs are unique within a profile, qualified names are
// collision-free by construction and no runtime conflict handling is
// needed.
package registry
