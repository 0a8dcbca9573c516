// ABOUTME: Package profile manages which named set of backends is active.
// ABOUTME: Exactly one profile is active at a time; switches are atomic.

package profile
