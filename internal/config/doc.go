// Package config loads mcp-hub configuration and profile descriptors.
//
// Two kinds of file are handled:
//
//   - The gateway config (Load): server addresses, transport mode, profile
//     locations, audit database path, Tailscale and logging settings.
//   - Profile descriptors (LoadProfile, LoadProfileByName): named sets of
//     backend specifications, one YAML file per profile.
//
// Both support ${VAR_NAME} environment expansion. Validation is strict and
// happens at load time: a backend spec missing both command and url (or
// carrying both) is rejected before any connection is attempted, so a
// malformed profile never reaches the profile manager.
package config
