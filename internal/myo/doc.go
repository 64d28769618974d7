// Package myo describes the boundary with the armband vendor SDK.
//
// The SDK is an opaque collaborator. This package only declares what the
// session engine needs from it:
//   - A Hub that pumps events for a bounded time slice and dispatches them to listeners
//   - A Device handle with identity, a name and a handful of commands
//   - A Listener with one callback per device event
//   - Enumerations for arm sync, poses, vibrations, EMG streaming and locking policy
//
// Implementations live in subpackages (see sim) or behind hubfactory.
package myo
