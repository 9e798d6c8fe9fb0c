// Package protocol holds the timing and bounds constants shared by the note
// sync pipeline. They encode protocol-level assumptions between peers, so they
// are constants rather than runtime configuration; config defaults are seeded
// from here so a deployment can still pin them statically.
package protocol

import "time"

const (
	// StalenessThreshold is the maximum age of a note event before a
	// listener drops it as a replay or clock-skew artifact.
	StalenessThreshold = 10 * time.Second

	// EchoTTL bounds the lifetime of echo/duplicate keys.
	EchoTTL = 500 * time.Millisecond

	// EchoBucket is the coarse time bucket used to catch rapid re-sends of
	// the same logical note.
	EchoBucket = 300 * time.Millisecond

	// SetupDebounce rejects re-entry into subscription setup to survive
	// rapid remount churn.
	SetupDebounce = 2 * time.Second

	// HandleGrace extends an active-note handle past the note duration
	// before the same key may trigger again.
	HandleGrace = 100 * time.Millisecond

	// HostLivenessTimeout is how long a host may stay silent before its
	// room is eligible for auto-close.
	HostLivenessTimeout = 2 * time.Minute

	// LifecycleTick is the janitor sweep interval.
	LifecycleTick = 30 * time.Second

	// HeartbeatInterval is how often a mounted host refreshes its
	// liveness timestamp.
	HeartbeatInterval = 10 * time.Second
)

const (
	MinVelocity     = 0.1
	MaxVelocity     = 1.0
	DefaultVelocity = 0.7

	MinDurationMs     = 100
	MaxDurationMs     = 3000
	DefaultDurationMs = 500
)
