package engagement

import (
	"math"
	"time"
)

const (
	MinSecondsBetweenHeartbeats = 1.0
	MaxSecondsBetweenHeartbeats = 15.0
	MinActiveTimeout            = 1.0
	MaxActiveTimeout            = 60.0

	DefaultSecondsBetweenHeartbeats = 5.5
	DefaultActiveTimeout            = 5.0

	// SampleInterval is the fixed sampler period.
	SampleInterval = 100 * time.Millisecond

	// heartbeatGrace absorbs scheduling jitter between the sampler and emitter.
	heartbeatGrace = 250 * time.Millisecond
)

// Options are the caller-supplied tracker settings. Every field is optional.
type Options struct {
	// EnableHeartbeats: nil or true enables heartbeats, an explicit false disables them.
	EnableHeartbeats *bool
	// SecondsBetweenHeartbeats must lie in [1, 15], otherwise 5.5 is used.
	SecondsBetweenHeartbeats float64
	// ActiveTimeout in seconds must lie in [1, 60], otherwise 5 is used.
	ActiveTimeout float64
	// OnHeartbeat is called with the increment of every emitted heartbeat.
	OnHeartbeat func(engagedSecs int)
}

// Config is the validated, immutable tracker configuration.
type Config struct {
	HeartbeatsEnabled bool
	HeartbeatInterval time.Duration
	ActiveTimeout     time.Duration
	SampleInterval    time.Duration
	OnHeartbeat       func(engagedSecs int)
}

// NewConfig validates opts. Invalid values are ignored and the default kept.
func NewConfig(opts Options) Config {
	cfg := Config{
		HeartbeatsEnabled: opts.EnableHeartbeats == nil || *opts.EnableHeartbeats,
		HeartbeatInterval: seconds(DefaultSecondsBetweenHeartbeats),
		ActiveTimeout:     seconds(DefaultActiveTimeout),
		SampleInterval:    SampleInterval,
		OnHeartbeat:       opts.OnHeartbeat,
	}

	if ValidSecondsBetweenHeartbeats(opts.SecondsBetweenHeartbeats) {
		cfg.HeartbeatInterval = seconds(opts.SecondsBetweenHeartbeats)
	}
	if ValidActiveTimeout(opts.ActiveTimeout) {
		cfg.ActiveTimeout = seconds(opts.ActiveTimeout)
	}

	return cfg
}

// Bool returns a pointer to b, for the tri-state EnableHeartbeats option.
func Bool(b bool) *bool {
	return &b
}

// ValidSecondsBetweenHeartbeats reports whether secs is an accepted
// heartbeat interval.
func ValidSecondsBetweenHeartbeats(secs float64) bool {
	return inRange(secs, MinSecondsBetweenHeartbeats, MaxSecondsBetweenHeartbeats)
}

// ValidActiveTimeout reports whether secs is an accepted active timeout.
func ValidActiveTimeout(secs float64) bool {
	return inRange(secs, MinActiveTimeout, MaxActiveTimeout)
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
