// Package engagement measures how long a visitor is actively engaged with a
// page and turns that time into bounded heartbeat increments.
//
// The sampler and emitter are pure functions over State so they can be
// driven by a real ticker (Tracker.Run) or by a virtual clock (replay, tests).
package engagement

import "time"

// State is the engagement state of a single page view.
type State struct {
	// LastEvent is the time of the most recent qualifying activity.
	LastEvent time.Time
	// LastSample is the time of the previous sampler run.
	LastSample time.Time
	// Engaged accumulates engaged time since the last heartbeat attempt.
	Engaged time.Duration

	Focused      bool
	VideoPlaying bool

	// Derived on every sample.
	Interacting bool
	IsEngaged   bool
}

// NewState returns the optimistic initial state for a page loaded at now.
func NewState(now time.Time) State {
	return State{
		LastEvent:   now,
		LastSample:  now,
		Focused:     true,
		Interacting: true,
		IsEngaged:   true,
	}
}

// Snapshot is the externally visible engagement status of a page view.
type Snapshot struct {
	IsEngaged     bool      `json:"is_engaged"`
	IsInteracting bool      `json:"is_interacting"`
	Focused       bool      `json:"focused"`
	VideoPlaying  bool      `json:"video_playing"`
	EngagedMs     int64     `json:"engaged_ms"`
	LastEvent     time.Time `json:"last_event"`
	LastSample    time.Time `json:"last_sample"`
}

func (s State) snapshot() Snapshot {
	return Snapshot{
		IsEngaged:     s.IsEngaged,
		IsInteracting: s.Interacting,
		Focused:       s.Focused,
		VideoPlaying:  s.VideoPlaying,
		EngagedMs:     s.Engaged.Milliseconds(),
		LastEvent:     s.LastEvent,
		LastSample:    s.LastSample,
	}
}
