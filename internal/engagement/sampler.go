package engagement

import "time"

// Sample re-evaluates engagement at now and accumulates the time elapsed since
// the previous sample when engaged. The whole interval is attributed according
// to the state at now, even if engagement changed part way through it.
//
// Sample depends only on its arguments.
func Sample(s State, now time.Time, activeTimeout time.Duration) State {
	// A LastEvent in the future (clock moved backwards) counts as interacting.
	s.Interacting = now.Sub(s.LastEvent) < activeTimeout
	s.IsEngaged = (s.Interacting && s.Focused) || s.VideoPlaying

	// A backwards clock jump never drains the accumulator.
	if elapsed := now.Sub(s.LastSample); s.IsEngaged && elapsed > 0 {
		s.Engaged += elapsed
	}
	s.LastSample = now

	return s
}
