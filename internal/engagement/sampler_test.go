package engagement

import (
	"testing"
	"time"
)

func TestSampleInteracting(t *testing.T) {
	timeout := 5 * time.Second
	tests := []struct {
		name      string
		sinceLast time.Duration
		want      bool
	}{
		{"outside timeout", 5010 * time.Millisecond, false},
		{"inside timeout", 4990 * time.Millisecond, true},
		{"exactly at timeout", 5 * time.Second, false},
		{"just happened", 0, true},
		{"event in the future", -2 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState(t0.Add(-time.Minute))
			s.LastEvent = t0.Add(-tt.sinceLast)

			got := Sample(s, t0, timeout)
			if got.Interacting != tt.want {
				t.Errorf("Interacting = %v, want %v", got.Interacting, tt.want)
			}
		})
	}
}

func TestSampleOutsideTimeoutNotEngaged(t *testing.T) {
	s := NewState(t0.Add(-100 * time.Millisecond))
	s.LastEvent = t0.Add(-5010 * time.Millisecond)

	got := Sample(s, t0, 5*time.Second)
	if got.Interacting || got.IsEngaged {
		t.Errorf("expected not interacting and not engaged, got %+v", got)
	}
	if got.Engaged != 0 {
		t.Errorf("expected no engaged time, got %v", got.Engaged)
	}
	if !got.LastSample.Equal(t0) {
		t.Errorf("LastSample = %v, want %v", got.LastSample, t0)
	}
}

func TestSampleInsideTimeoutFocused(t *testing.T) {
	s := NewState(t0.Add(-100 * time.Millisecond))
	s.LastEvent = t0.Add(-4990 * time.Millisecond)

	got := Sample(s, t0, 5*time.Second)
	if !got.Interacting || !got.IsEngaged {
		t.Errorf("expected interacting and engaged, got %+v", got)
	}
	if got.Engaged != 100*time.Millisecond {
		t.Errorf("Engaged = %v, want 100ms", got.Engaged)
	}
}

func TestSampleEngagedTruthTable(t *testing.T) {
	for _, interacting := range []bool{false, true} {
		for _, focused := range []bool{false, true} {
			for _, video := range []bool{false, true} {
				s := NewState(t0.Add(-100 * time.Millisecond))
				s.Focused = focused
				s.VideoPlaying = video
				if interacting {
					s.LastEvent = t0.Add(-time.Second)
				} else {
					s.LastEvent = t0.Add(-time.Minute)
				}

				got := Sample(s, t0, 5*time.Second)
				want := (interacting && focused) || video
				if got.Interacting != interacting {
					t.Errorf("interacting=%v focused=%v video=%v: Interacting = %v", interacting, focused, video, got.Interacting)
				}
				if got.IsEngaged != want {
					t.Errorf("interacting=%v focused=%v video=%v: IsEngaged = %v, want %v", interacting, focused, video, got.IsEngaged, want)
				}

				wantEngaged := time.Duration(0)
				if want {
					wantEngaged = 100 * time.Millisecond
				}
				if got.Engaged != wantEngaged {
					t.Errorf("interacting=%v focused=%v video=%v: Engaged = %v, want %v", interacting, focused, video, got.Engaged, wantEngaged)
				}
			}
		}
	}
}

func TestSampleAccumulatesOnPrior(t *testing.T) {
	s := NewState(t0.Add(-137 * time.Millisecond))
	s.Engaged = 2500 * time.Millisecond

	got := Sample(s, t0, 5*time.Second)
	if got.Engaged != 2637*time.Millisecond {
		t.Errorf("Engaged = %v, want 2.637s", got.Engaged)
	}

	s.Focused = false
	got = Sample(s, t0, 5*time.Second)
	if got.Engaged != 2500*time.Millisecond {
		t.Errorf("unfocused Engaged = %v, want 2.5s", got.Engaged)
	}
}

func TestSampleIdempotentAtSameTime(t *testing.T) {
	s := NewState(t0)
	s.Engaged = 300 * time.Millisecond

	once := Sample(s, t0, 5*time.Second)
	twice := Sample(once, t0, 5*time.Second)
	if once.Engaged != 300*time.Millisecond || twice.Engaged != 300*time.Millisecond {
		t.Errorf("expected accumulator unchanged, got %v then %v", once.Engaged, twice.Engaged)
	}
}

func TestSampleClockMovedBackwards(t *testing.T) {
	s := NewState(t0.Add(time.Second))
	s.Engaged = 400 * time.Millisecond

	got := Sample(s, t0, 5*time.Second)
	if !got.IsEngaged {
		t.Error("future LastEvent should still count as engaged")
	}
	if got.Engaged != 400*time.Millisecond {
		t.Errorf("Engaged = %v, want 400ms", got.Engaged)
	}
	if !got.LastSample.Equal(t0) {
		t.Errorf("LastSample = %v, want %v", got.LastSample, t0)
	}
}

func TestSampleEndOfIntervalAttribution(t *testing.T) {
	// Focus is lost part way through the interval; the whole interval follows
	// the state at the end of it.
	clock := newManualClock(t0)
	tr := NewTracker(NewConfig(Options{}), Deps{Clock: clock})

	clock.Advance(40 * time.Millisecond)
	tr.SetVisibility(VisibilityHidden)
	clock.Advance(60 * time.Millisecond)
	tr.Sample()

	if got := tr.Snapshot().EngagedMs; got != 0 {
		t.Errorf("EngagedMs = %d, want 0", got)
	}

	// And the reverse: focus regained late in an interval credits all of it.
	clock.Advance(70 * time.Millisecond)
	tr.SetVisibility(VisibilityShown)
	tr.RecordActivity(SignalKeyDown)
	clock.Advance(30 * time.Millisecond)
	tr.Sample()

	if got := tr.Snapshot().EngagedMs; got != 100 {
		t.Errorf("EngagedMs = %d, want 100", got)
	}
}
