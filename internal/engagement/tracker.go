package engagement

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Deps are the collaborators of a Tracker. All of them are optional.
type Deps struct {
	// ID identifies the tracker in logs.
	ID      string
	Sink    Sink
	Locator Locator
	Clock   Clock
}

// Tracker owns the engagement state of one page view and serialises every
// writer (signals, video players, sampler, emitter, unload) behind one mutex.
type Tracker struct {
	cfg     Config
	id      string
	sink    Sink
	locator Locator
	clock   Clock

	mu       sync.Mutex
	state    State
	enabled  bool
	playing  []bool
	unloaded bool
	// emitted counts firings that reported time.
	emitted  int

	done     chan struct{}
	doneOnce sync.Once
}

// NewTracker creates a tracker whose page was loaded at deps.Clock.Now().
func NewTracker(cfg Config, deps Deps) *Tracker {
	clock := deps.Clock
	if clock == nil {
		clock = systemClock{}
	}

	return &Tracker{
		cfg:     cfg,
		id:      deps.ID,
		sink:    deps.Sink,
		locator: deps.Locator,
		clock:   clock,
		state:   NewState(clock.Now()),
		enabled: cfg.HeartbeatsEnabled,
		done:    make(chan struct{}),
	}
}

// Config returns the validated configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

// RecordActivity notes an interaction signal at the current time.
func (t *Tracker) RecordActivity(SignalType) {
	t.mu.Lock()
	t.state.LastEvent = t.clock.Now()
	t.mu.Unlock()
}

// SetVisibility records a foreground visibility transition.
func (t *Tracker) SetVisibility(v Visibility) {
	t.mu.Lock()
	t.state.Focused = v == VisibilityShown
	t.mu.Unlock()
}

// SetHeartbeatsEnabled toggles emission. It takes effect on the next firing.
func (t *Tracker) SetHeartbeatsEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

// ListenToPlayer tracks a video player. It returns false when n is nil, in
// which case nothing is subscribed.
func (t *Tracker) ListenToPlayer(n StateNotifier) bool {
	if n == nil {
		return false
	}

	t.mu.Lock()
	slot := len(t.playing)
	t.playing = append(t.playing, false)
	t.mu.Unlock()

	n.OnStateChange(func(s PlayerState) {
		t.playerStateChanged(slot, s)
	})
	return true
}

func (t *Tracker) playerStateChanged(slot int, s PlayerState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch s {
	case PlayerPlaying:
		t.playing[slot] = true
		t.state.LastEvent = t.clock.Now()
	case PlayerUnstarted, PlayerEnded, PlayerPaused:
		t.playing[slot] = false
	default:
		return
	}

	t.state.VideoPlaying = false
	for _, p := range t.playing {
		if p {
			t.state.VideoPlaying = true
			break
		}
	}
}

// Sample runs the sampler at the current time.
func (t *Tracker) Sample() {
	t.mu.Lock()
	t.state = Sample(t.state, t.clock.Now(), t.cfg.ActiveTimeout)
	t.mu.Unlock()
}

// Heartbeat runs one emitter firing: it reports the accumulated engaged time
// when valid and always resets the accumulator.
func (t *Tracker) Heartbeat() Decision {
	return t.fire(false)
}

// Unload flushes a final heartbeat and stops Run. When the last period has
// nothing to report but earlier heartbeats were sent, an ActionPageViewEnd
// record closes the page view instead. Later calls do nothing.
func (t *Tracker) Unload() Decision {
	t.mu.Lock()
	if t.unloaded {
		t.mu.Unlock()
		return Decision{}
	}
	t.unloaded = true
	t.mu.Unlock()

	d := t.fire(true)
	if !d.Emit {
		t.sendEnd()
	}
	t.doneOnce.Do(func() { close(t.done) })
	return d
}

// Done is closed once the tracker has been unloaded.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

func (t *Tracker) fire(final bool) Decision {
	t.mu.Lock()
	now := t.clock.Now()
	enabled := t.enabled
	d := Evaluate(t.state.Engaged, t.cfg.HeartbeatInterval, enabled)
	t.state.Engaged = 0
	if d.Emit {
		t.emitted++
	}
	t.mu.Unlock()

	if !d.Emit {
		if d.Inc > 0 && enabled {
			log.Debug().
				Str("tracker", t.id).
				Float64("engaged_secs", d.EngagedSecs).
				Msg("Dropped implausible heartbeat period")
		}
		return d
	}

	if t.cfg.OnHeartbeat != nil {
		t.cfg.OnHeartbeat(d.Inc)
	}

	if t.sink == nil {
		return d
	}

	hb := Heartbeat{
		Action:    ActionHeartbeat,
		Inc:       d.Inc,
		Timestamp: now,
		Final:     final,
	}
	t.send(hb)
	return d
}

func (t *Tracker) sendEnd() {
	t.mu.Lock()
	now := t.clock.Now()
	emitted := t.emitted
	t.mu.Unlock()

	if emitted == 0 || t.sink == nil {
		return
	}
	t.send(Heartbeat{
		Action:    ActionPageViewEnd,
		Timestamp: now,
		Final:     true,
	})
}

func (t *Tracker) send(hb Heartbeat) {
	if t.locator != nil {
		hb.URL, hb.URLRef = t.locator.Location()
	}

	if err := t.sink.SendHeartbeat(context.Background(), hb); err != nil {
		log.Debug().Err(err).Str("tracker", t.id).Str("action", hb.Action).Int("inc", hb.Inc).Msg("Heartbeat not delivered")
	}
}

// Snapshot returns the current engagement status.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.snapshot()
}

// Run samples every SampleInterval and fires the emitter every
// HeartbeatInterval until ctx is cancelled or the tracker is unloaded.
func (t *Tracker) Run(ctx context.Context) {
	sampler := time.NewTicker(t.cfg.SampleInterval)
	defer sampler.Stop()
	emitter := time.NewTicker(t.cfg.HeartbeatInterval)
	defer emitter.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case <-sampler.C:
			t.Sample()
		case <-emitter.C:
			t.Heartbeat()
		}
	}
}
