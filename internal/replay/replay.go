package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gosight/gosight/engagement/internal/beacon"
	"github.com/gosight/gosight/engagement/internal/engagement"
	"github.com/gosight/gosight/engagement/internal/pageview"
)

// Result is what a replayed page view reported.
type Result struct {
	Heartbeats []*beacon.Heartbeat
	// End is the end record sent when the unload had nothing to report.
	End *beacon.Heartbeat
	// Dropped counts emitter firings that reported nothing.
	Dropped int
	// Rejected lists events the page view refused.
	Rejected     []string
	EngagedTotal int
	Config       engagement.Config
}

type virtualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *virtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *virtualClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recorder struct {
	mu         sync.Mutex
	heartbeats []*beacon.Heartbeat
}

func (r *recorder) PublishHeartbeat(_ context.Context, hb *beacon.Heartbeat) error {
	r.mu.Lock()
	r.heartbeats = append(r.heartbeats, hb)
	r.mu.Unlock()
	return nil
}

// Run replays tr. The page is sampled every SampleInterval, the emitter fires
// at every heartbeat interval boundary after the sample due at the same
// instant, and the page unloads at tr.Duration.
func Run(tr *Trace) (*Result, error) {
	if tr == nil {
		return nil, fmt.Errorf("nil trace")
	}

	clock := &virtualClock{now: tr.Start}
	rec := &recorder{}
	reg := pageview.NewRegistry(pageview.Settings{
		Defaults: engagement.Options{
			EnableHeartbeats:         tr.Options.EnableHeartbeats,
			SecondsBetweenHeartbeats: tr.Options.SecondsBetweenHeartbeats,
			ActiveTimeout:            tr.Options.ActiveTimeout,
		},
		Clock:  clock,
		Manual: true,
	}, rec)
	defer reg.Close()

	pv := reg.Start(pageview.StartRequest{
		ProjectID: tr.ProjectID,
		SessionID: tr.SessionID,
		URL:       tr.URL,
		Referrer:  tr.Referrer,
	})
	tracker := pv.Tracker()
	cfg := tracker.Config()
	res := &Result{Config: cfg}

	next := 0
	applyDue := func(elapsed time.Duration) error {
		for next < len(tr.Events) && tr.Events[next].At <= elapsed {
			out, err := reg.Apply(pv.ID, []pageview.Signal{tr.Events[next].signal()})
			if err != nil {
				return err
			}
			for _, msg := range out.Errors {
				res.Rejected = append(res.Rejected, fmt.Sprintf("at %v: %s", tr.Events[next].At, msg))
			}
			next++
		}
		return nil
	}

	nextBeat := cfg.HeartbeatInterval
	for elapsed := time.Duration(0); elapsed < tr.Duration; {
		if err := applyDue(elapsed); err != nil {
			return nil, err
		}

		elapsed += cfg.SampleInterval
		clock.set(tr.Start.Add(elapsed))
		tracker.Sample()

		if elapsed >= nextBeat {
			if d := tracker.Heartbeat(); !d.Emit {
				res.Dropped++
			}
			nextBeat += cfg.HeartbeatInterval
		}
	}
	if err := applyDue(tr.Duration); err != nil {
		return nil, err
	}

	if _, err := reg.Unload(pv.ID); err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, hb := range rec.heartbeats {
		if hb.Action == engagement.ActionPageViewEnd {
			res.End = hb
			continue
		}
		res.Heartbeats = append(res.Heartbeats, hb)
		res.EngagedTotal += hb.Inc
	}
	return res, nil
}
