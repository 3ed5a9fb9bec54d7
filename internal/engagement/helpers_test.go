package engagement

import (
	"context"
	"errors"
	"sync"
	"time"
)

var t0 = time.Date(2015, 5, 1, 4, 0, 0, 0, time.UTC)

// manualClock is advanced explicitly by tests.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSink records delivered heartbeats.
type fakeSink struct {
	mu         sync.Mutex
	Heartbeats []Heartbeat
	Err        error
}

func (s *fakeSink) SendHeartbeat(_ context.Context, hb Heartbeat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Heartbeats = append(s.Heartbeats, hb)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Heartbeats)
}

var errTransport = errors.New("transport down")

type staticLocator struct {
	url, ref string
}

func (l staticLocator) Location() (string, string) { return l.url, l.ref }
