// Package pageview keeps the live page views of the tracker service, each with
// its own engagement tracker.
package pageview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gosight/gosight/engagement/internal/beacon"
	"github.com/gosight/gosight/engagement/internal/engagement"
)

// Publisher delivers heartbeats to a collector transport.
type Publisher interface {
	PublishHeartbeat(ctx context.Context, hb *beacon.Heartbeat) error
}

// PageView is one tracked load of a page.
type PageView struct {
	ID        string
	Identity  beacon.Identity
	Client    beacon.Client
	StartedAt time.Time

	tracker    *engagement.Tracker
	publishers []Publisher
	clock      engagement.Clock

	mu       sync.Mutex
	url      string
	referrer string
	lastSeen time.Time
	players  map[string]*engagement.RemotePlayer
}

// Location implements engagement.Locator.
func (pv *PageView) Location() (string, string) {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	return pv.url, pv.referrer
}

// Navigate updates the location reported by later heartbeats.
func (pv *PageView) Navigate(url, referrer string) {
	pv.mu.Lock()
	pv.url = url
	if referrer != "" {
		pv.referrer = referrer
	}
	pv.mu.Unlock()
}

// SendHeartbeat implements engagement.Sink by publishing to every transport.
func (pv *PageView) SendHeartbeat(ctx context.Context, hb engagement.Heartbeat) error {
	msg := beacon.New(hb, pv.Identity, pv.Client, pv.clock.Now().UnixMilli())

	var errs []error
	for _, p := range pv.publishers {
		if err := p.PublishHeartbeat(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Tracker returns the page view's engagement tracker.
func (pv *PageView) Tracker() *engagement.Tracker {
	return pv.tracker
}

// Snapshot returns the engagement status of the page view.
func (pv *PageView) Snapshot() Snapshot {
	url, ref := pv.Location()
	return Snapshot{
		ID:         pv.ID,
		ProjectID:  pv.Identity.ProjectID,
		SessionID:  pv.Identity.SessionID,
		URL:        url,
		Referrer:   ref,
		StartedAt:  pv.StartedAt,
		Engagement: pv.tracker.Snapshot(),
	}
}

// Snapshot is the JSON view of a page view.
type Snapshot struct {
	ID         string              `json:"id"`
	ProjectID  string              `json:"project_id"`
	SessionID  string              `json:"session_id"`
	URL        string              `json:"url"`
	Referrer   string              `json:"referrer"`
	StartedAt  time.Time           `json:"started_at"`
	Engagement engagement.Snapshot `json:"engagement"`
}

func (pv *PageView) touch(now time.Time) {
	pv.mu.Lock()
	pv.lastSeen = now
	pv.mu.Unlock()
}

func (pv *PageView) idleSince() time.Time {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	return pv.lastSeen
}

// player returns the remote player for id, subscribing it on first use.
func (pv *PageView) player(id string) *engagement.RemotePlayer {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	p, ok := pv.players[id]
	if !ok {
		p = engagement.NewRemotePlayer(id)
		pv.tracker.ListenToPlayer(p)
		pv.players[id] = p
	}
	return p
}
