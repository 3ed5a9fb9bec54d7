package pageview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosight/gosight/engagement/internal/beacon"
	"github.com/gosight/gosight/engagement/internal/config"
	"github.com/gosight/gosight/engagement/internal/engagement"
)

var ErrPageViewNotFound = errors.New("page view not found")

// Settings configure a Registry.
type Settings struct {
	// Defaults apply to every page view unless the page overrides them.
	Defaults    engagement.Options
	IdleTimeout time.Duration
	// Clock defaults to the system clock.
	Clock engagement.Clock
	// Manual leaves sampling and heartbeats to the caller instead of running
	// each tracker on its own tickers.
	Manual bool
}

// SettingsFromConfig builds registry settings from the service config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Defaults: engagement.Options{
			EnableHeartbeats:         cfg.Engagement.EnableHeartbeats,
			SecondsBetweenHeartbeats: cfg.Engagement.SecondsBetweenHeartbeats,
			ActiveTimeout:            cfg.Engagement.ActiveTimeout,
		},
		IdleTimeout: cfg.PageViews.IdleTimeout,
	}
}

// StartRequest describes a newly loaded page.
type StartRequest struct {
	ProjectID string
	SessionID string
	URL       string
	Referrer  string
	Client    beacon.Client

	// Page-level overrides of the default options.
	EnableHeartbeats         *bool
	SecondsBetweenHeartbeats float64
	ActiveTimeout            float64
}

// Registry holds the live page views.
type Registry struct {
	settings   Settings
	publishers []Publisher
	clock      engagement.Clock

	mu    sync.RWMutex
	views map[string]*PageView

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a registry publishing heartbeats to publishers.
func NewRegistry(settings Settings, publishers ...Publisher) *Registry {
	clock := settings.Clock
	if clock == nil {
		clock = engagement.ClockFunc(time.Now)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		settings:   settings,
		publishers: publishers,
		clock:      clock,
		views:      make(map[string]*PageView),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start registers a page view and starts its tracker.
func (r *Registry) Start(req StartRequest) *PageView {
	now := r.clock.Now()
	id := uuid.New().String()

	pv := &PageView{
		ID: id,
		Identity: beacon.Identity{
			ProjectID:  req.ProjectID,
			SessionID:  req.SessionID,
			PageViewID: id,
		},
		Client:     req.Client,
		StartedAt:  now,
		publishers: r.publishers,
		clock:      r.clock,
		url:        req.URL,
		referrer:   req.Referrer,
		lastSeen:   now,
		players:    make(map[string]*engagement.RemotePlayer),
	}

	opts := r.options(req, id)
	pv.tracker = engagement.NewTracker(engagement.NewConfig(opts), engagement.Deps{
		ID:      id,
		Sink:    pv,
		Locator: pv,
		Clock:   r.clock,
	})

	r.mu.Lock()
	r.views[id] = pv
	r.mu.Unlock()

	if !r.settings.Manual {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			pv.tracker.Run(r.ctx)
		}()
	}

	log.Debug().
		Str("page_view_id", id).
		Str("project_id", req.ProjectID).
		Str("url", req.URL).
		Msg("Page view started")

	return pv
}

func (r *Registry) options(req StartRequest, id string) engagement.Options {
	opts := r.settings.Defaults
	if req.EnableHeartbeats != nil {
		opts.EnableHeartbeats = req.EnableHeartbeats
	}
	// An invalid page override keeps the service default.
	if engagement.ValidSecondsBetweenHeartbeats(req.SecondsBetweenHeartbeats) {
		opts.SecondsBetweenHeartbeats = req.SecondsBetweenHeartbeats
	}
	if engagement.ValidActiveTimeout(req.ActiveTimeout) {
		opts.ActiveTimeout = req.ActiveTimeout
	}
	opts.OnHeartbeat = func(secs int) {
		log.Debug().Str("page_view_id", id).Int("inc", secs).Msg("Heartbeat")
	}
	return opts
}

// Get returns a live page view.
func (r *Registry) Get(id string) (*PageView, error) {
	r.mu.RLock()
	pv, ok := r.views[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrPageViewNotFound
	}
	return pv, nil
}

// Len returns the number of live page views.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}

// Apply feeds signals to a page view's tracker. Invalid signals are skipped
// and counted as rejected.
func (r *Registry) Apply(id string, signals []Signal) (Result, error) {
	pv, err := r.Get(id)
	if err != nil {
		return Result{}, err
	}
	pv.touch(r.clock.Now())

	var res Result
	for _, s := range signals {
		if err := s.apply(pv); err != nil {
			res.Rejected++
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		res.Accepted++
	}
	return res, nil
}

// Unload flushes the final heartbeat of a page view, or its end record, and
// forgets it.
func (r *Registry) Unload(id string) (engagement.Decision, error) {
	r.mu.Lock()
	pv, ok := r.views[id]
	delete(r.views, id)
	r.mu.Unlock()
	if !ok {
		return engagement.Decision{}, ErrPageViewNotFound
	}

	d := pv.tracker.Unload()
	log.Debug().
		Str("page_view_id", id).
		Bool("emitted", d.Emit).
		Int("inc", d.Inc).
		Msg("Page view unloaded")
	return d, nil
}

// Sweep unloads page views that have sent no signal for IdleTimeout.
func (r *Registry) Sweep() int {
	if r.settings.IdleTimeout <= 0 {
		return 0
	}
	cutoff := r.clock.Now().Add(-r.settings.IdleTimeout)

	r.mu.RLock()
	var idle []string
	for id, pv := range r.views {
		if pv.idleSince().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range idle {
		r.Unload(id)
	}
	if len(idle) > 0 {
		log.Info().Int("count", len(idle)).Msg("Unloaded idle page views")
	}
	return len(idle)
}

// RunSweeper sweeps idle page views every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close unloads every page view, flushing their last heartbeats, and waits
// for the trackers to stop.
func (r *Registry) Close() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.views))
	for id := range r.views {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Unload(id)
	}

	r.cancel()
	r.wg.Wait()
	log.Info().Int("count", len(ids)).Msg("Flushed page views")
}
