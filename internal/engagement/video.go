package engagement

import "sync"

// PlayerState is an embedded player's numeric state code.
type PlayerState int

const (
	PlayerUnstarted PlayerState = -1
	PlayerEnded     PlayerState = 0
	PlayerPlaying   PlayerState = 1
	PlayerPaused    PlayerState = 2
)

func (s PlayerState) String() string {
	switch s {
	case PlayerUnstarted:
		return "unstarted"
	case PlayerEnded:
		return "ended"
	case PlayerPlaying:
		return "playing"
	case PlayerPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// StateNotifier is the capability a player needs to be tracked: it delivers
// state changes to a subscriber.
type StateNotifier interface {
	OnStateChange(fn func(PlayerState))
}

// RemotePlayer is a StateNotifier fed by state codes reported from a browser.
type RemotePlayer struct {
	ID string

	mu   sync.Mutex
	subs []func(PlayerState)
}

// NewRemotePlayer returns a player with the given id.
func NewRemotePlayer(id string) *RemotePlayer {
	return &RemotePlayer{ID: id}
}

// OnStateChange registers fn for subsequent Report calls.
func (p *RemotePlayer) OnStateChange(fn func(PlayerState)) {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

// Report delivers a state code to every subscriber.
func (p *RemotePlayer) Report(state PlayerState) {
	p.mu.Lock()
	subs := make([]func(PlayerState), len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}
