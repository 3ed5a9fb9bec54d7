package pageview

import (
	"fmt"

	"github.com/gosight/gosight/engagement/internal/engagement"
)

// Signal kinds sent by the browser snippet.
const (
	KindActivity         = "activity"
	KindVisibility       = "visibility"
	KindVideo            = "video"
	KindNavigate         = "navigate"
	KindEnableHeartbeats = "enable_heartbeats"
)

// Signal is one raw notification from the page.
type Signal struct {
	Kind string `json:"kind"`

	// activity: the interaction signal name, e.g. "mousemove".
	Type string `json:"type,omitempty"`
	// visibility: "shown"/"visible" or "hidden".
	State string `json:"state,omitempty"`
	// video: player id and numeric player state.
	PlayerID    string `json:"player_id,omitempty"`
	PlayerState *int   `json:"player_state,omitempty"`
	// navigate: new location.
	URL      string `json:"url,omitempty"`
	Referrer string `json:"referrer,omitempty"`
	// enable_heartbeats: runtime kill switch.
	Enabled *bool `json:"enabled,omitempty"`
}

// Result counts the signals applied by one batch.
type Result struct {
	Accepted int      `json:"accepted_count"`
	Rejected int      `json:"rejected_count"`
	Errors   []string `json:"errors,omitempty"`
}

func (s Signal) apply(pv *PageView) error {
	switch s.Kind {
	case KindActivity:
		st, ok := engagement.ParseSignalType(s.Type)
		if !ok {
			return fmt.Errorf("unknown activity type %q", s.Type)
		}
		pv.tracker.RecordActivity(st)

	case KindVisibility:
		v, ok := engagement.ParseVisibility(s.State)
		if !ok {
			return fmt.Errorf("unknown visibility state %q", s.State)
		}
		pv.tracker.SetVisibility(v)

	case KindVideo:
		if s.PlayerID == "" || s.PlayerState == nil {
			return fmt.Errorf("video signal needs player_id and player_state")
		}
		pv.player(s.PlayerID).Report(engagement.PlayerState(*s.PlayerState))

	case KindNavigate:
		if s.URL == "" {
			return fmt.Errorf("navigate signal needs url")
		}
		pv.Navigate(s.URL, s.Referrer)

	case KindEnableHeartbeats:
		if s.Enabled == nil {
			return fmt.Errorf("enable_heartbeats signal needs enabled")
		}
		pv.tracker.SetHeartbeatsEnabled(*s.Enabled)

	default:
		return fmt.Errorf("unknown signal kind %q", s.Kind)
	}
	return nil
}
