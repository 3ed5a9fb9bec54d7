// Package replay runs a recorded signal trace through a page view on a
// virtual clock and collects the heartbeats it would have sent.
package replay

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gosight/gosight/engagement/internal/config"
	"github.com/gosight/gosight/engagement/internal/pageview"
)

// Trace is a recorded page view.
type Trace struct {
	ProjectID string    `yaml:"project_id"`
	SessionID string    `yaml:"session_id"`
	URL       string    `yaml:"url"`
	Referrer  string    `yaml:"referrer"`
	Start     time.Time `yaml:"start"`
	// Duration is when the page unloads. Zero means at the last event.
	Duration time.Duration           `yaml:"duration"`
	Options  config.EngagementConfig `yaml:"options"`
	Events   []Event                 `yaml:"events"`
}

// Event is one signal at an offset from the page load.
type Event struct {
	At          time.Duration `yaml:"at"`
	Kind        string        `yaml:"kind"`
	Type        string        `yaml:"type"`
	State       string        `yaml:"state"`
	PlayerID    string        `yaml:"player_id"`
	PlayerState *int          `yaml:"player_state"`
	URL         string        `yaml:"url"`
	Referrer    string        `yaml:"referrer"`
	Enabled     *bool         `yaml:"enabled"`
}

func (e Event) signal() pageview.Signal {
	return pageview.Signal{
		Kind:        e.Kind,
		Type:        e.Type,
		State:       e.State,
		PlayerID:    e.PlayerID,
		PlayerState: e.PlayerState,
		URL:         e.URL,
		Referrer:    e.Referrer,
		Enabled:     e.Enabled,
	}
}

// Load reads a YAML trace from path.
func Load(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML trace and orders its events by time.
func Parse(data []byte) (*Trace, error) {
	var tr Trace
	if err := yaml.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("parse trace: %w", err)
	}

	for i, e := range tr.Events {
		if e.At < 0 {
			return nil, fmt.Errorf("event %d: negative offset %v", i, e.At)
		}
	}
	sort.SliceStable(tr.Events, func(i, j int) bool {
		return tr.Events[i].At < tr.Events[j].At
	})

	if tr.Start.IsZero() {
		tr.Start = time.Unix(0, 0).UTC()
	}
	if tr.Duration == 0 && len(tr.Events) > 0 {
		tr.Duration = tr.Events[len(tr.Events)-1].At
	}
	if tr.Duration < 0 {
		return nil, fmt.Errorf("negative duration %v", tr.Duration)
	}
	return &tr, nil
}
