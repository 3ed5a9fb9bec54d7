// Package beacon defines the heartbeat message delivered to the collector.
package beacon

import (
	"github.com/google/uuid"

	"github.com/gosight/gosight/engagement/internal/engagement"
)

// Heartbeat is the wire form of an engaged-time increment. The first four
// fields are the pixel parameters; the rest identify the page view.
type Heartbeat struct {
	Action string `json:"action"`
	Inc    int    `json:"inc"`
	URL    string `json:"url"`
	URLRef string `json:"urlref"`

	EventID         string `json:"event_id"`
	ProjectID       string `json:"project_id"`
	SessionID       string `json:"session_id"`
	PageViewID      string `json:"page_view_id"`
	Timestamp       int64  `json:"timestamp"`
	ServerTimestamp int64  `json:"server_timestamp"`
	Final           bool   `json:"final"`

	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browser_version,omitempty"`
	OS             string `json:"os,omitempty"`
	DeviceType     string `json:"device_type,omitempty"`
	Country        string `json:"country,omitempty"`
	City           string `json:"city,omitempty"`
}

// Identity is the page view a heartbeat belongs to.
type Identity struct {
	ProjectID  string
	SessionID  string
	PageViewID string
}

// Client is what the enricher learned about the visitor.
type Client struct {
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browser_version,omitempty"`
	OS             string `json:"os,omitempty"`
	DeviceType     string `json:"device_type,omitempty"`
	Country        string `json:"country,omitempty"`
	City           string `json:"city,omitempty"`
}

// New builds the wire heartbeat for hb.
func New(hb engagement.Heartbeat, id Identity, client Client, serverMs int64) *Heartbeat {
	return &Heartbeat{
		Action:          hb.Action,
		Inc:             hb.Inc,
		URL:             hb.URL,
		URLRef:          hb.URLRef,
		EventID:         uuid.New().String(),
		ProjectID:       id.ProjectID,
		SessionID:       id.SessionID,
		PageViewID:      id.PageViewID,
		Timestamp:       hb.Timestamp.UnixMilli(),
		ServerTimestamp: serverMs,
		Final:           hb.Final,
		Browser:         client.Browser,
		BrowserVersion:  client.BrowserVersion,
		OS:              client.OS,
		DeviceType:      client.DeviceType,
		Country:         client.Country,
		City:            client.City,
	}
}
