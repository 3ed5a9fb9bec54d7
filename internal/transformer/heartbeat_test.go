package transformer

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gosight/gosight/engagement/internal/beacon"
	"github.com/gosight/gosight/engagement/internal/engagement"
)

func decode(t *testing.T, v interface{}) map[string]interface{} {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestTransformHeartbeat(t *testing.T) {
	hb := beacon.New(engagement.Heartbeat{
		Action:    engagement.ActionHeartbeat,
		Inc:       6,
		URL:       "https://example.com/blog/post?x=1",
		URLRef:    "https://news.example/",
		Timestamp: time.UnixMilli(1767225600000),
		Final:     true,
	}, beacon.Identity{ProjectID: "proj", SessionID: "sess", PageViewID: "pv"},
		beacon.Client{Browser: "Firefox", DeviceType: "desktop", Country: "NL"},
		1767225600250)

	row, err := TransformHeartbeat(decode(t, hb))
	if err != nil {
		t.Fatalf("TransformHeartbeat: %v", err)
	}

	if row.EventID != hb.EventID {
		t.Errorf("EventID = %q, want %q", row.EventID, hb.EventID)
	}
	if row.ProjectID != "proj" || row.SessionID != "sess" || row.PageViewID != "pv" {
		t.Errorf("identity = %+v", row)
	}
	if row.EngagedSeconds != 6 || row.IsFinal != 1 {
		t.Errorf("inc/final = %d/%d", row.EngagedSeconds, row.IsFinal)
	}
	if row.PagePath != "/blog/post" || row.Referrer != "https://news.example/" {
		t.Errorf("page = %q ref %q", row.PagePath, row.Referrer)
	}
	if !row.Timestamp.Equal(time.UnixMilli(1767225600000)) || !row.ServerTimestamp.Equal(time.UnixMilli(1767225600250)) {
		t.Errorf("times = %v / %v", row.Timestamp, row.ServerTimestamp)
	}
	if row.Browser != "Firefox" || row.Country != "NL" {
		t.Errorf("client = %+v", row)
	}
}

func TestTransformHeartbeatRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]interface{}
		want error
	}{
		{"other action", map[string]interface{}{"action": "pageview", "page_view_id": "pv"}, ErrNotHeartbeat},
		{"no action", map[string]interface{}{"page_view_id": "pv"}, ErrNotHeartbeat},
		{"no page view", map[string]interface{}{"action": "heartbeat"}, ErrMissingPageView},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := TransformHeartbeat(tt.raw); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTransformHeartbeatDefaults(t *testing.T) {
	row, err := TransformHeartbeat(map[string]interface{}{
		"action":           "heartbeat",
		"page_view_id":     "pv",
		"event_id":         "not-a-uuid",
		"inc":              -2.0,
		"server_timestamp": 1767225600000.0,
	})
	if err != nil {
		t.Fatalf("TransformHeartbeat: %v", err)
	}
	if row.EventID == "not-a-uuid" || row.EventID == "" {
		t.Errorf("EventID = %q, want a fresh UUID", row.EventID)
	}
	if row.EngagedSeconds != 0 {
		t.Errorf("EngagedSeconds = %d", row.EngagedSeconds)
	}
	if !row.Timestamp.Equal(row.ServerTimestamp) {
		t.Error("Timestamp should fall back to server time")
	}
	if row.PagePath != "/" || row.IsFinal != 0 {
		t.Errorf("row = %+v", row)
	}
}

func TestTransformEndRecord(t *testing.T) {
	end := beacon.New(engagement.Heartbeat{
		Action:    engagement.ActionPageViewEnd,
		URL:       "https://example.com/",
		Timestamp: time.UnixMilli(1767225600000),
		Final:     true,
	}, beacon.Identity{ProjectID: "proj", SessionID: "sess", PageViewID: "pv"}, beacon.Client{}, 1767225600100)

	res, err := Transform(decode(t, end))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if res.Heartbeat != nil || res.EndedPageView != "pv" {
		t.Errorf("result = %+v", res)
	}

	if _, err := Transform(map[string]interface{}{"action": "pageview_end"}); !errors.Is(err, ErrMissingPageView) {
		t.Errorf("err = %v, want ErrMissingPageView", err)
	}
}

func TestTransformHeartbeatResult(t *testing.T) {
	res, err := Transform(map[string]interface{}{"action": "heartbeat", "page_view_id": "pv", "inc": 5.0})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if res.Heartbeat == nil || res.Heartbeat.EngagedSeconds != 5 || res.EndedPageView != "" {
		t.Errorf("result = %+v", res)
	}
}
