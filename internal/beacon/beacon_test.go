package beacon

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gosight/gosight/engagement/internal/engagement"
)

func TestNewCarriesPixelParameters(t *testing.T) {
	ts := time.Date(2015, 5, 1, 4, 0, 0, 0, time.UTC)
	hb := New(engagement.Heartbeat{
		Action:    engagement.ActionHeartbeat,
		Inc:       4,
		URL:       "https://example.com/story",
		URLRef:    "https://news.example.org/",
		Timestamp: ts,
		Final:     true,
	}, Identity{ProjectID: "p1", SessionID: "s1", PageViewID: "pv1"}, Client{Browser: "Firefox"}, 1234)

	data, err := json.Marshal(hb)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := map[string]interface{}{
		"action":           "heartbeat",
		"inc":              float64(4),
		"url":              "https://example.com/story",
		"urlref":           "https://news.example.org/",
		"project_id":       "p1",
		"session_id":       "s1",
		"page_view_id":     "pv1",
		"timestamp":        float64(ts.UnixMilli()),
		"server_timestamp": float64(1234),
		"final":            true,
		"browser":          "Firefox",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
	if id, _ := got["event_id"].(string); id == "" {
		t.Error("event_id should be set")
	}
	if _, ok := got["country"]; ok {
		t.Error("empty country should be omitted")
	}
}
