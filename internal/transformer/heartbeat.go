package transformer

import (
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/gosight/gosight/engagement/internal/engagement"
	"github.com/gosight/gosight/engagement/internal/storage"
)

var (
	ErrNotHeartbeat    = errors.New("not a heartbeat")
	ErrMissingPageView = errors.New("heartbeat has no page_view_id")
)

// TransformResult is one decoded message from the heartbeat topic: either a
// heartbeat row or the id of a page view that ended without a final
// heartbeat.
type TransformResult struct {
	Heartbeat     *storage.HeartbeatRow
	EndedPageView string
}

// Transform decodes a message read from Kafka.
func Transform(raw map[string]interface{}) (*TransformResult, error) {
	if getString(raw, "action") == engagement.ActionPageViewEnd {
		pageViewID := getString(raw, "page_view_id")
		if pageViewID == "" {
			return nil, ErrMissingPageView
		}
		return &TransformResult{EndedPageView: pageViewID}, nil
	}

	row, err := TransformHeartbeat(raw)
	if err != nil {
		return nil, err
	}
	return &TransformResult{Heartbeat: row}, nil
}

// TransformHeartbeat turns a heartbeat read from Kafka into a ClickHouse row.
func TransformHeartbeat(raw map[string]interface{}) (*storage.HeartbeatRow, error) {
	if getString(raw, "action") != engagement.ActionHeartbeat {
		return nil, ErrNotHeartbeat
	}
	pageViewID := getString(raw, "page_view_id")
	if pageViewID == "" {
		return nil, ErrMissingPageView
	}

	// Keep event_id only if it is a proper UUID
	eventID := getString(raw, "event_id")
	if _, err := uuid.Parse(eventID); err != nil {
		eventID = uuid.New().String()
	}

	pageURL := getString(raw, "url")
	row := &storage.HeartbeatRow{
		EventID:        eventID,
		ProjectID:      getString(raw, "project_id"),
		SessionID:      getString(raw, "session_id"),
		PageViewID:     pageViewID,
		PageURL:        pageURL,
		PagePath:       pagePath(pageURL),
		Referrer:       getString(raw, "urlref"),
		EngagedSeconds: getUint32(raw, "inc"),
		Browser:        getString(raw, "browser"),
		BrowserVersion: getString(raw, "browser_version"),
		OS:             getString(raw, "os"),
		DeviceType:     getString(raw, "device_type"),
		Country:        getString(raw, "country"),
		City:           getString(raw, "city"),
	}

	row.ServerTimestamp = getTime(raw, "server_timestamp")
	row.Timestamp = getTime(raw, "timestamp")
	if row.Timestamp.IsZero() {
		row.Timestamp = row.ServerTimestamp
	}
	if v, ok := raw["final"].(bool); ok && v {
		row.IsFinal = 1
	}

	return row, nil
}

func pagePath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getUint32(m map[string]interface{}, key string) uint32 {
	if v, ok := m[key].(float64); ok && v > 0 {
		return uint32(v)
	}
	return 0
}

func getTime(m map[string]interface{}, key string) time.Time {
	if v, ok := m[key].(float64); ok && v > 0 {
		return time.UnixMilli(int64(v))
	}
	return time.Time{}
}
