package storage

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/gosight/gosight/engagement/internal/config"
)

type ClickHouse struct {
	conn driver.Conn
}

// HeartbeatRow represents a row in the heartbeats table
type HeartbeatRow struct {
	EventID         string
	ProjectID       string
	SessionID       string
	PageViewID      string
	Timestamp       time.Time
	ServerTimestamp time.Time
	PageURL         string
	PagePath        string
	Referrer        string
	EngagedSeconds  uint32
	IsFinal         uint8
	Browser         string
	BrowserVersion  string
	OS              string
	DeviceType      string
	Country         string
	City            string
}

// PageEngagementRow represents a row in the page_engagement table, one per
// finished page view.
type PageEngagementRow struct {
	PageViewID     string
	ProjectID      string
	SessionID      string
	PageURL        string
	PagePath       string
	Referrer       string
	StartedAt      time.Time
	EndedAt        time.Time
	EngagedSeconds uint32
	Heartbeats     uint32
	Browser        string
	OS             string
	DeviceType     string
	Country        string
	City           string
}

func NewClickHouse(cfg config.ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	return &ClickHouse{conn: conn}, nil
}

func (c *ClickHouse) InsertHeartbeats(ctx context.Context, rows []HeartbeatRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO heartbeats (
			event_id, project_id, session_id, page_view_id,
			timestamp, server_timestamp,
			page_url, page_path, referrer,
			engaged_seconds, is_final,
			browser, browser_version, os, device_type,
			country, city
		)
	`)
	if err != nil {
		return err
	}

	for _, h := range rows {
		err := batch.Append(
			h.EventID, h.ProjectID, h.SessionID, h.PageViewID,
			h.Timestamp, h.ServerTimestamp,
			h.PageURL, h.PagePath, h.Referrer,
			h.EngagedSeconds, h.IsFinal,
			h.Browser, h.BrowserVersion, h.OS, h.DeviceType,
			h.Country, h.City,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (c *ClickHouse) InsertPageEngagement(ctx context.Context, row PageEngagementRow) error {
	return c.conn.Exec(ctx, `
		INSERT INTO page_engagement (
			page_view_id, project_id, session_id,
			page_url, page_path, referrer,
			started_at, ended_at,
			engaged_seconds, heartbeats,
			browser, os, device_type,
			country, city
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.PageViewID, row.ProjectID, row.SessionID,
		row.PageURL, row.PagePath, row.Referrer,
		row.StartedAt, row.EndedAt,
		row.EngagedSeconds, row.Heartbeats,
		row.Browser, row.OS, row.DeviceType,
		row.Country, row.City,
	)
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
