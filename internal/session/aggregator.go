package session

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gosight/gosight/engagement/internal/config"
	"github.com/gosight/gosight/engagement/internal/storage"
)

const (
	keyPrefix = "engagement:"
	keyTTL    = time.Hour
)

// EngagementWriter persists finished page views.
type EngagementWriter interface {
	InsertPageEngagement(ctx context.Context, row storage.PageEngagementRow) error
}

// Aggregator rolls heartbeats up per page view in Redis and writes the total
// to ClickHouse when the page view ends.
type Aggregator struct {
	store EngagementWriter
	redis *redis.Client
}

// NewAggregator creates a new page view aggregator
func NewAggregator(store EngagementWriter, redisCfg config.RedisConfig) *Aggregator {
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	return &Aggregator{
		store: store,
		redis: rdb,
	}
}

// UpdatePageView adds a heartbeat to its page view. A final heartbeat flushes
// the page view. Page views that end without one are flushed by an end record
// through FlushPageView; rollups left behind by a lost end record expire
// after keyTTL.
func (a *Aggregator) UpdatePageView(ctx context.Context, hb storage.HeartbeatRow) error {
	if a.redis == nil {
		return nil
	}

	key := keyPrefix + hb.PageViewID
	pipe := a.redis.Pipeline()

	pipe.HIncrBy(ctx, key, "engaged_seconds", int64(hb.EngagedSeconds))
	pipe.HIncrBy(ctx, key, "heartbeats", 1)
	pipe.HSet(ctx, key, "ended_at", hb.Timestamp.UnixMilli())
	pipe.HSet(ctx, key, "page_url", hb.PageURL)
	pipe.HSet(ctx, key, "page_path", hb.PagePath)
	pipe.HSet(ctx, key, "referrer", hb.Referrer)

	// Set page view metadata (only if not exists)
	pipe.HSetNX(ctx, key, "project_id", hb.ProjectID)
	pipe.HSetNX(ctx, key, "session_id", hb.SessionID)
	pipe.HSetNX(ctx, key, "started_at", hb.Timestamp.UnixMilli())
	pipe.HSetNX(ctx, key, "browser", hb.Browser)
	pipe.HSetNX(ctx, key, "os", hb.OS)
	pipe.HSetNX(ctx, key, "device_type", hb.DeviceType)
	pipe.HSetNX(ctx, key, "country", hb.Country)
	pipe.HSetNX(ctx, key, "city", hb.City)

	pipe.Expire(ctx, key, keyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("page_view_id", hb.PageViewID).Msg("Failed to update page view in Redis")
		return err
	}

	if hb.IsFinal == 1 {
		return a.FlushPageView(ctx, hb.PageViewID)
	}
	return nil
}

// FlushPageView writes a page view's rollup to ClickHouse and drops it from
// Redis.
func (a *Aggregator) FlushPageView(ctx context.Context, pageViewID string) error {
	if a.redis == nil || a.store == nil {
		return nil
	}

	key := keyPrefix + pageViewID
	data, err := a.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	row := parsePageViewData(pageViewID, data)
	if err := a.store.InsertPageEngagement(ctx, row); err != nil {
		return err
	}

	a.redis.Del(ctx, key)

	log.Debug().
		Str("page_view_id", pageViewID).
		Uint32("engaged_seconds", row.EngagedSeconds).
		Msg("Flushed page engagement")
	return nil
}

func parsePageViewData(pageViewID string, data map[string]string) storage.PageEngagementRow {
	row := storage.PageEngagementRow{
		PageViewID: pageViewID,
		ProjectID:  data["project_id"],
		SessionID:  data["session_id"],
		PageURL:    data["page_url"],
		PagePath:   data["page_path"],
		Referrer:   data["referrer"],
		Browser:    data["browser"],
		OS:         data["os"],
		DeviceType: data["device_type"],
		Country:    data["country"],
		City:       data["city"],
	}

	if v, ok := data["started_at"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			row.StartedAt = time.UnixMilli(ms)
		}
	}
	if v, ok := data["ended_at"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			row.EndedAt = time.UnixMilli(ms)
		}
	}
	if v, ok := data["engaged_seconds"]; ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			row.EngagedSeconds = uint32(n)
		}
	}
	if v, ok := data["heartbeats"]; ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			row.Heartbeats = uint32(n)
		}
	}

	return row
}

// Close closes the aggregator
func (a *Aggregator) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
