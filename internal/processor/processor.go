package processor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosight/gosight/engagement/internal/config"
	"github.com/gosight/gosight/engagement/internal/storage"
	"github.com/gosight/gosight/engagement/internal/transformer"
)

// HeartbeatWriter stores batches of heartbeats.
type HeartbeatWriter interface {
	InsertHeartbeats(ctx context.Context, rows []storage.HeartbeatRow) error
}

// PageViewUpdater keeps the per page view rollup.
type PageViewUpdater interface {
	UpdatePageView(ctx context.Context, hb storage.HeartbeatRow) error
	FlushPageView(ctx context.Context, pageViewID string) error
}

// HeartbeatProcessor processes heartbeats from Kafka and writes them to
// ClickHouse
type HeartbeatProcessor struct {
	store    HeartbeatWriter
	pages    PageViewUpdater
	batchCfg config.BatchConfig

	buffer []storage.HeartbeatRow

	mu        sync.Mutex
	lastFlush time.Time
	ticker    *time.Ticker
	done      chan struct{}
	stopOnce  sync.Once
}

// NewHeartbeatProcessor creates a processor and starts its flush ticker.
// pages may be nil.
func NewHeartbeatProcessor(store HeartbeatWriter, pages PageViewUpdater, batchCfg config.BatchConfig) *HeartbeatProcessor {
	if batchCfg.Size <= 0 {
		batchCfg.Size = 1000
	}
	if batchCfg.FlushInterval <= 0 {
		batchCfg.FlushInterval = 5 * time.Second
	}

	p := &HeartbeatProcessor{
		store:     store,
		pages:     pages,
		batchCfg:  batchCfg,
		buffer:    make([]storage.HeartbeatRow, 0, batchCfg.Size),
		lastFlush: time.Now(),
		done:      make(chan struct{}),
	}

	p.ticker = time.NewTicker(batchCfg.FlushInterval)
	go p.flushLoop()

	return p
}

// Process processes a single heartbeat
func (p *HeartbeatProcessor) Process(ctx context.Context, event map[string]interface{}) error {
	result, err := transformer.Transform(event)
	if err != nil {
		return err
	}

	if result.EndedPageView != "" {
		if p.pages != nil {
			if err := p.pages.FlushPageView(ctx, result.EndedPageView); err != nil {
				log.Warn().Err(err).Str("page_view_id", result.EndedPageView).Msg("Failed to flush ended page view")
			}
		}
		return nil
	}
	row := result.Heartbeat

	p.mu.Lock()
	p.buffer = append(p.buffer, *row)
	shouldFlush := len(p.buffer) >= p.batchCfg.Size
	p.mu.Unlock()

	// Update the rollup in order so a final heartbeat flushes a complete total
	if p.pages != nil {
		if err := p.pages.UpdatePageView(ctx, *row); err != nil {
			log.Warn().Err(err).Str("page_view_id", row.PageViewID).Msg("Failed to update page view rollup")
		}
	}

	if shouldFlush {
		p.Flush()
	}

	return nil
}

func (p *HeartbeatProcessor) flushLoop() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.Flush()
		}
	}
}

// Flush writes all buffered heartbeats to ClickHouse
func (p *HeartbeatProcessor) Flush() {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	rows := p.buffer
	p.buffer = make([]storage.HeartbeatRow, 0, p.batchCfg.Size)
	p.lastFlush = time.Now()
	p.mu.Unlock()

	start := time.Now()
	if err := p.store.InsertHeartbeats(context.Background(), rows); err != nil {
		log.Error().Err(err).Int("count", len(rows)).Msg("Failed to insert heartbeats")
		return
	}
	log.Info().
		Int("count", len(rows)).
		Dur("duration", time.Since(start)).
		Msg("Flushed heartbeats to ClickHouse")
}

// Stop stops the processor
func (p *HeartbeatProcessor) Stop() {
	p.stopOnce.Do(func() {
		p.ticker.Stop()
		close(p.done)
		p.Flush() // Final flush
	})
}
