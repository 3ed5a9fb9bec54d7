package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gosight/gosight/engagement/internal/config"
	"github.com/gosight/gosight/engagement/internal/storage"
)

type fakeStore struct {
	mu      sync.Mutex
	batches [][]storage.HeartbeatRow
}

func (s *fakeStore) InsertHeartbeats(_ context.Context, rows []storage.HeartbeatRow) error {
	s.mu.Lock()
	s.batches = append(s.batches, rows)
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

type fakePages struct {
	mu      sync.Mutex
	updates []storage.HeartbeatRow
	flushed []string
}

func (p *fakePages) FlushPageView(_ context.Context, pageViewID string) error {
	p.mu.Lock()
	p.flushed = append(p.flushed, pageViewID)
	p.mu.Unlock()
	return nil
}

func (p *fakePages) UpdatePageView(_ context.Context, hb storage.HeartbeatRow) error {
	p.mu.Lock()
	p.updates = append(p.updates, hb)
	p.mu.Unlock()
	return nil
}

func heartbeat(pv string, inc float64) map[string]interface{} {
	return map[string]interface{}{
		"action":       "heartbeat",
		"page_view_id": pv,
		"inc":          inc,
	}
}

func TestProcessFlushesOnBatchSize(t *testing.T) {
	store := &fakeStore{}
	p := NewHeartbeatProcessor(store, nil, config.BatchConfig{Size: 2, FlushInterval: time.Hour})
	defer p.Stop()

	ctx := context.Background()
	if err := p.Process(ctx, heartbeat("a", 5)); err != nil {
		t.Fatal(err)
	}
	if store.rows() != 0 {
		t.Fatal("flushed before batch was full")
	}
	if err := p.Process(ctx, heartbeat("a", 6)); err != nil {
		t.Fatal(err)
	}
	if store.rows() != 2 {
		t.Errorf("rows = %d, want 2", store.rows())
	}
}

func TestProcessUpdatesRollup(t *testing.T) {
	store := &fakeStore{}
	pages := &fakePages{}
	p := NewHeartbeatProcessor(store, pages, config.BatchConfig{Size: 100, FlushInterval: time.Hour})
	defer p.Stop()

	p.Process(context.Background(), heartbeat("a", 5))
	p.Process(context.Background(), heartbeat("b", 3))

	pages.mu.Lock()
	defer pages.mu.Unlock()
	if len(pages.updates) != 2 || pages.updates[1].PageViewID != "b" || pages.updates[1].EngagedSeconds != 3 {
		t.Errorf("updates = %+v", pages.updates)
	}
}

func TestProcessRejectsNonHeartbeat(t *testing.T) {
	store := &fakeStore{}
	p := NewHeartbeatProcessor(store, nil, config.BatchConfig{Size: 1, FlushInterval: time.Hour})
	defer p.Stop()

	if err := p.Process(context.Background(), map[string]interface{}{"action": "click"}); err == nil {
		t.Error("expected error")
	}
	if store.rows() != 0 {
		t.Error("nothing should be stored")
	}
}

func TestStopFlushesRemainder(t *testing.T) {
	store := &fakeStore{}
	p := NewHeartbeatProcessor(store, nil, config.BatchConfig{Size: 100, FlushInterval: time.Hour})

	p.Process(context.Background(), heartbeat("a", 1))
	p.Stop()
	p.Stop()

	if store.rows() != 1 {
		t.Errorf("rows = %d, want 1", store.rows())
	}
}

func TestTickerFlushes(t *testing.T) {
	store := &fakeStore{}
	p := NewHeartbeatProcessor(store, nil, config.BatchConfig{Size: 100, FlushInterval: 10 * time.Millisecond})
	defer p.Stop()

	p.Process(context.Background(), heartbeat("a", 1))

	deadline := time.Now().Add(2 * time.Second)
	for store.rows() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.rows() != 1 {
		t.Errorf("rows = %d, want 1", store.rows())
	}
}

func TestEndRecordFlushesRollup(t *testing.T) {
	store := &fakeStore{}
	pages := &fakePages{}
	p := NewHeartbeatProcessor(store, pages, config.BatchConfig{Size: 100, FlushInterval: time.Hour})

	p.Process(context.Background(), heartbeat("a", 4))
	if err := p.Process(context.Background(), map[string]interface{}{
		"action":       "pageview_end",
		"page_view_id": "a",
		"final":        true,
	}); err != nil {
		t.Fatalf("Process end record: %v", err)
	}
	p.Stop()

	pages.mu.Lock()
	defer pages.mu.Unlock()
	if len(pages.flushed) != 1 || pages.flushed[0] != "a" {
		t.Errorf("flushed = %v, want [a]", pages.flushed)
	}
	if len(pages.updates) != 1 {
		t.Errorf("end record should not update the rollup: %+v", pages.updates)
	}
	if store.rows() != 1 {
		t.Errorf("rows = %d, want only the heartbeat", store.rows())
	}
}
