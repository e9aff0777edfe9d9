package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/transcope/fleet-auth/internal/api/metrics"
	"github.com/transcope/fleet-auth/internal/core/domain"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.AuthEvent
	fail   bool
	done   chan struct{}
	want   int
}

func newRecordingPublisher(want int) *recordingPublisher {
	return &recordingPublisher{done: make(chan struct{}), want: want}
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.AuthEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	if len(p.events) == p.want {
		close(p.done)
	}
	if p.fail {
		return errors.New("broker unavailable")
	}
	return nil
}

func (p *recordingPublisher) wait(t *testing.T) {
	t.Helper()
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %d events", p.want)
	}
}

func TestDispatcher_ShardIndexIsStable(t *testing.T) {
	d := NewDispatcher(4, newRecordingPublisher(0), zerolog.Nop())
	for _, id := range []string{"u1", "u2", "a-much-longer-user-id"} {
		first := d.shardIndex(id)
		if first < 0 || first >= 4 {
			t.Fatalf("shard %d out of range", first)
		}
		if d.shardIndex(id) != first {
			t.Fatalf("shard for %s not deterministic", id)
		}
	}
}

func TestDispatcher_DefaultWorkers(t *testing.T) {
	d := NewDispatcher(0, newRecordingPublisher(0), zerolog.Nop())
	if len(d.workers) != defaultWorkers {
		t.Fatalf("expected %d workers, got %d", defaultWorkers, len(d.workers))
	}
}

func TestDispatcher_PreservesPerUserOrder(t *testing.T) {
	const n = 50
	pub := newRecordingPublisher(n * 2)
	d := NewDispatcher(3, pub, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	for i := 0; i < n; i++ {
		for _, user := range []string{"alice", "bob"} {
			d.Emit(domain.AuthEvent{
				Type:       domain.EventUserLoggedIn,
				UserID:     user,
				Role:       domain.RoleDispatcher,
				OccurredAt: time.Unix(int64(i), 0),
			})
		}
	}
	pub.wait(t)
	cancel()
	d.Wait()

	last := map[string]int64{"alice": -1, "bob": -1}
	for _, e := range pub.events {
		ts := e.OccurredAt.Unix()
		if ts <= last[e.UserID] {
			t.Fatalf("events for %s out of order: %d after %d", e.UserID, ts, last[e.UserID])
		}
		last[e.UserID] = ts
	}
}

func TestDispatcher_PublishFailureDoesNotStopWorker(t *testing.T) {
	pub := newRecordingPublisher(2)
	pub.fail = true
	d := NewDispatcher(1, pub, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Emit(domain.AuthEvent{Type: domain.EventUserSignedUp, UserID: "u1"})
	d.Emit(domain.AuthEvent{Type: domain.EventUserLoggedIn, UserID: "u1"})
	pub.wait(t)
}

func TestDispatcher_EmitDropsWhenFull(t *testing.T) {
	d := NewDispatcher(1, newRecordingPublisher(0), zerolog.Nop())
	droppedBefore := testutil.ToFloat64(metrics.EventsDroppedTotal)

	done := make(chan struct{})
	go func() {
		for i := 0; i < channelBuffer+10; i++ {
			d.Emit(domain.AuthEvent{Type: domain.EventUserLoggedIn, UserID: fmt.Sprintf("u%d", i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Emit blocked on a full worker buffer")
	}
	if got := len(d.workers[0]); got != channelBuffer {
		t.Fatalf("expected full buffer of %d, got %d", channelBuffer, got)
	}
	if dropped := testutil.ToFloat64(metrics.EventsDroppedTotal) - droppedBefore; dropped != 10 {
		t.Fatalf("expected 10 dropped events, got %v", dropped)
	}
}

type slowPublisher struct {
	mu        sync.Mutex
	published int
	delay     time.Duration
}

func (p *slowPublisher) Publish(ctx context.Context, _ domain.AuthEvent) error {
	time.Sleep(p.delay)
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.published++
	p.mu.Unlock()
	return nil
}

func TestDispatcher_ShutdownDrainsBufferedEvents(t *testing.T) {
	pub := &slowPublisher{delay: 5 * time.Millisecond}
	d := NewDispatcher(1, pub, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	for i := 0; i < 20; i++ {
		d.Emit(domain.AuthEvent{Type: domain.EventUserLoggedIn, UserID: "u1"})
	}
	cancel()
	d.Wait()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.published != 20 {
		t.Fatalf("expected all 20 buffered events published, got %d", pub.published)
	}
}

func TestDispatcher_EmitAfterShutdownIsDropped(t *testing.T) {
	pub := newRecordingPublisher(0)
	d := NewDispatcher(2, pub, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()
	d.Wait()

	droppedBefore := testutil.ToFloat64(metrics.EventsDroppedTotal)
	d.Emit(domain.AuthEvent{Type: domain.EventUserSignedUp, UserID: "late"})
	if dropped := testutil.ToFloat64(metrics.EventsDroppedTotal) - droppedBefore; dropped != 1 {
		t.Fatalf("expected late event to be dropped, got %v", dropped)
	}
	if len(pub.events) != 0 {
		t.Fatalf("expected nothing published, got %d", len(pub.events))
	}
}
