package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/transcope/fleet-auth/internal/api/metrics"
	"github.com/transcope/fleet-auth/internal/core/domain"
	"github.com/transcope/fleet-auth/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
	publishTimeout = 5 * time.Second
)

// Dispatcher routes auth events to a fixed set of workers using consistent
// hashing on the user id, so events of one user are published in order.
type Dispatcher struct {
	workers   []chan domain.AuthEvent
	publisher ports.EventPublisher
	log       zerolog.Logger
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, publisher ports.EventPublisher, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers:   make([]chan domain.AuthEvent, numWorkers),
		publisher: publisher,
		log:       log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.AuthEvent, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Cancelling ctx closes the worker
// queues; workers publish what is still buffered and then return. Wait blocks
// until they have.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(i, ch)
	}
	go func() {
		<-ctx.Done()
		d.close()
	}()
}

func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// close stops intake. Emit after close drops the event.
func (d *Dispatcher) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, ch := range d.workers {
		close(ch)
	}
}

// Emit hands the event to the worker responsible for its user. It never
// blocks: when that worker's buffer is full the event is dropped.
func (d *Dispatcher) Emit(event domain.AuthEvent) {
	idx := d.shardIndex(event.UserID)

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.EventsDroppedTotal.Inc()
		d.log.Warn().
			Str("type", string(event.Type)).
			Str("user_id", event.UserID).
			Msg("event dropped, dispatcher stopped")
		return
	}

	select {
	case d.workers[idx] <- event:
		metrics.EventsQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	default:
		metrics.EventsDroppedTotal.Inc()
		d.log.Warn().
			Str("type", string(event.Type)).
			Str("user_id", event.UserID).
			Int("worker_id", idx).
			Msg("event dropped, dispatcher saturated")
	}
}

// shardIndex maps a user id deterministically to a worker index.
func (d *Dispatcher) shardIndex(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

// runWorker publishes until ch is closed and empty. Each publish gets its own
// bounded context so a draining worker is not cut off by shutdown.
func (d *Dispatcher) runWorker(id int, ch <-chan domain.AuthEvent) {
	defer d.wg.Done()
	label := strconv.Itoa(id)
	for event := range ch {
		metrics.EventsQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
		if err := d.publish(event); err != nil {
			metrics.EventsPublishedTotal.WithLabelValues(string(event.Type), "error").Inc()
			d.log.Error().Err(err).
				Str("type", string(event.Type)).
				Str("user_id", event.UserID).
				Int("worker_id", id).
				Msg("event publish failed")
			continue
		}
		metrics.EventsPublishedTotal.WithLabelValues(string(event.Type), "ok").Inc()
	}
}

func (d *Dispatcher) publish(event domain.AuthEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return d.publisher.Publish(ctx, event)
}
