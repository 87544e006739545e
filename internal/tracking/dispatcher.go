package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

// Dispatcher hands an observed hit off for classification without making the
// HTTP response wait for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt domain.TrackingEvent)
}

// Defaults for the in-process dispatcher.
const (
	DefaultLocalWorkers  = 8
	DefaultLocalCapacity = 4096
	DefaultRecordTimeout = 5 * time.Second
)

// LocalDispatcher classifies hits in-process on a fixed pool of goroutines
// fed by a bounded buffer. When the buffer is full the hit is dropped and
// logged; the reconciler repairs the counters afterwards.
type LocalDispatcher struct {
	rec     *Recorder
	events  chan domain.TrackingEvent
	workers int
	timeout time.Duration

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewLocalDispatcher creates a dispatcher. Zero values use the defaults.
func NewLocalDispatcher(rec *Recorder, workers, capacity int, timeout time.Duration) *LocalDispatcher {
	if workers <= 0 {
		workers = DefaultLocalWorkers
	}
	if capacity <= 0 {
		capacity = DefaultLocalCapacity
	}
	if timeout <= 0 {
		timeout = DefaultRecordTimeout
	}
	return &LocalDispatcher{
		rec:     rec,
		events:  make(chan domain.TrackingEvent, capacity),
		workers: workers,
		timeout: timeout,
	}
}

// Start launches the worker goroutines.
func (d *LocalDispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

// Stop stops accepting hits, drains the buffer and waits for the workers.
// Dispatch must not be called after Stop.
func (d *LocalDispatcher) Stop() {
	d.closeOnce.Do(func() { close(d.events) })
	d.wg.Wait()
}

// Dispatch performs a non-blocking send into the buffer.
func (d *LocalDispatcher) Dispatch(_ context.Context, evt domain.TrackingEvent) {
	select {
	case d.events <- evt:
	default:
		logger.Warn("tracking buffer full, dropping event",
			"event_type", string(evt.Type),
			"campaign_id", evt.CampaignID,
			"recipient_id", evt.RecipientID,
		)
	}
}

// Pending returns the number of buffered hits.
func (d *LocalDispatcher) Pending() int { return len(d.events) }

func (d *LocalDispatcher) run() {
	defer d.wg.Done()
	for evt := range d.events {
		d.record(evt)
	}
}

func (d *LocalDispatcher) record(evt domain.TrackingEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if _, err := d.rec.Record(ctx, &evt); err != nil {
		logRecordError(evt, err)
	}
}

func logRecordError(evt domain.TrackingEvent, err error) {
	fields := []interface{}{
		"event_type", string(evt.Type),
		"campaign_id", evt.CampaignID,
		"recipient_id", evt.RecipientID,
		"error", err.Error(),
	}
	if errors.Is(err, ErrRecipientNotFound) || errors.Is(err, domain.ErrInvalidEvent) {
		logger.Warn("tracking event rejected", fields...)
		return
	}
	logger.Error("tracking event not recorded", fields...)
}
