package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/collectionpulse/engine/internal/model"
)

// Channel delivers one alert to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, a model.Alert) error
}

// Config holds dispatcher settings.
type Config struct {
	Workers   int // Concurrent delivery workers (default: 4)
	QueueSize int // Initial queue capacity (default: 64)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:   4,
		QueueSize: 64,
	}
}

// Dispatcher fans triggered alerts out to the configured channels from a
// background worker pool.
type Dispatcher struct {
	cfg      Config
	channels []Channel
	queue    *alertQueue
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu sync.Mutex
	stats   DispatchStats
}

// DispatchStats counts deliveries since start.
type DispatchStats struct {
	Enqueued  int64
	Delivered int64 // Per (alert, channel) successes
	Failed    int64 // Per (alert, channel) exhaustions
	Pending   int
}

// NewDispatcher creates a Dispatcher over the given channels.
func NewDispatcher(cfg Config, channels []Channel, logger *slog.Logger) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:      cfg,
		channels: channels,
		queue:    newAlertQueue(cfg.QueueSize),
		logger:   logger,
	}
}

// Start launches the delivery workers.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	d.logger.Info("dispatcher started",
		"workers", d.cfg.Workers,
		"channels", len(d.channels),
	)
	return nil
}

// Stop closes the queue, lets workers drain pending alerts and waits for
// them up to the context deadline.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.queue.Close()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("dispatcher stopped")
	case <-ctx.Done():
		d.logger.Warn("dispatcher stop timed out", "pending", d.queue.Len())
	}

	if d.cancel != nil {
		d.cancel()
	}
	return nil
}

// Dispatch enqueues an alert for delivery. Fire-and-forget: evaluation
// never waits on a channel.
func (d *Dispatcher) Dispatch(a model.Alert) {
	if !d.queue.Enqueue(a) {
		d.logger.Warn("dispatch after shutdown, alert dropped", "alert", a.ID)
		return
	}

	d.statsMu.Lock()
	d.stats.Enqueued++
	d.statsMu.Unlock()
}

// Stats returns delivery counters.
func (d *Dispatcher) Stats() DispatchStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	s := d.stats
	s.Pending = d.queue.Len()
	return s
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		a, ok := d.queue.Dequeue()
		if !ok {
			return
		}
		d.deliver(a)
	}
}

// deliver sends one alert to every channel concurrently. No channel blocks
// another; a channel exhausting its retries only logs.
func (d *Dispatcher) deliver(a model.Alert) {
	var wg sync.WaitGroup
	for _, ch := range d.channels {
		ch := ch
		wg.Add(1)
		go func() {
			defer wg.Done()

			start := time.Now()
			if err := ch.Send(d.ctx, a); err != nil {
				d.logger.Error("alert delivery failed",
					"channel", ch.Name(),
					"alert", a.ID,
					"collection", a.CollectionID,
					"type", a.Type,
					"error", err,
				)
				d.statsMu.Lock()
				d.stats.Failed++
				d.statsMu.Unlock()
				return
			}

			d.logger.Debug("alert delivered",
				"channel", ch.Name(),
				"alert", a.ID,
				"duration", time.Since(start),
			)
			d.statsMu.Lock()
			d.stats.Delivered++
			d.statsMu.Unlock()
		}()
	}
	wg.Wait()
}
