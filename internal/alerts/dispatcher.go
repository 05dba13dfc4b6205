package alerts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/studystack/sentinel/internal/metrics"
	"github.com/studystack/sentinel/pkg/models"
)

// DeliveryStore records per-channel delivery outcomes on the alert's history
// row.
type DeliveryStore interface {
	UpdateAlertDeliveries(ctx context.Context, alertUID string, deliveries []models.DeliveryResult) error
}

// Dispatcher fans alerts out to their channels. Channels are independent:
// one failing never blocks the others. A failed send is retried once per
// remaining retry budget after a flat delay; exhausted deliveries are logged
// and recorded, then dropped.
type Dispatcher struct {
	senders    map[models.ChannelType]Sender
	db         DeliveryStore
	retryDelay time.Duration
	timeout    time.Duration
	log        *slog.Logger

	jobs chan deliveryJob
	stop chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	pending map[string]*alertProgress
}

type deliveryJob struct {
	alert       models.Alert
	channel     models.NotificationChannel
	retriesLeft int
	retried     bool
}

type alertProgress struct {
	remaining int
	results   []models.DeliveryResult
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Senders map[models.ChannelType]Sender
	DB      DeliveryStore
	// RetryDelay is the flat wait before a failed send is retried.
	RetryDelay time.Duration
	// Timeout bounds each individual send attempt.
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewDispatcher constructs a dispatcher. Call Start before dispatching.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 60 * time.Second
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		senders:    opts.Senders,
		db:         opts.DB,
		retryDelay: retryDelay,
		timeout:    timeout,
		log:        log.With("component", "alert_dispatcher"),
		jobs:       make(chan deliveryJob, 256),
		stop:       make(chan struct{}),
		pending:    make(map[string]*alertProgress),
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case job := <-d.jobs:
				d.deliver(job)
			case <-d.stop:
				return
			}
		}
	}()
}

// Stop signals the worker to exit and waits for it.
func (d *Dispatcher) Stop() {
	close(d.stop)
	d.wg.Wait()
}

// Dispatch enqueues one delivery per channel. Partial delivery across
// channels is acceptable and expected.
func (d *Dispatcher) Dispatch(alert models.Alert, channels []models.NotificationChannel) {
	if len(channels) == 0 {
		return
	}
	d.mu.Lock()
	d.pending[alert.AlertID] = &alertProgress{remaining: len(channels)}
	d.mu.Unlock()

	for _, channel := range channels {
		d.enqueue(deliveryJob{
			alert:       alert,
			channel:     channel,
			retriesLeft: channel.RetryCount,
		})
	}
}

func (d *Dispatcher) enqueue(job deliveryJob) {
	select {
	case d.jobs <- job:
	case <-d.stop:
	}
}

func (d *Dispatcher) deliver(job deliveryJob) {
	sender := d.senders[job.channel.Type]
	if sender == nil {
		d.log.Warn("no sender configured for channel", "type", job.channel.Type)
		d.record(job, "no sender configured", false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	err := sender.Send(ctx, job.alert, job.channel)
	cancel()

	if err == nil {
		metrics.NotificationsSent.Inc()
		d.record(job, "", true)
		return
	}

	metrics.NotificationsFailed.Inc()
	d.log.Warn("notification failed",
		"alert_id", job.alert.AlertID,
		"channel", job.channel.Type,
		"target", job.channel.Destination,
		"retries_left", job.retriesLeft,
		"error", err)

	if job.retriesLeft <= 0 {
		d.record(job, err.Error(), false)
		return
	}

	metrics.NotificationsRetried.Inc()
	retry := deliveryJob{
		alert:       job.alert,
		channel:     job.channel,
		retriesLeft: job.retriesLeft - 1,
		retried:     true,
	}
	time.AfterFunc(d.retryDelay, func() { d.enqueue(retry) })
}

// record finalizes one channel's outcome; once every channel has resolved,
// the combined result is written back to the alert's history row.
func (d *Dispatcher) record(job deliveryJob, errText string, delivered bool) {
	d.mu.Lock()
	progress := d.pending[job.alert.AlertID]
	if progress == nil {
		d.mu.Unlock()
		return
	}
	progress.results = append(progress.results, models.DeliveryResult{
		Channel:   job.channel.Type,
		Target:    job.channel.Destination,
		Delivered: delivered,
		Retried:   job.retried,
		Error:     errText,
	})
	progress.remaining--
	done := progress.remaining <= 0
	var results []models.DeliveryResult
	if done {
		results = progress.results
		delete(d.pending, job.alert.AlertID)
	}
	d.mu.Unlock()

	if !done || d.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.db.UpdateAlertDeliveries(ctx, job.alert.AlertID, results); err != nil {
		d.log.Error("failed to record delivery outcomes", "alert_id", job.alert.AlertID, "error", err)
	}
}
