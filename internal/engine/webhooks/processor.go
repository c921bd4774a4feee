package webhooks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"mosaic/internal/platform/config"
	"mosaic/internal/platform/models"
	"mosaic/internal/platform/repositories"
)

// ProcessFunc is the injected business logic applied to a claimed event.
// Returning an error (or overrunning the context deadline) fails the event.
type ProcessFunc func(ctx context.Context, event *models.WebhookEvent, cfg *models.WebhookConfiguration) error

// DefaultProcess is the stand-in business logic: it accepts every event.
// Deployments bind their tenant-specific logic in its place at assembly.
func DefaultProcess(ctx context.Context, event *models.WebhookEvent, cfg *models.WebhookConfiguration) error {
	log.Info().
		Int64("event_id", event.ID).
		Str("event_type", event.EventType).
		Str("configuration_id", cfg.ID).
		Msg("no business logic bound, event accepted")
	return nil
}

type job struct {
	tenantID string
	eventID  int64
}

// Processor consumes stored events on a bounded worker pool. Each event is
// claimed with a compare-and-set on the pending status, so concurrent
// triggers and redelivered jobs cannot double-process it.
type Processor struct {
	events  *repositories.EventRepository
	configs *repositories.ConfigurationRepository
	logic   ProcessFunc
	timeout time.Duration
	workers int
	queue   chan job
	wg      sync.WaitGroup
	mu      sync.RWMutex // guards queue sends against Stop's close
	stopped atomic.Bool
}

func NewProcessor(events *repositories.EventRepository, configs *repositories.ConfigurationRepository, logic ProcessFunc, cfg config.WebhooksConfig) *Processor {
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	timeout := cfg.ProcessingTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logic == nil {
		logic = func(context.Context, *models.WebhookEvent, *models.WebhookConfiguration) error { return nil }
	}

	return &Processor{
		events:  events,
		configs: configs,
		logic:   logic,
		timeout: timeout,
		workers: workers,
		queue:   make(chan job, queueSize),
	}
}

func (p *Processor) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop drains the queue and waits for in-flight work.
func (p *Processor) Stop() {
	p.mu.Lock()
	swapped := p.stopped.CompareAndSwap(false, true)
	if swapped {
		close(p.queue)
	}
	p.mu.Unlock()

	if swapped {
		p.wg.Wait()
	}
}

// Enqueue hands an event to the pool without blocking. Returns false when
// the queue is full or the pool is stopping; the event stays pending. The
// read lock keeps the send from racing Stop's close of the queue.
func (p *Processor) Enqueue(tenantID string, eventID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped.Load() {
		return false
	}
	select {
	case p.queue <- job{tenantID: tenantID, eventID: eventID}:
		return true
	default:
		return false
	}
}

func (p *Processor) worker() {
	defer p.wg.Done()
	for j := range p.queue {
		p.process(j)
	}
}

func (p *Processor) process(j job) {
	claimed, err := p.events.MarkProcessing(j.tenantID, j.eventID)
	if err != nil {
		log.Error().Err(err).Int64("event_id", j.eventID).Msg("failed to claim event")
		return
	}
	if !claimed {
		// Already claimed, completed, or retried elsewhere.
		return
	}

	event, err := p.events.Get(j.tenantID, j.eventID)
	if err != nil {
		p.fail(j, fmt.Sprintf("event unreadable after claim: %v", err))
		return
	}
	cfg, err := p.configs.GetByID(j.tenantID, event.ConfigurationID)
	if err != nil {
		p.fail(j, fmt.Sprintf("configuration %s unavailable: %v", event.ConfigurationID, err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- p.logic(ctx, event, cfg)
	}()

	select {
	case err := <-done:
		if err != nil {
			p.fail(j, err.Error())
			return
		}
		if err := p.events.MarkCompleted(j.tenantID, j.eventID); err != nil {
			log.Error().Err(err).Int64("event_id", j.eventID).Msg("failed to mark event completed")
			return
		}
		log.Debug().Int64("event_id", j.eventID).Msg("event processed")
	case <-ctx.Done():
		p.fail(j, fmt.Sprintf("processing timed out after %s", p.timeout))
	}
}

func (p *Processor) fail(j job, message string) {
	if err := p.events.MarkFailed(j.tenantID, j.eventID, message); err != nil {
		log.Error().Err(err).Int64("event_id", j.eventID).Msg("failed to mark event failed")
		return
	}
	log.Warn().Int64("event_id", j.eventID).Str("error", message).Msg("event processing failed")
}
