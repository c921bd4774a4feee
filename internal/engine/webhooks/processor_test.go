package webhooks

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"mosaic/internal/platform/config"
	"mosaic/internal/platform/models"
)

func setupProcessorTest(t *testing.T, logic ProcessFunc, cfg config.WebhooksConfig) (*testEnv, *Processor, *models.WebhookEvent) {
	t.Helper()

	env := newTestEnv(t)
	configuration := env.createConfiguration(t, &models.WebhookConfiguration{
		TenantID:     "tenant-a",
		Name:         "HR Events",
		EndpointPath: "hr-events",
		Auth:         models.AuthConfig{Method: models.AuthMethodNone},
		Active:       true,
	})

	ev := &models.WebhookEvent{
		ConfigurationID: configuration.ID,
		TenantID:        "tenant-a",
		EventType:       "EmployeeHired",
		Payload:         map[string]interface{}{"EventType": "EmployeeHired"},
	}
	if err := env.events.Insert(ev); err != nil {
		t.Fatalf("Failed to insert event: %v", err)
	}

	return env, NewProcessor(env.events, env.configs, logic, cfg), ev
}

func TestProcessor_Success(t *testing.T) {
	var seen *models.WebhookEvent
	logic := func(ctx context.Context, event *models.WebhookEvent, cfg *models.WebhookConfiguration) error {
		seen = event
		return nil
	}
	env, p, ev := setupProcessorTest(t, logic, config.WebhooksConfig{})

	p.process(job{tenantID: "tenant-a", eventID: ev.ID})

	if seen == nil || seen.ID != ev.ID {
		t.Fatal("Expected logic to receive the claimed event")
	}

	got, _ := env.events.Get("tenant-a", ev.ID)
	if got.ProcessingStatus != models.StatusCompleted {
		t.Errorf("Expected completed status, got %s", got.ProcessingStatus)
	}
	if got.ProcessingAttempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", got.ProcessingAttempts)
	}
	if got.ProcessingCompletedAt == nil {
		t.Error("Expected completed timestamp")
	}
}

func TestProcessor_LogicError(t *testing.T) {
	logic := func(ctx context.Context, event *models.WebhookEvent, cfg *models.WebhookConfiguration) error {
		return stderrors.New("downstream unavailable")
	}
	env, p, ev := setupProcessorTest(t, logic, config.WebhooksConfig{})

	p.process(job{tenantID: "tenant-a", eventID: ev.ID})

	got, _ := env.events.Get("tenant-a", ev.ID)
	if got.ProcessingStatus != models.StatusFailed {
		t.Errorf("Expected failed status, got %s", got.ProcessingStatus)
	}
	if got.ProcessingError != "downstream unavailable" {
		t.Errorf("Unexpected processing error: %q", got.ProcessingError)
	}
}

func TestProcessor_Timeout(t *testing.T) {
	logic := func(ctx context.Context, event *models.WebhookEvent, cfg *models.WebhookConfiguration) error {
		<-ctx.Done()
		return ctx.Err()
	}
	env, p, ev := setupProcessorTest(t, logic, config.WebhooksConfig{ProcessingTimeout: 20 * time.Millisecond})

	p.process(job{tenantID: "tenant-a", eventID: ev.ID})

	got, _ := env.events.Get("tenant-a", ev.ID)
	if got.ProcessingStatus != models.StatusFailed {
		t.Errorf("Expected failed status, got %s", got.ProcessingStatus)
	}
	if !strings.Contains(got.ProcessingError, "timed out") {
		t.Errorf("Expected timeout message, got %q", got.ProcessingError)
	}
}

func TestProcessor_SkipsClaimedEvents(t *testing.T) {
	ran := false
	logic := func(ctx context.Context, event *models.WebhookEvent, cfg *models.WebhookConfiguration) error {
		ran = true
		return nil
	}
	env, p, ev := setupProcessorTest(t, logic, config.WebhooksConfig{})

	// Another worker got there first.
	if claimed, err := env.events.MarkProcessing("tenant-a", ev.ID); err != nil || !claimed {
		t.Fatalf("Failed to pre-claim event: claimed=%v err=%v", claimed, err)
	}

	p.process(job{tenantID: "tenant-a", eventID: ev.ID})

	if ran {
		t.Error("Expected logic to be skipped for a claimed event")
	}
	got, _ := env.events.Get("tenant-a", ev.ID)
	if got.ProcessingStatus != models.StatusProcessing || got.ProcessingAttempts != 1 {
		t.Errorf("Expected claim to be untouched, got %+v", got)
	}
}

func TestProcessor_EnqueueBackpressure(t *testing.T) {
	env := newTestEnv(t)
	p := NewProcessor(env.events, env.configs, nil, config.WebhooksConfig{QueueSize: 1})

	if !p.Enqueue("tenant-a", 1) {
		t.Fatal("Expected first enqueue to succeed")
	}
	if p.Enqueue("tenant-a", 2) {
		t.Error("Expected enqueue on a full queue to fail")
	}
}

func TestProcessor_StartStop(t *testing.T) {
	logic := func(ctx context.Context, event *models.WebhookEvent, cfg *models.WebhookConfiguration) error {
		return nil
	}
	env, p, ev := setupProcessorTest(t, logic, config.WebhooksConfig{WorkerCount: 2, QueueSize: 8})

	p.Start()
	if !p.Enqueue("tenant-a", ev.ID) {
		t.Fatal("Expected enqueue to succeed")
	}
	p.Stop()

	got, _ := env.events.Get("tenant-a", ev.ID)
	if got.ProcessingStatus != models.StatusCompleted {
		t.Errorf("Expected queued work to drain on stop, got %s", got.ProcessingStatus)
	}

	if p.Enqueue("tenant-a", ev.ID) {
		t.Error("Expected enqueue after stop to fail")
	}
}

func TestProcessor_ConcurrentEnqueueAndStop(t *testing.T) {
	env := newTestEnv(t)

	// Enqueues racing Stop must return false, never panic on a closed
	// queue.
	for i := 0; i < 50; i++ {
		p := NewProcessor(env.events, env.configs, nil, config.WebhooksConfig{WorkerCount: 1, QueueSize: 4})
		p.Start()

		done := make(chan struct{})
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-done:
						return
					default:
						p.Enqueue("tenant-a", 1)
					}
				}
			}()
		}

		p.Stop()
		close(done)
		wg.Wait()

		if p.Enqueue("tenant-a", 1) {
			t.Fatal("Expected enqueue after stop to fail")
		}
	}
}
