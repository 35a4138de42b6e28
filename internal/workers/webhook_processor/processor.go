// Package webhook_processor drains persisted provider events and applies
// them to the ledger, keeping webhook HTTP handlers fast and dumb.
package webhook_processor

import (
	"context"
	"sync"
	"time"

	"github.com/terescrow/ledger-service/internal/domain/entities"
	"github.com/terescrow/ledger-service/internal/domain/services/reconciler"
	"github.com/terescrow/ledger-service/internal/infrastructure/config"
	"github.com/terescrow/ledger-service/internal/infrastructure/repositories"
	"github.com/terescrow/ledger-service/pkg/logger"
	"github.com/terescrow/ledger-service/pkg/metrics"
)

// Processor polls for unprocessed events and fans them out to a fixed pool
// of workers. Safe to run as a single instance; the conditional status
// transitions downstream make even duplicate dispatch harmless.
type Processor struct {
	events       *repositories.ProviderEventRepository
	reconciler   *reconciler.Service
	workerCount  int
	pollInterval time.Duration
	batchSize    int
	logger       *logger.Logger

	queue chan *entities.ProviderEvent
	stop  chan struct{}
	wg    sync.WaitGroup
}

// NewProcessor creates a webhook event processor.
func NewProcessor(
	events *repositories.ProviderEventRepository,
	reconcilerService *reconciler.Service,
	cfg *config.WorkerConfig,
	log *logger.Logger,
) *Processor {
	return &Processor{
		events:       events,
		reconciler:   reconcilerService,
		workerCount:  cfg.Count,
		pollInterval: time.Duration(cfg.PollInterval) * time.Second,
		batchSize:    cfg.BatchSize,
		logger:       log,
		queue:        make(chan *entities.ProviderEvent, cfg.BatchSize),
		stop:         make(chan struct{}),
	}
}

// Start launches the poller and the worker pool.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("starting webhook processor",
		"workers", p.workerCount, "poll_interval", p.pollInterval.String())

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.wg.Add(1)
	go p.poll(ctx)
}

// Stop shuts the processor down and waits for in-flight events.
func (p *Processor) Stop() {
	close(p.stop)
	p.wg.Wait()
	p.logger.Info("webhook processor stopped")
}

func (p *Processor) poll(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.queue)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.dispatch(ctx)
		}
	}
}

func (p *Processor) dispatch(ctx context.Context) {
	if depth, err := p.events.CountUnprocessed(ctx); err == nil {
		metrics.WebhookQueueDepth.Set(float64(depth))
	}

	events, err := p.events.ListUnprocessed(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("failed to list unprocessed events", "error", err)
		return
	}

	for _, event := range events {
		select {
		case p.queue <- event:
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Processor) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for event := range p.queue {
		p.reconciler.Apply(ctx, event)
		p.logger.Debug("event processed",
			"worker", id, "event_id", event.ID, "provider", event.Provider)
	}
}
