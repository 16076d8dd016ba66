// Package worker runs the webhook notifier: a polling loop that claims due
// deliveries and pushes them to affiliate endpoints.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/betlinkr/betlinkr-api/internal/repository"
	"github.com/betlinkr/betlinkr-api/internal/service"
)

// Notifier drains the webhook delivery queue.
type Notifier struct {
	deliveries   repository.WebhookDeliveryRepository
	notifySvc    *service.NotifyService
	pollInterval time.Duration
	concurrency  int
	stop         chan struct{}
	wg           sync.WaitGroup
	logger       *slog.Logger
}

// Config holds notifier configuration.
type Config struct {
	PollInterval time.Duration
	Concurrency  int
}

// New creates a new notifier.
func New(
	deliveries repository.WebhookDeliveryRepository,
	notifySvc *service.NotifyService,
	cfg Config,
	logger *slog.Logger,
) *Notifier {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		deliveries:   deliveries,
		notifySvc:    notifySvc,
		pollInterval: cfg.PollInterval,
		concurrency:  cfg.Concurrency,
		stop:         make(chan struct{}),
		logger:       logger.With("component", "notifier"),
	}
}

// Start begins processing deliveries.
func (n *Notifier) Start(ctx context.Context) {
	n.logger.Info("starting", "concurrency", n.concurrency)

	for i := 0; i < n.concurrency; i++ {
		n.wg.Add(1)
		go n.run(ctx, i)
	}
}

// Stop gracefully stops the notifier, waiting for in-flight deliveries.
func (n *Notifier) Stop() {
	n.logger.Info("stopping")
	close(n.stop)
	n.wg.Wait()
	n.logger.Info("stopped")
}

func (n *Notifier) run(ctx context.Context, workerID int) {
	defer n.wg.Done()

	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain everything that is due before sleeping again, so a
			// burst of conversions does not wait one poll per delivery.
			for n.processNext(ctx, workerID) {
			}
		}
	}
}

// processNext claims and delivers one due delivery. Returns false when the
// queue is empty or claiming failed.
func (n *Notifier) processNext(ctx context.Context, workerID int) bool {
	select {
	case <-n.stop:
		return false
	case <-ctx.Done():
		return false
	default:
	}

	delivery, err := n.deliveries.ClaimPending(ctx, time.Now().UTC())
	if err != nil {
		n.logger.Error("failed to claim delivery", "worker_id", workerID, "error", err)
		return false
	}
	if delivery == nil {
		return false
	}

	n.logger.Debug("delivering webhook",
		"worker_id", workerID, "delivery_id", delivery.ID, "attempt", delivery.AttemptNumber)

	if err := n.notifySvc.Deliver(ctx, delivery); err != nil {
		n.logger.Error("failed to persist delivery outcome",
			"delivery_id", delivery.ID, "error", err)
	}
	return true
}
