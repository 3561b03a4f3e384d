package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benchwire/hotlist/internal/metrics"
	"github.com/benchwire/hotlist/internal/model"
	"github.com/benchwire/hotlist/internal/repository"
)

// Worker fires due campaigns and settles completion in the background.
// Scheduled triggers are discrete tasks on a poll ticker, not
// long-running loops.
type Worker struct {
	engine    *Engine
	campaigns *repository.CampaignRepository
	metrics   *metrics.Metrics
	logger    *slog.Logger

	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(engine *Engine, campaigns *repository.CampaignRepository, m *metrics.Metrics, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		engine:       engine,
		campaigns:    campaigns,
		metrics:      m,
		logger:       logger.With("component", "worker"),
		pollInterval: pollInterval,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start starts the worker
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Info("dispatch worker started", "poll_interval", w.pollInterval)
}

// Stop stops the worker gracefully
func (w *Worker) Stop() {
	w.logger.Info("stopping dispatch worker...")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("dispatch worker stopped")
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

// tick runs one poll: dispatch everything due, settle sent campaigns,
// refresh the status gauges
func (w *Worker) tick() {
	w.dispatchDue()
	w.settleSent()
	w.refreshGauges()
}

func (w *Worker) dispatchDue() {
	due, err := w.campaigns.ListDue(w.ctx, time.Now().UTC())
	if err != nil {
		w.logger.Error("failed to list due campaigns", "error", err)
		return
	}

	for _, c := range due {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		summary, err := w.engine.Dispatch(w.ctx, c.ID)
		if err != nil {
			w.logger.Error("dispatch failed", "campaign_id", c.ID, "error", err)
			continue
		}
		w.logger.Info("campaign dispatched",
			"campaign_id", c.ID, "name", c.Name,
			"sent", summary.Sent, "failed", summary.Failed, "skipped", summary.Skipped)
	}
}

func (w *Worker) settleSent() {
	sent, err := w.campaigns.ListByStatus(w.ctx, model.CampaignSent)
	if err != nil {
		w.logger.Error("failed to list sent campaigns", "error", err)
		return
	}

	for _, c := range sent {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		if err := w.engine.TryComplete(w.ctx, c.ID, nil); err != nil {
			w.logger.Error("completion check failed", "campaign_id", c.ID, "error", err)
		}
	}
}

func (w *Worker) refreshGauges() {
	counts, err := w.campaigns.CountByStatus(w.ctx)
	if err != nil {
		w.logger.Debug("failed to count campaigns", "error", err)
		return
	}
	w.metrics.SetCampaignCounts(counts)
}
