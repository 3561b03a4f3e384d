// Package dispatch performs the per-candidate sends of a campaign.
// A pass walks candidates in batch order, isolates failures per
// candidate, and is idempotent per (campaign, candidate) pair.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benchwire/hotlist/internal/content"
	"github.com/benchwire/hotlist/internal/errs"
	"github.com/benchwire/hotlist/internal/lock"
	"github.com/benchwire/hotlist/internal/mailer"
	"github.com/benchwire/hotlist/internal/metrics"
	"github.com/benchwire/hotlist/internal/model"
	"github.com/benchwire/hotlist/internal/outbox"
	"github.com/benchwire/hotlist/internal/repository"
	"github.com/benchwire/hotlist/internal/schedule"
)

// Directory supplies candidate records for rendering
type Directory interface {
	Get(ctx context.Context, ref string) (*model.CandidateRecord, error)
}

// Builder renders the vendor email for one candidate
type Builder interface {
	Render(subjectTmpl, bodyTmpl string, cand *model.CandidateRecord, includeWorkAuth bool) (*content.Rendered, error)
}

// Recorder appends analytics events during a pass
type Recorder interface {
	RecordSent(ctx context.Context, campaignID, candidateID string, at time.Time) error
}

// Summary reports the outcome of one dispatch pass
type Summary struct {
	CampaignID string     `json:"campaign_id"`
	Sent       int        `json:"sent"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"` // idempotency key already sent
	Completed  bool       `json:"completed"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
}

// Config holds dispatch tuning
type Config struct {
	SendTimeout       time.Duration
	CompletionTimeout time.Duration
}

// Engine executes dispatch passes
type Engine struct {
	campaigns  *repository.CampaignRepository
	candidates *repository.CandidateRepository
	ledger     *outbox.Ledger
	directory  Directory
	builder    Builder
	recorder   Recorder
	mailer     mailer.Mailer
	locks      *lock.Manager
	metrics    *metrics.Metrics
	logger     *slog.Logger

	sendTimeout       time.Duration
	completionTimeout time.Duration
}

func NewEngine(
	campaigns *repository.CampaignRepository,
	candidates *repository.CandidateRepository,
	ledger *outbox.Ledger,
	directory Directory,
	builder Builder,
	recorder Recorder,
	m mailer.Mailer,
	locks *lock.Manager,
	pm *metrics.Metrics,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = 72 * time.Hour
	}
	return &Engine{
		campaigns:         campaigns,
		candidates:        candidates,
		ledger:            ledger,
		directory:         directory,
		builder:           builder,
		recorder:          recorder,
		mailer:            m,
		locks:             locks,
		metrics:           pm,
		logger:            logger.With("component", "dispatch"),
		sendTimeout:       cfg.SendTimeout,
		completionTimeout: cfg.CompletionTimeout,
	}
}

// Dispatch runs one pass over the campaign. Preconditions: the
// campaign is scheduled and its next run is due. Per-candidate
// failures are recorded and never abort the batch.
func (e *Engine) Dispatch(ctx context.Context, campaignID string) (*Summary, error) {
	now := time.Now().UTC()
	logger := e.logger.With("campaign_id", campaignID)

	c, err := e.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errs.NewNotFound("campaign", campaignID)
	}
	if c.Status != model.CampaignScheduled {
		return nil, errs.NewValidation("status", fmt.Sprintf("campaign is %s, only scheduled campaigns dispatch", c.Status))
	}

	// Dueness is the scheduledAt stamp the lifecycle service wrote, not
	// a recomputation: ComputeNextRun rolls wall-clock schedules forward
	// once their time has passed, which is exactly when they are due.
	if c.ScheduledAt == nil {
		return nil, errs.NewValidation("scheduled_at", "campaign has no scheduled run")
	}
	if c.ScheduledAt.After(now) {
		return nil, errs.NewValidation("scheduled_at", fmt.Sprintf("campaign is not due until %s", c.ScheduledAt.Format(time.RFC3339)))
	}

	// The pass begins: scheduled -> sent
	c, err = e.campaigns.Mutate(ctx, campaignID, func(c *model.Campaign) error {
		if !c.Status.CanTransitionTo(model.CampaignSent) {
			return errs.NewValidation("status", fmt.Sprintf("cannot dispatch a %s campaign", c.Status))
		}
		e.metrics.RecordTransition(c.Status, model.CampaignSent)
		c.Status = model.CampaignSent
		if c.SentAt == nil {
			c.SentAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	candidates, err := e.candidates.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{CampaignID: campaignID}
	for _, cc := range candidates {
		if cc.Status != model.CandidateSelected {
			continue
		}

		// Cancellation mid-dispatch stops after the in-flight
		// candidate; an unexpected unlock means someone is editing a
		// campaign that should be frozen.
		current, err := e.campaigns.GetByID(ctx, campaignID)
		if err != nil {
			return summary, err
		}
		if current == nil || current.Status == model.CampaignCancelled {
			logger.Info("dispatch stopped by cancellation", "sent", summary.Sent)
			return summary, nil
		}
		if current.AutoLockEnabled && e.locks.IsEditable(current) {
			return summary, &errs.LockedCampaignError{CampaignID: campaignID}
		}

		if err := e.sendOne(ctx, c, cc, now, summary, logger); err != nil {
			// Recorded on the candidate; the batch continues
			summary.Failed++
			e.metrics.SendFailuresTotal.Inc()
			logger.Warn("candidate send failed",
				"candidate_ref", cc.CandidateRef, "position", cc.PositionInBatch, "error", err)
		}
	}

	if err := e.settlePass(ctx, campaignID, now, summary, logger); err != nil {
		return summary, err
	}

	outcome := "clean"
	if summary.Failed > 0 {
		outcome = "partial"
	}
	e.metrics.DispatchPassesTotal.WithLabelValues(outcome).Inc()
	logger.Info("dispatch pass finished",
		"sent", summary.Sent, "failed", summary.Failed, "skipped", summary.Skipped, "completed", summary.Completed)

	return summary, nil
}

// sendOne attempts a single candidate. Any error is a per-candidate
// dispatch failure; the candidate stays selected and retryable.
func (e *Engine) sendOne(ctx context.Context, c *model.Campaign, cc *model.CampaignCandidate, now time.Time, summary *Summary, logger *slog.Logger) error {
	entry, err := e.ledger.Begin(c.ID, cc.CandidateRef)
	if err != nil {
		return e.recordFailure(ctx, cc, err)
	}

	// A sent ledger entry with a still-selected candidate means a
	// crash hit between the send and the status write. Recover the
	// status without touching the mailer.
	if entry.Status == outbox.StatusSent {
		summary.Skipped++
		e.metrics.SendSkippedTotal.Inc()
		sentAt := now
		if entry.SentAt != nil {
			sentAt = *entry.SentAt
		}
		return e.markSent(ctx, cc, sentAt)
	}

	if cc.VendorEmail == "" {
		return e.recordFailure(ctx, cc, &errs.DispatchError{
			CampaignID: c.ID, CandidateRef: cc.CandidateRef,
			Err: fmt.Errorf("no vendor email on candidate"),
		})
	}

	record, err := e.directory.Get(ctx, cc.CandidateRef)
	if err != nil {
		return e.recordFailure(ctx, cc, &errs.DispatchError{CampaignID: c.ID, CandidateRef: cc.CandidateRef, Err: err})
	}

	rendered, err := e.builder.Render(c.SubjectTemplate, c.EmailContent, record, cc.IncludeWorkAuth)
	if err != nil {
		return e.recordFailure(ctx, cc, &errs.DispatchError{CampaignID: c.ID, CandidateRef: cc.CandidateRef, Err: err})
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	result, err := e.mailer.Send(sendCtx, &mailer.SendRequest{
		To:             cc.VendorEmail,
		Subject:        rendered.Subject,
		Body:           rendered.Body,
		IdempotencyKey: c.ID + "/" + cc.CandidateRef,
	})
	cancel()

	if err != nil {
		return e.recordFailure(ctx, cc, &errs.DispatchError{CampaignID: c.ID, CandidateRef: cc.CandidateRef, Err: err})
	}
	if !result.Accepted && !result.AlreadySent {
		return e.recordFailure(ctx, cc, &errs.DispatchError{
			CampaignID: c.ID, CandidateRef: cc.CandidateRef,
			Err: fmt.Errorf("mailer rejected the message"),
		})
	}

	if result.AlreadySent {
		summary.Skipped++
		e.metrics.SendSkippedTotal.Inc()
	} else {
		summary.Sent++
		e.metrics.CandidatesSentTotal.Inc()
	}

	if err := e.ledger.MarkSent(c.ID, cc.CandidateRef, now); err != nil {
		logger.Error("failed to mark ledger entry sent", "candidate_ref", cc.CandidateRef, "error", err)
	}
	return e.markSent(ctx, cc, now)
}

func (e *Engine) markSent(ctx context.Context, cc *model.CampaignCandidate, at time.Time) error {
	cc.Status = model.CandidateSent
	cc.SentAt = &at
	cc.Attempts++
	cc.LastError = ""
	if err := e.candidates.Update(ctx, cc); err != nil {
		return err
	}
	return e.recorder.RecordSent(ctx, cc.CampaignID, cc.ID, at)
}

func (e *Engine) recordFailure(ctx context.Context, cc *model.CampaignCandidate, cause error) error {
	if err := e.ledger.MarkFailed(cc.CampaignID, cc.CandidateRef, cause.Error()); err != nil {
		e.logger.Error("failed to mark ledger entry failed", "candidate_ref", cc.CandidateRef, "error", err)
	}

	cc.Attempts++
	cc.LastError = cause.Error()
	if err := e.candidates.Update(ctx, cc); err != nil {
		return fmt.Errorf("%w (candidate update failed: %v)", cause, err)
	}
	return cause
}

// settlePass decides where the campaign goes after a pass: back to
// scheduled when candidates remain selected (retry) or when a
// recurring schedule has runs left, toward completed otherwise.
func (e *Engine) settlePass(ctx context.Context, campaignID string, now time.Time, summary *Summary, logger *slog.Logger) error {
	counts, err := e.candidates.StatusCounts(ctx, campaignID)
	if err != nil {
		return err
	}
	remaining := counts[model.CandidateSelected]

	_, err = e.campaigns.Mutate(ctx, campaignID, func(c *model.Campaign) error {
		if c.Status != model.CampaignSent {
			// Cancelled mid-settle; nothing to decide
			return nil
		}

		if remaining > 0 {
			// Failed candidates stay selected and the campaign goes
			// back to scheduled so the next pass retries them.
			e.metrics.RecordTransition(c.Status, model.CampaignScheduled)
			c.Status = model.CampaignScheduled
			return nil
		}

		c.LastRunAt = &now
		c.OccurrenceCount++

		if c.ScheduleType.Recurring() && !schedule.Exhausted(c, now) {
			next, err := schedule.ComputeNextRun(c, now)
			if err != nil {
				return err
			}
			c.ScheduledAt = &next
			summary.NextRunAt = &next
			e.metrics.RecordTransition(c.Status, model.CampaignScheduled)
			c.Status = model.CampaignScheduled
			logger.Info("recurring campaign rescheduled", "next_run_at", next)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Non-recurring (or exhausted) campaigns sit in sent until every
	// candidate leaves it or the completion window elapses.
	return e.TryComplete(ctx, campaignID, summary)
}

// TryComplete moves a sent campaign to completed once every candidate
// has left sent or the completion timeout has elapsed. The dispatch
// worker calls this on every poll; completing releases the lock.
func (e *Engine) TryComplete(ctx context.Context, campaignID string, summary *Summary) error {
	c, err := e.campaigns.GetByID(ctx, campaignID)
	if err != nil || c == nil {
		return err
	}
	if c.Status != model.CampaignSent {
		return nil
	}

	counts, err := e.candidates.StatusCounts(ctx, campaignID)
	if err != nil {
		return err
	}
	if counts[model.CandidateSelected] > 0 {
		return nil
	}

	settled := counts[model.CandidateSent] == 0
	timedOut := c.SentAt != nil && time.Since(*c.SentAt) >= e.completionTimeout
	if !settled && !timedOut {
		return nil
	}

	now := time.Now().UTC()
	_, err = e.campaigns.Mutate(ctx, campaignID, func(c *model.Campaign) error {
		if !c.Status.CanTransitionTo(model.CampaignCompleted) {
			return nil
		}
		e.metrics.RecordTransition(c.Status, model.CampaignCompleted)
		c.Status = model.CampaignCompleted
		c.CompletedAt = &now
		e.locks.Release(c, "")
		return nil
	})
	if err != nil {
		return err
	}

	if summary != nil {
		summary.Completed = true
	}
	e.logger.Info("campaign completed", "campaign_id", campaignID)
	return nil
}
