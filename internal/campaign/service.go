// Package campaign owns the campaign lifecycle: draft -> scheduled ->
// sent -> completed, with cancellation from any non-terminal state. It
// coordinates the batch selector, scheduler, and lock manager; the
// dispatch engine drives the scheduled/sent edges.
package campaign

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benchwire/hotlist/internal/batch"
	"github.com/benchwire/hotlist/internal/dispatch"
	"github.com/benchwire/hotlist/internal/errs"
	"github.com/benchwire/hotlist/internal/lock"
	"github.com/benchwire/hotlist/internal/metrics"
	"github.com/benchwire/hotlist/internal/model"
	"github.com/benchwire/hotlist/internal/repository"
	"github.com/benchwire/hotlist/internal/schedule"
)

// Service is the pure domain layer over campaigns. It has no HTTP
// types; the api package translates.
type Service struct {
	campaigns  *repository.CampaignRepository
	candidates *repository.CandidateRepository
	directory  dispatch.Directory
	locks      *lock.Manager
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewService(
	campaigns *repository.CampaignRepository,
	candidates *repository.CandidateRepository,
	directory dispatch.Directory,
	locks *lock.Manager,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		campaigns:  campaigns,
		candidates: candidates,
		directory:  directory,
		locks:      locks,
		metrics:    m,
		logger:     logger.With("component", "campaign"),
	}
}

// CreateInput holds the fields a new campaign starts with
type CreateInput struct {
	Name            string               `json:"name"`
	Description     string               `json:"description"`
	BatchSize       int                  `json:"batch_size"`
	ScheduleType    model.ScheduleType   `json:"schedule_type"`
	Schedule        model.ScheduleConfig `json:"schedule"`
	ShowWorkAuth    bool                 `json:"show_work_authorization"`
	AutoLockEnabled bool                 `json:"auto_lock_enabled"`
	SubjectTemplate string               `json:"subject_template"`
	EmailContent    string               `json:"email_content"`
	Actor           string               `json:"-"`
}

// Create creates a new draft campaign
func (s *Service) Create(ctx context.Context, in *CreateInput) (*model.Campaign, error) {
	if in.Name == "" {
		return nil, errs.NewValidation("name", "name is required")
	}
	if in.BatchSize < 1 {
		return nil, errs.NewValidation("batch_size", "batch size must be at least 1")
	}
	if in.ScheduleType == "" {
		in.ScheduleType = model.ScheduleImmediate
	}
	if !in.ScheduleType.IsValid() {
		return nil, errs.NewValidation("schedule_type", fmt.Sprintf("unknown schedule type %q", in.ScheduleType))
	}

	c := &model.Campaign{
		Name:            in.Name,
		Description:     in.Description,
		BatchSize:       in.BatchSize,
		ScheduleType:    in.ScheduleType,
		Schedule:        in.Schedule,
		ShowWorkAuth:    in.ShowWorkAuth,
		AutoLockEnabled: in.AutoLockEnabled,
		SubjectTemplate: in.SubjectTemplate,
		EmailContent:    in.EmailContent,
		CreatedBy:       in.Actor,
		UpdatedBy:       in.Actor,
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("campaign created", "campaign_id", c.ID, "name", c.Name, "batch_size", c.BatchSize)
	return c, nil
}

// UpdateInput holds the editable campaign fields
type UpdateInput struct {
	Name            *string `json:"name,omitempty"`
	Description     *string `json:"description,omitempty"`
	BatchSize       *int    `json:"batch_size,omitempty"`
	ShowWorkAuth    *bool   `json:"show_work_authorization,omitempty"`
	AutoLockEnabled *bool   `json:"auto_lock_enabled,omitempty"`
	SubjectTemplate *string `json:"subject_template,omitempty"`
	EmailContent    *string `json:"email_content,omitempty"`
	Actor           string  `json:"-"`
}

// Update edits campaign fields. Locked campaigns reject edits.
func (s *Service) Update(ctx context.Context, id string, in *UpdateInput) (*model.Campaign, error) {
	existing, err := s.candidates.ListByCampaign(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.campaigns.Mutate(ctx, id, func(c *model.Campaign) error {
		if err := s.checkEditable(c); err != nil {
			return err
		}

		if in.Name != nil {
			if *in.Name == "" {
				return errs.NewValidation("name", "name is required")
			}
			c.Name = *in.Name
		}
		if in.Description != nil {
			c.Description = *in.Description
		}
		if in.BatchSize != nil {
			if *in.BatchSize < 1 {
				return errs.NewValidation("batch_size", "batch size must be at least 1")
			}
			if *in.BatchSize < len(existing) {
				return errs.NewValidation("batch_size",
					fmt.Sprintf("batch size %d is below the %d candidates already selected", *in.BatchSize, len(existing)))
			}
			c.BatchSize = *in.BatchSize
		}
		if in.ShowWorkAuth != nil {
			c.ShowWorkAuth = *in.ShowWorkAuth
		}
		if in.AutoLockEnabled != nil {
			c.AutoLockEnabled = *in.AutoLockEnabled
		}
		if in.SubjectTemplate != nil {
			c.SubjectTemplate = *in.SubjectTemplate
		}
		if in.EmailContent != nil {
			c.EmailContent = *in.EmailContent
		}
		c.UpdatedBy = in.Actor
		return nil
	})
}

// Detail bundles a campaign with its candidate set
type Detail struct {
	Campaign   *model.Campaign            `json:"campaign"`
	Candidates []*model.CampaignCandidate `json:"candidates"`
}

// Get returns a campaign with its candidates
func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errs.NewNotFound("campaign", id)
	}

	candidates, err := s.candidates.ListByCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Campaign: c, Candidates: candidates}, nil
}

// List returns campaigns matching the filter
func (s *Service) List(ctx context.Context, filter model.CampaignListFilter) ([]model.CampaignWithStats, int, error) {
	return s.campaigns.List(ctx, filter)
}

// SelectCandidates freezes new candidates into the campaign batch.
// Every ref must exist in the candidate directory.
func (s *Service) SelectCandidates(ctx context.Context, id string, selections []batch.Selection, actor string) ([]*model.CampaignCandidate, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errs.NewNotFound("campaign", id)
	}
	if err := s.checkEditable(c); err != nil {
		return nil, err
	}

	for _, sel := range selections {
		if _, err := s.directory.Get(ctx, sel.Ref); err != nil {
			if errs.IsNotFound(err) {
				return nil, errs.NewValidation("candidates", fmt.Sprintf("candidate %s does not exist", sel.Ref))
			}
			return nil, err
		}
	}

	existing, err := s.candidates.ListByCampaign(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := batch.Select(c, existing, selections)
	if err != nil {
		return nil, err
	}

	if err := s.candidates.Add(ctx, rows); err != nil {
		return nil, err
	}

	s.logger.Info("candidates selected", "campaign_id", id, "added", len(rows), "total", len(existing)+len(rows))
	return rows, nil
}

// RemoveCandidate drops a candidate from a draft campaign and keeps
// the remaining positions dense
func (s *Service) RemoveCandidate(ctx context.Context, id, ref string) error {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return errs.NewNotFound("campaign", id)
	}
	if err := s.checkEditable(c); err != nil {
		return err
	}
	if err := batch.CanRemove(c); err != nil {
		return err
	}

	if err := s.candidates.Remove(ctx, id, ref); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.NewNotFound("campaign candidate", ref)
		}
		return err
	}

	s.logger.Info("candidate removed", "campaign_id", id, "candidate_ref", ref)
	return nil
}

// SetWorkAuthVisibility overrides the work authorization disclosure
// flag for one candidate. Allowed in draft and scheduled only.
func (s *Service) SetWorkAuthVisibility(ctx context.Context, id, ref string, include bool) error {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return errs.NewNotFound("campaign", id)
	}
	if err := s.checkEditable(c); err != nil {
		return err
	}
	if err := batch.CanSetWorkAuth(c); err != nil {
		return err
	}

	cc, err := s.candidates.GetByRef(ctx, id, ref)
	if err != nil {
		return err
	}
	if cc == nil {
		return errs.NewNotFound("campaign candidate", ref)
	}

	cc.IncludeWorkAuth = include
	return s.candidates.Update(ctx, cc)
}

// Schedule applies a schedule to the campaign and computes its next
// run. A draft moves to scheduled and, with auto-lock on, takes the
// edit lock; re-scheduling an already scheduled campaign only
// recomputes the next run.
func (s *Service) Schedule(ctx context.Context, id string, scheduleType model.ScheduleType, cfg model.ScheduleConfig, actor string) (*model.Campaign, error) {
	if !scheduleType.IsValid() {
		return nil, errs.NewValidation("schedule_type", fmt.Sprintf("unknown schedule type %q", scheduleType))
	}

	candidates, err := s.candidates.ListByCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errs.NewValidation("candidates", "cannot schedule a campaign with no candidates")
	}

	now := time.Now().UTC()
	return s.campaigns.Mutate(ctx, id, func(c *model.Campaign) error {
		if err := s.checkEditableBy(c, actor); err != nil {
			return err
		}
		switch c.Status {
		case model.CampaignDraft, model.CampaignScheduled:
		default:
			return errs.NewValidation("status", fmt.Sprintf("cannot schedule a %s campaign", c.Status))
		}

		c.ScheduleType = scheduleType
		c.Schedule = cfg

		next, err := schedule.ComputeNextRun(c, now)
		if err != nil {
			return err
		}
		c.ScheduledAt = &next
		if c.AnchorAt == nil {
			c.AnchorAt = &next
		}
		c.UpdatedBy = actor

		if c.Status == model.CampaignDraft {
			s.metrics.RecordTransition(c.Status, model.CampaignScheduled)
			c.Status = model.CampaignScheduled
			if c.AutoLockEnabled {
				if err := s.acquireLock(c, actor, now); err != nil {
					return err
				}
			}
			s.logger.Info("campaign scheduled",
				"campaign_id", c.ID, "schedule", schedule.Describe(c), "next_run_at", next)
		}
		return nil
	})
}

// SendNow schedules the campaign for an immediate dispatch pass
func (s *Service) SendNow(ctx context.Context, id, actor string) (*model.Campaign, error) {
	candidates, err := s.candidates.ListByCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errs.NewValidation("candidates", "cannot send a campaign with no candidates")
	}

	now := time.Now().UTC()
	c, err := s.campaigns.Mutate(ctx, id, func(c *model.Campaign) error {
		if err := s.checkEditableBy(c, actor); err != nil {
			return err
		}
		switch c.Status {
		case model.CampaignDraft, model.CampaignScheduled:
		default:
			return errs.NewValidation("status", fmt.Sprintf("cannot send a %s campaign", c.Status))
		}

		c.ScheduledAt = &now
		if c.AnchorAt == nil {
			c.AnchorAt = &now
		}
		c.UpdatedBy = actor

		if c.Status == model.CampaignDraft {
			s.metrics.RecordTransition(c.Status, model.CampaignScheduled)
			c.Status = model.CampaignScheduled
			if c.AutoLockEnabled {
				if err := s.acquireLock(c, actor, now); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("campaign queued for immediate send", "campaign_id", id, "actor", actor)
	return c, nil
}

// Cancel moves any non-terminal campaign to cancelled and releases the
// lock. History stays: candidates and analytics events are kept.
func (s *Service) Cancel(ctx context.Context, id, actor string) (*model.Campaign, error) {
	c, err := s.campaigns.Mutate(ctx, id, func(c *model.Campaign) error {
		if c.Status.IsTerminal() {
			return errs.NewValidation("status", fmt.Sprintf("campaign is already %s", c.Status))
		}
		s.metrics.RecordTransition(c.Status, model.CampaignCancelled)
		c.Status = model.CampaignCancelled
		c.UpdatedBy = actor
		s.locks.Release(c, actor)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("campaign cancelled", "campaign_id", id, "actor", actor)
	return c, nil
}

// Unlock is the admin override for a lock held by another actor
func (s *Service) Unlock(ctx context.Context, id, actor string) (*model.Campaign, error) {
	return s.campaigns.Mutate(ctx, id, func(c *model.Campaign) error {
		s.locks.Release(c, actor)
		c.UpdatedBy = actor
		return nil
	})
}

// RejectCandidate marks a candidate rejected with a reason. Rejection
// is reachable from any non-terminal candidate state.
func (s *Service) RejectCandidate(ctx context.Context, id, ref, reason string) error {
	cc, err := s.candidates.GetByRef(ctx, id, ref)
	if err != nil {
		return err
	}
	if cc == nil {
		return errs.NewNotFound("campaign candidate", ref)
	}
	if !cc.Status.CanAdvanceTo(model.CandidateRejected) {
		return errs.NewValidation("status", fmt.Sprintf("candidate is already %s", cc.Status))
	}

	cc.Status = model.CandidateRejected
	cc.RejectionReason = reason
	return s.candidates.Update(ctx, cc)
}

// Delete removes a campaign and its candidates. Only drafts and
// terminal campaigns may be deleted; analytics events survive as
// historical facts.
func (s *Service) Delete(ctx context.Context, id string) error {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return errs.NewNotFound("campaign", id)
	}
	if c.Status != model.CampaignDraft && !c.Status.IsTerminal() {
		return errs.NewValidation("status", fmt.Sprintf("cannot delete a %s campaign", c.Status))
	}
	return s.campaigns.Delete(ctx, id)
}

func (s *Service) checkEditable(c *model.Campaign) error {
	if err := s.locks.CheckEditable(c); err != nil {
		s.metrics.LockConflictsTotal.Inc()
		return err
	}
	return nil
}

func (s *Service) checkEditableBy(c *model.Campaign, actor string) error {
	if err := s.locks.CheckEditableBy(c, actor); err != nil {
		s.metrics.LockConflictsTotal.Inc()
		return err
	}
	return nil
}

func (s *Service) acquireLock(c *model.Campaign, actor string, now time.Time) error {
	if err := s.locks.Acquire(c, actor, now); err != nil {
		s.metrics.LockConflictsTotal.Inc()
		return err
	}
	return nil
}
