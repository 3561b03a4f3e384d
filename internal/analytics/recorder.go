// Package analytics appends immutable engagement events and derives
// campaign aggregates from them.
package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/benchwire/hotlist/internal/errs"
	"github.com/benchwire/hotlist/internal/metrics"
	"github.com/benchwire/hotlist/internal/model"
	"github.com/benchwire/hotlist/internal/repository"
)

// RecordRequest describes one event to record
type RecordRequest struct {
	EventType           model.EventType   `json:"event_type"`
	CampaignID          string            `json:"campaign_id"`
	CampaignCandidateID string            `json:"campaign_candidate_id"`
	Timestamp           time.Time         `json:"timestamp,omitempty"` // zero means now
	ConversionValue     *float64          `json:"conversion_value,omitempty"`
	VendorResponse      string            `json:"vendor_response,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// Recorder appends analytics events and keeps candidate progress in
// step with them
type Recorder struct {
	events     *repository.AnalyticsRepository
	candidates *repository.CandidateRepository
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewRecorder(events *repository.AnalyticsRepository, candidates *repository.CandidateRepository, m *metrics.Metrics, logger *slog.Logger) *Recorder {
	return &Recorder{
		events:     events,
		candidates: candidates,
		metrics:    m,
		logger:     logger.With("component", "analytics"),
	}
}

// Record appends an event. Events are facts: they are never mutated or
// deleted afterwards. Recording a vendor reply also computes the
// response time from the candidate's send stamp and advances the
// candidate, as do interview and placement events.
func (r *Recorder) Record(ctx context.Context, req *RecordRequest) (*model.AnalyticsEvent, error) {
	if !req.EventType.IsValid() {
		return nil, errs.NewValidation("event_type", "unknown event type")
	}
	if req.CampaignID == "" {
		return nil, errs.NewValidation("campaign_id", "campaign id is required")
	}
	if req.EventType.RequiresCandidate() && req.CampaignCandidateID == "" {
		return nil, errs.NewValidation("campaign_candidate_id", "event type requires a candidate reference")
	}

	when := req.Timestamp
	if when.IsZero() {
		when = time.Now().UTC()
	}

	ev := &model.AnalyticsEvent{
		CampaignID:          req.CampaignID,
		CampaignCandidateID: req.CampaignCandidateID,
		EventType:           req.EventType,
		EventTimestamp:      when,
		ConversionValue:     req.ConversionValue,
		Metadata:            req.Metadata,
	}

	var cand *model.CampaignCandidate
	if req.CampaignCandidateID != "" {
		var err error
		cand, err = r.candidates.GetByID(ctx, req.CampaignCandidateID)
		if err != nil {
			return nil, err
		}
		if cand == nil {
			return nil, errs.NewNotFound("campaign candidate", req.CampaignCandidateID)
		}
		if cand.CampaignID != req.CampaignID {
			return nil, errs.NewValidation("campaign_candidate_id", "candidate does not belong to the campaign")
		}

		// Everything after the send presumes a send happened
		if req.EventType != model.EventEmailSent {
			sent, err := r.events.HasEvent(ctx, cand.ID, model.EventEmailSent)
			if err != nil {
				return nil, err
			}
			if !sent {
				return nil, errs.NewValidation("event_type", "candidate has no prior sent event")
			}
		}

		if req.EventType == model.EventVendorReply && cand.SentAt != nil {
			hours := when.Sub(*cand.SentAt).Hours()
			ev.ResponseTimeHours = &hours
		}
	}

	if err := r.events.Append(ctx, ev); err != nil {
		return nil, err
	}
	r.metrics.EventsRecordedTotal.WithLabelValues(string(ev.EventType)).Inc()

	if cand != nil {
		if err := r.advanceCandidate(ctx, cand, req, when); err != nil {
			// The event is already a recorded fact; candidate progress
			// failing to persist is surfaced but does not undo it.
			r.logger.Error("failed to advance candidate", "candidate_id", cand.ID, "error", err)
			return ev, err
		}
	}

	r.logger.Debug("event recorded", "event_type", ev.EventType, "campaign_id", ev.CampaignID, "candidate_id", ev.CampaignCandidateID)
	return ev, nil
}

// advanceCandidate moves the candidate forward when the event implies
// progress. Out-of-order or duplicate events keep the event recorded
// but leave the candidate where it is.
func (r *Recorder) advanceCandidate(ctx context.Context, cand *model.CampaignCandidate, req *RecordRequest, when time.Time) error {
	var next model.CandidateStatus
	switch req.EventType {
	case model.EventVendorReply:
		next = model.CandidateResponded
	case model.EventInterviewScheduled:
		next = model.CandidateInterviewed
	case model.EventPlacementConfirmed:
		next = model.CandidatePlaced
	default:
		return nil
	}

	if !cand.Status.CanAdvanceTo(next) {
		return nil
	}

	cand.Status = next
	switch next {
	case model.CandidateResponded:
		cand.RespondedAt = &when
		if req.VendorResponse != "" {
			cand.VendorResponse = req.VendorResponse
		}
	case model.CandidateInterviewed:
		cand.InterviewAt = &when
	case model.CandidatePlaced:
		cand.PlacedAt = &when
	}

	return r.candidates.Update(ctx, cand)
}

// RecordSent appends the email_sent event for a dispatched candidate.
// It is a no-op when the event already exists, which keeps a recovered
// dispatch pass from duplicating the fact.
func (r *Recorder) RecordSent(ctx context.Context, campaignID, candidateID string, at time.Time) error {
	has, err := r.events.HasEvent(ctx, candidateID, model.EventEmailSent)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	_, err = r.Record(ctx, &RecordRequest{
		EventType:           model.EventEmailSent,
		CampaignID:          campaignID,
		CampaignCandidateID: candidateID,
		Timestamp:           at,
	})
	return err
}

// Metrics computes the derived aggregates for a campaign
func (r *Recorder) Metrics(ctx context.Context, campaignID string) (*model.CampaignMetrics, error) {
	return r.events.Metrics(ctx, campaignID)
}

// Events lists recorded events
func (r *Recorder) Events(ctx context.Context, filter model.EventListFilter) ([]*model.AnalyticsEvent, error) {
	return r.events.List(ctx, filter)
}
