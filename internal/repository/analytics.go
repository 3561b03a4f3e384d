package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benchwire/hotlist/internal/db"
	"github.com/benchwire/hotlist/internal/model"
)

type AnalyticsRepository struct {
	db *db.DB
}

func NewAnalyticsRepository(database *db.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: database}
}

// Append stores an analytics event. Events are append-only: there is
// no update or delete path.
func (r *AnalyticsRepository) Append(ctx context.Context, ev *model.AnalyticsEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	ev.CreatedAt = time.Now().UTC()

	var metadata any
	if len(ev.Metadata) > 0 {
		data, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = string(data)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO analytics_events (id, campaign_id, campaign_candidate_id, event_type,
			event_timestamp, response_time_hours, conversion_value, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.CampaignID, nullString(ev.CampaignCandidateID), ev.EventType,
		ev.EventTimestamp, nullFloat(ev.ResponseTimeHours), nullFloat(ev.ConversionValue),
		metadata, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// List returns events matching the filter, ordered by event timestamp
func (r *AnalyticsRepository) List(ctx context.Context, filter model.EventListFilter) ([]*model.AnalyticsEvent, error) {
	query := `
		SELECT id, campaign_id, campaign_candidate_id, event_type, event_timestamp,
			response_time_hours, conversion_value, metadata, created_at
		FROM analytics_events WHERE 1=1`
	args := []any{}

	if filter.CampaignID != "" {
		query += " AND campaign_id = ?"
		args = append(args, filter.CampaignID)
	}
	if filter.CampaignCandidateID != "" {
		query += " AND campaign_candidate_id = ?"
		args = append(args, filter.CampaignCandidateID)
	}
	if filter.EventType != "" {
		query += " AND event_type = ?"
		args = append(args, filter.EventType)
	}

	query += " ORDER BY event_timestamp"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*model.AnalyticsEvent{}
	for rows.Next() {
		ev := &model.AnalyticsEvent{}
		var candidateID, metadata sql.NullString
		var responseHours, conversion sql.NullFloat64

		err := rows.Scan(&ev.ID, &ev.CampaignID, &candidateID, &ev.EventType, &ev.EventTimestamp,
			&responseHours, &conversion, &metadata, &ev.CreatedAt)
		if err != nil {
			return nil, err
		}

		ev.CampaignCandidateID = candidateID.String
		if responseHours.Valid {
			v := responseHours.Float64
			ev.ResponseTimeHours = &v
		}
		if conversion.Valid {
			v := conversion.Float64
			ev.ConversionValue = &v
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("failed to parse metadata: %w", err)
			}
		}

		events = append(events, ev)
	}
	return events, rows.Err()
}

// HasEvent reports whether any event of the given type exists for a
// campaign candidate
func (r *AnalyticsRepository) HasEvent(ctx context.Context, candidateID string, eventType model.EventType) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM analytics_events
		WHERE campaign_candidate_id = ? AND event_type = ?`, candidateID, eventType).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Metrics computes the derived campaign aggregates from recorded
// events. Counts are distinct candidates per event type, so repeated
// opens or replies from one vendor never inflate a rate past 1. All
// ratios are 0 when the denominator is 0.
func (r *AnalyticsRepository) Metrics(ctx context.Context, campaignID string) (*model.CampaignMetrics, error) {
	m := &model.CampaignMetrics{CampaignID: campaignID}

	rows, err := r.db.QueryContext(ctx, `
		SELECT event_type, COUNT(DISTINCT campaign_candidate_id) FROM analytics_events
		WHERE campaign_id = ? GROUP BY event_type`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var eventType model.EventType
		var n int
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, err
		}
		switch eventType {
		case model.EventEmailSent:
			m.Sent = n
		case model.EventEmailOpened:
			m.Opened = n
		case model.EventEmailClicked:
			m.Clicked = n
		case model.EventVendorReply:
			m.Replies = n
		case model.EventInterviewScheduled:
			m.Interviews = n
		case model.EventPlacementConfirmed:
			m.Placements = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var avg sql.NullFloat64
	err = r.db.QueryRowContext(ctx, `
		SELECT AVG(response_time_hours) FROM analytics_events
		WHERE campaign_id = ? AND event_type = ? AND response_time_hours IS NOT NULL`,
		campaignID, model.EventVendorReply).Scan(&avg)
	if err != nil {
		return nil, err
	}
	if avg.Valid {
		m.AvgResponseHours = avg.Float64
	}

	m.OpenRate = ratio(m.Opened, m.Sent)
	m.ClickRate = ratio(m.Clicked, m.Sent)
	m.ResponseRate = ratio(m.Replies, m.Sent)
	m.ConversionRate = ratio(m.Placements, m.Replies)

	return m, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
