package model

import "time"

// EventType represents the kind of analytics fact being recorded
type EventType string

const (
	EventEmailSent          EventType = "email_sent"
	EventEmailOpened        EventType = "email_opened"
	EventEmailClicked       EventType = "email_clicked"
	EventVendorReply        EventType = "vendor_reply"
	EventInterviewScheduled EventType = "interview_scheduled"
	EventPlacementConfirmed EventType = "placement_confirmed"
)

// IsValid reports whether the event type is known
func (t EventType) IsValid() bool {
	switch t {
	case EventEmailSent, EventEmailOpened, EventEmailClicked,
		EventVendorReply, EventInterviewScheduled, EventPlacementConfirmed:
		return true
	}
	return false
}

// RequiresCandidate reports whether the event type must reference a
// campaign candidate. Every current type does; campaign-level events
// keep the column nullable for future types.
func (t EventType) RequiresCandidate() bool {
	return true
}

// AnalyticsEvent is an immutable fact about campaign engagement.
// Events are never mutated or deleted after creation and only weakly
// reference their campaign and candidate, so they survive candidate
// deletion as historical facts.
type AnalyticsEvent struct {
	ID                  string            `json:"id"`
	CampaignID          string            `json:"campaign_id"`
	CampaignCandidateID string            `json:"campaign_candidate_id,omitempty"`
	EventType           EventType         `json:"event_type"`
	EventTimestamp      time.Time         `json:"event_timestamp"`
	ResponseTimeHours   *float64          `json:"response_time_hours,omitempty"`
	ConversionValue     *float64          `json:"conversion_value,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
}

// CampaignMetrics holds derived aggregates. Computed on demand from
// recorded events, never stored. All ratios are 0 when the denominator
// is 0.
type CampaignMetrics struct {
	CampaignID       string  `json:"campaign_id"`
	Sent             int     `json:"sent"`
	Opened           int     `json:"opened"`
	Clicked          int     `json:"clicked"`
	Replies          int     `json:"replies"`
	Interviews       int     `json:"interviews"`
	Placements       int     `json:"placements"`
	OpenRate         float64 `json:"open_rate"`
	ClickRate        float64 `json:"click_rate"`
	ResponseRate     float64 `json:"response_rate"`
	ConversionRate   float64 `json:"conversion_rate"`
	AvgResponseHours float64 `json:"average_response_time_hours"`
}

// EventListFilter for filtering analytics events
type EventListFilter struct {
	CampaignID          string
	CampaignCandidateID string
	EventType           EventType
	Limit               int
	Offset              int
}
