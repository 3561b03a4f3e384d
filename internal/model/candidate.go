package model

import "time"

// CandidateStatus represents where a candidate stands inside a campaign
type CandidateStatus string

const (
	CandidateSelected    CandidateStatus = "selected"
	CandidateSent        CandidateStatus = "sent"
	CandidateResponded   CandidateStatus = "responded"
	CandidateInterviewed CandidateStatus = "interviewed"
	CandidatePlaced      CandidateStatus = "placed"
	CandidateRejected    CandidateStatus = "rejected"
)

// IsValid reports whether the status is one of the known states
func (s CandidateStatus) IsValid() bool {
	switch s {
	case CandidateSelected, CandidateSent, CandidateResponded,
		CandidateInterviewed, CandidatePlaced, CandidateRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further advancement is possible
func (s CandidateStatus) IsTerminal() bool {
	return s == CandidatePlaced || s == CandidateRejected
}

// CanAdvanceTo reports whether a candidate may move from s to next.
// Status only advances forward along selected -> sent -> responded ->
// interviewed -> placed; rejected is reachable from any non-terminal
// state.
func (s CandidateStatus) CanAdvanceTo(next CandidateStatus) bool {
	if next == CandidateRejected {
		return !s.IsTerminal()
	}
	switch s {
	case CandidateSelected:
		return next == CandidateSent
	case CandidateSent:
		return next == CandidateResponded
	case CandidateResponded:
		return next == CandidateInterviewed
	case CandidateInterviewed:
		return next == CandidatePlaced
	}
	return false
}

// CampaignCandidate represents one candidate inside one campaign.
// Positions are dense (0..n-1) and define both display order and the
// dispatch send order.
type CampaignCandidate struct {
	ID              string          `json:"id"`
	CampaignID      string          `json:"campaign_id"`
	CandidateRef    string          `json:"candidate_ref"`
	PositionInBatch int             `json:"position_in_batch"`
	IncludeWorkAuth bool            `json:"include_work_authorization"`
	Status          CandidateStatus `json:"status"`
	VendorEmail     string          `json:"vendor_email,omitempty"`
	VendorResponse  string          `json:"vendor_response,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	SentAt          *time.Time      `json:"sent_at,omitempty"`
	RespondedAt     *time.Time      `json:"response_received_at,omitempty"`
	InterviewAt     *time.Time      `json:"interview_scheduled_at,omitempty"`
	PlacedAt        *time.Time      `json:"placement_confirmed_at,omitempty"`
	Attempts        int             `json:"attempts"`
	LastError       string          `json:"last_error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CandidateRecord is a bench-resource record from the candidate
// directory. Read-only to the campaign engine.
type CandidateRecord struct {
	Ref          string   `json:"ref"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	Email        string   `json:"email"`
	Title        string   `json:"title"`
	Skills       []string `json:"skills"`
	HourlyRate   float64  `json:"hourly_rate"`
	Availability string   `json:"availability"`
	WorkAuth     string   `json:"work_authorization"`
}

// FullName returns the candidate's display name
func (r *CandidateRecord) FullName() string {
	if r.FirstName == "" {
		return r.LastName
	}
	if r.LastName == "" {
		return r.FirstName
	}
	return r.FirstName + " " + r.LastName
}
