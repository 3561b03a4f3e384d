package model

import (
	"strings"
	"time"
)

// CampaignStatus represents the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSent      CampaignStatus = "sent"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// IsValid reports whether the status is one of the known states
func (s CampaignStatus) IsValid() bool {
	switch s {
	case CampaignDraft, CampaignScheduled, CampaignSent, CampaignCompleted, CampaignCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the status is a final state
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignCompleted || s == CampaignCancelled
}

// CanTransitionTo reports whether a campaign may move from s to next.
// Transitions are monotonic; the only backward edge is sent -> scheduled
// for recurring schedules, and cancelled is reachable from any
// non-terminal state.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	if next == CampaignCancelled {
		return !s.IsTerminal()
	}
	switch s {
	case CampaignDraft:
		return next == CampaignScheduled
	case CampaignScheduled:
		return next == CampaignSent
	case CampaignSent:
		return next == CampaignScheduled || next == CampaignCompleted
	}
	return false
}

// ScheduleType represents how a campaign's dispatches are timed
type ScheduleType string

const (
	ScheduleImmediate ScheduleType = "immediate"
	ScheduleDaily     ScheduleType = "daily"
	ScheduleWeekly    ScheduleType = "weekly"
	ScheduleBiWeekly  ScheduleType = "bi_weekly"
	ScheduleCustom    ScheduleType = "custom"
)

// IsValid reports whether the schedule type is known
func (t ScheduleType) IsValid() bool {
	switch t {
	case ScheduleImmediate, ScheduleDaily, ScheduleWeekly, ScheduleBiWeekly, ScheduleCustom:
		return true
	}
	return false
}

// Recurring reports whether the schedule type fires more than once
func (t ScheduleType) Recurring() bool {
	switch t {
	case ScheduleDaily, ScheduleWeekly, ScheduleBiWeekly, ScheduleCustom:
		return true
	}
	return false
}

// Weekdays is a days-of-week bitset, bit 0 = Sunday
type Weekdays uint8

// With returns the set with the given weekday added
func (d Weekdays) With(day time.Weekday) Weekdays {
	return d | (1 << uint(day))
}

// Contains reports whether the set includes the given weekday
func (d Weekdays) Contains(day time.Weekday) bool {
	return d&(1<<uint(day)) != 0
}

// Count returns the number of weekdays in the set
func (d Weekdays) Count() int {
	n := 0
	for day := time.Sunday; day <= time.Saturday; day++ {
		if d.Contains(day) {
			n++
		}
	}
	return n
}

func (d Weekdays) String() string {
	names := []string{}
	for day := time.Sunday; day <= time.Saturday; day++ {
		if d.Contains(day) {
			names = append(names, day.String()[:3])
		}
	}
	return strings.Join(names, ",")
}

// ScheduleConfig holds the timing parameters for a schedule type.
// Which fields are required depends on the type: daily needs Time and
// Timezone, weekly/bi_weekly additionally Days, custom needs
// IntervalHours plus an end condition.
type ScheduleConfig struct {
	Time           string     `json:"time,omitempty"` // "15:04" wall clock
	Timezone       string     `json:"timezone,omitempty"`
	Days           Weekdays   `json:"days,omitempty"`
	IntervalHours  int        `json:"interval_hours,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	MaxOccurrences int        `json:"max_occurrences,omitempty"`
}

// Campaign represents a hotlist: a named batch of candidates dispatched
// to vendors as representation emails
type Campaign struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	BatchSize       int            `json:"batch_size"`
	Status          CampaignStatus `json:"status"`
	ScheduleType    ScheduleType   `json:"schedule_type"`
	Schedule        ScheduleConfig `json:"schedule"`
	ScheduledAt     *time.Time     `json:"scheduled_at,omitempty"`
	SentAt          *time.Time     `json:"sent_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	AnchorAt        *time.Time     `json:"anchor_at,omitempty"` // first scheduled instant, fixes bi-weekly parity
	LastRunAt       *time.Time     `json:"last_run_at,omitempty"`
	OccurrenceCount int            `json:"occurrence_count"`
	ShowWorkAuth    bool           `json:"show_work_authorization"`
	AutoLockEnabled bool           `json:"auto_lock_enabled"`
	LockedAt        *time.Time     `json:"locked_at,omitempty"`
	LockedBy        string         `json:"locked_by,omitempty"`
	SubjectTemplate string         `json:"subject_template"`
	EmailContent    string         `json:"email_content"`
	CreatedBy       string         `json:"created_by,omitempty"`
	UpdatedBy       string         `json:"updated_by,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Locked reports whether the campaign currently holds an edit lock
func (c *Campaign) Locked() bool {
	return c.LockedAt != nil
}

// CampaignWithStats includes candidate counts for list views
type CampaignWithStats struct {
	Campaign
	CandidateCount int `json:"candidate_count"`
	SentCount      int `json:"sent_count"`
}

// CampaignListFilter for filtering campaigns
type CampaignListFilter struct {
	Status CampaignStatus
	Search string
	Limit  int
	Offset int
}
