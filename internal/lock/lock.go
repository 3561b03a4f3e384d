// Package lock enforces mutual exclusion between editing a campaign
// and a campaign being scheduled or in flight. The campaign record is
// the serialization point; its lockedAt/lockedBy pair is the only lock
// state.
package lock

import (
	"log/slog"
	"time"

	"github.com/benchwire/hotlist/internal/errs"
	"github.com/benchwire/hotlist/internal/model"
)

// Manager operates on campaign lock state. Callers apply it inside the
// campaign repository's transactional mutate path.
type Manager struct {
	logger *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{logger: logger.With("component", "lock")}
}

// Acquire takes the edit lock for actor. Re-acquiring a lock already
// held by the same actor is a no-op; a lock held by a different actor
// is a conflict.
func (m *Manager) Acquire(c *model.Campaign, actor string, now time.Time) error {
	if c.LockedAt != nil {
		if c.LockedBy == actor {
			return nil
		}
		return &errs.LockConflictError{CampaignID: c.ID, HeldBy: c.LockedBy}
	}

	t := now.UTC()
	c.LockedAt = &t
	c.LockedBy = actor
	m.logger.Debug("lock acquired", "campaign_id", c.ID, "actor", actor)
	return nil
}

// Release clears the lock unconditionally. This is also the admin
// escape hatch for a lock held by another actor, so an override by a
// different actor is logged.
func (m *Manager) Release(c *model.Campaign, actor string) {
	if c.LockedAt == nil {
		return
	}
	if actor != "" && actor != c.LockedBy {
		m.logger.Warn("lock override", "campaign_id", c.ID, "held_by", c.LockedBy, "released_by", actor)
	}
	c.LockedAt = nil
	c.LockedBy = ""
}

// IsEditable reports whether mutating operations may touch the
// campaign: true iff no lock is held or the campaign is still a draft.
func (m *Manager) IsEditable(c *model.Campaign) bool {
	return c.LockedAt == nil || c.Status == model.CampaignDraft
}

// CheckEditable returns a LockedCampaignError when the campaign is not
// editable. Every mutating batch or schedule operation calls this
// first.
func (m *Manager) CheckEditable(c *model.Campaign) error {
	if m.IsEditable(c) {
		return nil
	}
	return &errs.LockedCampaignError{CampaignID: c.ID}
}

// CheckEditableBy is CheckEditable relaxed for the lock holder:
// re-scheduling a campaign you locked yourself is not a conflict.
func (m *Manager) CheckEditableBy(c *model.Campaign, actor string) error {
	if m.IsEditable(c) || c.LockedBy == actor {
		return nil
	}
	return &errs.LockedCampaignError{CampaignID: c.ID}
}
