package lock

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/benchwire/hotlist/internal/errs"
	"github.com/benchwire/hotlist/internal/model"
)

func testManager() *Manager {
	return NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAcquireRelease(t *testing.T) {
	m := testManager()
	c := &model.Campaign{ID: "camp-1", Status: model.CampaignScheduled}
	now := time.Now()

	if err := m.Acquire(c, "alice", now); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if c.LockedAt == nil || c.LockedBy != "alice" {
		t.Fatalf("lock not recorded: lockedAt=%v lockedBy=%q", c.LockedAt, c.LockedBy)
	}

	// same actor re-acquire is a no-op
	if err := m.Acquire(c, "alice", now.Add(time.Minute)); err != nil {
		t.Errorf("re-acquire by holder error = %v", err)
	}

	// different actor conflicts
	err := m.Acquire(c, "bob", now)
	if !errs.IsLockConflict(err) {
		t.Errorf("Acquire() by bob error = %v, want LockConflictError", err)
	}

	m.Release(c, "alice")
	if c.LockedAt != nil || c.LockedBy != "" {
		t.Error("lock not cleared after Release")
	}

	// releasing an unlocked campaign is a no-op
	m.Release(c, "alice")
}

func TestReleaseOverride(t *testing.T) {
	m := testManager()
	c := &model.Campaign{ID: "camp-1", Status: model.CampaignScheduled}

	if err := m.Acquire(c, "alice", time.Now()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// admin override releases another actor's lock
	m.Release(c, "admin")
	if c.LockedAt != nil {
		t.Error("override did not release the lock")
	}
}

func TestIsEditable(t *testing.T) {
	m := testManager()
	now := time.Now()

	// unlocked campaigns are editable in any state
	c := &model.Campaign{ID: "camp-1", Status: model.CampaignScheduled}
	if !m.IsEditable(c) {
		t.Error("unlocked scheduled campaign should be editable")
	}

	// locked drafts stay editable
	c = &model.Campaign{ID: "camp-2", Status: model.CampaignDraft}
	if err := m.Acquire(c, "alice", now); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !m.IsEditable(c) {
		t.Error("locked draft should remain editable")
	}
	if err := m.CheckEditable(c); err != nil {
		t.Errorf("CheckEditable(locked draft) error = %v", err)
	}

	// locked scheduled campaigns are not
	c.Status = model.CampaignScheduled
	if m.IsEditable(c) {
		t.Error("locked scheduled campaign should not be editable")
	}
	if err := m.CheckEditable(c); !errs.IsLocked(err) {
		t.Errorf("CheckEditable() error = %v, want LockedCampaignError", err)
	}

	// releasing restores editability
	m.Release(c, "alice")
	if !m.IsEditable(c) {
		t.Error("campaign should be editable after release")
	}
}

func TestCheckEditableBy(t *testing.T) {
	m := testManager()
	c := &model.Campaign{ID: "camp-1", Status: model.CampaignScheduled}

	if err := m.Acquire(c, "alice", time.Now()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// the holder passes, anyone else is locked out
	if err := m.CheckEditableBy(c, "alice"); err != nil {
		t.Errorf("CheckEditableBy(holder) error = %v", err)
	}
	if err := m.CheckEditableBy(c, "bob"); !errs.IsLocked(err) {
		t.Errorf("CheckEditableBy(other) error = %v, want LockedCampaignError", err)
	}

	m.Release(c, "alice")
	if err := m.CheckEditableBy(c, "bob"); err != nil {
		t.Errorf("CheckEditableBy(unlocked) error = %v", err)
	}
}
