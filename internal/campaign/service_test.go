package campaign

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/benchwire/hotlist/internal/batch"
	"github.com/benchwire/hotlist/internal/db"
	"github.com/benchwire/hotlist/internal/errs"
	"github.com/benchwire/hotlist/internal/lock"
	"github.com/benchwire/hotlist/internal/metrics"
	"github.com/benchwire/hotlist/internal/model"
	"github.com/benchwire/hotlist/internal/repository"
)

type fixture struct {
	service    *Service
	campaigns  *repository.CampaignRepository
	candidates *repository.CandidateRepository
	directory  *repository.DirectoryRepository
}

func setup(t *testing.T) *fixture {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	campaigns := repository.NewCampaignRepository(database)
	candidates := repository.NewCandidateRepository(database)
	directory := repository.NewDirectoryRepository(database)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewService(campaigns, candidates, directory, lock.NewManager(logger), metrics.New(), logger)

	return &fixture{
		service:    service,
		campaigns:  campaigns,
		candidates: candidates,
		directory:  directory,
	}
}

func (f *fixture) seedDirectory(t *testing.T, refs ...string) {
	t.Helper()
	for _, ref := range refs {
		err := f.directory.Upsert(context.Background(), &model.CandidateRecord{
			Ref:       ref,
			FirstName: "Dev",
			LastName:  ref,
			Email:     ref + "@bench.example.com",
			Title:     "Java Developer",
		})
		if err != nil {
			t.Fatalf("Upsert(%s) error = %v", ref, err)
		}
	}
}

func (f *fixture) create(t *testing.T, in *CreateInput) *model.Campaign {
	t.Helper()
	if in.Name == "" {
		in.Name = "Q3 bench push"
	}
	if in.BatchSize == 0 {
		in.BatchSize = 5
	}
	in.Actor = "recruiter"
	c, err := f.service.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return c
}

func (f *fixture) selectRefs(t *testing.T, id string, refs ...string) {
	t.Helper()
	f.seedDirectory(t, refs...)
	sels := make([]batch.Selection, 0, len(refs))
	for _, ref := range refs {
		sels = append(sels, batch.Selection{Ref: ref, VendorEmail: "vendor@example.com"})
	}
	if _, err := f.service.SelectCandidates(context.Background(), id, sels, "recruiter"); err != nil {
		t.Fatalf("SelectCandidates() error = %v", err)
	}
}

func TestCreateDefaultsToImmediate(t *testing.T) {
	f := setup(t)

	c := f.create(t, &CreateInput{})
	if c.ScheduleType != model.ScheduleImmediate {
		t.Errorf("ScheduleType = %s, want immediate", c.ScheduleType)
	}
	if c.Status != model.CampaignDraft {
		t.Errorf("Status = %s, want draft", c.Status)
	}

	if _, err := f.service.Create(context.Background(), &CreateInput{Name: "x", BatchSize: 1, ScheduleType: "hourly"}); !errs.IsValidation(err) {
		t.Errorf("Create(bad schedule type) error = %v, want validation", err)
	}
}

func TestUpdateBatchSizeBelowSelection(t *testing.T) {
	f := setup(t)
	c := f.create(t, &CreateInput{BatchSize: 5})
	f.selectRefs(t, c.ID, "cand-a", "cand-b", "cand-c")

	small := 2
	_, err := f.service.Update(context.Background(), c.ID, &UpdateInput{BatchSize: &small, Actor: "recruiter"})
	if !errs.IsValidation(err) {
		t.Fatalf("Update(batch_size=2) error = %v, want validation", err)
	}

	ok := 3
	updated, err := f.service.Update(context.Background(), c.ID, &UpdateInput{BatchSize: &ok, Actor: "recruiter"})
	if err != nil {
		t.Fatalf("Update(batch_size=3) error = %v", err)
	}
	if updated.BatchSize != 3 {
		t.Errorf("BatchSize = %d, want 3", updated.BatchSize)
	}
}

func TestScheduleTakesLock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.create(t, &CreateInput{AutoLockEnabled: true})
	f.selectRefs(t, c.ID, "cand-a")

	scheduled, err := f.service.Schedule(ctx, c.ID, model.ScheduleDaily,
		model.ScheduleConfig{Time: "09:00", Timezone: "UTC"}, "alice")
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if scheduled.Status != model.CampaignScheduled {
		t.Errorf("Status = %s, want scheduled", scheduled.Status)
	}
	if scheduled.LockedBy != "alice" {
		t.Errorf("LockedBy = %q, want alice", scheduled.LockedBy)
	}
	if scheduled.ScheduledAt == nil {
		t.Fatal("ScheduledAt is nil after scheduling")
	}

	// another actor cannot edit the locked campaign
	name := "renamed"
	if _, err := f.service.Update(ctx, c.ID, &UpdateInput{Name: &name, Actor: "bob"}); !errs.IsLocked(err) {
		t.Errorf("Update() by bob error = %v, want locked", err)
	}

	// the lock holder cannot edit either, scheduled+locked is frozen
	if _, err := f.service.Update(ctx, c.ID, &UpdateInput{Name: &name, Actor: "alice"}); !errs.IsLocked(err) {
		t.Errorf("Update() by alice error = %v, want locked", err)
	}

	// but the holder may re-schedule: the run time moves, the lock stays
	rescheduled, err := f.service.Schedule(ctx, c.ID, model.ScheduleDaily,
		model.ScheduleConfig{Time: "17:30", Timezone: "UTC"}, "alice")
	if err != nil {
		t.Fatalf("re-Schedule() by alice error = %v", err)
	}
	if rescheduled.ScheduledAt.Equal(*scheduled.ScheduledAt) {
		t.Error("ScheduledAt unchanged after re-scheduling")
	}
	if rescheduled.LockedBy != "alice" {
		t.Errorf("LockedBy = %q after re-scheduling, want alice", rescheduled.LockedBy)
	}

	// another actor still cannot re-schedule over alice's lock
	if _, err := f.service.Schedule(ctx, c.ID, model.ScheduleImmediate, model.ScheduleConfig{}, "bob"); !errs.IsLocked(err) {
		t.Errorf("Schedule() by bob error = %v, want locked", err)
	}

	// admin unlock frees the campaign for edits again
	unlocked, err := f.service.Unlock(ctx, c.ID, "admin")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if unlocked.LockedBy != "" {
		t.Errorf("LockedBy after unlock = %q, want empty", unlocked.LockedBy)
	}
	if _, err := f.service.Update(ctx, c.ID, &UpdateInput{Name: &name, Actor: "bob"}); err != nil {
		t.Errorf("Update() after unlock error = %v", err)
	}
}

func TestScheduleRequiresCandidates(t *testing.T) {
	f := setup(t)
	c := f.create(t, &CreateInput{})

	_, err := f.service.Schedule(context.Background(), c.ID, model.ScheduleImmediate, model.ScheduleConfig{}, "recruiter")
	if !errs.IsValidation(err) {
		t.Errorf("Schedule(empty campaign) error = %v, want validation", err)
	}
}

func TestSendNowEmptyCampaignLeavesDraftUntouched(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.create(t, &CreateInput{AutoLockEnabled: true})

	if _, err := f.service.SendNow(ctx, c.ID, "recruiter"); !errs.IsValidation(err) {
		t.Fatalf("SendNow(empty) error = %v, want validation", err)
	}

	// the rejected send must not have scheduled or locked the campaign
	got, err := f.campaigns.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != model.CampaignDraft {
		t.Errorf("Status = %s, want draft", got.Status)
	}
	if got.ScheduledAt != nil {
		t.Errorf("ScheduledAt = %v, want nil", got.ScheduledAt)
	}
	if got.LockedAt != nil || got.LockedBy != "" {
		t.Errorf("lock taken on failed send: LockedBy = %q", got.LockedBy)
	}
}

func TestSendNow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.create(t, &CreateInput{})
	f.selectRefs(t, c.ID, "cand-a")

	sent, err := f.service.SendNow(ctx, c.ID, "recruiter")
	if err != nil {
		t.Fatalf("SendNow() error = %v", err)
	}
	if sent.Status != model.CampaignScheduled {
		t.Errorf("Status = %s, want scheduled", sent.Status)
	}
	if sent.ScheduledAt == nil {
		t.Fatal("ScheduledAt is nil after SendNow")
	}

	// cancelled campaigns cannot be sent
	if _, err := f.service.Cancel(ctx, c.ID, "recruiter"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if _, err := f.service.SendNow(ctx, c.ID, "recruiter"); !errs.IsValidation(err) {
		t.Errorf("SendNow(cancelled) error = %v, want validation", err)
	}
}

func TestCancelReleasesLock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.create(t, &CreateInput{AutoLockEnabled: true})
	f.selectRefs(t, c.ID, "cand-a")

	if _, err := f.service.Schedule(ctx, c.ID, model.ScheduleImmediate, model.ScheduleConfig{}, "alice"); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	cancelled, err := f.service.Cancel(ctx, c.ID, "alice")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Status != model.CampaignCancelled {
		t.Errorf("Status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.LockedBy != "" || cancelled.LockedAt != nil {
		t.Errorf("lock survived cancel: LockedBy = %q", cancelled.LockedBy)
	}

	if _, err := f.service.Cancel(ctx, c.ID, "alice"); !errs.IsValidation(err) {
		t.Errorf("Cancel(cancelled) error = %v, want validation", err)
	}
}

func TestRejectCandidate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.create(t, &CreateInput{})
	f.selectRefs(t, c.ID, "cand-a")

	if err := f.service.RejectCandidate(ctx, c.ID, "cand-a", "rate too high"); err != nil {
		t.Fatalf("RejectCandidate() error = %v", err)
	}

	cc, err := f.candidates.GetByRef(ctx, c.ID, "cand-a")
	if err != nil {
		t.Fatalf("GetByRef() error = %v", err)
	}
	if cc.Status != model.CandidateRejected {
		t.Errorf("Status = %s, want rejected", cc.Status)
	}
	if cc.RejectionReason != "rate too high" {
		t.Errorf("RejectionReason = %q", cc.RejectionReason)
	}

	// rejecting twice fails, rejected is terminal
	if err := f.service.RejectCandidate(ctx, c.ID, "cand-a", "again"); !errs.IsValidation(err) {
		t.Errorf("RejectCandidate(rejected) error = %v, want validation", err)
	}
	if err := f.service.RejectCandidate(ctx, c.ID, "cand-missing", ""); !errs.IsNotFound(err) {
		t.Errorf("RejectCandidate(missing) error = %v, want not found", err)
	}
}

func TestRemoveCandidateOnlyInDraft(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.create(t, &CreateInput{})
	f.selectRefs(t, c.ID, "cand-a", "cand-b")

	if err := f.service.RemoveCandidate(ctx, c.ID, "cand-a"); err != nil {
		t.Fatalf("RemoveCandidate() error = %v", err)
	}

	if _, err := f.service.Schedule(ctx, c.ID, model.ScheduleImmediate, model.ScheduleConfig{}, "recruiter"); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if err := f.service.RemoveCandidate(ctx, c.ID, "cand-b"); !errs.IsValidation(err) {
		t.Errorf("RemoveCandidate(scheduled) error = %v, want validation", err)
	}
}

func TestDeleteOnlyDraftOrTerminal(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	draft := f.create(t, &CreateInput{Name: "draft one"})
	if err := f.service.Delete(ctx, draft.ID); err != nil {
		t.Errorf("Delete(draft) error = %v", err)
	}

	active := f.create(t, &CreateInput{Name: "active one"})
	f.selectRefs(t, active.ID, "cand-a")
	if _, err := f.service.Schedule(ctx, active.ID, model.ScheduleImmediate, model.ScheduleConfig{}, "recruiter"); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if err := f.service.Delete(ctx, active.ID); !errs.IsValidation(err) {
		t.Errorf("Delete(scheduled) error = %v, want validation", err)
	}

	if _, err := f.service.Cancel(ctx, active.ID, "recruiter"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if err := f.service.Delete(ctx, active.ID); err != nil {
		t.Errorf("Delete(cancelled) error = %v", err)
	}
	if err := f.service.Delete(ctx, active.ID); !errs.IsNotFound(err) {
		t.Errorf("Delete(deleted) error = %v, want not found", err)
	}
}

func TestSelectCandidatesUnknownRef(t *testing.T) {
	f := setup(t)
	c := f.create(t, &CreateInput{})

	_, err := f.service.SelectCandidates(context.Background(), c.ID,
		[]batch.Selection{{Ref: "cand-ghost"}}, "recruiter")
	if !errs.IsValidation(err) {
		t.Errorf("SelectCandidates(unknown ref) error = %v, want validation", err)
	}
}
