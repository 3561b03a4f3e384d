package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/benchwire/hotlist/internal/db"
	"github.com/benchwire/hotlist/internal/model"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return database
}

func createTestCampaign(t *testing.T, repo *CampaignRepository) *model.Campaign {
	t.Helper()

	c := &model.Campaign{
		Name:         "Q2 Java bench",
		Description:  "Senior Java candidates coming off projects",
		BatchSize:    5,
		ScheduleType: model.ScheduleImmediate,
	}
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return c
}

func addTestCandidates(t *testing.T, repo *CandidateRepository, campaignID string, refs ...string) []*model.CampaignCandidate {
	t.Helper()

	rows := make([]*model.CampaignCandidate, 0, len(refs))
	for i, ref := range refs {
		rows = append(rows, &model.CampaignCandidate{
			CampaignID:      campaignID,
			CandidateRef:    ref,
			PositionInBatch: i,
			Status:          model.CandidateSelected,
			VendorEmail:     "vendor@example.com",
		})
	}
	if err := repo.Add(context.Background(), rows); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return rows
}
