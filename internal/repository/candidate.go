package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benchwire/hotlist/internal/db"
	"github.com/benchwire/hotlist/internal/model"
)

const candidateColumns = `id, campaign_id, candidate_ref, position_in_batch, include_work_auth,
	status, vendor_email, vendor_response, rejection_reason,
	sent_at, responded_at, interview_at, placed_at, attempts, last_error, created_at, updated_at`

type CandidateRepository struct {
	db *db.DB
}

func NewCandidateRepository(database *db.DB) *CandidateRepository {
	return &CandidateRepository{db: database}
}

// Add inserts a batch of candidates in one transaction. Positions must
// already be assigned by the batch selector; the UNIQUE(campaign_id,
// candidate_ref) constraint backs the one-row-per-pair invariant.
func (r *CandidateRepository) Add(ctx context.Context, candidates []*model.CampaignCandidate) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, cc := range candidates {
			if cc.ID == "" {
				cc.ID = uuid.New().String()
			}
			cc.CreatedAt = time.Now().UTC()
			cc.UpdatedAt = cc.CreatedAt

			_, err := tx.ExecContext(ctx, `
				INSERT INTO campaign_candidates (id, campaign_id, candidate_ref, position_in_batch,
					include_work_auth, status, vendor_email, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				cc.ID, cc.CampaignID, cc.CandidateRef, cc.PositionInBatch,
				cc.IncludeWorkAuth, cc.Status, cc.VendorEmail, cc.CreatedAt, cc.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to add candidate %s: %w", cc.CandidateRef, err)
			}
		}
		return nil
	})
}

// ListByCampaign returns all candidates of a campaign in batch order
func (r *CandidateRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*model.CampaignCandidate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+candidateColumns+` FROM campaign_candidates
		WHERE campaign_id = ? ORDER BY position_in_batch`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates := []*model.CampaignCandidate{}
	for rows.Next() {
		cc, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, cc)
	}
	return candidates, rows.Err()
}

// GetByID returns a campaign candidate by ID, or nil if not found
func (r *CandidateRepository) GetByID(ctx context.Context, id string) (*model.CampaignCandidate, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM campaign_candidates WHERE id = ?`, id)
	cc, err := scanCandidate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return cc, err
}

// GetByRef returns the candidate with the given ref inside a campaign,
// or nil if not present
func (r *CandidateRepository) GetByRef(ctx context.Context, campaignID, ref string) (*model.CampaignCandidate, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+candidateColumns+` FROM campaign_candidates
		WHERE campaign_id = ? AND candidate_ref = ?`, campaignID, ref)
	cc, err := scanCandidate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return cc, err
}

// Remove deletes a candidate and re-compacts the remaining positions
// to a dense 0..n-1 sequence, all in one transaction
func (r *CandidateRepository) Remove(ctx context.Context, campaignID, ref string) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM campaign_candidates WHERE campaign_id = ? AND candidate_ref = ?`,
			campaignID, ref)
		if err != nil {
			return fmt.Errorf("failed to remove candidate: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return sql.ErrNoRows
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT id FROM campaign_candidates
			WHERE campaign_id = ? ORDER BY position_in_batch`, campaignID)
		if err != nil {
			return err
		}
		ids := []string{}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for pos, id := range ids {
			if _, err := tx.ExecContext(ctx, `
				UPDATE campaign_candidates SET position_in_batch = ?, updated_at = ? WHERE id = ?`,
				pos, time.Now().UTC(), id); err != nil {
				return fmt.Errorf("failed to compact positions: %w", err)
			}
		}
		return nil
	})
}

// Update saves candidate status, stamps, and failure bookkeeping
func (r *CandidateRepository) Update(ctx context.Context, cc *model.CampaignCandidate) error {
	cc.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_candidates SET include_work_auth = ?, status = ?,
			vendor_email = ?, vendor_response = ?, rejection_reason = ?,
			sent_at = ?, responded_at = ?, interview_at = ?, placed_at = ?,
			attempts = ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		cc.IncludeWorkAuth, cc.Status,
		cc.VendorEmail, cc.VendorResponse, cc.RejectionReason,
		nullTime(cc.SentAt), nullTime(cc.RespondedAt), nullTime(cc.InterviewAt), nullTime(cc.PlacedAt),
		cc.Attempts, cc.LastError, cc.UpdatedAt,
		cc.ID,
	)
	return err
}

// StatusCounts returns how many candidates are in each status
func (r *CandidateRepository) StatusCounts(ctx context.Context, campaignID string) (map[model.CandidateStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM campaign_candidates
		WHERE campaign_id = ? GROUP BY status`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.CandidateStatus]int{}
	for rows.Next() {
		var status model.CandidateStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanCandidate(row rowScanner) (*model.CampaignCandidate, error) {
	cc := &model.CampaignCandidate{}
	var vendorEmail, vendorResponse, rejection, lastError sql.NullString
	var sentAt, respondedAt, interviewAt, placedAt sql.NullTime

	err := row.Scan(
		&cc.ID, &cc.CampaignID, &cc.CandidateRef, &cc.PositionInBatch, &cc.IncludeWorkAuth,
		&cc.Status, &vendorEmail, &vendorResponse, &rejection,
		&sentAt, &respondedAt, &interviewAt, &placedAt, &cc.Attempts, &lastError,
		&cc.CreatedAt, &cc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cc.VendorEmail = vendorEmail.String
	cc.VendorResponse = vendorResponse.String
	cc.RejectionReason = rejection.String
	cc.LastError = lastError.String
	cc.SentAt = timePtr(sentAt)
	cc.RespondedAt = timePtr(respondedAt)
	cc.InterviewAt = timePtr(interviewAt)
	cc.PlacedAt = timePtr(placedAt)

	return cc, nil
}
