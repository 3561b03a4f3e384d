package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/benchwire/hotlist/internal/db"
	"github.com/benchwire/hotlist/internal/errs"
	"github.com/benchwire/hotlist/internal/model"
)

const campaignColumns = `id, name, description, batch_size, status, schedule_type, schedule,
	scheduled_at, sent_at, completed_at, anchor_at, last_run_at, occurrence_count,
	show_work_auth, auto_lock_enabled, locked_at, locked_by,
	subject_template, email_content, created_by, updated_by, created_at, updated_at`

type CampaignRepository struct {
	db *db.DB
}

func NewCampaignRepository(database *db.DB) *CampaignRepository {
	return &CampaignRepository{db: database}
}

// Create creates a new campaign in draft
func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Status = model.CampaignDraft
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt

	schedule, err := json.Marshal(c.Schedule)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, name, description, batch_size, status, schedule_type, schedule,
			show_work_auth, auto_lock_enabled, subject_template, email_content,
			created_by, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, c.BatchSize, c.Status, c.ScheduleType, string(schedule),
		c.ShowWorkAuth, c.AutoLockEnabled, c.SubjectTemplate, c.EmailContent,
		c.CreatedBy, c.UpdatedBy, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID returns a campaign by ID, or nil if not found
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
	return scanCampaign(row)
}

// Mutate loads a campaign, applies fn, and saves the result inside one
// transaction. This is the atomic read-modify-write path every status
// transition and lock operation goes through.
func (r *CampaignRepository) Mutate(ctx context.Context, id string, fn func(c *model.Campaign) error) (*model.Campaign, error) {
	var out *model.Campaign
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
		c, err := scanCampaign(row)
		if err != nil {
			return err
		}
		if c == nil {
			return errs.NewNotFound("campaign", id)
		}

		if err := fn(c); err != nil {
			return err
		}
		c.UpdatedAt = time.Now().UTC()

		schedule, err := json.Marshal(c.Schedule)
		if err != nil {
			return fmt.Errorf("failed to marshal schedule: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE campaigns SET name = ?, description = ?, batch_size = ?, status = ?,
				schedule_type = ?, schedule = ?, scheduled_at = ?, sent_at = ?, completed_at = ?,
				anchor_at = ?, last_run_at = ?, occurrence_count = ?,
				show_work_auth = ?, auto_lock_enabled = ?, locked_at = ?, locked_by = ?,
				subject_template = ?, email_content = ?, updated_by = ?, updated_at = ?
			WHERE id = ?`,
			c.Name, c.Description, c.BatchSize, c.Status,
			c.ScheduleType, string(schedule), nullTime(c.ScheduledAt), nullTime(c.SentAt), nullTime(c.CompletedAt),
			nullTime(c.AnchorAt), nullTime(c.LastRunAt), c.OccurrenceCount,
			c.ShowWorkAuth, c.AutoLockEnabled, nullTime(c.LockedAt), c.LockedBy,
			c.SubjectTemplate, c.EmailContent, c.UpdatedBy, c.UpdatedAt,
			c.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update campaign: %w", err)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns campaigns with candidate counts and optional filtering
func (r *CampaignRepository) List(ctx context.Context, filter model.CampaignListFilter) ([]model.CampaignWithStats, int, error) {
	countQuery := "SELECT COUNT(*) FROM campaigns WHERE 1=1"
	args := []any{}

	if filter.Status != "" {
		countQuery += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		countQuery += " AND (name LIKE ? OR description LIKE ?)"
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + prefixColumns("c", campaignColumns) + `,
			COALESCE((SELECT COUNT(*) FROM campaign_candidates WHERE campaign_id = c.id), 0) AS candidate_count,
			COALESCE((SELECT COUNT(*) FROM campaign_candidates WHERE campaign_id = c.id AND status != 'selected'), 0) AS sent_count
		FROM campaigns c
		WHERE 1=1`

	args = []any{}
	if filter.Status != "" {
		query += " AND c.status = ?"
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		query += " AND (c.name LIKE ? OR c.description LIKE ?)"
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	query += " ORDER BY c.updated_at DESC"

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
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []model.CampaignWithStats{}
	for rows.Next() {
		c, counts, err := scanCampaignWithStats(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, model.CampaignWithStats{
			Campaign:       *c,
			CandidateCount: counts[0],
			SentCount:      counts[1],
		})
	}

	return campaigns, total, rows.Err()
}

// ListDue returns scheduled campaigns whose next run is at or before
// now, in scheduled_at order. The dispatch worker polls this.
func (r *CampaignRepository) ListDue(ctx context.Context, now time.Time) ([]*model.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?
		ORDER BY scheduled_at`, model.CampaignScheduled, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCampaigns(rows)
}

// ListByStatus returns all campaigns in the given status
func (r *CampaignRepository) ListByStatus(ctx context.Context, status model.CampaignStatus) ([]*model.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+` FROM campaigns WHERE status = ? ORDER BY updated_at`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCampaigns(rows)
}

// CountByStatus returns how many campaigns are in each status
func (r *CampaignRepository) CountByStatus(ctx context.Context) (map[model.CampaignStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM campaigns GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.CampaignStatus]int{}
	for rows.Next() {
		var status model.CampaignStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Delete deletes a campaign; candidates cascade, analytics events stay
func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM campaigns WHERE id = ?", id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	c := &model.Campaign{}
	var schedule sql.NullString
	var description, lockedBy, subject, content, createdBy, updatedBy sql.NullString
	var scheduledAt, sentAt, completedAt, anchorAt, lastRunAt, lockedAt sql.NullTime

	err := row.Scan(
		&c.ID, &c.Name, &description, &c.BatchSize, &c.Status, &c.ScheduleType, &schedule,
		&scheduledAt, &sentAt, &completedAt, &anchorAt, &lastRunAt, &c.OccurrenceCount,
		&c.ShowWorkAuth, &c.AutoLockEnabled, &lockedAt, &lockedBy,
		&subject, &content, &createdBy, &updatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.Description = description.String
	c.LockedBy = lockedBy.String
	c.SubjectTemplate = subject.String
	c.EmailContent = content.String
	c.CreatedBy = createdBy.String
	c.UpdatedBy = updatedBy.String
	c.ScheduledAt = timePtr(scheduledAt)
	c.SentAt = timePtr(sentAt)
	c.CompletedAt = timePtr(completedAt)
	c.AnchorAt = timePtr(anchorAt)
	c.LastRunAt = timePtr(lastRunAt)
	c.LockedAt = timePtr(lockedAt)

	if schedule.Valid && schedule.String != "" {
		if err := json.Unmarshal([]byte(schedule.String), &c.Schedule); err != nil {
			return nil, fmt.Errorf("failed to parse schedule config: %w", err)
		}
	}

	return c, nil
}

func scanCampaignWithStats(rows *sql.Rows) (*model.Campaign, [2]int, error) {
	c := &model.Campaign{}
	var counts [2]int
	var schedule sql.NullString
	var description, lockedBy, subject, content, createdBy, updatedBy sql.NullString
	var scheduledAt, sentAt, completedAt, anchorAt, lastRunAt, lockedAt sql.NullTime

	err := rows.Scan(
		&c.ID, &c.Name, &description, &c.BatchSize, &c.Status, &c.ScheduleType, &schedule,
		&scheduledAt, &sentAt, &completedAt, &anchorAt, &lastRunAt, &c.OccurrenceCount,
		&c.ShowWorkAuth, &c.AutoLockEnabled, &lockedAt, &lockedBy,
		&subject, &content, &createdBy, &updatedBy, &c.CreatedAt, &c.UpdatedAt,
		&counts[0], &counts[1],
	)
	if err != nil {
		return nil, counts, err
	}

	c.Description = description.String
	c.LockedBy = lockedBy.String
	c.SubjectTemplate = subject.String
	c.EmailContent = content.String
	c.CreatedBy = createdBy.String
	c.UpdatedBy = updatedBy.String
	c.ScheduledAt = timePtr(scheduledAt)
	c.SentAt = timePtr(sentAt)
	c.CompletedAt = timePtr(completedAt)
	c.AnchorAt = timePtr(anchorAt)
	c.LastRunAt = timePtr(lastRunAt)
	c.LockedAt = timePtr(lockedAt)

	if schedule.Valid && schedule.String != "" {
		if err := json.Unmarshal([]byte(schedule.String), &c.Schedule); err != nil {
			return nil, counts, fmt.Errorf("failed to parse schedule config: %w", err)
		}
	}

	return c, counts, nil
}

func collectCampaigns(rows *sql.Rows) ([]*model.Campaign, error) {
	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
