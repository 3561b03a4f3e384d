package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benchwire/hotlist/internal/db"
	"github.com/benchwire/hotlist/internal/errs"
	"github.com/benchwire/hotlist/internal/model"
)

// DirectoryRepository serves bench-resource records. The campaign
// engine reads it through the dispatch.Directory interface; writes
// exist for seeding and the back-office candidate pages.
type DirectoryRepository struct {
	db *db.DB
}

func NewDirectoryRepository(database *db.DB) *DirectoryRepository {
	return &DirectoryRepository{db: database}
}

// Get returns a candidate record by ref
func (r *DirectoryRepository) Get(ctx context.Context, ref string) (*model.CandidateRecord, error) {
	rec := &model.CandidateRecord{}
	var firstName, lastName, email, title, skills, availability, workAuth sql.NullString
	var rate sql.NullFloat64

	err := r.db.QueryRowContext(ctx, `
		SELECT ref, first_name, last_name, email, title, skills, hourly_rate, availability, work_authorization
		FROM candidates WHERE ref = ?`, ref,
	).Scan(&rec.Ref, &firstName, &lastName, &email, &title, &skills, &rate, &availability, &workAuth)

	if err == sql.ErrNoRows {
		return nil, errs.NewNotFound("candidate", ref)
	}
	if err != nil {
		return nil, err
	}

	rec.FirstName = firstName.String
	rec.LastName = lastName.String
	rec.Email = email.String
	rec.Title = title.String
	rec.Availability = availability.String
	rec.WorkAuth = workAuth.String
	rec.HourlyRate = rate.Float64

	if skills.Valid && skills.String != "" {
		if err := json.Unmarshal([]byte(skills.String), &rec.Skills); err != nil {
			return nil, fmt.Errorf("failed to parse skills: %w", err)
		}
	}

	return rec, nil
}

// Upsert inserts or replaces a candidate record
func (r *DirectoryRepository) Upsert(ctx context.Context, rec *model.CandidateRecord) error {
	skills, err := json.Marshal(rec.Skills)
	if err != nil {
		return fmt.Errorf("failed to marshal skills: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO candidates (ref, first_name, last_name, email, title, skills, hourly_rate,
			availability, work_authorization, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET
			first_name = excluded.first_name, last_name = excluded.last_name,
			email = excluded.email, title = excluded.title, skills = excluded.skills,
			hourly_rate = excluded.hourly_rate, availability = excluded.availability,
			work_authorization = excluded.work_authorization, updated_at = excluded.updated_at`,
		rec.Ref, rec.FirstName, rec.LastName, rec.Email, rec.Title, string(skills), rec.HourlyRate,
		rec.Availability, rec.WorkAuth, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert candidate: %w", err)
	}
	return nil
}

// List returns candidate records with optional name search
func (r *DirectoryRepository) List(ctx context.Context, search string, limit, offset int) ([]*model.CandidateRecord, error) {
	query := `
		SELECT ref, first_name, last_name, email, title, skills, hourly_rate, availability, work_authorization
		FROM candidates WHERE 1=1`
	args := []any{}

	if search != "" {
		query += " AND (first_name LIKE ? OR last_name LIKE ? OR title LIKE ?)"
		args = append(args, "%"+search+"%", "%"+search+"%", "%"+search+"%")
	}

	query += " ORDER BY last_name, first_name"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*model.CandidateRecord{}
	for rows.Next() {
		rec := &model.CandidateRecord{}
		var firstName, lastName, email, title, skills, availability, workAuth sql.NullString
		var rate sql.NullFloat64

		err := rows.Scan(&rec.Ref, &firstName, &lastName, &email, &title, &skills, &rate, &availability, &workAuth)
		if err != nil {
			return nil, err
		}

		rec.FirstName = firstName.String
		rec.LastName = lastName.String
		rec.Email = email.String
		rec.Title = title.String
		rec.Availability = availability.String
		rec.WorkAuth = workAuth.String
		rec.HourlyRate = rate.Float64

		if skills.Valid && skills.String != "" {
			if err := json.Unmarshal([]byte(skills.String), &rec.Skills); err != nil {
				return nil, fmt.Errorf("failed to parse skills: %w", err)
			}
		}

		records = append(records, rec)
	}
	return records, rows.Err()
}
