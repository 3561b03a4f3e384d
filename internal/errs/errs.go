// Package errs defines the error taxonomy of the campaign engine.
// Each kind maps to a distinct caller obligation: validation errors
// need a corrected request, lock errors a later retry or a takeover,
// scheduling errors a fixed configuration, and dispatch errors are
// per-candidate, non-fatal and retryable on the next pass.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError indicates bad input shape or size. The caller must
// fix the request and retry.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NewValidation creates a ValidationError for the given field
func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// LockConflictError indicates a lock is already held by another actor
type LockConflictError struct {
	CampaignID string
	HeldBy     string
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("campaign %s is locked by %s", e.CampaignID, e.HeldBy)
}

// LockedCampaignError indicates a mutating operation hit a campaign
// that is not editable
type LockedCampaignError struct {
	CampaignID string
}

func (e *LockedCampaignError) Error() string {
	return fmt.Sprintf("campaign %s is locked and cannot be edited", e.CampaignID)
}

// SchedulingError indicates an unsatisfiable schedule configuration,
// surfaced to the campaign author
type SchedulingError struct {
	Reason string
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("scheduling failed: %s", e.Reason)
}

// NewScheduling creates a SchedulingError
func NewScheduling(format string, args ...any) error {
	return &SchedulingError{Reason: fmt.Sprintf(format, args...)}
}

// DispatchError indicates a per-candidate send failure. It is recorded
// on the candidate and never aborts the batch.
type DispatchError struct {
	CampaignID   string
	CandidateRef string
	Err          error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch failed for candidate %s in campaign %s: %v", e.CandidateRef, e.CampaignID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// NotFoundError indicates a missing entity
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// NewNotFound creates a NotFoundError
func NewNotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsLockConflict reports whether err is a LockConflictError
func IsLockConflict(err error) bool {
	var e *LockConflictError
	return errors.As(err, &e)
}

// IsLocked reports whether err is a LockedCampaignError
func IsLocked(err error) bool {
	var e *LockedCampaignError
	return errors.As(err, &e)
}

// IsScheduling reports whether err is a SchedulingError
func IsScheduling(err error) bool {
	var e *SchedulingError
	return errors.As(err, &e)
}

// IsDispatch reports whether err is a DispatchError
func IsDispatch(err error) bool {
	var e *DispatchError
	return errors.As(err, &e)
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}
