// Package outbox is the durable send ledger of the dispatch engine.
// One entry per (campaign, candidate) pair, keyed by the idempotency
// key, so a dispatch pass re-triggered after partial failure or a
// process restart never produces a second effective send.
package outbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSends = []byte("sends")

// EntryStatus represents the state of one send attempt ledger entry
type EntryStatus string

const (
	StatusPending EntryStatus = "pending"
	StatusSent    EntryStatus = "sent"
	StatusFailed  EntryStatus = "failed"
)

// Entry records the send history for one idempotency key
type Entry struct {
	CampaignID     string      `json:"campaign_id"`
	CandidateRef   string      `json:"candidate_ref"`
	Status         EntryStatus `json:"status"`
	Attempts       int         `json:"attempts"`
	LastError      string      `json:"last_error,omitempty"`
	FirstAttemptAt time.Time   `json:"first_attempt_at"`
	SentAt         *time.Time  `json:"sent_at,omitempty"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Ledger is a bbolt-backed store of send entries
type Ledger struct {
	db *bolt.DB
}

// Open opens (creating if needed) the ledger at path
func Open(path string) (*Ledger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSends)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger bucket: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the underlying store
func (l *Ledger) Close() error {
	return l.db.Close()
}

func key(campaignID, candidateRef string) []byte {
	return []byte(campaignID + "/" + candidateRef)
}

// Get returns the entry for the idempotency key, or nil if none exists
func (l *Ledger) Get(campaignID, candidateRef string) (*Entry, error) {
	var entry *Entry
	err := l.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSends).Get(key(campaignID, candidateRef))
		if data == nil {
			return nil
		}
		entry = &Entry{}
		return json.Unmarshal(data, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// IsSent reports whether the key already has an effective send
func (l *Ledger) IsSent(campaignID, candidateRef string) (bool, error) {
	entry, err := l.Get(campaignID, candidateRef)
	if err != nil {
		return false, err
	}
	return entry != nil && entry.Status == StatusSent, nil
}

// Begin records a send attempt, creating the entry on first use and
// bumping the attempt counter otherwise. Beginning an already-sent
// entry leaves it sent.
func (l *Ledger) Begin(campaignID, candidateRef string) (*Entry, error) {
	var entry *Entry
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSends)
		k := key(campaignID, candidateRef)

		entry = &Entry{CampaignID: campaignID, CandidateRef: candidateRef}
		if data := b.Get(k); data != nil {
			if err := json.Unmarshal(data, entry); err != nil {
				return err
			}
		} else {
			entry.Status = StatusPending
			entry.FirstAttemptAt = time.Now().UTC()
		}

		if entry.Status != StatusSent {
			entry.Status = StatusPending
			entry.Attempts++
		}
		entry.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put(k, data)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// MarkSent records an effective send for the key
func (l *Ledger) MarkSent(campaignID, candidateRef string, at time.Time) error {
	return l.update(campaignID, candidateRef, func(entry *Entry) {
		entry.Status = StatusSent
		entry.LastError = ""
		t := at.UTC()
		entry.SentAt = &t
	})
}

// MarkFailed records a retryable failure for the key
func (l *Ledger) MarkFailed(campaignID, candidateRef, reason string) error {
	return l.update(campaignID, candidateRef, func(entry *Entry) {
		if entry.Status == StatusSent {
			return
		}
		entry.Status = StatusFailed
		entry.LastError = reason
	})
}

// CampaignEntries returns all entries for a campaign
func (l *Ledger) CampaignEntries(campaignID string) ([]*Entry, error) {
	prefix := []byte(campaignID + "/")
	entries := []*Entry{}

	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSends).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			entry := &Entry{}
			if err := json.Unmarshal(v, entry); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *Ledger) update(campaignID, candidateRef string, fn func(entry *Entry)) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSends)
		k := key(campaignID, candidateRef)

		data := b.Get(k)
		if data == nil {
			return fmt.Errorf("no ledger entry for %s/%s", campaignID, candidateRef)
		}

		entry := &Entry{}
		if err := json.Unmarshal(data, entry); err != nil {
			return err
		}

		fn(entry)
		entry.UpdatedAt = time.Now().UTC()

		out, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put(k, out)
	})
}
