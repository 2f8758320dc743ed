package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.etcd.io/bbolt"

	"github.com/Yicong-Lin-213/AilyCart/internal/receipt"
)

const (
	entriesBucket     = "receipts"
	correctionsBucket = "corrections"
)

// ErrNotFound is returned when no entry has the requested ID
var ErrNotFound = errors.New("entry not found")

// Entry is a confirmed receipt
type Entry struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id"`
	Receipt     *receipt.Receipt  `json:"receipt"`
	Corrections map[string]string `json:"corrections,omitempty"`
	ImageURLs   []string          `json:"image_urls"`
	DisplayName string            `json:"display_name,omitempty"`
	ConfirmedAt time.Time         `json:"confirmed_at"`
}

// Ledger defines the persistence operations for confirmed receipts
type Ledger interface {
	// Save stores an entry and merges its corrections into the feedback map
	Save(entry *Entry) error

	// Get retrieves an entry by ID
	Get(id string) (*Entry, error)

	// List returns all entries, newest first
	List() ([]*Entry, error)

	// Corrections returns every name correction recorded so far
	Corrections() (map[string]string, error)

	// Close closes the database connection
	Close() error
}

// BoltLedger implements Ledger using BoltDB
type BoltLedger struct {
	db *bbolt.DB
}

// NewBoltLedger opens or creates the database at path
func NewBoltLedger(path string) (*BoltLedger, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(entriesBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(correctionsBucket)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltLedger{db: db}, nil
}

// Save stores the entry keyed by its ID. IDs are ULIDs, so key order is confirmation order.
func (b *BoltLedger) Save(entry *Entry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("entry ID is required")
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshaling entry: %w", err)
		}
		if err := tx.Bucket([]byte(entriesBucket)).Put([]byte(entry.ID), data); err != nil {
			return fmt.Errorf("putting entry: %w", err)
		}

		corrections := tx.Bucket([]byte(correctionsBucket))
		for original, corrected := range entry.Corrections {
			if err := corrections.Put([]byte(original), []byte(corrected)); err != nil {
				return fmt.Errorf("putting correction: %w", err)
			}
		}
		return nil
	})
}

// Get retrieves an entry by ID
func (b *BoltLedger) Get(id string) (*Entry, error) {
	var entry *Entry
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(entriesBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// List returns all entries, newest first
func (b *BoltLedger) List() ([]*Entry, error) {
	entries := make([]*Entry, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(entriesBucket)).ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshaling entry: %w", err)
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}

// Corrections returns the merged original-to-corrected name map
func (b *BoltLedger) Corrections() (map[string]string, error) {
	out := make(map[string]string)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(correctionsBucket)).ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the database connection
func (b *BoltLedger) Close() error {
	return b.db.Close()
}
