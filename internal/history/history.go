// Package history persists a summary of every rebuild in an embedded
// key-value store so later invocations can report how far the last one got.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"starload/internal/common"
	"starload/internal/logging"
	"starload/pkg/errors"
)

// Run outcomes.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusDryRun    = "dry-run"
)

const (
	runPrefix = "run/"
	idPrefix  = "id/"

	// keyTime is fixed width so keys sort chronologically.
	keyTime = "2006-01-02T15:04:05.000000000Z"
)

// Record summarizes one rebuild.
type Record struct {
	RunID              string           `json:"run_id"`
	StartedAt          time.Time        `json:"started_at"`
	FinishedAt         time.Time        `json:"finished_at"`
	Dialect            string           `json:"dialect"`
	Status             string           `json:"status"`
	Stages             []StageSummary   `json:"stages"`
	LastCompletedStage string           `json:"last_completed_stage,omitempty"`
	Failure            *FailureSummary  `json:"failure,omitempty"`
	RowCounts          map[string]int64 `json:"row_counts,omitempty"`
	DuplicateKeys      map[string]int64 `json:"duplicate_keys,omitempty"`
}

// Duration is the wall time of the run.
func (r Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// StageSummary is the outcome of one statement group.
type StageSummary struct {
	Stage      string        `json:"stage"`
	Statements int           `json:"statements"`
	Executed   int           `json:"executed"`
	Duration   time.Duration `json:"duration"`
}

// FailureSummary identifies the statement a run stopped at.
type FailureSummary struct {
	Stage     string `json:"stage"`
	Statement string `json:"statement"`
	Index     int    `json:"index"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Store is a badger-backed run history.
type Store struct {
	db *badger.DB
}

// Open opens the history under dir, creating it if needed. An empty dir keeps
// the history in memory.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(logging.For("history")).
		WithLoggingLevel(badger.WARNING)

	if dir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(dir, common.DirPermissionSecure); err != nil {
		return nil, unavailable(err, dir)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, unavailable(err, dir)
	}
	return &Store{db: db}, nil
}

func unavailable(err error, dir string) error {
	return errors.Wrap(err, errors.ErrCodeHistoryUnavailable, "Failed to open run history").
		WithContext("dir", dir).
		WithSuggestions(
			"Check RUN.HISTORY_DIR is writable",
			"Another starload process may hold the history lock",
		)
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func runKey(r Record) []byte {
	return []byte(runPrefix + r.StartedAt.UTC().Format(keyTime) + "/" + r.RunID)
}

// Save stores a record, replacing any earlier record with the same run ID.
func (s *Store) Save(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.RunID == "" {
		return errors.New(errors.ErrCodeInternal, "Run record has no run ID")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}

	key := runKey(r)
	return s.db.Update(func(txn *badger.Txn) error {
		idKey := []byte(idPrefix + r.RunID)
		item, err := txn.Get(idKey)
		if err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err == nil {
			old, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if string(old) != string(key) {
				if err := txn.Delete(old); err != nil && err != badger.ErrKeyNotFound {
					return err
				}
			}
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(idKey, key)
	})
}

// List returns up to limit records, newest first. A limit of zero or less
// returns every record.
func (s *Store) List(limit int) ([]Record, error) {
	var records []Record
	prefix := []byte(runPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(append([]byte{}, prefix...), 0xff)); it.ValidForPrefix(prefix); it.Next() {
			var r Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("decode run record %s: %w", it.Item().Key(), err)
			}

			records = append(records, r)
			if limit > 0 && len(records) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Latest returns the most recent record.
func (s *Store) Latest() (*Record, error) {
	records, err := s.List(1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New(errors.ErrCodeNotFound, "No runs recorded yet").
			WithSeverity(errors.SeverityInfo).
			WithSuggestions("Run 'starload run' to rebuild the warehouse")
	}
	return &records[0], nil
}

// Get returns the record of a run.
func (s *Store) Get(runID string) (*Record, error) {
	var r Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(idPrefix + runID))
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, fmt.Sprintf("Run %s not found", runID)).
			WithContext("run_id", runID)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
