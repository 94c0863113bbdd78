package scrapequeue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore implements the Store interface using BadgerDB. It is the
// primary persistence layer: queue contents, the active-job pointer, and the
// pending view all survive a process restart.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// key layout
const (
	keyPrefixQueue = "queue:"    // queue: + big-endian seq -> JSON JobRecord
	keyPrefixView  = "view:"     // view: + big-endian reversed seq -> JSON CompletedEntry
	keyQueueSeq    = "meta:qseq" // monotonic queue sequence counter
	keyViewSeq     = "meta:vseq" // monotonic pending-view sequence counter
	keyActiveID    = "ptr:jobid" // last started worker job ID
	keyActiveURL   = "ptr:joburl"
)

// NewBadgerStore creates a new BadgerDB store.
// The database directory will be created if it doesn't exist.
// dbPath is the path to the BadgerDB database directory.
// Note: BadgerDB uses its own logger interface, so its internal logging is disabled.
func NewBadgerStore(dbPath string, logger *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Disable BadgerDB's internal logging (uses different logger interface)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	return &BadgerStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// retryUpdate retries a BadgerDB update operation on transaction conflicts.
// Fixed delay, no jitter, for deterministic test behavior.
func (s *BadgerStore) retryUpdate(ctx context.Context, fn func(txn *badger.Txn) error) error {
	const maxRetries = 50
	const retryDelay = 1 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			time.Sleep(retryDelay)
		}

		err := s.db.Update(fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, badger.ErrConflict) {
			lastErr = err
			continue
		}
		return err
	}

	return fmt.Errorf("transaction conflict after %d retries: %w", maxRetries, lastErr)
}

// nextSeq increments and returns the monotonic counter stored under metaKey.
func nextSeq(txn *badger.Txn, metaKey string) (uint64, error) {
	var seq uint64
	item, err := txn.Get([]byte(metaKey))
	if err == nil {
		if err := item.Value(func(val []byte) error {
			if len(val) == 8 {
				seq = binary.BigEndian.Uint64(val)
			}
			return nil
		}); err != nil {
			return 0, fmt.Errorf("failed to read sequence %s: %w", metaKey, err)
		}
	} else if err != badger.ErrKeyNotFound {
		return 0, fmt.Errorf("failed to get sequence %s: %w", metaKey, err)
	}

	seq++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	if err := txn.Set([]byte(metaKey), buf); err != nil {
		return 0, fmt.Errorf("failed to store sequence %s: %w", metaKey, err)
	}
	return seq, nil
}

// queueKey returns the key for a queue slot. Big-endian sequence bytes keep
// Badger's lexicographic iteration order equal to FIFO order.
func queueKey(seq uint64) []byte {
	key := make([]byte, 0, len(keyPrefixQueue)+8)
	key = append(key, []byte(keyPrefixQueue)...)
	seqBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBytes, seq)
	return append(key, seqBytes...)
}

// viewKey returns the key for a pending-view slot. The sequence is inverted
// so that ascending iteration yields most-recent-first.
func viewKey(seq uint64) []byte {
	key := make([]byte, 0, len(keyPrefixView)+8)
	key = append(key, []byte(keyPrefixView)...)
	seqBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBytes, math.MaxUint64-seq)
	return append(key, seqBytes...)
}

// AppendRecord appends a record to the tail of the queue.
func (s *BadgerStore) AppendRecord(ctx context.Context, record *JobRecord) error {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	s.logger.Debug("AppendRecord", "id", record.ID, "url", record.URL)

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return s.retryUpdate(ctx, func(txn *badger.Txn) error {
		seq, err := nextSeq(txn, keyQueueSeq)
		if err != nil {
			return err
		}
		if err := txn.Set(queueKey(seq), data); err != nil {
			return fmt.Errorf("failed to store record: %w", err)
		}
		return nil
	})
}

// ListRecords returns a snapshot of the queue in FIFO order.
func (s *BadgerStore) ListRecords(ctx context.Context) ([]*JobRecord, error) {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return nil, err
	}

	records := make([]*JobRecord, 0)
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixQueue)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record JobRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
			records = append(records, &record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("ListRecords", "count", len(records))
	return records, nil
}

// RemoveRecord removes one record by ID.
func (s *BadgerStore) RemoveRecord(ctx context.Context, id string) (bool, error) {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return false, err
	}
	s.logger.Debug("RemoveRecord", "id", id)

	removed := false
	err = s.retryUpdate(ctx, func(txn *badger.Txn) error {
		removed = false
		key, _, err := s.findQueueEntry(txn, func(rec *JobRecord) bool { return rec.ID == id })
		if err != nil {
			return err
		}
		if key == nil {
			return nil
		}
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("failed to delete record: %w", err)
		}
		removed = true
		return nil
	})
	return removed, err
}

// PopFront removes and returns the queue head, or nil when empty.
func (s *BadgerStore) PopFront(ctx context.Context) (*JobRecord, error) {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return nil, err
	}

	var head *JobRecord
	err = s.retryUpdate(ctx, func(txn *badger.Txn) error {
		head = nil
		key, record, err := s.findQueueEntry(txn, func(*JobRecord) bool { return true })
		if err != nil {
			return err
		}
		if key == nil {
			return nil
		}
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("failed to delete record: %w", err)
		}
		head = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	if head != nil {
		s.logger.Debug("PopFront", "id", head.ID, "url", head.URL)
	}
	return head, nil
}

// findQueueEntry returns the key and record of the first queue entry matching
// the predicate, or nils when none matches.
func (s *BadgerStore) findQueueEntry(txn *badger.Txn, match func(*JobRecord) bool) ([]byte, *JobRecord, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(keyPrefixQueue)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var record JobRecord
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		}); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		if match(&record) {
			return it.Item().KeyCopy(nil), &record, nil
		}
	}
	return nil, nil, nil
}

// SetActiveJob persists the active-job pointer.
func (s *BadgerStore) SetActiveJob(ctx context.Context, jobID, url string) error {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return err
	}
	s.logger.Debug("SetActiveJob", "jobID", jobID, "url", url)

	return s.retryUpdate(ctx, func(txn *badger.Txn) error {
		if jobID == "" && url == "" {
			if err := txn.Delete([]byte(keyActiveID)); err != nil {
				return fmt.Errorf("failed to clear job ID pointer: %w", err)
			}
			if err := txn.Delete([]byte(keyActiveURL)); err != nil {
				return fmt.Errorf("failed to clear job URL pointer: %w", err)
			}
			return nil
		}
		if err := txn.Set([]byte(keyActiveID), []byte(jobID)); err != nil {
			return fmt.Errorf("failed to store job ID pointer: %w", err)
		}
		if err := txn.Set([]byte(keyActiveURL), []byte(url)); err != nil {
			return fmt.Errorf("failed to store job URL pointer: %w", err)
		}
		return nil
	})
}

// ActiveJobRef reads the active-job pointer; empty strings when unset.
func (s *BadgerStore) ActiveJobRef(ctx context.Context) (string, string, error) {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return "", "", err
	}

	var jobID, url string
	err = s.db.View(func(txn *badger.Txn) error {
		var err error
		if jobID, err = readString(txn, keyActiveID); err != nil {
			return err
		}
		url, err = readString(txn, keyActiveURL)
		return err
	})
	if err != nil {
		return "", "", err
	}
	return jobID, url, nil
}

// ClearActiveJob clears the active-job pointer.
func (s *BadgerStore) ClearActiveJob(ctx context.Context) error {
	return s.SetActiveJob(ctx, "", "")
}

func readString(txn *badger.Txn, key string) (string, error) {
	item, err := txn.Get([]byte(key))
	if err == badger.ErrKeyNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	var value string
	err = item.Value(func(val []byte) error {
		value = string(val)
		return nil
	})
	return value, err
}

// PrependCompleted adds a completed entry to the head of the pending view.
func (s *BadgerStore) PrependCompleted(ctx context.Context, entry *CompletedEntry) error {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("entry is nil")
	}
	if entry.JobID == "" {
		return fmt.Errorf("entry job ID is required")
	}
	s.logger.Debug("PrependCompleted", "jobID", entry.JobID, "url", entry.URL)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	return s.retryUpdate(ctx, func(txn *badger.Txn) error {
		seq, err := nextSeq(txn, keyViewSeq)
		if err != nil {
			return err
		}
		if err := txn.Set(viewKey(seq), data); err != nil {
			return fmt.Errorf("failed to store entry: %w", err)
		}
		return nil
	})
}

// ListCompleted returns the pending view, most recent first.
func (s *BadgerStore) ListCompleted(ctx context.Context) ([]*CompletedEntry, error) {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return nil, err
	}

	entries := make([]*CompletedEntry, 0)
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixView)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry CompletedEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("failed to unmarshal entry: %w", err)
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("ListCompleted", "count", len(entries))
	return entries, nil
}

// RemoveCompleted removes one pending-view entry by job ID.
func (s *BadgerStore) RemoveCompleted(ctx context.Context, jobID string) (bool, error) {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return false, err
	}
	s.logger.Debug("RemoveCompleted", "jobID", jobID)

	removed := false
	err = s.retryUpdate(ctx, func(txn *badger.Txn) error {
		removed = false
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixView)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry CompletedEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("failed to unmarshal entry: %w", err)
			}
			if entry.JobID == jobID {
				key := it.Item().KeyCopy(nil)
				it.Close()
				if err := txn.Delete(key); err != nil {
					return fmt.Errorf("failed to delete entry: %w", err)
				}
				removed = true
				return nil
			}
		}
		return nil
	})
	return removed, err
}
