// Package store is the kernel's sole persistence engine: an embedded
// go.etcd.io/bbolt database with encoding/json value encoding. Every
// higher-level package (sequence, audit, period, journal, subledgerperiod)
// persists through the small generic Put/Get/ForEach surface here rather
// than opening bbolt directly, so the bucket layout stays in one place.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// Bucket names, one per persisted aggregate (kernel persisted-state layout).
var (
	BucketEvents                     = []byte("events")
	BucketJournalEntries              = []byte("journal_entries")
	BucketJournalLines                = []byte("journal_lines")
	BucketAuditEvents                 = []byte("audit_events")
	BucketFiscalPeriods                = []byte("fiscal_periods")
	BucketSubledgerEntries             = []byte("subledger_entries")
	BucketSubledgerPeriodStatus        = []byte("subledger_period_status")
	BucketReconciliationFailureReports = []byte("reconciliation_failure_reports")
	BucketSequenceCounters             = []byte("sequence_counters")
)

var allBuckets = [][]byte{
	BucketEvents,
	BucketJournalEntries,
	BucketJournalLines,
	BucketAuditEvents,
	BucketFiscalPeriods,
	BucketSubledgerEntries,
	BucketSubledgerPeriodStatus,
	BucketReconciliationFailureReports,
	BucketSequenceCounters,
}

// Store wraps a bbolt database opened on the kernel's fixed bucket layout.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the database at path and ensures every
// kernel bucket exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &Store{db: db}
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
}

// Put JSON-encodes value and writes it under key in bucket. Every mutation
// to kernel state goes through Put rather than a raw bbolt transaction, so
// the JSON encoding boundary lives in exactly one place.
func Put[T any](s *Store, bucket []byte, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", bucket, key, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

// Get JSON-decodes the value stored under key in bucket. found is false if
// no such key exists.
func Get[T any](s *Store, bucket []byte, key string) (value T, found bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &value)
	})
	return value, found, err
}

// ForEach decodes and visits every value in bucket in key order, stopping
// early if visit returns an error.
func ForEach[T any](s *Store, bucket []byte, visit func(key string, value T) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var value T
			if err := json.Unmarshal(v, &value); err != nil {
				return fmt.Errorf("unmarshal %s/%s: %w", bucket, k, err)
			}
			if err := visit(string(k), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes key from bucket. Deleting a key that doesn't exist is a
// no-op, matching bbolt's own Delete semantics.
func (s *Store) Delete(bucket []byte, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

// WithLock runs fn inside a single bbolt read-write transaction,
// serializing concurrent callers the way the original's
// row-level `SELECT ... FOR UPDATE` serialized concurrent posters: bbolt
// permits only one writer transaction at a time, so any caller that needs
// read-then-write atomicity (idempotency-key lookup before insert,
// sequence-counter increment) should do both inside one WithLock call
// rather than a separate Get followed by a separate Put.
func (s *Store) WithLock(fn func(tx *bbolt.Tx) error) error {
	return s.db.Update(fn)
}
