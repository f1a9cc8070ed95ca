// Package immutability is the kernel's second line of defense against a
// posted journal entry, a posted journal line, or a closed fiscal period
// being altered through a write path other than the one that created it.
// journal.Writer and period.Service never themselves attempt such a write
// -- this package exists for the write path that isn't gated by that
// business logic: a future caller, a migration, or a bulk rewrite that
// reaches store.Put directly on a protected bucket.
package immutability

import (
	"ledgerkernel/kernelerr"
	"ledgerkernel/store"
)

// Guarded is implemented by any persisted record type that can report
// whether overwriting itself with a candidate next value would touch a
// field immutability protects. existing is the record already at rest;
// ImmutableDiff returns a non-empty description of the first protected
// field the write would change, or "" if the write is permitted.
type Guarded[T any] interface {
	ImmutableDiff(next T) string
}

// GuardedPut loads whatever is currently stored under key in bucket and,
// if a record exists, asks it whether next would violate one of its
// protected fields before writing. A bucket that has never held key
// accepts any first write unconditionally -- immutability protects
// records that exist, not key space.
func GuardedPut[T Guarded[T]](s *store.Store, bucket []byte, key string, next T) error {
	existing, found, err := store.Get[T](s, bucket, key)
	if err != nil {
		return err
	}
	if found {
		if diff := existing.ImmutableDiff(next); diff != "" {
			return kernelerr.Newf(kernelerr.ImmutabilityViolation,
				"refusing to write %s/%s: %s", bucket, key, diff)
		}
	}
	return store.Put(s, bucket, key, next)
}
