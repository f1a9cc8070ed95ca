// Package audit is the kernel's tamper-evident append-only log. Every
// write path (posting, reversal, period close, subledger post, role
// resolution) emits one AuditEvent, hash-chained to the previous tail so
// later divergence is detectable without a trusted third party.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"ledgerkernel/kernelerr"
	"ledgerkernel/sequence"
	"ledgerkernel/store"
)

// GenesisHash is the literal prev_hash of the first event in a chain.
const GenesisHash = "GENESIS"

// streamName is the single sequence stream the audit chain allocates
// from; all entity types share one global, totally ordered chain.
const streamName = "AUDIT"

// Event is one entry in the hash chain.
type Event struct {
	EventID     uuid.UUID
	Seq         int64
	EntityType  string
	EntityID    string
	Action      string
	Payload     map[string]any
	PayloadHash string
	PrevHash    string
	Hash        string
	ActorID     string
	RecordedAt  time.Time
}

// Log appends hash-chained events and validates the chain.
type Log struct {
	db  *store.Store
	seq *sequence.Service

	mu sync.Mutex
}

// NewLog returns a Log backed by db, allocating seq values from seqSvc.
func NewLog(db *store.Store, seqSvc *sequence.Service) *Log {
	return &Log{db: db, seq: seqSvc}
}

// payloadHash is the SHA-256 hex digest of the canonical (sorted-key) JSON
// encoding of payload.
func payloadHash(payload map[string]any) (string, error) {
	canonical, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize audit payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// chainHash computes the event hash over the canonical field sequence
// entity_type|entity_id|action|payload_hash|prev_hash.
func chainHash(entityType, entityID, action, payloadHash, prevHash string) string {
	material := fmt.Sprintf("%s|%s|%s|%s|%s", entityType, entityID, action, payloadHash, prevHash)
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// Record emits one audit event, chaining it to the current tail. Recording
// is serialized: the tail lookup and the insert happen under one lock so
// two concurrent writers can never compute the same prev_hash.
func (l *Log) Record(entityType, entityID, action string, payload map[string]any, actorID string, recordedAt time.Time) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tail, hasTail, err := l.tailLocked()
	if err != nil {
		return Event{}, err
	}
	prevHash := GenesisHash
	if hasTail {
		prevHash = tail.Hash
	}

	pHash, err := payloadHash(payload)
	if err != nil {
		return Event{}, err
	}

	seqValue, err := l.seq.NextValue(streamName)
	if err != nil {
		return Event{}, fmt.Errorf("allocate audit seq: %w", err)
	}

	ev := Event{
		EventID:     uuid.New(),
		Seq:         seqValue,
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		Payload:     payload,
		PayloadHash: pHash,
		PrevHash:    prevHash,
		Hash:        chainHash(entityType, entityID, action, pHash, prevHash),
		ActorID:     actorID,
		RecordedAt:  recordedAt,
	}

	if err := store.Put(l.db, store.BucketAuditEvents, key(ev.Seq), ev); err != nil {
		return Event{}, fmt.Errorf("persist audit event: %w", err)
	}

	log.Info().Str("entity_type", entityType).Str("entity_id", entityID).Str("action", action).
		Int64("seq", seqValue).Str("hash", ev.Hash).Msg("audit_event_recorded")

	return ev, nil
}

func key(seqValue int64) string {
	return fmt.Sprintf("%020d", seqValue)
}

// tailLocked returns the highest-seq event, if any. Callers must hold mu.
func (l *Log) tailLocked() (Event, bool, error) {
	var tail Event
	found := false
	err := store.ForEach(l.db, store.BucketAuditEvents, func(_ string, ev Event) error {
		if !found || ev.Seq > tail.Seq {
			tail = ev
			found = true
		}
		return nil
	})
	if err != nil {
		return Event{}, false, err
	}
	return tail, found, nil
}

// All returns every event in seq order.
func (l *Log) All() ([]Event, error) {
	var events []Event
	err := store.ForEach(l.db, store.BucketAuditEvents, func(_ string, ev Event) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Validate walks the chain in seq order, recomputing each hash and
// verifying prev_hash linkage. Any divergence is tamper evidence and is
// reported as an AUDIT_CHAIN_BROKEN error naming the offending seq.
func (l *Log) Validate() error {
	events, err := l.All()
	if err != nil {
		return err
	}
	prevHash := GenesisHash
	for _, ev := range events {
		if ev.PrevHash != prevHash {
			return kernelerr.Newf(kernelerr.AuditChainBroken, "seq %d: prev_hash mismatch", ev.Seq).
				WithField("seq", ev.Seq)
		}
		wantPayloadHash, err := payloadHash(ev.Payload)
		if err != nil {
			return err
		}
		wantHash := chainHash(ev.EntityType, ev.EntityID, ev.Action, wantPayloadHash, ev.PrevHash)
		if wantHash != ev.Hash {
			return kernelerr.Newf(kernelerr.AuditChainBroken, "seq %d: hash recomputation mismatch", ev.Seq).
				WithField("seq", ev.Seq)
		}
		prevHash = ev.Hash
	}
	return nil
}

// Trace follows prev_hash links from the most recent event matching
// entityID back to genesis, returning the chain in newest-first order.
func (l *Log) Trace(entityID string) ([]Event, error) {
	events, err := l.All()
	if err != nil {
		return nil, err
	}
	byHash := make(map[string]Event, len(events))
	for _, ev := range events {
		byHash[ev.Hash] = ev
	}

	var start *Event
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].EntityID == entityID {
			start = &events[i]
			break
		}
	}
	if start == nil {
		return nil, nil
	}

	var trace []Event
	cur := *start
	for {
		trace = append(trace, cur)
		if cur.PrevHash == GenesisHash {
			break
		}
		next, ok := byHash[cur.PrevHash]
		if !ok {
			break
		}
		cur = next
	}
	return trace, nil
}
