package journal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"ledgerkernel/immutability"
	"ledgerkernel/kernelerr"
	"ledgerkernel/ledger"
	"ledgerkernel/money"
	"ledgerkernel/store"
)

// WriteReversal creates a reversal entry that mechanically inverts
// originalEntryID: every line's side is flipped, accounts/amounts/
// currencies/dimensions are preserved exactly, and no new rounding line is
// introduced (R22). Reversal is evaluated under the original entry's
// reference snapshot, even if posted into a different period.
//
// expectedLedgerID, if non-empty, must match the original entry's ledger;
// a mismatch fails CROSS_LEDGER_REVERSAL rather than silently reversing
// into the wrong ledger.
func (w *Writer) WriteReversal(originalEntryID, sourceEventID, actorID uuid.UUID, effectiveDate time.Time, reason, eventType, expectedLedgerID string) (Entry, error) {
	original, found, err := w.GetEntry(originalEntryID)
	if err != nil {
		return Entry{}, err
	}
	if !found {
		return Entry{}, kernelerr.Newf(kernelerr.EventNotFound, "journal entry %s not found", originalEntryID)
	}
	if original.Status != ledger.StatusPosted {
		return Entry{}, kernelerr.Newf(kernelerr.EntryNotPosted, "entry %s must be posted to be reversed, is %s", originalEntryID, original.Status)
	}

	originalLines, err := w.GetLines(originalEntryID)
	if err != nil {
		return Entry{}, err
	}
	if len(originalLines) == 0 {
		return Entry{}, kernelerr.Newf(kernelerr.UnbalancedEntry, "cannot reverse entry %s: no lines found", originalEntryID)
	}

	if expectedLedgerID != "" && expectedLedgerID != original.LedgerID {
		return Entry{}, kernelerr.Newf(kernelerr.CrossLedgerReversal,
			"entry %s belongs to ledger %q, requested reversal in ledger %q", originalEntryID, original.LedgerID, expectedLedgerID)
	}

	idempotencyKey := fmt.Sprintf("reversal:%s:%s", originalEntryID, original.LedgerID)
	if existing, found, err := w.findByIdempotencyKey(idempotencyKey); err != nil {
		return Entry{}, err
	} else if found && (existing.Status == ledger.StatusPosted || existing.Status == ledger.StatusReversed) {
		log.Info().Str("original_entry_id", originalEntryID.String()).Str("existing_reversal_id", existing.ID.String()).
			Msg("reversal_idempotent")
		return existing, nil
	}

	now := w.clk.Now()
	reversal := Entry{
		ID:                      uuid.New(),
		SourceEventID:           sourceEventID,
		SourceEventType:         eventType,
		OccurredAt:              now,
		EffectiveDate:           effectiveDate,
		ActorID:                 actorID,
		Status:                  ledger.StatusDraft,
		IdempotencyKey:          idempotencyKey,
		LedgerID:                original.LedgerID,
		ProfileID:               original.ProfileID,
		EconEventID:             original.EconEventID,
		PostingRuleVersion:      original.PostingRuleVersion,
		Description:             fmt.Sprintf("Reversal of entry seq %d: %s", original.Seq, reason),
		CreatedByID:             actorID,
		COAVersion:              original.COAVersion,
		DimensionSchemaVersion:  original.DimensionSchemaVersion,
		RoundingPolicyVersion:   original.RoundingPolicyVersion,
		CurrencyRegistryVersion: original.CurrencyRegistryVersion,
		ReversalOfID:            &originalEntryID,
		ReversalReason:          reason,
	}

	debitByCcy := map[string]money.Money{}
	creditByCcy := map[string]money.Money{}

	for _, orig := range originalLines {
		flippedSide := ledger.Credit
		if orig.Side == ledger.Credit {
			flippedSide = ledger.Debit
		}

		reversedLine := Line{
			JournalEntryID: reversal.ID,
			AccountID:      orig.AccountID,
			AccountCode:    orig.AccountCode,
			AccountRole:    orig.AccountRole,
			Side:           flippedSide,
			Money:          orig.Money,
			Dimensions:     orig.Dimensions,
			Memo:           fmt.Sprintf("Reversal of line %d", orig.LineSeq),
			IsRounding:     false,
			LineSeq:        orig.LineSeq,
			ExchangeRateID: orig.ExchangeRateID,
			CreatedByID:    actorID,
		}
		if err := immutability.GuardedPut(w.db, store.BucketJournalLines, lineKey(reversal.ID, reversedLine.LineSeq), reversedLine); err != nil {
			return Entry{}, fmt.Errorf("persist reversal line: %w", err)
		}

		ccy := orig.Money.Currency().Code()
		var addErr error
		if orig.Side == ledger.Debit {
			creditByCcy[ccy], addErr = addOrInit(creditByCcy[ccy], orig.Money)
		} else {
			debitByCcy[ccy], addErr = addOrInit(debitByCcy[ccy], orig.Money)
		}
		if addErr != nil {
			return Entry{}, addErr
		}
	}

	// R4 defense-in-depth: the reversal is balanced iff the original was,
	// since every line was mechanically flipped.
	for ccy, d := range debitByCcy {
		c, ok := creditByCcy[ccy]
		if !ok {
			return Entry{}, kernelerr.Newf(kernelerr.UnbalancedEntry, "reversal of entry %s is unbalanced for %s", originalEntryID, ccy)
		}
		if cmp, err := d.Cmp(c); err != nil || cmp != 0 {
			return Entry{}, kernelerr.Newf(kernelerr.UnbalancedEntry, "reversal of entry %s is unbalanced for %s: debits=%s credits=%s", originalEntryID, ccy, d, c)
		}
	}

	if err := w.finalizePosting(&reversal); err != nil {
		return Entry{}, err
	}

	if w.auditLog != nil {
		if _, err := w.auditLog.Record("JournalEntry", reversal.ID.String(), "reversed", map[string]any{
			"original_entry_id": originalEntryID.String(), "seq": reversal.Seq, "reason": reason,
		}, actorID.String(), now); err != nil {
			return Entry{}, err
		}
	}

	log.Info().Str("reversal_entry_id", reversal.ID.String()).Str("original_entry_id", originalEntryID.String()).
		Int64("seq", reversal.Seq).Str("effective_date", effectiveDate.String()).Str("reason", reason).
		Int("line_count", len(originalLines)).Msg("reversal_entry_created")

	return reversal, nil
}

func addOrInit(acc money.Money, add money.Money) (money.Money, error) {
	if acc.Currency().IsZero() {
		return add, nil
	}
	return acc.Add(add)
}
