// Package ledger defines the frozen data contracts that flow between the
// strategy layer and the posting layer: EventEnvelope in, ProposedLine and
// ProposedJournalEntry out, ReferenceData supplied alongside.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"ledgerkernel/kernelerr"
	"ledgerkernel/money"
)

// LineSide is which side of the entry a line is on.
type LineSide string

const (
	Debit  LineSide = "debit"
	Credit LineSide = "credit"
)

// EntryStatus is the lifecycle state of a JournalEntry.
type EntryStatus string

const (
	StatusDraft    EntryStatus = "draft"
	StatusPosted   EntryStatus = "posted"
	StatusReversed EntryStatus = "reversed"
)

// Dimensions is an immutable string→string tag map. The zero value is a
// valid, empty Dimensions.
type Dimensions map[string]string

// Clone returns a defensive copy so callers can never mutate a DTO's
// dimensions through an aliased map (the Go analogue of deep-freezing).
func (d Dimensions) Clone() Dimensions {
	if d == nil {
		return nil
	}
	out := make(Dimensions, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// LineSpec is the strategy's proposed line, before account-code resolution.
type LineSpec struct {
	AccountCode string
	Side        LineSide
	Money       money.Money
	Dimensions  Dimensions
	Memo        string
	IsRounding  bool
}

// NewLineSpec validates the amount is non-negative (I14) before returning.
func NewLineSpec(accountCode string, side LineSide, amount money.Money, dims Dimensions, memo string, isRounding bool) (LineSpec, error) {
	if amount.Amount().IsNegative() {
		return LineSpec{}, kernelerr.Newf(kernelerr.UnbalancedEntry, "line amount must be non-negative, got %s", amount.Amount())
	}
	return LineSpec{
		AccountCode: accountCode,
		Side:        side,
		Money:       amount,
		Dimensions:  dims.Clone(),
		Memo:        memo,
		IsRounding:  isRounding,
	}, nil
}

// ProposedLine is a LineSpec after role/code resolution: adds AccountID,
// ExchangeRateID, LineSeq.
type ProposedLine struct {
	AccountID      uuid.UUID
	AccountCode    string
	Side           LineSide
	Money          money.Money
	Dimensions     Dimensions
	Memo           string
	IsRounding     bool
	ExchangeRateID *uuid.UUID
	LineSeq        int
}

// EventEnvelope is the immutable, deep-frozen record the ingestor produces
// and the pipeline consumes. Idempotency key: (Producer, EventType, EventID).
type EventEnvelope struct {
	EventID        uuid.UUID
	EventType      string
	OccurredAt     time.Time
	EffectiveDate  time.Time
	ActorID        uuid.UUID
	Producer       string
	payload        map[string]any // unexported: only reachable via Payload(), which returns a copy
	PayloadHash    string
	SchemaVersion  int
}

// NewEventEnvelope constructs an envelope, defensively copying payload so
// later mutation of the caller's map cannot reach the frozen envelope
// (the Go analogue of the original's deep-freeze-on-construction).
func NewEventEnvelope(eventID uuid.UUID, eventType string, occurredAt, effectiveDate time.Time, actorID uuid.UUID, producer string, payload map[string]any, payloadHash string, schemaVersion int) EventEnvelope {
	return EventEnvelope{
		EventID:       eventID,
		EventType:     eventType,
		OccurredAt:    occurredAt,
		EffectiveDate: effectiveDate,
		ActorID:       actorID,
		Producer:      producer,
		payload:       cloneAnyMap(payload),
		PayloadHash:   payloadHash,
		SchemaVersion: schemaVersion,
	}
}

// Payload returns a defensive copy of the payload; a strategy holding onto
// it cannot observe or cause mutation back into the envelope.
func (e EventEnvelope) Payload() map[string]any {
	return cloneAnyMap(e.payload)
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case map[string]any:
			out[k] = cloneAnyMap(vv)
		case []any:
			cp := make([]any, len(vv))
			copy(cp, vv)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}

// IdempotencyKey returns the event-level idempotency key.
func (e EventEnvelope) IdempotencyKey() string {
	return e.Producer + ":" + e.EventType + ":" + e.EventID.String()
}

// ValidationError is a single validation failure.
type ValidationError struct {
	Code    kernelerr.Code
	Message string
	Field   string
	Details map[string]any
}

// ValidationResult aggregates zero or more ValidationErrors.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

func ValidationSuccess() ValidationResult {
	return ValidationResult{Valid: true}
}

func ValidationFailure(errs ...ValidationError) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

// ProposedJournalEntry is the strategy's full output: the triggering event,
// the proposed lines, and the reference-snapshot versions under which they
// were produced (I10).
type ProposedJournalEntry struct {
	EventEnvelope           EventEnvelope
	Lines                   []ProposedLine
	Description             string
	Metadata                map[string]any
	PostingRuleVersion      int
	RoundingRuleVersion     int
	COAVersion              int
	DimensionSchemaVersion  int
	RoundingPolicyVersion   int
	CurrencyRegistryVersion int
}

// NewProposedJournalEntry validates the non-empty-lines invariant.
func NewProposedJournalEntry(event EventEnvelope, lines []ProposedLine, opts ...func(*ProposedJournalEntry)) (ProposedJournalEntry, error) {
	if len(lines) == 0 {
		return ProposedJournalEntry{}, kernelerr.New(kernelerr.UnbalancedEntry, "proposed journal entry must have at least one line")
	}
	linesCopy := make([]ProposedLine, len(lines))
	copy(linesCopy, lines)
	pje := ProposedJournalEntry{
		EventEnvelope:           event,
		Lines:                   linesCopy,
		PostingRuleVersion:      1,
		RoundingRuleVersion:     1,
		COAVersion:              1,
		DimensionSchemaVersion:  1,
		RoundingPolicyVersion:   1,
		CurrencyRegistryVersion: 1,
	}
	for _, opt := range opts {
		opt(&pje)
	}
	return pje, nil
}

// IdempotencyKey proxies the underlying event's key.
func (p ProposedJournalEntry) IdempotencyKey() string { return p.EventEnvelope.IdempotencyKey() }

// Currencies returns the distinct currency codes present across all lines.
func (p ProposedJournalEntry) Currencies() []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range p.Lines {
		code := l.Money.Currency().Code()
		if !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	return out
}

// TotalDebits sums debit amounts, optionally filtered by currency code ("" = all).
func (p ProposedJournalEntry) TotalDebits(currency string) decimal.Decimal {
	return sumSide(p.Lines, Debit, currency)
}

// TotalCredits sums credit amounts, optionally filtered by currency code ("" = all).
func (p ProposedJournalEntry) TotalCredits(currency string) decimal.Decimal {
	return sumSide(p.Lines, Credit, currency)
}

func sumSide(lines []ProposedLine, side LineSide, currency string) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.Side != side {
			continue
		}
		if currency != "" && l.Money.Currency().Code() != currency {
			continue
		}
		total = total.Add(l.Money.Amount())
	}
	return total
}

// IsBalanced reports whether debits equal credits, per currency (or all
// currencies present if currency == "").
func (p ProposedJournalEntry) IsBalanced(currency string) bool {
	if currency != "" {
		return p.TotalDebits(currency).Equal(p.TotalCredits(currency))
	}
	for _, c := range p.Currencies() {
		if !p.TotalDebits(c).Equal(p.TotalCredits(c)) {
			return false
		}
	}
	return true
}

// Imbalance returns debits-credits for one currency (I1 defense-in-depth).
func (p ProposedJournalEntry) Imbalance(currency string) decimal.Decimal {
	return p.TotalDebits(currency).Sub(p.TotalCredits(currency))
}

// ReferenceData is the read-only snapshot passed to posting strategies:
// account lookups, valid currencies, rounding accounts, exchange rates,
// dimension whitelists, and the reference-snapshot version identifiers that
// must be stamped onto every posted entry (I10).
type ReferenceData struct {
	accountIDsByCode     map[string]uuid.UUID
	activeAccountCodes   map[string]bool
	validCurrencies      map[string]money.Currency
	roundingAccountIDs   map[string]uuid.UUID
	exchangeRates        []money.ExchangeRate
	requiredDimensions   map[string]bool
	activeDimensions     map[string]bool
	activeDimensionValues map[string]map[string]bool

	COAVersion              int
	DimensionSchemaVersion  int
	RoundingPolicyVersion   int
	CurrencyRegistryVersion int
}

// NewReferenceData builds a ReferenceData snapshot, defensively copying
// every map so later mutation by the caller cannot reach strategies that
// were handed this snapshot (mirrors the original's deep-freeze-on-init).
func NewReferenceData(
	accountIDsByCode map[string]uuid.UUID,
	activeAccountCodes []string,
	validCurrencies []money.Currency,
	roundingAccountIDs map[string]uuid.UUID,
	exchangeRates []money.ExchangeRate,
	requiredDimensions []string,
	activeDimensions []string,
	activeDimensionValues map[string][]string,
	coaVersion, dimensionSchemaVersion, roundingPolicyVersion, currencyRegistryVersion int,
) ReferenceData {
	rd := ReferenceData{
		accountIDsByCode:        cloneUUIDMap(accountIDsByCode),
		activeAccountCodes:      toSet(activeAccountCodes),
		validCurrencies:         make(map[string]money.Currency, len(validCurrencies)),
		roundingAccountIDs:      cloneUUIDMap(roundingAccountIDs),
		requiredDimensions:      toSet(requiredDimensions),
		activeDimensions:        toSet(activeDimensions),
		activeDimensionValues:   map[string]map[string]bool{},
		COAVersion:              coaVersion,
		DimensionSchemaVersion:  dimensionSchemaVersion,
		RoundingPolicyVersion:   roundingPolicyVersion,
		CurrencyRegistryVersion: currencyRegistryVersion,
	}
	for _, c := range validCurrencies {
		rd.validCurrencies[c.Code()] = c
	}
	rd.exchangeRates = append([]money.ExchangeRate(nil), exchangeRates...)
	for dim, values := range activeDimensionValues {
		rd.activeDimensionValues[dim] = toSet(values)
	}
	return rd
}

func cloneUUIDMap(m map[string]uuid.UUID) map[string]uuid.UUID {
	out := make(map[string]uuid.UUID, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		out[item] = true
	}
	return out
}

func (r ReferenceData) GetAccountID(code string) (uuid.UUID, bool) {
	id, ok := r.accountIDsByCode[code]
	return id, ok
}

func (r ReferenceData) IsAccountActive(code string) bool {
	return r.activeAccountCodes[code]
}

func (r ReferenceData) IsValidCurrency(code string) bool {
	_, ok := r.validCurrencies[code]
	return ok
}

func (r ReferenceData) GetCurrency(code string) (money.Currency, bool) {
	c, ok := r.validCurrencies[code]
	return c, ok
}

func (r ReferenceData) GetRoundingAccountID(currencyCode string) (uuid.UUID, bool) {
	id, ok := r.roundingAccountIDs[currencyCode]
	return id, ok
}

func (r ReferenceData) GetExchangeRate(from, to string) (money.ExchangeRate, bool) {
	for _, rate := range r.exchangeRates {
		if rate.From().Code() == from && rate.To().Code() == to {
			return rate, true
		}
	}
	return money.ExchangeRate{}, false
}

func (r ReferenceData) IsDimensionActive(code string) bool {
	return r.activeDimensions[code]
}

func (r ReferenceData) IsDimensionValueActive(dimCode, valueCode string) bool {
	values, ok := r.activeDimensionValues[dimCode]
	if !ok {
		return false
	}
	return values[valueCode]
}

// ValidateDimensions checks every tag against the active whitelist,
// returning a ValidationError per violation (empty slice if all valid).
func (r ReferenceData) ValidateDimensions(dims Dimensions) []ValidationError {
	var errs []ValidationError
	for dimCode, valueCode := range dims {
		if !r.IsDimensionActive(dimCode) {
			errs = append(errs, ValidationError{
				Code:    kernelerr.MissingDimension,
				Message: "dimension '" + dimCode + "' is inactive",
				Field:   dimCode,
			})
			continue
		}
		if !r.IsDimensionValueActive(dimCode, valueCode) {
			errs = append(errs, ValidationError{
				Code:    kernelerr.InvalidDimensionValue,
				Message: "dimension value '" + valueCode + "' for '" + dimCode + "' is inactive or invalid",
				Field:   dimCode,
			})
		}
	}
	return errs
}
