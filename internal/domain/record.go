package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownMerchant is the sentinel payee used when extraction cannot
// isolate a merchant from the message text.
const UnknownMerchant = "Unknown Merchant"

// Category is one of the nine fixed spending categories.
type Category string

const (
	CategoryFood          Category = "Food"
	CategoryShopping      Category = "Shopping"
	CategoryBills         Category = "Bills"
	CategoryTravel        Category = "Travel"
	CategoryGroceries     Category = "Groceries"
	CategoryRecharge      Category = "Recharge"
	CategoryEntertainment Category = "Entertainment"
	CategoryHealthcare    Category = "Healthcare"
	CategoryOthers        Category = "Others"
)

// Categories lists every category in its declared order. The classifier
// depends on this ordering for match precedence, so it is a slice, not a
// map.
var Categories = []Category{
	CategoryFood,
	CategoryShopping,
	CategoryBills,
	CategoryTravel,
	CategoryGroceries,
	CategoryRecharge,
	CategoryEntertainment,
	CategoryHealthcare,
	CategoryOthers,
}

// Origin identifies the payment rail or app the payment was made with.
// It is distinct from CaptureMethod, which records how the record entered
// this system.
type Origin string

const (
	OriginGPay    Origin = "GPay"
	OriginPhonePe Origin = "PhonePe"
	OriginPaytm   Origin = "Paytm"
	OriginBHIM    Origin = "BHIM"
	OriginBank    Origin = "Bank"
	OriginManual  Origin = "Manual"
	OriginUnknown Origin = "Unknown"
)

// CaptureMethod records how a record entered the system.
type CaptureMethod string

const (
	CaptureMessage CaptureMethod = "message-capture"
	CaptureManual  CaptureMethod = "manual-entry"
)

// TransactionRecord is the canonical unit: one structured, categorized
// financial transaction.
type TransactionRecord struct {
	// ID is assigned by the owning store on insert and immutable after.
	ID string `json:"id"`

	Amount   decimal.Decimal `json:"amount"`
	Merchant string          `json:"merchant"`

	// Category is empty only transiently between a legacy insert and the
	// first categorization pass; the backfill pass closes that gap.
	Category Category `json:"category,omitempty"`

	// OccurredAt is when the underlying payment happened; falls back to
	// capture time when the message carries no recoverable date.
	OccurredAt time.Time `json:"occurred_at"`

	Origin        Origin        `json:"origin"`
	CaptureMethod CaptureMethod `json:"capture_method"`

	// ExternalRef is the issuer-provided reference/UTR and the primary
	// deduplication key when present.
	ExternalRef string `json:"external_ref,omitempty"`

	// RawText is the original message body, kept for dedup-by-content
	// fallback and audit.
	RawText string `json:"raw_text,omitempty"`

	// CreatedAt is the sole conflict-resolution tiebreaker during merge.
	// Nanosecond precision keeps same-origin records from colliding.
	CreatedAt time.Time `json:"created_at"`

	// SyncedAt is the last time this record's state was confirmed written
	// to the remote store; nil if never synced.
	SyncedAt *time.Time `json:"synced_at,omitempty"`
}

// NewRecord builds a validated record. Records with a non-positive amount
// are never constructed.
func NewRecord(amount decimal.Decimal, merchant string, origin Origin, capture CaptureMethod, occurredAt time.Time) (*TransactionRecord, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("NewRecord: amount must be positive, got %s", amount)
	}
	merchant = strings.TrimSpace(merchant)
	if merchant == "" {
		merchant = UnknownMerchant
	}
	return &TransactionRecord{
		Amount:        amount.Round(2),
		Merchant:      merchant,
		OccurredAt:    occurredAt,
		Origin:        origin,
		CaptureMethod: capture,
		CreatedAt:     time.Now(),
	}, nil
}

// Clone returns a deep copy so stored records cannot be mutated through
// shared pointers.
func (r *TransactionRecord) Clone() *TransactionRecord {
	cp := *r
	if r.SyncedAt != nil {
		t := *r.SyncedAt
		cp.SyncedAt = &t
	}
	return &cp
}

// EquivalentTo reports whether two records carry the same payload,
// ignoring SyncedAt, which is transport state rather than record state.
func (r *TransactionRecord) EquivalentTo(other *TransactionRecord) bool {
	if other == nil {
		return false
	}
	return r.ID == other.ID &&
		r.Amount.Equal(other.Amount) &&
		r.Merchant == other.Merchant &&
		r.Category == other.Category &&
		r.OccurredAt.Equal(other.OccurredAt) &&
		r.Origin == other.Origin &&
		r.CaptureMethod == other.CaptureMethod &&
		r.ExternalRef == other.ExternalRef &&
		r.RawText == other.RawText &&
		r.CreatedAt.Equal(other.CreatedAt)
}

// NewerThan reports whether r wins a merge conflict against other under
// last-writer-wins by creation time.
func (r *TransactionRecord) NewerThan(other *TransactionRecord) bool {
	return r.CreatedAt.After(other.CreatedAt)
}

// RecordPatch carries the mutable fields of an explicit update. Nil
// fields are left untouched.
type RecordPatch struct {
	Amount     *decimal.Decimal
	Merchant   *string
	Category   *Category
	OccurredAt *time.Time
}

// Apply writes the non-nil patch fields onto the record. An update is an
// edit, so CreatedAt advances to keep last-writer-wins honest.
func (p RecordPatch) Apply(r *TransactionRecord) error {
	if p.Amount != nil {
		if !p.Amount.IsPositive() {
			return fmt.Errorf("RecordPatch: amount must be positive, got %s", p.Amount)
		}
		r.Amount = p.Amount.Round(2)
	}
	if p.Merchant != nil {
		m := strings.TrimSpace(*p.Merchant)
		if m == "" {
			m = UnknownMerchant
		}
		r.Merchant = m
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.OccurredAt != nil {
		r.OccurredAt = *p.OccurredAt
	}
	r.CreatedAt = time.Now()
	return nil
}
