// Package extract turns one raw notification message into a candidate
// transaction record, or rejects it with a typed reason. Extraction is a
// pure function of the input text and the fixed rule tables in rules.go;
// it never touches storage and never fails with an error.
package extract

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aman124598/upi-tracker/internal/domain"
)

// Reason identifies why a message was rejected.
type Reason string

const (
	// ReasonNotATransaction means the text carries no payment vocabulary.
	ReasonNotATransaction Reason = "not-a-transaction"

	// ReasonFailedTransaction means the text reports a failed, declined or
	// reversed payment. This gate outranks a successful parse: failure
	// notices restate the attempted amount, and extracting it would
	// fabricate a debit that never happened.
	ReasonFailedTransaction Reason = "failed-transaction"

	// ReasonNoAmount means no amount rule matched a usable positive value.
	ReasonNoAmount Reason = "no-amount"
)

// Rejection is the typed outcome for messages that do not produce a
// candidate.
type Rejection struct {
	Reason Reason
}

// Candidate is a structured record extracted from one message. It has no
// ID or category yet; the coordinator assigns those downstream.
type Candidate struct {
	Amount      decimal.Decimal
	Merchant    string
	Origin      domain.Origin
	ExternalRef string
	OccurredAt  time.Time
	RawText     string
}

// Extractor applies the ordered rule tables to raw message text.
type Extractor struct {
	now func() time.Time
}

// New creates an extractor using wall-clock capture time.
func New() *Extractor {
	return &Extractor{now: time.Now}
}

// NewWithClock creates an extractor with a fixed clock, for tests.
func NewWithClock(now func() time.Time) *Extractor {
	return &Extractor{now: now}
}

// Extract runs the gate pipeline over rawText. Exactly one of the two
// results is non-nil.
func (e *Extractor) Extract(rawText string) (*Candidate, *Rejection) {
	lower := strings.ToLower(rawText)

	if !containsAny(lower, relevanceTokens) {
		return nil, &Rejection{Reason: ReasonNotATransaction}
	}
	if containsAny(lower, failureTokens) {
		return nil, &Rejection{Reason: ReasonFailedTransaction}
	}

	amount, ok := extractAmount(rawText)
	if !ok {
		return nil, &Rejection{Reason: ReasonNoAmount}
	}

	merchant := extractMerchant(rawText)

	captured := e.now()
	occurredAt := captured
	if parsed, ok := extractDate(rawText); ok {
		occurredAt = parsed
	}

	return &Candidate{
		Amount:      amount,
		Merchant:    merchant,
		Origin:      extractOrigin(lower),
		ExternalRef: extractReference(rawText),
		OccurredAt:  occurredAt,
		RawText:     rawText,
	}, nil
}

// Reference returns the external reference a message would carry, without
// running the full pipeline. The coordinator needs it for the duplicate
// check, which runs before extraction.
func Reference(rawText string) string {
	return extractReference(rawText)
}

// extractAmount applies the ordered amount rules and returns the first
// usable positive value. Rule order encodes precedence: an explicitly
// debited amount beats a generic currency mention elsewhere in the text.
func extractAmount(text string) (decimal.Decimal, bool) {
	for _, rule := range amountRules {
		m := rule.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		raw := strings.ReplaceAll(m[1], ",", "")
		amount, err := decimal.NewFromString(raw)
		if err != nil || !amount.IsPositive() {
			continue
		}
		return amount.Round(2), true
	}
	return decimal.Decimal{}, false
}

// extractMerchant applies the ordered prepositional-phrase rules. A
// message with no recoverable payee still yields a record: amount plus
// timestamp is useful for totals, so the sentinel merchant is returned
// instead of a rejection.
func extractMerchant(text string) string {
	for _, rule := range merchantRules {
		m := rule.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidate := sanitizeMerchant(m[1])
		if len(candidate) < merchantMinLen || len(candidate) > merchantMaxLen {
			continue
		}
		return candidate
	}
	return domain.UnknownMerchant
}

// extractOrigin matches the fixed origin vocabulary against the lowered
// text, named apps before generic bank tokens. App names inside VPA
// handles identify the payee's PSP, not the rail the payment was made on,
// so handles are masked before matching.
func extractOrigin(lower string) domain.Origin {
	masked := maskVPAHandles(lower)
	for _, rule := range originRules {
		for _, token := range rule.tokens {
			if strings.Contains(masked, token) {
				return rule.origin
			}
		}
	}
	return domain.OriginUnknown
}

// extractReference prefers a labelled reference/UTR token and falls back
// to any bare 12-digit numeral. Absence is not an error.
func extractReference(text string) string {
	if m := refLabelRule.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := bareRefRule.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// extractDate locates a date-like token and parses it against the known
// issuer layouts. Returns false when nothing parses, in which case the
// caller substitutes capture time.
func extractDate(text string) (time.Time, bool) {
	m := dateTokenRule.FindString(text)
	if m == "" {
		return time.Time{}, false
	}
	normalized := strings.ReplaceAll(m, "/", "-")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, normalized); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func containsAny(lower string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}
