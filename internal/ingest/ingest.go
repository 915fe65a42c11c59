// Package ingest drives raw notification messages through the extraction
// pipeline into the local store: vocabulary gates, duplicate check,
// extraction, categorization, persistence, then a best-effort upload
// enqueue. Local durability outranks cloud durability: ingestion is
// complete once the record is persisted locally.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aman124598/upi-tracker/internal/classify"
	"github.com/aman124598/upi-tracker/internal/domain"
	"github.com/aman124598/upi-tracker/internal/extract"
	"github.com/aman124598/upi-tracker/internal/logger"
	"github.com/aman124598/upi-tracker/internal/store"
)

// SkipReason identifies why a message produced no record. Extractor
// rejection reasons pass through unchanged; the coordinator adds its own
// gate reasons on top.
type SkipReason string

const (
	SkipOTP               SkipReason = "otp"
	SkipPromotional       SkipReason = "promotional"
	SkipDuplicate         SkipReason = "duplicate"
	SkipNotATransaction   SkipReason = SkipReason(extract.ReasonNotATransaction)
	SkipFailedTransaction SkipReason = SkipReason(extract.ReasonFailedTransaction)
	SkipNoAmount          SkipReason = SkipReason(extract.ReasonNoAmount)
)

// Outcome is the result of one ingestion call. Exactly one of Inserted
// and Skipped applies.
type Outcome struct {
	Inserted bool
	ID       string
	Skipped  SkipReason
}

// Stats is a snapshot of the coordinator's counters.
type Stats struct {
	Inserted int
	Skipped  map[SkipReason]int
}

// Uploader receives newly persisted record ids for best-effort remote
// upload. Enqueue must not block and must not fail the caller.
type Uploader interface {
	Enqueue(id string)
}

// otpTokens gate out one-time-password messages before any parsing: they
// carry amounts often enough to fool the extractor.
var otpTokens = []string{
	"otp",
	"one time password",
	"one-time password",
	"verification code",
	"do not share",
}

// promoTokens mark promotional noise. A message matching these is only
// skipped when it carries no core debit vocabulary, so a genuine debit
// that mentions cashback still gets processed.
var promoTokens = []string{
	"congratulations",
	"cashback",
	"offer",
	"discount",
	"click here",
	"claim now",
	"win ",
	"won ",
	"reward",
	"sale",
}

var coreTxnTokens = []string{"debited", "paid"}

// Coordinator owns the message-to-record ingestion path. Safe for
// concurrent use; the counters have their own lock and the store
// serializes its own mutations.
type Coordinator struct {
	store      store.RecordStore
	extractor  *extract.Extractor
	classifier *classify.Classifier
	uploader   Uploader

	mu       sync.Mutex
	inserted int
	skips    map[SkipReason]int
}

// New creates a coordinator over the given store. uploader may be nil
// when no remote is configured.
func New(st store.RecordStore, uploader Uploader) *Coordinator {
	return &Coordinator{
		store:      st,
		extractor:  extract.New(),
		classifier: classify.New(),
		uploader:   uploader,
		skips:      make(map[SkipReason]int),
	}
}

// Ingest runs one raw message through the pipeline. A skip is a normal
// outcome, not an error; the error return is reserved for store failures,
// which lose only this message and leave the pipeline usable.
func (c *Coordinator) Ingest(ctx context.Context, rawText string) (Outcome, error) {
	log := logger.FromContext(ctx)
	lower := strings.ToLower(rawText)

	if containsAny(lower, otpTokens) {
		return c.skip(log, rawText, SkipOTP), nil
	}
	if containsAny(lower, promoTokens) && !containsAny(lower, coreTxnTokens) {
		return c.skip(log, rawText, SkipPromotional), nil
	}

	dup, err := c.store.HasDuplicate(ctx, extract.Reference(rawText), rawText)
	if err != nil {
		return Outcome{}, fmt.Errorf("Ingest: duplicate check: %w", err)
	}
	if dup {
		return c.skip(log, rawText, SkipDuplicate), nil
	}

	candidate, rejection := c.extractor.Extract(rawText)
	if rejection != nil {
		return c.skip(log, rawText, SkipReason(rejection.Reason)), nil
	}

	rec, err := domain.NewRecord(candidate.Amount, candidate.Merchant, candidate.Origin, domain.CaptureMessage, candidate.OccurredAt)
	if err != nil {
		return Outcome{}, fmt.Errorf("Ingest: %w", err)
	}
	rec.Category = c.classifier.Classify(candidate.Merchant)
	rec.ExternalRef = candidate.ExternalRef
	rec.RawText = rawText

	id, err := c.store.Insert(ctx, rec)
	if err != nil {
		return Outcome{}, fmt.Errorf("Ingest: persisting record: %w", err)
	}

	c.mu.Lock()
	c.inserted++
	c.mu.Unlock()

	if c.uploader != nil {
		c.uploader.Enqueue(id)
	}

	log.Info().
		Str("record_id", id).
		Str("merchant", rec.Merchant).
		Str("category", string(rec.Category)).
		Str("amount", rec.Amount.String()).
		Msg("Ingested transaction record")

	return Outcome{Inserted: true, ID: id}, nil
}

// AddManual persists a hand-entered record. An empty category is filled
// by the classifier so no visible record ever lacks one.
func (c *Coordinator) AddManual(ctx context.Context, amount decimal.Decimal, merchant string, category domain.Category, occurredAt time.Time) (string, error) {
	rec, err := domain.NewRecord(amount, merchant, domain.OriginManual, domain.CaptureManual, occurredAt)
	if err != nil {
		return "", fmt.Errorf("AddManual: %w", err)
	}
	if category == "" {
		category = c.classifier.Classify(rec.Merchant)
	}
	rec.Category = category

	id, err := c.store.Insert(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("AddManual: persisting record: %w", err)
	}

	c.mu.Lock()
	c.inserted++
	c.mu.Unlock()

	if c.uploader != nil {
		c.uploader.Enqueue(id)
	}
	return id, nil
}

// BackfillCategories classifies every stored record that still has no
// category and returns how many were updated. The upsert keeps CreatedAt
// untouched: a backfill is bookkeeping, not a user edit, so it must not
// win merge conflicts.
func (c *Coordinator) BackfillCategories(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)

	records, err := c.store.QueryAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("BackfillCategories: %w", err)
	}

	updated := 0
	for _, rec := range records {
		if rec.Category != "" {
			continue
		}
		rec.Category = c.classifier.Classify(rec.Merchant)
		if err := c.store.Upsert(ctx, rec); err != nil {
			log.Warn().
				Err(err).
				Str("record_id", rec.ID).
				Msg("Failed to backfill category")
			continue
		}
		updated++
	}

	if updated > 0 {
		log.Info().Int("updated", updated).Msg("Category backfill completed")
	}
	return updated, nil
}

// Stats returns a copy of the ingestion counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	skips := make(map[SkipReason]int, len(c.skips))
	for reason, n := range c.skips {
		skips[reason] = n
	}
	return Stats{Inserted: c.inserted, Skipped: skips}
}

func (c *Coordinator) skip(log zerolog.Logger, rawText string, reason SkipReason) Outcome {
	c.mu.Lock()
	c.skips[reason]++
	c.mu.Unlock()

	log.Debug().
		Str("reason", string(reason)).
		Int("text_len", len(rawText)).
		Msg("Skipped message")
	return Outcome{Skipped: reason}
}

func containsAny(lower string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}
