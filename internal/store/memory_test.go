package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aman124598/upi-tracker/internal/domain"
)

func newTestRecord(t *testing.T, amount, merchant string) *domain.TransactionRecord {
	t.Helper()
	rec, err := domain.NewRecord(
		decimal.RequireFromString(amount), merchant,
		domain.OriginGPay, domain.CaptureMessage, time.Now(),
	)
	require.NoError(t, err)
	return rec
}

func TestMemoryInsertAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	rec := newTestRecord(t, "450.00", "zomato")
	id, err := m.Insert(ctx, rec)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, got.EquivalentTo(rec))

	// Stored copy must not alias the caller's pointer.
	got.Merchant = "mutated"
	again, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "zomato", again.Merchant)
}

func TestMemoryInsertRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Insert(ctx, nil)
	require.Error(t, err)

	bad := newTestRecord(t, "10", "shop")
	bad.Amount = decimal.Zero
	_, err = m.Insert(ctx, bad)
	require.Error(t, err)
}

func TestMemoryGetMissing(t *testing.T) {
	m := NewMemory()
	_, err := m.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.Insert(ctx, newTestRecord(t, "100", "shop"))
	require.NoError(t, err)

	category := domain.CategoryFood
	require.NoError(t, m.Update(ctx, id, domain.RecordPatch{Category: &category}))

	got, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.CategoryFood, got.Category)

	require.ErrorIs(t, m.Update(ctx, "missing", domain.RecordPatch{}), ErrNotFound)
}

func TestMemoryDeleteLeavesTombstone(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.Insert(ctx, newTestRecord(t, "100", "shop"))
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, id))
	_, err = m.Get(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	ids, err := m.Tombstones(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{id}, ids)

	require.NoError(t, m.ClearTombstone(ctx, id))
	ids, err = m.Tombstones(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)

	require.ErrorIs(t, m.Delete(ctx, id), ErrNotFound)
}

func TestMemoryResetTombstonesEverything(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id1, err := m.Insert(ctx, newTestRecord(t, "1", "a"))
	require.NoError(t, err)
	id2, err := m.Insert(ctx, newTestRecord(t, "2", "b"))
	require.NoError(t, err)

	require.NoError(t, m.Reset(ctx))

	all, err := m.QueryAll(ctx)
	require.NoError(t, err)
	require.Empty(t, all)

	ids, err := m.Tombstones(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{id1, id2}, ids)
}

func TestMemoryQueryAllOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	base := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	for i, day := range []int{3, 1, 2} {
		rec := newTestRecord(t, "10", "shop")
		rec.OccurredAt = base.AddDate(0, 0, day)
		_, err := m.Insert(ctx, rec)
		require.NoError(t, err, "record %d", i)
	}

	all, err := m.QueryAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		require.False(t, all[i].OccurredAt.After(all[i-1].OccurredAt),
			"records must be ordered newest first")
	}
}

func TestMemoryHasDuplicate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	rec := newTestRecord(t, "450", "zomato")
	rec.ExternalRef = "433847362847"
	rec.RawText = "Rs 450 debited. Ref 433847362847."
	_, err := m.Insert(ctx, rec)
	require.NoError(t, err)

	dup, err := m.HasDuplicate(ctx, "433847362847", "different text")
	require.NoError(t, err)
	require.True(t, dup, "matching reference is a duplicate")

	dup, err = m.HasDuplicate(ctx, "999999999999", rec.RawText)
	require.NoError(t, err)
	require.False(t, dup, "a distinct reference is never a duplicate, even with equal text")

	dup, err = m.HasDuplicate(ctx, "", rec.RawText)
	require.NoError(t, err)
	require.True(t, dup, "verbatim text without a reference is a duplicate")

	dup, err = m.HasDuplicate(ctx, "", "some other text")
	require.NoError(t, err)
	require.False(t, dup)
}

func TestMemoryMarkSynced(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.Insert(ctx, newTestRecord(t, "10", "shop"))
	require.NoError(t, err)

	at := time.Now()
	require.NoError(t, m.MarkSynced(ctx, id, at))

	got, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.SyncedAt)
	require.True(t, got.SyncedAt.Equal(at))

	// Record deleted between upload and confirmation: not an error.
	require.NoError(t, m.MarkSynced(ctx, "gone", at))
}

func TestMemoryOnChange(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var events []ChangeEvent
	unsubscribe := m.OnChange(func(ev ChangeEvent) {
		events = append(events, ev)
	})

	id, err := m.Insert(ctx, newTestRecord(t, "10", "shop"))
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, id))

	require.Len(t, events, 2)
	require.Equal(t, ChangeInserted, events[0].Kind)
	require.Equal(t, id, events[0].ID)
	require.NotNil(t, events[0].Record)
	require.Equal(t, ChangeDeleted, events[1].Kind)
	require.Nil(t, events[1].Record)

	unsubscribe()
	_, err = m.Insert(ctx, newTestRecord(t, "20", "other"))
	require.NoError(t, err)
	require.Len(t, events, 2, "no events after unsubscribe")
}
