package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aman124598/upi-tracker/internal/domain"
	"github.com/aman124598/upi-tracker/internal/remote"
	"github.com/aman124598/upi-tracker/internal/store"
)

func insertRecord(t *testing.T, st store.RecordStore, merchant string) *domain.TransactionRecord {
	t.Helper()
	rec, err := domain.NewRecord(
		decimal.RequireFromString("450.00"), merchant,
		domain.OriginGPay, domain.CaptureMessage, time.Now(),
	)
	require.NoError(t, err)
	rec.Category = domain.CategoryFood
	_, err = st.Insert(context.Background(), rec)
	require.NoError(t, err)
	return rec
}

func TestUploadRoundTripThroughSync(t *testing.T) {
	ctx := context.Background()
	hub := remote.NewHub()

	localA := store.NewMemory()
	recA := New(localA, hub.Client())
	original := insertRecord(t, localA, "zomato")

	require.NoError(t, recA.Upload(ctx, original.ID))

	// The upload stamps SyncedAt locally.
	stamped, err := localA.Get(ctx, original.ID)
	require.NoError(t, err)
	require.NotNil(t, stamped.SyncedAt)

	// A second device syncs and materializes the record field-equal.
	localB := store.NewMemory()
	recB := New(localB, hub.Client())
	require.NoError(t, recB.Sync(ctx))

	got, err := localB.Get(ctx, original.ID)
	require.NoError(t, err)
	require.True(t, got.EquivalentTo(original), "round-tripped record must be field-equal")
}

func TestUploadOfDeletedRecordIsNoOp(t *testing.T) {
	ctx := context.Background()
	local := store.NewMemory()
	r := New(local, remote.NewHub().Client())

	require.NoError(t, r.Upload(ctx, "never-existed"))
}

func TestSyncLastWriterWins(t *testing.T) {
	ctx := context.Background()

	t.Run("remote newer wins locally", func(t *testing.T) {
		hub := remote.NewHub()
		local := store.NewMemory()
		r := New(local, hub.Client())

		rec := insertRecord(t, local, "old merchant")
		newer := rec.Clone()
		newer.Merchant = "new merchant"
		newer.CreatedAt = rec.CreatedAt.Add(time.Minute)
		require.NoError(t, hub.Client().Put(ctx, newer))

		require.NoError(t, r.Sync(ctx))

		got, err := local.Get(ctx, rec.ID)
		require.NoError(t, err)
		require.Equal(t, "new merchant", got.Merchant)
		require.True(t, got.CreatedAt.Equal(newer.CreatedAt))
	})

	t.Run("local newer wins remotely", func(t *testing.T) {
		hub := remote.NewHub()
		local := store.NewMemory()
		r := New(local, hub.Client())

		rec := insertRecord(t, local, "new merchant")
		older := rec.Clone()
		older.Merchant = "old merchant"
		older.CreatedAt = rec.CreatedAt.Add(-time.Minute)
		require.NoError(t, hub.Client().Put(ctx, older))

		require.NoError(t, r.Sync(ctx))

		got, err := hub.Client().Get(ctx, rec.ID)
		require.NoError(t, err)
		require.Equal(t, "new merchant", got.Merchant)

		kept, err := local.Get(ctx, rec.ID)
		require.NoError(t, err)
		require.Equal(t, "new merchant", kept.Merchant)
	})

	t.Run("equal timestamps change nothing", func(t *testing.T) {
		hub := remote.NewHub()
		local := store.NewMemory()
		r := New(local, hub.Client())

		rec := insertRecord(t, local, "merchant")
		require.NoError(t, hub.Client().Put(ctx, rec))

		require.NoError(t, r.Sync(ctx))

		got, err := local.Get(ctx, rec.ID)
		require.NoError(t, err)
		require.True(t, got.EquivalentTo(rec))
	})
}

func TestSyncPropagatesDeletion(t *testing.T) {
	ctx := context.Background()
	hub := remote.NewHub()
	local := store.NewMemory()
	r := New(local, hub.Client())

	rec := insertRecord(t, local, "shop")
	require.NoError(t, r.Upload(ctx, rec.ID))
	require.NoError(t, local.Delete(ctx, rec.ID))

	require.NoError(t, r.Sync(ctx))

	_, err := hub.Client().Get(ctx, rec.ID)
	require.ErrorIs(t, err, remote.ErrNotFound, "deletion must reach the remote")

	_, err = local.Get(ctx, rec.ID)
	require.ErrorIs(t, err, store.ErrNotFound, "the record must not be re-materialized")

	ids, err := local.Tombstones(ctx)
	require.NoError(t, err)
	require.Empty(t, ids, "propagated tombstones are cleared")
}

// gatedProvider blocks inside List until released, so a second sync can
// be attempted while the first is provably in flight. entered is
// buffered so syncs after the release pass straight through instead of
// blocking on a send nobody receives; release is closed once, so every
// later receive returns immediately.
type gatedProvider struct {
	remote.Provider
	entered chan struct{}
	release chan struct{}
}

func (g *gatedProvider) List(ctx context.Context) ([]*domain.TransactionRecord, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Provider.List(ctx)
}

func TestSyncRejectsConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	gated := &gatedProvider{
		Provider: remote.NewHub().Client(),
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	r := New(store.NewMemory(), gated)

	firstDone := make(chan error, 1)
	go func() { firstDone <- r.Sync(ctx) }()

	<-gated.entered
	require.ErrorIs(t, r.Sync(ctx), ErrSyncInProgress)

	close(gated.release)
	require.NoError(t, <-firstDone)

	// The flag is released once the first sync finishes.
	require.NoError(t, r.Sync(ctx))
}

// faultyProvider fails Put while tripped.
type faultyProvider struct {
	remote.Provider
	tripped bool
}

var errRemoteDown = errors.New("remote unreachable")

func (f *faultyProvider) Put(ctx context.Context, rec *domain.TransactionRecord) error {
	if f.tripped {
		return errRemoteDown
	}
	return f.Provider.Put(ctx, rec)
}

func TestUploadFailureIsObservable(t *testing.T) {
	ctx := context.Background()
	faulty := &faultyProvider{Provider: remote.NewHub().Client(), tripped: true}
	local := store.NewMemory()
	r := New(local, faulty)

	rec := insertRecord(t, local, "shop")

	err := r.Upload(ctx, rec.ID)
	require.ErrorIs(t, err, errRemoteDown)
	require.ErrorIs(t, r.Status().LastError, errRemoteDown)

	// Still usable locally, and the next successful upload clears the state.
	faulty.tripped = false
	require.NoError(t, r.Upload(ctx, rec.ID))
	require.NoError(t, r.Status().LastError)
}

func TestSyncRecordFailureWarnsAndContinues(t *testing.T) {
	ctx := context.Background()
	faulty := &faultyProvider{Provider: remote.NewHub().Client(), tripped: true}
	local := store.NewMemory()
	r := New(local, faulty)

	insertRecord(t, local, "a")
	insertRecord(t, local, "b")

	require.NoError(t, r.Sync(ctx), "per-record push failures do not fail the sync call")

	status := r.Status()
	require.ErrorIs(t, status.LastError, errRemoteDown)
	require.False(t, status.LastSyncAt.IsZero())
}

func TestLiveUpdates(t *testing.T) {
	ctx := context.Background()
	hub := remote.NewHub()
	local := store.NewMemory()
	r := New(local, hub.Client())

	stop, err := r.StartLiveUpdates(ctx)
	require.NoError(t, err)
	defer stop()

	other := hub.Client()

	// A foreign write materializes locally.
	foreign, err := domain.NewRecord(
		decimal.RequireFromString("99.00"), "uber",
		domain.OriginPhonePe, domain.CaptureMessage, time.Now(),
	)
	require.NoError(t, err)
	foreign.ID = "foreign-1"
	foreign.Category = domain.CategoryTravel
	require.NoError(t, other.Put(ctx, foreign))

	got, err := local.Get(ctx, "foreign-1")
	require.NoError(t, err)
	require.True(t, got.EquivalentTo(foreign))

	// A stale foreign version loses to the local copy.
	stale := foreign.Clone()
	stale.Merchant = "stale"
	stale.CreatedAt = foreign.CreatedAt.Add(-time.Minute)
	require.NoError(t, other.Put(ctx, stale))

	got, err = local.Get(ctx, "foreign-1")
	require.NoError(t, err)
	require.Equal(t, "uber", got.Merchant)

	// This reconciler's own upload echoes back and must not loop or
	// clobber anything.
	mine := insertRecord(t, local, "swiggy")
	require.NoError(t, r.Upload(ctx, mine.ID))
	kept, err := local.Get(ctx, mine.ID)
	require.NoError(t, err)
	require.NotNil(t, kept.SyncedAt, "local echo must not overwrite the synced stamp")

	// A foreign deletion removes the record without leaving a tombstone.
	require.NoError(t, other.Delete(ctx, "foreign-1"))
	_, err = local.Get(ctx, "foreign-1")
	require.ErrorIs(t, err, store.ErrNotFound)
	ids, err := local.Tombstones(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)
}

type subscribelessProvider struct {
	remote.Provider
}

func (subscribelessProvider) Subscribe(fn func(remote.Event)) (func(), error) {
	return nil, remote.ErrSubscribeUnsupported
}

func TestStartLiveUpdatesUnsupported(t *testing.T) {
	r := New(store.NewMemory(), subscribelessProvider{Provider: remote.NewHub().Client()})
	_, err := r.StartLiveUpdates(context.Background())
	require.ErrorIs(t, err, remote.ErrSubscribeUnsupported)
}

func TestQueueUploader(t *testing.T) {
	ctx := context.Background()
	hub := remote.NewHub()
	local := store.NewMemory()
	r := New(local, hub.Client())

	uploader := NewQueueUploader(r, 8)
	uploader.Start(ctx)
	defer uploader.Stop()

	rec := insertRecord(t, local, "shop")
	uploader.Enqueue(rec.ID)

	reader := hub.Client()
	require.Eventually(t, func() bool {
		_, err := reader.Get(ctx, rec.ID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "enqueued record should reach the remote")
}

func TestQueueUploaderEnqueueAfterStop(t *testing.T) {
	r := New(store.NewMemory(), remote.NewHub().Client())
	uploader := NewQueueUploader(r, 1)
	uploader.Start(context.Background())
	uploader.Stop()

	uploader.Enqueue("id-after-stop") // must not panic or block
	uploader.Stop()                   // idempotent
}
