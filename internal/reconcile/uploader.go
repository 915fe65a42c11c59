package reconcile

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/aman124598/upi-tracker/internal/logger"
)

// QueueUploader feeds newly ingested record ids to the reconciler over a
// buffered channel. Enqueue never blocks and never fails the caller: when
// the buffer is full the id is dropped, which is safe because the next
// full sync pushes anything an upload missed.
// Suitable for single-instance deployments; a multi-instance setup would
// migrate this to Cloud Tasks or Pub/Sub.
type QueueUploader struct {
	rec *Reconciler

	idChan    chan string
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	closed    bool

	maxRetries uint64
}

// NewQueueUploader creates an uploader over the reconciler. bufferSize
// bounds how many uploads can be pending before Enqueue starts dropping.
func NewQueueUploader(rec *Reconciler, bufferSize int) *QueueUploader {
	return &QueueUploader{
		rec:        rec,
		idChan:     make(chan string, bufferSize),
		closeChan:  make(chan struct{}),
		maxRetries: 3,
	}
}

// Start launches the worker goroutine. The context carries the logger and
// cancels in-flight uploads on shutdown.
func (u *QueueUploader) Start(ctx context.Context) {
	u.wg.Add(1)
	go u.worker(ctx)
}

// Enqueue implements ingest.Uploader.
func (u *QueueUploader) Enqueue(id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return
	}

	select {
	case u.idChan <- id:
	default:
		// Buffer full: drop, the next sync covers it.
	}
}

// Stop closes the queue and waits for the worker to finish the upload it
// is on. Ids still sitting in the buffer may be dropped; the next full
// sync pushes anything an upload missed.
func (u *QueueUploader) Stop() {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.closed = true
	u.mu.Unlock()

	close(u.closeChan)
	u.wg.Wait()
}

func (u *QueueUploader) worker(ctx context.Context) {
	defer u.wg.Done()
	log := logger.FromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-u.closeChan:
			return
		case id := <-u.idChan:
			op := func() error {
				return u.rec.Upload(ctx, id)
			}
			policy := backoff.WithContext(
				backoff.WithMaxRetries(backoff.NewExponentialBackOff(), u.maxRetries), ctx)
			if err := backoff.Retry(op, policy); err != nil {
				// Already captured in the reconciler's error state; the
				// record stays local until the next sync.
				log.Warn().Err(err).Str("record_id", id).Msg("Upload abandoned after retries")
			}
		}
	}
}
