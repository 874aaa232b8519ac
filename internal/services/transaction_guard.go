package services

import (
	"context"
	"sync"
	"time"

	"subscription-sync/pkg/logging"
)

// TransactionDeduper records processed purchase transactions.
// Seen reports whether transactionID was already recorded, recording it when not.
// Forget releases an id whose processing failed.
type TransactionDeduper interface {
	Seen(ctx context.Context, transactionID string) (bool, error)
	Forget(ctx context.Context, transactionID string) error
}

// TransactionGuard is an in-memory TransactionDeduper used when Redis is unavailable.
type TransactionGuard struct {
	processed       map[string]time.Time
	mutex           sync.Mutex
	cleanupInterval time.Duration
	ttl             time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewTransactionGuard creates a guard remembering transactions for ttl.
func NewTransactionGuard(ttl time.Duration) *TransactionGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	interval := time.Hour
	if ttl < interval {
		interval = ttl
	}

	tg := &TransactionGuard{
		processed:       make(map[string]time.Time),
		cleanupInterval: interval,
		ttl:             ttl,
		stopCleanup:     make(chan struct{}),
	}

	go tg.startCleanupRoutine()

	return tg
}

// Seen implements TransactionDeduper.
func (tg *TransactionGuard) Seen(_ context.Context, transactionID string) (bool, error) {
	if transactionID == "" {
		logging.Debugf("Transaction id is empty, skipping duplicate check")
		return false, nil
	}

	tg.mutex.Lock()
	defer tg.mutex.Unlock()

	now := time.Now()
	if processedAt, exists := tg.processed[transactionID]; exists && now.Sub(processedAt) <= tg.ttl {
		logging.Infof("Duplicate purchase callback - transaction_id: %s, first processed at: %v", transactionID, processedAt)
		return true, nil
	}

	tg.processed[transactionID] = now
	return false, nil
}

// Forget removes a transaction so a failed pipeline run can be retried.
func (tg *TransactionGuard) Forget(_ context.Context, transactionID string) error {
	tg.mutex.Lock()
	defer tg.mutex.Unlock()

	delete(tg.processed, transactionID)
	return nil
}

func (tg *TransactionGuard) startCleanupRoutine() {
	ticker := time.NewTicker(tg.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tg.cleanup()
		case <-tg.stopCleanup:
			return
		}
	}
}

func (tg *TransactionGuard) cleanup() {
	tg.mutex.Lock()
	defer tg.mutex.Unlock()

	now := time.Now()
	before := len(tg.processed)

	for id, processedAt := range tg.processed {
		if now.Sub(processedAt) > tg.ttl {
			delete(tg.processed, id)
		}
	}

	if removed := before - len(tg.processed); removed > 0 {
		logging.Debugf("Transaction guard cleanup: removed %d expired entries, remaining: %d", removed, len(tg.processed))
	}
}

// Len returns the number of remembered transactions.
func (tg *TransactionGuard) Len() int {
	tg.mutex.Lock()
	defer tg.mutex.Unlock()
	return len(tg.processed)
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (tg *TransactionGuard) Stop() {
	tg.stopOnce.Do(func() { close(tg.stopCleanup) })
}
