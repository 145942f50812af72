package policykit

import (
	"sync"
	"sync/atomic"
	"time"
)

// EngineMetrics provides decision and transaction statistics.
type EngineMetrics struct {
	TotalChecks   int64 `json:"total_checks"`
	GrantedChecks int64 `json:"granted_checks"`
	DeniedChecks  int64 `json:"denied_checks"`
	CacheHits     int64 `json:"cache_hits"`

	TotalTransactions      int64         `json:"total_transactions"`
	SuccessfulTransactions int64         `json:"successful_transactions"`
	FailedTransactions     int64         `json:"failed_transactions"`
	AverageDuration        time.Duration `json:"average_duration"`
	MaxDuration            time.Duration `json:"max_duration"`
	MinDuration            time.Duration `json:"min_duration"`
	LastReset              time.Time     `json:"last_reset"`
}

// transactionMonitor holds the internal engine monitoring state
type transactionMonitor struct {
	checkCount   int64
	grantCount   int64
	denyCount    int64
	cacheHits    int64
	totalCount   int64
	successCount int64
	failureCount int64
	totalDur     int64 // nanoseconds
	maxDur       int64 // nanoseconds
	minDur       int64 // nanoseconds
	lastReset    time.Time
	mu           sync.RWMutex
}

// newTransactionMonitor creates a new engine monitor
func newTransactionMonitor() *transactionMonitor {
	return &transactionMonitor{
		minDur:    int64(time.Hour), // Initialize to a large value
		lastReset: time.Now(),
	}
}

// recordCheck records a decision outcome
func (tm *transactionMonitor) recordCheck(granted bool) {
	atomic.AddInt64(&tm.checkCount, 1)
	if granted {
		atomic.AddInt64(&tm.grantCount, 1)
	} else {
		atomic.AddInt64(&tm.denyCount, 1)
	}
}

// recordCacheHit records a decision served from the cache
func (tm *transactionMonitor) recordCacheHit() {
	atomic.AddInt64(&tm.cacheHits, 1)
}

// recordTransaction records a transaction completion with its duration and success status
func (tm *transactionMonitor) recordTransaction(duration time.Duration, success bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	atomic.AddInt64(&tm.totalCount, 1)
	atomic.AddInt64(&tm.totalDur, int64(duration))

	if success {
		atomic.AddInt64(&tm.successCount, 1)
	} else {
		atomic.AddInt64(&tm.failureCount, 1)
	}

	durationNs := int64(duration)
	for {
		current := atomic.LoadInt64(&tm.maxDur)
		if durationNs <= current || atomic.CompareAndSwapInt64(&tm.maxDur, current, durationNs) {
			break
		}
	}
	for {
		current := atomic.LoadInt64(&tm.minDur)
		if durationNs >= current || atomic.CompareAndSwapInt64(&tm.minDur, current, durationNs) {
			break
		}
	}
}

// getMetrics returns the current engine metrics
func (tm *transactionMonitor) getMetrics() EngineMetrics {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	total := atomic.LoadInt64(&tm.totalCount)
	totalDur := atomic.LoadInt64(&tm.totalDur)

	var avgDuration time.Duration
	if total > 0 {
		avgDuration = time.Duration(totalDur / total)
	}

	return EngineMetrics{
		TotalChecks:            atomic.LoadInt64(&tm.checkCount),
		GrantedChecks:          atomic.LoadInt64(&tm.grantCount),
		DeniedChecks:           atomic.LoadInt64(&tm.denyCount),
		CacheHits:              atomic.LoadInt64(&tm.cacheHits),
		TotalTransactions:      total,
		SuccessfulTransactions: atomic.LoadInt64(&tm.successCount),
		FailedTransactions:     atomic.LoadInt64(&tm.failureCount),
		AverageDuration:        avgDuration,
		MaxDuration:            time.Duration(atomic.LoadInt64(&tm.maxDur)),
		MinDuration:            time.Duration(atomic.LoadInt64(&tm.minDur)),
		LastReset:              tm.lastReset,
	}
}

// reset resets all metrics
func (tm *transactionMonitor) reset() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	atomic.StoreInt64(&tm.checkCount, 0)
	atomic.StoreInt64(&tm.grantCount, 0)
	atomic.StoreInt64(&tm.denyCount, 0)
	atomic.StoreInt64(&tm.cacheHits, 0)
	atomic.StoreInt64(&tm.totalCount, 0)
	atomic.StoreInt64(&tm.successCount, 0)
	atomic.StoreInt64(&tm.failureCount, 0)
	atomic.StoreInt64(&tm.totalDur, 0)
	atomic.StoreInt64(&tm.maxDur, 0)
	atomic.StoreInt64(&tm.minDur, int64(time.Hour))
	tm.lastReset = time.Now()
}

// Metrics returns decision and transaction statistics for monitoring.
func (s *Service) Metrics() EngineMetrics {
	return s.txMonitor.getMetrics()
}

// ResetMetrics clears all accumulated statistics.
func (s *Service) ResetMetrics() {
	s.txMonitor.reset()
}
