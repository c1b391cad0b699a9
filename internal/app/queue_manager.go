package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/clipfetch/internal/domain"
	"github.com/yourusername/clipfetch/internal/infrastructure"
	"github.com/yourusername/clipfetch/pkg/logger"
)

// activeStatuses are the states in which a submitted URL is not queued again
var activeStatuses = []domain.FetchStatus{domain.StatusQueued, domain.StatusProcessing}

// QueueManager manages the fetch queue
type QueueManager struct {
	repo        domain.FetchRepository
	fetchMgr    *FetchManager
	config      *domain.QueueConfig
	defaults    *domain.FetchConfig
	notifier    *infrastructure.NotificationService
	multiLogger *logger.MultiLogger
	mu          sync.RWMutex
	running     bool
	inFlight    map[string]bool
	cancel      context.CancelFunc
	wake        chan struct{}
	done        chan struct{}
	workerWg    sync.WaitGroup
}

// NewQueueManager creates a new queue manager
func NewQueueManager(
	repo domain.FetchRepository,
	fetchMgr *FetchManager,
	config *domain.QueueConfig,
	defaults *domain.FetchConfig,
	notifier *infrastructure.NotificationService,
	multiLogger *logger.MultiLogger,
) *QueueManager {
	return &QueueManager{
		repo:        repo,
		fetchMgr:    fetchMgr,
		config:      config,
		defaults:    defaults,
		notifier:    notifier,
		multiLogger: multiLogger,
		inFlight:    make(map[string]bool),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// Start resets fetches orphaned by a previous run and starts dispatching
func (qm *QueueManager) Start(ctx context.Context) error {
	qm.mu.Lock()
	if qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager already running")
	}
	qm.running = true
	select {
	case <-qm.done:
		qm.done = make(chan struct{})
	default:
	}
	ctx, qm.cancel = context.WithCancel(ctx)
	qm.mu.Unlock()

	if n, err := qm.repo.ResetOrphanedProcessing(); err != nil {
		qm.logError("Failed to reset orphaned fetches", zap.Error(err))
	} else if n > 0 {
		qm.logEvent("orphaned_fetches_requeued", zap.Int64("count", n))
	}

	qm.logEvent("queue_started", zap.Int("slots", qm.fetchMgr.Capacity()))

	qm.workerWg.Add(1)
	go qm.processQueue(ctx)
	qm.Wake()

	return nil
}

// Stop cancels running fetches, which return to the queue, and waits for workers
func (qm *QueueManager) Stop() error {
	qm.mu.Lock()
	if !qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager not running")
	}
	qm.running = false
	cancel := qm.cancel
	qm.mu.Unlock()

	qm.logEvent("queue_stopped")
	cancel()
	qm.workerWg.Wait()

	return nil
}

// IsRunning returns whether the queue manager is running
func (qm *QueueManager) IsRunning() bool {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return qm.running
}

// WaitForExit returns a channel closed when the dispatcher exits,
// either stopped or after staying empty for EmptyWaitTime
func (qm *QueueManager) WaitForExit() <-chan struct{} {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return qm.done
}

// Wake asks the dispatcher to look at the queue now instead of at the next tick
func (qm *QueueManager) Wake() {
	select {
	case qm.wake <- struct{}{}:
	default:
	}
}

// AddFetch validates and queues a fetch. Empty quality and delivery fall back
// to the configured defaults. An identical queued or running fetch is returned
// instead of a duplicate.
func (qm *QueueManager) AddFetch(sourceURL, quality string, delivery domain.DeliveryMode) (*domain.Fetch, error) {
	if quality == "" {
		quality = qm.defaults.DefaultQuality
	}
	q, err := domain.ParseQuality(quality)
	if err != nil {
		return nil, domain.NewFetchError(domain.KindInvalidRequest, err.Error(), nil)
	}

	if delivery == "" {
		delivery = qm.defaults.DefaultDelivery
	}
	req := domain.FetchRequest{SourceURL: sourceURL, Quality: q, Delivery: delivery}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	url, err := domain.NormalizeURL(sourceURL)
	if err != nil {
		return nil, err
	}

	existing, err := qm.repo.FindByURL(url, activeStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing fetches: %w", err)
	}
	if existing != nil && existing.Quality == q.String() && existing.Delivery == delivery {
		qm.logEvent("fetch_deduplicated",
			zap.String("id", existing.ID),
			zap.String("url", url))
		return existing, nil
	}

	fetch := domain.NewFetch(sourceURL, url, q, delivery)
	if err := qm.repo.Create(fetch); err != nil {
		return nil, fmt.Errorf("failed to create fetch: %w", err)
	}

	qm.logEvent("fetch_added",
		zap.String("id", fetch.ID),
		zap.String("url", url),
		zap.String("quality", fetch.Quality),
		zap.String("delivery", string(delivery)))

	qm.Wake()
	return fetch, nil
}

// RetryFetch requeues a failed or cancelled fetch
func (qm *QueueManager) RetryFetch(id string) (*domain.Fetch, error) {
	fetch, err := qm.fetchMgr.RetryFetch(id)
	if err != nil {
		return nil, err
	}
	qm.logEvent("fetch_retried", zap.String("id", id), zap.Int("retry_count", fetch.RetryCount))
	qm.Wake()
	return fetch, nil
}

// GetFetch retrieves a fetch by ID
func (qm *QueueManager) GetFetch(id string) (*domain.Fetch, error) {
	return qm.repo.FindByID(id)
}

// ListFetches lists all fetches with optional filters
func (qm *QueueManager) ListFetches(filters map[string]interface{}) ([]*domain.Fetch, error) {
	return qm.repo.FindAll(filters)
}

// GetStats returns queue statistics
func (qm *QueueManager) GetStats() (*domain.FetchStats, error) {
	return qm.repo.GetStats()
}

// processQueue dispatches pending fetches while slots are free
func (qm *QueueManager) processQueue(ctx context.Context) {
	defer qm.workerWg.Done()
	defer func() {
		qm.mu.Lock()
		qm.running = false
		close(qm.done)
		qm.mu.Unlock()
	}()

	ticker := time.NewTicker(qm.config.CheckInterval)
	defer ticker.Stop()

	emptyStartTime := time.Time{}
	dispatched := false

	for {
		select {
		case <-ctx.Done():
			qm.logEvent("queue_processor_stopped", zap.String("reason", "context_cancelled"))
			return
		case <-ticker.C:
		case <-qm.wake:
		}

		pending, err := qm.repo.FindPending()
		if err != nil {
			qm.logError("Failed to fetch pending fetches", zap.Error(err))
			continue
		}

		if len(pending) == 0 && qm.inFlightCount() == 0 {
			if emptyStartTime.IsZero() {
				emptyStartTime = time.Now()
				qm.logEvent("queue_empty")
				if dispatched && qm.notifier != nil {
					qm.notifier.NotifyQueueEmpty()
				}
				dispatched = false
			} else if qm.config.AutoExitOnEmpty && time.Since(emptyStartTime) > qm.config.EmptyWaitTime {
				qm.logEvent("queue_auto_exit", zap.String("reason", "empty_timeout"))
				return
			}
			continue
		}

		emptyStartTime = time.Time{}

		for _, fetch := range pending {
			if !qm.tryDispatch(fetch.ID) {
				continue
			}
			dispatched = true

			qm.logEvent("fetch_started",
				zap.String("id", fetch.ID),
				zap.String("url", fetch.URL))

			qm.workerWg.Add(1)
			go func(fetch *domain.Fetch) {
				defer qm.workerWg.Done()
				defer qm.finishDispatch(fetch.ID)

				if err := qm.fetchMgr.ProcessFetch(ctx, fetch); err != nil {
					qm.logEvent("fetch_failed",
						zap.String("id", fetch.ID),
						zap.Error(err))
					qm.logError("Failed to process fetch",
						zap.String("id", fetch.ID),
						zap.Error(err))
					return
				}
				qm.logEvent("fetch_finished", zap.String("id", fetch.ID))
			}(fetch)
		}
	}
}

// tryDispatch reserves a slot for id unless it is already in flight or all slots are taken
func (qm *QueueManager) tryDispatch(id string) bool {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	if qm.inFlight[id] || len(qm.inFlight) >= qm.fetchMgr.Capacity() {
		return false
	}
	qm.inFlight[id] = true
	return true
}

func (qm *QueueManager) finishDispatch(id string) {
	qm.mu.Lock()
	delete(qm.inFlight, id)
	qm.mu.Unlock()
	qm.Wake()
}

func (qm *QueueManager) inFlightCount() int {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return len(qm.inFlight)
}

func (qm *QueueManager) logEvent(event string, fields ...zap.Field) {
	if qm.multiLogger != nil {
		qm.multiLogger.LogQueueEvent(event, fields...)
	}
}

func (qm *QueueManager) logError(msg string, fields ...zap.Field) {
	if qm.multiLogger != nil {
		qm.multiLogger.LogAppError(msg, fields...)
	}
}
