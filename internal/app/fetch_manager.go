package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yourusername/clipfetch/internal/domain"
	"github.com/yourusername/clipfetch/internal/infrastructure"
)

// Artifact is the deliverable of a completed fetch
type Artifact struct {
	DisplayName string
	Path        string // Set for disk delivery
	Data        []byte // Set for buffer delivery
	Size        int64
}

// ProbeResult lists the formats of a URL and what the policy would pick
type ProbeResult struct {
	URL        string            `json:"url"`
	Quality    string            `json:"quality"`
	Expression string            `json:"expression"`
	Media      *domain.MediaInfo `json:"media"`
	Selection  *domain.Selection `json:"selection,omitempty"`
	Available  bool              `json:"available"`
}

// FetchManager runs fetch jobs on a pool of orchestrators, each owning an
// isolated scratch directory, and keeps the job records current.
type FetchManager struct {
	repo          domain.FetchRepository
	resolver      domain.Resolver
	orchestrators []*Orchestrator
	slots         chan int // Indices of idle orchestrators
	hub           *ProgressHub
	notifier      *infrastructure.NotificationService
	config        *domain.FetchConfig
	logger        *zap.Logger

	mu        sync.Mutex
	running   map[string]context.CancelFunc
	deleted   map[string]bool // Running fetches whose record was deleted
	buffers   map[string][]byte
	slotOwner map[int]string // Fetch whose artifact currently occupies each slot
}

// NewFetchManager creates a fetch manager with config.ConcurrentLimit slots
func NewFetchManager(
	repo domain.FetchRepository,
	resolver domain.Resolver,
	hub *ProgressHub,
	notifier *infrastructure.NotificationService,
	config *domain.FetchConfig,
	logger *zap.Logger,
) *FetchManager {
	limit := config.ConcurrentLimit
	if limit < 1 {
		limit = 1
	}

	options := OrchestratorOptions{
		Container:    config.Container,
		MergeStreams: config.MergeStreams,
	}

	fm := &FetchManager{
		repo:      repo,
		resolver:  resolver,
		slots:     make(chan int, limit),
		hub:       hub,
		notifier:  notifier,
		config:    config,
		logger:    logger,
		running:   make(map[string]context.CancelFunc),
		deleted:   make(map[string]bool),
		buffers:   make(map[string][]byte),
		slotOwner: make(map[int]string),
	}

	// One slot stages directly in the scratch root; several get slot-<i> subdirectories
	for i := 0; i < limit; i++ {
		dir := config.ScratchRoot()
		if limit > 1 {
			dir = filepath.Join(dir, fmt.Sprintf("slot-%d", i))
		}
		fm.orchestrators = append(fm.orchestrators, NewOrchestrator(resolver, dir, options, logger))
		fm.slots <- i
	}

	return fm
}

// Capacity returns the number of fetches that can run at once
func (fm *FetchManager) Capacity() int {
	return len(fm.orchestrators)
}

// Hub returns the progress hub fetches publish to
func (fm *FetchManager) Hub() *ProgressHub {
	return fm.hub
}

// ProcessFetch runs one queued job to completion on a free slot. A job that
// is no longer queued once a slot frees up is skipped.
func (fm *FetchManager) ProcessFetch(ctx context.Context, fetch *domain.Fetch) error {
	var slot int
	select {
	case slot = <-fm.slots:
		defer func() { fm.slots <- slot }()
	case <-ctx.Done():
		return ctx.Err()
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	job, err := fm.claim(fetch.ID, slot, cancel)
	if err != nil || job == nil {
		return err
	}
	defer fm.release(job.ID)

	req, err := job.Request()
	if err != nil {
		return fm.finish(job, nil, domain.NewFetchError(domain.KindInvalidRequest, "stored request is invalid", err), nil)
	}

	fm.logger.Info("Processing fetch",
		zap.String("id", job.ID),
		zap.String("url", job.URL),
		zap.Int("slot", slot))
	if fm.notifier != nil {
		fm.notifier.NotifyFetchStarted(job)
	}

	interval := fm.config.ProgressPersistInterval
	if interval <= 0 {
		interval = time.Second
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	var terminal *domain.ProgressEvent
	sink := func(event domain.ProgressEvent) {
		if event.IsTerminal() {
			// Published after the final state is persisted
			terminal = &event
			return
		}
		job.ApplyProgress(event)
		fm.hub.Publish(job.ID, event)
		if limiter.Allow() {
			if err := fm.persist(job); err != nil {
				fm.logger.Warn("Failed to persist progress", zap.String("id", job.ID), zap.Error(err))
			}
		}
	}

	result, fetchErr := fm.orchestrators[slot].fetch(jobCtx, job.ID, req, sink)

	// Shutdown, not a user cancel: hand the job back to the queue
	if fetchErr != nil && ctx.Err() != nil {
		job.Requeue()
		if err := fm.persist(job); err != nil {
			fm.logger.Error("Failed to requeue interrupted fetch", zap.String("id", job.ID), zap.Error(err))
		}
		fm.publishTerminal(job.ID, terminal)
		return ctx.Err()
	}

	return fm.finish(job, result, fetchErr, terminal)
}

// claim marks the fetch processing on slot unless it left the queue meanwhile
func (fm *FetchManager) claim(id string, slot int, cancel context.CancelFunc) (*domain.Fetch, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	job, err := fm.repo.FindByID(id)
	if errors.Is(err, domain.ErrFetchNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load fetch: %w", err)
	}
	if !job.IsPending() {
		return nil, nil
	}

	job.MarkProcessing(slot)
	if err := fm.repo.Update(job); err != nil {
		return nil, fmt.Errorf("failed to update fetch status: %w", err)
	}

	fm.running[id] = cancel
	fm.slotOwner[slot] = id
	return job, nil
}

func (fm *FetchManager) release(id string) {
	fm.mu.Lock()
	delete(fm.running, id)
	if fm.deleted[id] {
		delete(fm.deleted, id)
		delete(fm.buffers, id)
	}
	fm.mu.Unlock()
}

// persist saves a running job unless its record was deleted meanwhile
func (fm *FetchManager) persist(job *domain.Fetch) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.deleted[job.ID] {
		return nil
	}
	return fm.repo.Update(job)
}

// finish records the outcome, then tells watchers
func (fm *FetchManager) finish(job *domain.Fetch, result *domain.FetchResult, fetchErr error, terminal *domain.ProgressEvent) error {
	switch {
	case fetchErr == nil:
		job.MarkCompleted(result)
		if result.Data != nil {
			fm.mu.Lock()
			fm.buffers[job.ID] = result.Data
			fm.mu.Unlock()
		}
	case errors.Is(fetchErr, domain.ErrCancelled):
		job.MarkCancelled()
	default:
		job.MarkFailed(fetchErr)
	}

	if err := fm.persist(job); err != nil {
		fm.logger.Error("Failed to update fetch status", zap.String("id", job.ID), zap.Error(err))
	}

	if terminal == nil {
		terminal = &domain.ProgressEvent{Phase: domain.PhaseFinished}
		if fetchErr != nil {
			terminal = &domain.ProgressEvent{Phase: domain.PhaseFailed, Message: fetchErr.Error()}
		}
	}
	fm.publishTerminal(job.ID, terminal)

	switch {
	case fetchErr == nil:
		fm.logger.Info("Fetch completed",
			zap.String("id", job.ID),
			zap.String("display_name", job.DisplayName),
			zap.Int64("size", job.SizeBytes))
		if fm.notifier != nil {
			fm.notifier.NotifyFetchCompleted(job)
		}
	case job.Status == domain.StatusCancelled:
		fm.logger.Info("Fetch cancelled", zap.String("id", job.ID))
	default:
		fm.logger.Error("Fetch failed",
			zap.String("id", job.ID),
			zap.String("url", job.URL),
			zap.String("kind", string(job.ErrorKind)),
			zap.Error(fetchErr))
		if fm.notifier != nil {
			fm.notifier.NotifyFetchFailed(job, fetchErr)
		}
	}

	return fetchErr
}

func (fm *FetchManager) publishTerminal(id string, terminal *domain.ProgressEvent) {
	if terminal == nil {
		terminal = &domain.ProgressEvent{Phase: domain.PhaseFailed, Message: "interrupted"}
	}
	fm.hub.Publish(id, *terminal)
}

// CancelFetch stops a running fetch or withdraws a queued one
func (fm *FetchManager) CancelFetch(id string) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if cancel, ok := fm.running[id]; ok {
		cancel()
		fm.logger.Info("Fetch cancellation requested", zap.String("id", id))
		return nil
	}

	fetch, err := fm.repo.FindByID(id)
	if err != nil {
		return err
	}
	if fetch.IsTerminal() {
		return fmt.Errorf("%w: fetch already %s", domain.ErrInvalidTransition, fetch.Status)
	}

	fetch.MarkCancelled()
	if err := fm.repo.Update(fetch); err != nil {
		return fmt.Errorf("failed to update fetch: %w", err)
	}
	fm.hub.Publish(id, domain.ProgressEvent{Phase: domain.PhaseFailed, Message: "cancelled"})

	fm.logger.Info("Fetch cancelled", zap.String("id", id))
	return nil
}

// RetryFetch puts a failed or cancelled fetch back into the queue
func (fm *FetchManager) RetryFetch(id string) (*domain.Fetch, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	fetch, err := fm.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if !fetch.CanRetry() {
		return nil, fmt.Errorf("%w: fetch cannot be retried while %s", domain.ErrInvalidTransition, fetch.Status)
	}

	fetch.ResetForRetry()
	if err := fm.repo.Update(fetch); err != nil {
		return nil, fmt.Errorf("failed to update fetch: %w", err)
	}

	fm.logger.Info("Fetch queued for retry", zap.String("id", id), zap.Int("retry_count", fetch.RetryCount))
	return fetch, nil
}

// DeleteFetch cancels a running fetch, drops its artifact and removes the record
func (fm *FetchManager) DeleteFetch(id string) error {
	fm.mu.Lock()
	if cancel, ok := fm.running[id]; ok {
		fm.deleted[id] = true
		cancel()
	}
	delete(fm.buffers, id)
	fetch, err := fm.repo.FindByID(id)
	if err == nil && fetch.Status == domain.StatusCompleted && fetch.FilePath != "" && fm.slotOwner[fetch.Slot] == id {
		if rmErr := os.Remove(fetch.FilePath); rmErr != nil && !os.IsNotExist(rmErr) {
			fm.logger.Warn("Failed to remove artifact", zap.String("path", fetch.FilePath), zap.Error(rmErr))
		}
		delete(fm.slotOwner, fetch.Slot)
	}
	fm.mu.Unlock()

	if err != nil {
		return err
	}
	return fm.repo.Delete(id)
}

// Artifact returns the deliverable of a completed fetch
func (fm *FetchManager) Artifact(id string) (*Artifact, error) {
	fetch, err := fm.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if fetch.Status != domain.StatusCompleted {
		return nil, domain.ErrArtifactNotReady
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fetch.Delivery == domain.DeliveryBuffer {
		data, ok := fm.buffers[id]
		if !ok {
			return nil, domain.ErrArtifactGone
		}
		return &Artifact{DisplayName: fetch.DisplayName, Data: data, Size: int64(len(data))}, nil
	}

	if owner, ok := fm.slotOwner[fetch.Slot]; ok && owner != id {
		return nil, domain.ErrArtifactGone
	}
	info, err := os.Stat(fetch.FilePath)
	if err != nil || !info.Mode().IsRegular() {
		return nil, domain.ErrArtifactGone
	}
	return &Artifact{DisplayName: fetch.DisplayName, Path: fetch.FilePath, Size: info.Size()}, nil
}

// Probe lists the formats of a URL and evaluates the format policy against them
func (fm *FetchManager) Probe(ctx context.Context, sourceURL string, quality domain.Quality) (*ProbeResult, error) {
	url, err := domain.NormalizeURL(sourceURL)
	if err != nil {
		return nil, err
	}

	media, err := fm.resolver.Probe(ctx, url)
	if err != nil {
		return nil, err
	}

	policy := domain.NewFormatPolicy(quality, fm.config.Container, fm.config.MergeStreams)
	selection, ok := policy.Select(media.Formats)
	return &ProbeResult{
		URL:        url,
		Quality:    quality.String(),
		Expression: policy.Expression(),
		Media:      media,
		Selection:  selection,
		Available:  ok,
	}, nil
}
