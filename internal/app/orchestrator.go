package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/clipfetch/internal/domain"
)

// DefaultOutputTemplate names the artifact after the media title
const DefaultOutputTemplate = "%(title)s.%(ext)s"

// OrchestratorOptions tune the format policy and output naming
type OrchestratorOptions struct {
	Container      string
	MergeStreams   bool
	OutputTemplate string
}

// Orchestrator runs one fetch at a time against its own scratch directory
type Orchestrator struct {
	resolver   domain.Resolver
	scratchDir string
	options    OrchestratorOptions
	logger     *zap.Logger
	sem        chan struct{}
}

// NewOrchestrator creates an orchestrator staging artifacts in scratchDir
func NewOrchestrator(resolver domain.Resolver, scratchDir string, options OrchestratorOptions, logger *zap.Logger) *Orchestrator {
	if options.OutputTemplate == "" {
		options.OutputTemplate = DefaultOutputTemplate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		resolver:   resolver,
		scratchDir: scratchDir,
		options:    options,
		logger:     logger,
		sem:        make(chan struct{}, 1),
	}
}

// ScratchDir returns the directory holding this orchestrator's artifact
func (o *Orchestrator) ScratchDir() string {
	return o.scratchDir
}

// Fetch resolves and downloads req, reporting progress to sink from the
// calling goroutine. Exactly one finished or failed event ends the sequence.
func (o *Orchestrator) Fetch(ctx context.Context, req domain.FetchRequest, sink domain.ProgressSink) (*domain.FetchResult, error) {
	return o.fetch(ctx, uuid.NewString(), req, sink)
}

func (o *Orchestrator) fetch(ctx context.Context, fetchID string, req domain.FetchRequest, sink domain.ProgressSink) (*domain.FetchResult, error) {
	if sink == nil {
		sink = func(domain.ProgressEvent) {}
	}

	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		return nil, o.reject(sink, domain.NewFetchError(domain.KindCancelled, "fetch cancelled before start", ctx.Err()))
	}

	if err := req.Validate(); err != nil {
		return nil, o.reject(sink, err)
	}
	url, err := domain.NormalizeURL(req.SourceURL)
	if err != nil {
		return nil, o.reject(sink, err)
	}

	if err := o.clearScratch(); err != nil {
		return nil, o.fail(sink, fmt.Errorf("failed to prepare scratch directory: %w", err))
	}

	policy := domain.NewFormatPolicy(req.Quality, o.options.Container, o.options.MergeStreams)
	resolveReq := domain.ResolveRequest{
		URL:            url,
		Format:         policy.Expression(),
		OutputDir:      o.scratchDir,
		OutputTemplate: o.options.OutputTemplate,
		FetchID:        fetchID,
	}

	o.logger.Info("Starting fetch",
		zap.String("id", fetchID),
		zap.String("url", url),
		zap.String("format", resolveReq.Format),
		zap.String("delivery", string(req.Delivery)))

	var lastTarget string
	transferStarted := false
	hook := func(p domain.ResolverProgress) {
		if ctx.Err() != nil {
			return
		}
		if p.Filename != "" {
			lastTarget = p.Filename
		}
		if event, ok := translateProgress(p); ok {
			transferStarted = true
			sink(event)
		}
	}

	media, err := o.resolver.Download(ctx, resolveReq, hook)
	if err != nil {
		return nil, o.fail(sink, classifyResolverError(ctx, err, transferStarted))
	}
	if ctx.Err() != nil {
		return nil, o.fail(sink, domain.NewFetchError(domain.KindCancelled, "fetch cancelled", ctx.Err()))
	}

	path, err := locateArtifact(o.scratchDir, media.Path, lastTarget)
	if err != nil {
		return nil, o.fail(sink, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, o.fail(sink, domain.NewFetchError(domain.KindArtifactMissing, path, err))
	}

	title := media.Title
	if title == "" {
		title = domain.FileStem(path)
	}
	result := &domain.FetchResult{
		Path:        path,
		DisplayName: domain.DisplayFilename(title, path),
		Size:        info.Size(),
		Title:       title,
	}

	if req.Delivery == domain.DeliveryBuffer {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, o.fail(sink, domain.NewFetchError(domain.KindArtifactMissing, "failed to read artifact", err))
		}
		if err := os.Remove(path); err != nil {
			o.logger.Warn("Failed to remove buffered artifact", zap.String("path", path), zap.Error(err))
		}
		result.Path = ""
		result.Data = data
		result.Size = int64(len(data))
	}

	done := 1.0
	sink(domain.ProgressEvent{
		Phase:           domain.PhaseFinished,
		Fraction:        &done,
		DownloadedBytes: result.Size,
		TotalBytes:      result.Size,
	})

	o.logger.Info("Fetch completed",
		zap.String("id", fetchID),
		zap.String("display_name", result.DisplayName),
		zap.Int64("size", result.Size))
	return result, nil
}

// reject ends a fetch that never touched the scratch directory
func (o *Orchestrator) reject(sink domain.ProgressSink, err error) error {
	sink(domain.ProgressEvent{Phase: domain.PhaseFailed, Message: err.Error()})
	return err
}

// fail empties the scratch directory, then emits the failed event
func (o *Orchestrator) fail(sink domain.ProgressSink, err error) error {
	if cerr := o.clearScratch(); cerr != nil {
		o.logger.Warn("Failed to clear scratch directory", zap.String("dir", o.scratchDir), zap.Error(cerr))
	}
	o.logger.Warn("Fetch failed", zap.Error(err))
	sink(domain.ProgressEvent{Phase: domain.PhaseFailed, Message: err.Error()})
	return err
}

// clearScratch creates the scratch directory and removes everything in it
func (o *Orchestrator) clearScratch() error {
	if err := os.MkdirAll(o.scratchDir, 0755); err != nil {
		return err
	}
	entries, err := os.ReadDir(o.scratchDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(o.scratchDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// translateProgress maps resolver progress to an in-progress event. A
// resolver "finished" marks one stream done, not the fetch, so it is
// reported as downloading at fraction 1.
func translateProgress(p domain.ResolverProgress) (domain.ProgressEvent, bool) {
	total := p.TotalBytes
	if total <= 0 {
		total = p.TotalBytesEstimate
	}

	switch p.Status {
	case domain.ResolverDownloading:
		return domain.ProgressEvent{
			Phase:           domain.PhaseDownloading,
			Fraction:        domain.Fraction(p.DownloadedBytes, total),
			DownloadedBytes: p.DownloadedBytes,
			TotalBytes:      total,
			Speed:           p.Speed,
			ETA:             p.ETA,
		}, true
	case domain.ResolverFinished:
		done := 1.0
		downloaded := p.DownloadedBytes
		if downloaded < total {
			downloaded = total
		}
		return domain.ProgressEvent{
			Phase:           domain.PhaseDownloading,
			Fraction:        &done,
			DownloadedBytes: downloaded,
			TotalBytes:      total,
		}, true
	}
	return domain.ProgressEvent{}, false
}

// classifyResolverError makes sure every resolver failure carries a kind
func classifyResolverError(ctx context.Context, err error, transferStarted bool) error {
	if ctx.Err() != nil && !errors.Is(err, domain.ErrCancelled) {
		return domain.NewFetchError(domain.KindCancelled, "fetch cancelled", err)
	}
	if domain.KindOf(err) != "" {
		return err
	}
	if transferStarted {
		return domain.NewFetchError(domain.KindNetworkFailed, "", err)
	}
	return domain.NewFetchError(domain.KindResolutionFailed, "", err)
}

// locateArtifact finds the produced file. The resolver may change the
// extension after predicting the path (remux, merge), so when the predicted
// path is absent the scratch directory is matched by stem: exact first, then
// prefix. With no stem to go on, a lone candidate is accepted.
func locateArtifact(dir, predicted, lastTarget string) (string, error) {
	if predicted != "" && !filepath.IsAbs(predicted) {
		predicted = filepath.Join(dir, predicted)
	}
	if predicted != "" && isRegularFile(predicted) && !domain.IsIncompleteFile(filepath.Base(predicted)) {
		return predicted, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", domain.NewFetchError(domain.KindArtifactMissing, "scratch directory unreadable", err)
	}
	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() || domain.IsPartialArtifact(entry.Name()) {
			continue
		}
		candidates = append(candidates, entry.Name())
	}

	var stems []string
	for _, p := range []string{predicted, lastTarget} {
		if p != "" {
			stems = append(stems, domain.StreamStem(p))
		}
	}

	for _, stem := range stems {
		for _, name := range candidates {
			if domain.FileStem(name) == stem {
				return filepath.Join(dir, name), nil
			}
		}
	}
	for _, stem := range stems {
		if stem == "" {
			continue
		}
		for _, name := range candidates {
			if strings.HasPrefix(name, stem) {
				return filepath.Join(dir, name), nil
			}
		}
	}
	if len(stems) == 0 && len(candidates) == 1 {
		return filepath.Join(dir, candidates[0]), nil
	}

	expected := predicted
	if expected == "" {
		expected = lastTarget
	}
	return "", domain.NewFetchError(domain.KindArtifactMissing,
		fmt.Sprintf("no file matching %q in %s", filepath.Base(expected), dir), nil)
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
