package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/clipfetch/internal/domain"
)

func newTestOrchestrator(t *testing.T, resolver domain.Resolver) (*Orchestrator, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "scratch")
	return NewOrchestrator(resolver, dir, OrchestratorOptions{}, nil), dir
}

func diskRequest(url string, height int) domain.FetchRequest {
	return domain.FetchRequest{SourceURL: url, Quality: domain.Quality{Height: height}, Delivery: domain.DeliveryDisk}
}

func TestOrchestrator_NormalizesURLAndCapsHeight(t *testing.T) {
	resolver := writingResolver("Sample", "Sample.mp4", "data")
	o, _ := newTestOrchestrator(t, resolver)

	_, err := o.Fetch(context.Background(), diskRequest("https://example.com/watch?v=ABC123&list=PL1&index=4", 720), nil)
	require.NoError(t, err)

	req := resolver.lastRequest()
	assert.Equal(t, "https://example.com/watch?v=ABC123", req.URL)
	assert.Equal(t, "best[ext=mp4][height<=720]/best[ext=mp4]/best", req.Format)
	assert.Equal(t, DefaultOutputTemplate, req.OutputTemplate)
}

func TestOrchestrator_SuccessEventOrder(t *testing.T) {
	o, dir := newTestOrchestrator(t, writingResolver("Live: Part 1", "Live_-_Part_1.mp4", "0123456789"))
	rec := &eventRecorder{}

	result, err := o.Fetch(context.Background(), diskRequest("https://example.com/watch?v=ABC123", 0), rec.sink)
	require.NoError(t, err)

	assert.Equal(t, []domain.ProgressPhase{
		domain.PhaseDownloading,
		domain.PhaseDownloading,
		domain.PhaseFinished,
	}, rec.phases())

	first := rec.events[0]
	require.NotNil(t, first.Fraction)
	assert.InDelta(t, 0.5, *first.Fraction, 1e-9)
	assert.Equal(t, "1.0KiB/s", first.Speed)
	assert.Equal(t, "00:01", first.ETA)

	// The resolver's own "finished" is only a stream boundary
	require.NotNil(t, rec.events[1].Fraction)
	assert.Equal(t, 1.0, *rec.events[1].Fraction)

	assert.Equal(t, filepath.Join(dir, "Live_-_Part_1.mp4"), result.Path)
	assert.Equal(t, "Live - Part 1.mp4", result.DisplayName)
	assert.Equal(t, int64(10), result.Size)
	assert.Nil(t, result.Data)
}

func TestOrchestrator_LocatesChangedExtension(t *testing.T) {
	resolver := &fakeResolver{
		download: func(ctx context.Context, req domain.ResolveRequest, hook domain.ResolverHook) (*domain.ResolvedMedia, error) {
			require.NoError(t, os.WriteFile(filepath.Join(req.OutputDir, "video_temp.mkv"), []byte("mkv"), 0644))
			return &domain.ResolvedMedia{Title: "video_temp", Path: filepath.Join(req.OutputDir, "video_temp.mp4")}, nil
		},
	}
	o, dir := newTestOrchestrator(t, resolver)

	result, err := o.Fetch(context.Background(), diskRequest("https://example.com/watch?v=ABC123", 720), nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "video_temp.mkv"), result.Path)
	assert.Equal(t, "video_temp.mkv", result.DisplayName)
}

func TestOrchestrator_LocatesMergedOutputFromStreamTarget(t *testing.T) {
	resolver := &fakeResolver{
		download: func(ctx context.Context, req domain.ResolveRequest, hook domain.ResolverHook) (*domain.ResolvedMedia, error) {
			hook(domain.ResolverProgress{Status: domain.ResolverDownloading, DownloadedBytes: 1, TotalBytes: 2,
				Filename: filepath.Join(req.OutputDir, "Clip.f137.mp4")})
			require.NoError(t, os.WriteFile(filepath.Join(req.OutputDir, "Clip.f137.mp4.part"), []byte("x"), 0644))
			require.NoError(t, os.WriteFile(filepath.Join(req.OutputDir, "Clip.webm"), []byte("merged"), 0644))
			return &domain.ResolvedMedia{}, nil
		},
	}
	o, dir := newTestOrchestrator(t, resolver)

	result, err := o.Fetch(context.Background(), diskRequest("https://example.com/watch?v=ABC123", 0), nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Clip.webm"), result.Path)
	assert.Equal(t, "Clip.webm", result.DisplayName)
}

func TestOrchestrator_AcceptsReportedPathWithFormatLikeStem(t *testing.T) {
	o, dir := newTestOrchestrator(t, writingResolver("Shot at f.16", "Shot_at.f16.mp4", "frames"))

	result, err := o.Fetch(context.Background(), diskRequest("https://example.com/watch?v=ABC123", 0), nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Shot_at.f16.mp4"), result.Path)
	assert.Equal(t, "Shot at f.16.mp4", result.DisplayName)
	assert.Equal(t, int64(6), result.Size)
}

func TestOrchestrator_ClearsPreviousArtifact(t *testing.T) {
	o, dir := newTestOrchestrator(t, writingResolver("New", "New.mp4", "new"))
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Old.mp4"), []byte("old"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "leftover"), 0755))

	_, err := o.Fetch(context.Background(), diskRequest("https://example.com/watch?v=ABC123", 0), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"New.mp4"}, dirEntries(dir))
}

func TestOrchestrator_ResolutionFailureLeavesScratchEmpty(t *testing.T) {
	resolver := &fakeResolver{
		download: func(ctx context.Context, req domain.ResolveRequest, hook domain.ResolverHook) (*domain.ResolvedMedia, error) {
			require.NoError(t, os.WriteFile(filepath.Join(req.OutputDir, "Private.mp4.part"), []byte("x"), 0644))
			return nil, domain.NewFetchError(domain.KindResolutionFailed, "Private video", nil)
		},
	}
	o, dir := newTestOrchestrator(t, resolver)
	rec := &eventRecorder{}

	_, err := o.Fetch(context.Background(), diskRequest("https://example.com/watch?v=ABC123", 720), rec.sink)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrResolutionFailed))
	assert.Contains(t, err.Error(), "Private video")

	assert.Empty(t, dirEntries(dir))
	assert.Equal(t, []domain.ProgressPhase{domain.PhaseFailed}, rec.phases())
	assert.Contains(t, rec.last().Message, "Private video")
}

func TestOrchestrator_UnclassifiedErrors(t *testing.T) {
	plain := errors.New("exit status 1")

	beforeTransfer := &fakeResolver{
		download: func(ctx context.Context, req domain.ResolveRequest, hook domain.ResolverHook) (*domain.ResolvedMedia, error) {
			return nil, plain
		},
	}
	o, _ := newTestOrchestrator(t, beforeTransfer)
	_, err := o.Fetch(context.Background(), diskRequest("https://example.com/watch?v=ABC123", 0), nil)
	assert.True(t, errors.Is(err, domain.ErrResolutionFailed))
	assert.True(t, errors.Is(err, plain))

	duringTransfer := &fakeResolver{
		download: func(ctx context.Context, req domain.ResolveRequest, hook domain.ResolverHook) (*domain.ResolvedMedia, error) {
			hook(domain.ResolverProgress{Status: domain.ResolverDownloading, DownloadedBytes: 1})
			return nil, plain
		},
	}
	o, _ = newTestOrchestrator(t, duringTransfer)
	_, err = o.Fetch(context.Background(), diskRequest("https://example.com/watch?v=ABC123", 0), nil)
	assert.True(t, errors.Is(err, domain.ErrNetworkFailed))
}

func TestOrchestrator_ArtifactMissing(t *testing.T) {
	resolver := &fakeResolver{
		download: func(ctx context.Context, req domain.ResolveRequest, hook domain.ResolverHook) (*domain.ResolvedMedia, error) {
			return &domain.ResolvedMedia{Title: "Ghost", Path: filepath.Join(req.OutputDir, "Ghost.mp4")}, nil
		},
	}
	o, _ := newTestOrchestrator(t, resolver)
	rec := &eventRecorder{}

	_, err := o.Fetch(context.Background(), diskRequest("https://example.com/watch?v=ABC123", 0), rec.sink)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrArtifactMissing))
	assert.Equal(t, []domain.ProgressPhase{domain.PhaseFailed}, rec.phases())
}

func TestOrchestrator_BufferDelivery(t *testing.T) {
	o, dir := newTestOrchestrator(t, writingResolver("Sample", "Sample.mp4", "payload"))

	req := diskRequest("https://example.com/watch?v=ABC123", 480)
	req.Delivery = domain.DeliveryBuffer
	result, err := o.Fetch(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Equal(t, []byte("payload"), result.Data)
	assert.Equal(t, int64(7), result.Size)
	assert.Empty(t, result.Path)
	assert.Equal(t, "Sample.mp4", result.DisplayName)
	assert.Empty(t, dirEntries(dir))
}

func TestOrchestrator_InvalidRequest(t *testing.T) {
	resolver := writingResolver("x", "x.mp4", "x")
	o, dir := newTestOrchestrator(t, resolver)
	rec := &eventRecorder{}

	_, err := o.Fetch(context.Background(), diskRequest("ftp://example.com/file", 0), rec.sink)
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
	assert.Empty(t, resolver.requests)
	assert.Equal(t, []domain.ProgressPhase{domain.PhaseFailed}, rec.phases())

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestOrchestrator_Cancellation(t *testing.T) {
	started := make(chan struct{})
	resolver := &fakeResolver{
		download: func(ctx context.Context, req domain.ResolveRequest, hook domain.ResolverHook) (*domain.ResolvedMedia, error) {
			assert.NoError(t, os.WriteFile(filepath.Join(req.OutputDir, "Clip.mp4.part"), []byte("x"), 0644))
			hook(domain.ResolverProgress{Status: domain.ResolverDownloading, DownloadedBytes: 1, TotalBytes: 10})
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	o, dir := newTestOrchestrator(t, resolver)
	rec := &eventRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := o.Fetch(ctx, diskRequest("https://example.com/watch?v=ABC123", 0), rec.sink)
		done <- err
	}()

	<-started
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, domain.ErrCancelled))
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not return after cancellation")
	}
	assert.Empty(t, dirEntries(dir))
	assert.Equal(t, domain.PhaseFailed, rec.last().Phase)
}

func TestOrchestrator_SerializesFetches(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	resolver := &fakeResolver{
		download: func(ctx context.Context, req domain.ResolveRequest, hook domain.ResolverHook) (*domain.ResolvedMedia, error) {
			entered <- struct{}{}
			<-release
			path := filepath.Join(req.OutputDir, "Clip.mp4")
			assert.NoError(t, os.WriteFile(path, []byte("x"), 0644))
			return &domain.ResolvedMedia{Title: "Clip", Path: path}, nil
		},
	}
	o, _ := newTestOrchestrator(t, resolver)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := o.Fetch(context.Background(), diskRequest("https://example.com/watch?v=ABC123", 0), nil)
			errs <- err
		}()
	}

	<-entered
	select {
	case <-entered:
		t.Fatal("second fetch entered the resolver while the first was running")
	case <-time.After(100 * time.Millisecond):
	}

	release <- struct{}{}
	<-entered
	release <- struct{}{}
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
}

func TestTranslateProgress_UsesEstimate(t *testing.T) {
	event, ok := translateProgress(domain.ResolverProgress{
		Status:             domain.ResolverDownloading,
		DownloadedBytes:    25,
		TotalBytesEstimate: 100,
	})
	require.True(t, ok)
	require.NotNil(t, event.Fraction)
	assert.InDelta(t, 0.25, *event.Fraction, 1e-9)
	assert.Equal(t, int64(100), event.TotalBytes)

	event, ok = translateProgress(domain.ResolverProgress{Status: domain.ResolverDownloading, DownloadedBytes: 25})
	require.True(t, ok)
	assert.Nil(t, event.Fraction)

	_, ok = translateProgress(domain.ResolverProgress{Status: domain.ResolverError})
	assert.False(t, ok)
}
