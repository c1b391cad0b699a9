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
	"go.uber.org/zap"
)

func newTestFetchManager(t *testing.T, resolver domain.Resolver, limit int) (*FetchManager, *memRepo, string) {
	t.Helper()
	scratch := filepath.Join(t.TempDir(), "scratch")
	config := &domain.FetchConfig{
		ScratchDir:              scratch,
		ConcurrentLimit:         limit,
		Container:               "mp4",
		ProgressPersistInterval: time.Millisecond,
	}
	repo := newMemRepo()
	return NewFetchManager(repo, resolver, NewProgressHub(16), nil, config, zap.NewNop()), repo, scratch
}

func queueFetch(t *testing.T, repo *memRepo, url string, delivery domain.DeliveryMode) *domain.Fetch {
	t.Helper()
	normalized, err := domain.NormalizeURL(url)
	require.NoError(t, err)
	f := domain.NewFetch(url, normalized, domain.Quality{Height: 720}, delivery)
	require.NoError(t, repo.Create(f))
	return f
}

// blockingResolver reports one progress step, then waits for cancellation
func blockingResolver(started chan<- struct{}) *fakeResolver {
	return &fakeResolver{
		download: func(ctx context.Context, req domain.ResolveRequest, hook domain.ResolverHook) (*domain.ResolvedMedia, error) {
			hook(domain.ResolverProgress{Status: domain.ResolverDownloading, DownloadedBytes: 1, TotalBytes: 10})
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
}

func TestFetchManager_SlotDirectories(t *testing.T) {
	fm, _, scratch := newTestFetchManager(t, writingResolver("x", "x.mp4", "x"), 1)
	require.Equal(t, 1, fm.Capacity())
	assert.Equal(t, scratch, fm.orchestrators[0].ScratchDir())

	fm, _, scratch = newTestFetchManager(t, writingResolver("x", "x.mp4", "x"), 3)
	require.Equal(t, 3, fm.Capacity())
	assert.Equal(t, filepath.Join(scratch, "slot-0"), fm.orchestrators[0].ScratchDir())
	assert.Equal(t, filepath.Join(scratch, "slot-2"), fm.orchestrators[2].ScratchDir())
}

func TestFetchManager_ProcessFetch_Disk(t *testing.T) {
	fm, repo, scratch := newTestFetchManager(t, writingResolver("Sample: Clip", "Sample_-_Clip.mp4", "payload"), 1)
	f := queueFetch(t, repo, "https://example.com/watch?v=ABC123&list=PL1", domain.DeliveryDisk)

	require.NoError(t, fm.ProcessFetch(context.Background(), f))

	stored, err := repo.FindByID(f.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Equal(t, "Sample - Clip.mp4", stored.DisplayName)
	assert.Equal(t, int64(7), stored.SizeBytes)
	assert.Equal(t, 1.0, stored.Progress)
	assert.Equal(t, filepath.Join(scratch, "Sample_-_Clip.mp4"), stored.FilePath)

	artifact, err := fm.Artifact(f.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.FilePath, artifact.Path)
	assert.Equal(t, "Sample - Clip.mp4", artifact.DisplayName)
	assert.Equal(t, int64(7), artifact.Size)
}

func TestFetchManager_ProcessFetch_Buffer(t *testing.T) {
	fm, repo, scratch := newTestFetchManager(t, writingResolver("Sample", "Sample.mp4", "payload"), 1)
	f := queueFetch(t, repo, "https://example.com/watch?v=ABC123", domain.DeliveryBuffer)

	require.NoError(t, fm.ProcessFetch(context.Background(), f))

	artifact, err := fm.Artifact(f.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), artifact.Data)
	assert.Empty(t, artifact.Path)
	assert.Empty(t, dirEntries(scratch))
}

func TestFetchManager_ProcessFetch_Failure(t *testing.T) {
	resolver := &fakeResolver{
		download: func(ctx context.Context, req domain.ResolveRequest, hook domain.ResolverHook) (*domain.ResolvedMedia, error) {
			return nil, domain.NewFetchError(domain.KindResolutionFailed, "Video unavailable", nil)
		},
	}
	fm, repo, _ := newTestFetchManager(t, resolver, 1)
	f := queueFetch(t, repo, "https://example.com/watch?v=ABC123", domain.DeliveryDisk)

	err := fm.ProcessFetch(context.Background(), f)
	require.Error(t, err)

	stored, _ := repo.FindByID(f.ID)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, domain.KindResolutionFailed, stored.ErrorKind)
	assert.Contains(t, stored.ErrorMessage, "Video unavailable")

	_, err = fm.Artifact(f.ID)
	assert.ErrorIs(t, err, domain.ErrArtifactNotReady)
}

func TestFetchManager_TerminalEventAfterPersist(t *testing.T) {
	fm, repo, _ := newTestFetchManager(t, writingResolver("Sample", "Sample.mp4", "payload"), 1)
	f := queueFetch(t, repo, "https://example.com/watch?v=ABC123", domain.DeliveryDisk)

	events, unsubscribe := fm.Hub().Subscribe(f.ID)
	defer unsubscribe()

	statusAtTerminal := make(chan domain.FetchStatus, 1)
	go func() {
		for e := range events {
			if e.IsTerminal() {
				statusAtTerminal <- repo.status(f.ID)
			}
		}
	}()

	require.NoError(t, fm.ProcessFetch(context.Background(), f))

	select {
	case status := <-statusAtTerminal:
		assert.Equal(t, domain.StatusCompleted, status)
	case <-time.After(2 * time.Second):
		t.Fatal("no terminal event")
	}
}

func TestFetchManager_SupersededArtifact(t *testing.T) {
	fm, repo, _ := newTestFetchManager(t, writingResolver("Sample", "Sample.mp4", "payload"), 1)
	first := queueFetch(t, repo, "https://example.com/watch?v=1", domain.DeliveryDisk)
	second := queueFetch(t, repo, "https://example.com/watch?v=2", domain.DeliveryDisk)

	require.NoError(t, fm.ProcessFetch(context.Background(), first))
	require.NoError(t, fm.ProcessFetch(context.Background(), second))

	_, err := fm.Artifact(first.ID)
	assert.ErrorIs(t, err, domain.ErrArtifactGone)

	_, err = fm.Artifact(second.ID)
	assert.NoError(t, err)
}

func TestFetchManager_SkipsFetchNoLongerQueued(t *testing.T) {
	resolver := writingResolver("Sample", "Sample.mp4", "payload")
	fm, repo, _ := newTestFetchManager(t, resolver, 1)
	f := queueFetch(t, repo, "https://example.com/watch?v=ABC123", domain.DeliveryDisk)

	require.NoError(t, fm.CancelFetch(f.ID))
	require.NoError(t, fm.ProcessFetch(context.Background(), f))

	assert.Empty(t, resolver.requests)
	assert.Equal(t, domain.StatusCancelled, repo.status(f.ID))
}

func TestFetchManager_CancelRunning(t *testing.T) {
	started := make(chan struct{})
	fm, repo, scratch := newTestFetchManager(t, blockingResolver(started), 1)
	f := queueFetch(t, repo, "https://example.com/watch?v=ABC123", domain.DeliveryDisk)

	done := make(chan error, 1)
	go func() { done <- fm.ProcessFetch(context.Background(), f) }()

	<-started
	require.NoError(t, fm.CancelFetch(f.ID))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not stop")
	}
	assert.Equal(t, domain.StatusCancelled, repo.status(f.ID))
	assert.Empty(t, dirEntries(scratch))

	assert.Error(t, fm.CancelFetch(f.ID), "terminal fetch cannot be cancelled")
}

func TestFetchManager_ShutdownRequeues(t *testing.T) {
	started := make(chan struct{})
	fm, repo, _ := newTestFetchManager(t, blockingResolver(started), 1)
	f := queueFetch(t, repo, "https://example.com/watch?v=ABC123", domain.DeliveryDisk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fm.ProcessFetch(ctx, f) }()

	<-started
	cancel()

	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))
	stored, _ := repo.FindByID(f.ID)
	assert.Equal(t, domain.StatusQueued, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
}

func TestFetchManager_RetryFetch(t *testing.T) {
	fm, repo, _ := newTestFetchManager(t, writingResolver("x", "x.mp4", "x"), 1)

	failed := queueFetch(t, repo, "https://example.com/watch?v=1", domain.DeliveryDisk)
	failed.MarkFailed(domain.NewFetchError(domain.KindNetworkFailed, "reset", nil))
	require.NoError(t, repo.Update(failed))

	retried, err := fm.RetryFetch(failed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, retried.Status)
	assert.Equal(t, 1, retried.RetryCount)
	assert.Equal(t, domain.StatusQueued, repo.status(failed.ID))

	_, err = fm.RetryFetch(failed.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "queued fetch cannot be retried")

	_, err = fm.RetryFetch("missing")
	assert.ErrorIs(t, err, domain.ErrFetchNotFound)
}

func TestFetchManager_DeleteFetch(t *testing.T) {
	fm, repo, _ := newTestFetchManager(t, writingResolver("Sample", "Sample.mp4", "payload"), 1)
	f := queueFetch(t, repo, "https://example.com/watch?v=ABC123", domain.DeliveryDisk)
	require.NoError(t, fm.ProcessFetch(context.Background(), f))

	stored, _ := repo.FindByID(f.ID)
	require.FileExists(t, stored.FilePath)

	require.NoError(t, fm.DeleteFetch(f.ID))
	_, err := repo.FindByID(f.ID)
	assert.ErrorIs(t, err, domain.ErrFetchNotFound)
	_, statErr := os.Stat(stored.FilePath)
	assert.True(t, os.IsNotExist(statErr))

	assert.ErrorIs(t, fm.DeleteFetch(f.ID), domain.ErrFetchNotFound)
}

func TestFetchManager_DeleteRunningFetch(t *testing.T) {
	started := make(chan struct{})
	fm, repo, _ := newTestFetchManager(t, blockingResolver(started), 1)
	f := queueFetch(t, repo, "https://example.com/watch?v=ABC123", domain.DeliveryDisk)

	done := make(chan error, 1)
	go func() { done <- fm.ProcessFetch(context.Background(), f) }()

	<-started
	require.NoError(t, fm.DeleteFetch(f.ID))
	<-done

	_, err := repo.FindByID(f.ID)
	assert.ErrorIs(t, err, domain.ErrFetchNotFound, "finished fetch must not resurrect a deleted record")
}

func TestFetchManager_Probe(t *testing.T) {
	resolver := &fakeResolver{
		probe: func(ctx context.Context, url string) (*domain.MediaInfo, error) {
			assert.Equal(t, "https://example.com/watch?v=ABC123", url)
			return &domain.MediaInfo{
				ID:    "ABC123",
				Title: "Sample",
				Formats: []domain.StreamFormat{
					{ID: "18", Ext: "mp4", Height: 360, HasVideo: true, HasAudio: true},
					{ID: "22", Ext: "mp4", Height: 720, HasVideo: true, HasAudio: true},
					{ID: "137", Ext: "mp4", Height: 1080, HasVideo: true},
				},
			}, nil
		},
	}
	fm, _, _ := newTestFetchManager(t, resolver, 1)

	result, err := fm.Probe(context.Background(), "https://example.com/watch?v=ABC123&index=2", domain.Quality{Height: 480})
	require.NoError(t, err)
	assert.True(t, result.Available)
	assert.Equal(t, "480p", result.Quality)
	assert.Equal(t, "best[ext=mp4][height<=480]/best[ext=mp4]/best", result.Expression)
	require.Len(t, result.Selection.Formats, 1)
	assert.Equal(t, "18", result.Selection.Formats[0].ID)
	assert.False(t, result.Selection.CapExceeded)
}

func TestFetchManager_ProbeInvalidURL(t *testing.T) {
	fm, _, _ := newTestFetchManager(t, &fakeResolver{}, 1)
	_, err := fm.Probe(context.Background(), "not a url", domain.BestQuality)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
