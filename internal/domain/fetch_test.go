package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetch() *Fetch {
	return NewFetch("https://example.com/watch?v=ABC123&list=PL1", "https://example.com/watch?v=ABC123",
		Quality{Height: 720}, DeliveryDisk)
}

func TestNewFetch(t *testing.T) {
	fetch := newTestFetch()

	assert.NotEmpty(t, fetch.ID)
	assert.Equal(t, "https://example.com/watch?v=ABC123&list=PL1", fetch.SourceURL)
	assert.Equal(t, "https://example.com/watch?v=ABC123", fetch.URL)
	assert.Equal(t, "720p", fetch.Quality)
	assert.Equal(t, DeliveryDisk, fetch.Delivery)
	assert.Equal(t, StatusQueued, fetch.Status)
	assert.True(t, fetch.IsPending())
}

func TestFetch_Request(t *testing.T) {
	fetch := newTestFetch()

	req, err := fetch.Request()
	require.NoError(t, err)
	assert.Equal(t, fetch.URL, req.SourceURL)
	assert.Equal(t, 720, req.Quality.Height)
	assert.Equal(t, DeliveryDisk, req.Delivery)
}

func TestFetch_MarkProcessing(t *testing.T) {
	fetch := newTestFetch()

	fetch.MarkProcessing(2)

	assert.Equal(t, StatusProcessing, fetch.Status)
	assert.Equal(t, 2, fetch.Slot)
	assert.NotNil(t, fetch.StartedAt)
	assert.True(t, fetch.IsProcessing())
}

func TestFetch_ApplyProgress(t *testing.T) {
	fetch := newTestFetch()

	fetch.ApplyProgress(ProgressEvent{Phase: PhaseDownloading, Fraction: Fraction(25, 100), Speed: "1.0MiB/s", ETA: "00:03"})
	assert.InDelta(t, 0.25, fetch.Progress, 1e-9)
	assert.Equal(t, "1.0MiB/s", fetch.Speed)

	// Unknown total keeps the last known fraction
	fetch.ApplyProgress(ProgressEvent{Phase: PhaseDownloading, Speed: "2.0MiB/s"})
	assert.InDelta(t, 0.25, fetch.Progress, 1e-9)
	assert.Equal(t, "2.0MiB/s", fetch.Speed)
}

func TestFetch_MarkCompleted(t *testing.T) {
	fetch := newTestFetch()
	fetch.MarkProcessing(0)

	fetch.MarkCompleted(&FetchResult{Path: "/scratch/My_Video.mp4", DisplayName: "My Video.mp4", Size: 42, Title: "My Video"})

	assert.Equal(t, StatusCompleted, fetch.Status)
	assert.Equal(t, "/scratch/My_Video.mp4", fetch.FilePath)
	assert.Equal(t, "My Video.mp4", fetch.DisplayName)
	assert.Equal(t, int64(42), fetch.SizeBytes)
	assert.Equal(t, 1.0, fetch.Progress)
	assert.NotNil(t, fetch.CompletedAt)
	assert.True(t, fetch.IsTerminal())
}

func TestFetch_MarkFailed(t *testing.T) {
	fetch := newTestFetch()

	fetch.MarkFailed(NewFetchError(KindResolutionFailed, "Private video", nil))
	assert.Equal(t, StatusFailed, fetch.Status)
	assert.Equal(t, KindResolutionFailed, fetch.ErrorKind)
	assert.Contains(t, fetch.ErrorMessage, "Private video")

	fetch.MarkFailed(errors.New("plain failure"))
	assert.Equal(t, FetchErrorKind(""), fetch.ErrorKind)
	assert.Equal(t, "plain failure", fetch.ErrorMessage)
}

func TestFetch_ResetForRetry(t *testing.T) {
	fetch := newTestFetch()
	fetch.MarkProcessing(0)
	fetch.MarkFailed(NewFetchError(KindNetworkFailed, "connection reset", nil))
	require.True(t, fetch.CanRetry())

	fetch.ResetForRetry()

	assert.Equal(t, StatusQueued, fetch.Status)
	assert.Equal(t, 1, fetch.RetryCount)
	assert.Empty(t, fetch.ErrorKind)
	assert.Empty(t, fetch.ErrorMessage)
	assert.Nil(t, fetch.StartedAt)
	assert.False(t, fetch.CanRetry())
}

func TestFetch_IsTerminal(t *testing.T) {
	fetch := newTestFetch()
	assert.False(t, fetch.IsTerminal())

	for _, status := range []FetchStatus{StatusCompleted, StatusFailed, StatusCancelled} {
		fetch.Status = status
		assert.True(t, fetch.IsTerminal(), status)
	}

	fetch.Status = StatusProcessing
	assert.False(t, fetch.IsTerminal())
}

func TestFetch_MarkCancelled(t *testing.T) {
	fetch := newTestFetch()
	fetch.MarkCancelled()

	assert.Equal(t, StatusCancelled, fetch.Status)
	assert.Equal(t, KindCancelled, fetch.ErrorKind)
	assert.True(t, fetch.CanRetry())
}

func TestValidateStatus(t *testing.T) {
	assert.True(t, ValidateStatus(StatusQueued))
	assert.True(t, ValidateStatus(StatusCancelled))
	assert.False(t, ValidateStatus("paused"))
}

func TestFetch_Requeue(t *testing.T) {
	f := newTestFetch()
	f.MarkProcessing(1)
	f.Progress = 0.5
	f.Speed = "1MiB/s"

	f.Requeue()

	assert.Equal(t, StatusQueued, f.Status)
	assert.Zero(t, f.Progress)
	assert.Empty(t, f.Speed)
	assert.Nil(t, f.StartedAt)
	assert.Equal(t, 0, f.RetryCount)
}
