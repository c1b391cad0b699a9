package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchError_Is(t *testing.T) {
	err := NewFetchError(KindResolutionFailed, "Video unavailable", errors.New("exit status 1"))

	assert.True(t, errors.Is(err, ErrResolutionFailed))
	assert.False(t, errors.Is(err, ErrNetworkFailed))

	wrapped := fmt.Errorf("fetch abc: %w", err)
	assert.True(t, errors.Is(wrapped, ErrResolutionFailed))
	assert.Equal(t, KindResolutionFailed, KindOf(wrapped))
}

func TestFetchError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := NewFetchError(KindNetworkFailed, "transfer interrupted", cause)

	assert.True(t, errors.Is(err, cause))
}

func TestFetchError_Error(t *testing.T) {
	assert.Equal(t, "artifact_missing: no file", NewFetchError(KindArtifactMissing, "no file", nil).Error())
	assert.Equal(t, "cancelled: context canceled", NewFetchError(KindCancelled, "", errors.New("context canceled")).Error())
	assert.Equal(t, "network_failed: HTTP Error 503: boom", NewFetchError(KindNetworkFailed, "HTTP Error 503", errors.New("boom")).Error())
	assert.Equal(t, "invalid_request", ErrInvalidRequest.Error())
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, FetchErrorKind(""), KindOf(errors.New("plain")))
	assert.Equal(t, FetchErrorKind(""), KindOf(nil))
}
