package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yourusername/clipfetch/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrFetchNotFound, http.StatusNotFound},
		{fmt.Errorf("load: %w", domain.ErrFetchNotFound), http.StatusNotFound},
		{domain.NewFetchError(domain.KindInvalidRequest, "bad url", nil), http.StatusBadRequest},
		{fmt.Errorf("%w: already completed", domain.ErrInvalidTransition), http.StatusConflict},
		{domain.ErrArtifactNotReady, http.StatusConflict},
		{domain.ErrArtifactGone, http.StatusGone},
		{domain.NewFetchError(domain.KindResolutionFailed, "private video", nil), http.StatusUnprocessableEntity},
		{domain.NewFetchError(domain.KindNetworkFailed, "connection reset", nil), http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
