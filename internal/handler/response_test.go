package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/josh-kwaku/settlement/internal/domain"
)

func TestAppErrorFor_DomainSentinels(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrInvalidRequest, http.StatusBadRequest},
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrMissingIdempotencyKey, http.StatusBadRequest},
		{domain.ErrOrderAlreadyPaid, http.StatusConflict},
		{domain.ErrInvalidTransition, http.StatusConflict},
		{domain.ErrProviderNotFound, ErrProviderNotFound.Status},
		{domain.ErrProviderUnavailable, ErrProviderUnavailable.Status},
		{domain.ErrProviderTimeout, ErrProviderTimeout.Status},
		{domain.ErrInvalidSignature, http.StatusUnauthorized},
		{domain.ErrStaleCallback, ErrStaleCallback.Status},
		{domain.ErrCartNotFound, http.StatusNotFound},
		{domain.ErrCartEmpty, ErrCartEmpty.Status},
		{domain.ErrDuplicateCheckout, ErrDuplicateCheckout.Status},
	}

	for _, tc := range tests {
		t.Run(tc.err.Error(), func(t *testing.T) {
			got := appErrorFor(fmt.Errorf("Op: %w", tc.err))
			assert.NotSame(t, ErrInternalError, got)
			assert.Equal(t, tc.wantStatus, got.Status)
		})
	}
}
