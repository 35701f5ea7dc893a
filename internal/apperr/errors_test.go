package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind Kind
		code int
	}{
		{"not configured", fmt.Errorf("upload: %w", ErrNotConfigured), KindConfiguration, http.StatusServiceUnavailable},
		{"unauthenticated", ErrUnauthenticated, KindAuthorization, http.StatusUnauthorized},
		{"denied", ErrPermissionDenied, KindAuthorization, http.StatusForbidden},
		{"transient", Transient("download failed", errors.New("reset by peer")), KindTransient, http.StatusBadGateway},
		{"format", Format("PDF", errors.New("bad xref")), KindFormat, http.StatusUnprocessableEntity},
		{"unsupported", ErrUnsupported, KindFormat, http.StatusUnprocessableEntity},
		{"not found", ErrNotFound, KindNotFound, http.StatusNotFound},
		{"deadline", context.DeadlineExceeded, KindTransient, http.StatusBadGateway},
		{"other", errors.New("boom"), KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, Classify(tc.err))
			assert.Equal(t, tc.code, Status(tc.err))
		})
	}
}

func TestMessageHidesInternalCause(t *testing.T) {
	assert.Equal(t, "Something went wrong.", Message(errors.New("pq: password authentication failed")))
	assert.Equal(t, "download failed", Message(Transient("download failed", errors.New("eof"))))
}

func TestTransientNil(t *testing.T) {
	assert.NoError(t, Transient("x", nil))
	assert.NoError(t, Format("x", nil))
}
