package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestKindStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindBadRequest, http.StatusBadRequest},
		{KindTooManyRequests, http.StatusTooManyRequests},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.Status())
	}
}

func TestErrorsIsMatchesKind(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", NotFound("book not found", cause))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrForbidden))
	assert.True(t, errors.Is(err, cause))
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))
	assert.Equal(t, KindInternal, From(errors.New("raw")).Kind)
	assert.Equal(t, KindBadRequest, From(BadRequest("bad", nil)).Kind)
}

func TestWrite(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
		wantLogged bool
	}{
		{
			name:       "forbidden keeps message",
			err:        Forbidden("Access denied"),
			wantStatus: http.StatusForbidden,
			wantDetail: "Access denied",
		},
		{
			name:       "internal hides cause",
			err:        Internal("sign token", errors.New("secret key is empty")),
			wantStatus: http.StatusInternalServerError,
			wantDetail: "Internal server error",
			wantLogged: true,
		},
		{
			name:       "unclassified is internal",
			err:        errors.New("db: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantDetail: "Internal server error",
			wantLogged: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.ErrorLevel)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/book/1", nil)

			Write(rec, req, zap.New(core), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var p Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
			assert.Equal(t, tt.wantDetail, p.Detail)
			assert.Equal(t, "/book/1", p.Instance)
			assert.Equal(t, tt.wantLogged, logs.Len() == 1)
		})
	}
}

func TestWrite_RetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)

	Write(rec, req, zap.NewNop(), TooManyRequests("Too many login attempts", 42))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
}
