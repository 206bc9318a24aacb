package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridianmc/meridian-core/internal/shared"
	_ "github.com/meridianmc/meridian-core/testing"
)

func authedHandlers(t *testing.T, token string) *handlers {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	require.NoError(t, err)
	return &handlers{
		deps:     Dependencies{Logger: slog.Default(), TokenHash: string(hash)},
		validate: validator.New(),
	}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	h := authedHandlers(t, "secret")
	next := h.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not reach the handler")
	}))

	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsWrongToken(t *testing.T) {
	h := authedHandlers(t, "secret")
	next := h.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	req.Header.Set(headerServerID, "lobby-1")
	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRequiresServerIdentity(t *testing.T) {
	h := authedHandlers(t, "secret")
	next := h.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthStampsServerIDIntoContext(t *testing.T) {
	h := authedHandlers(t, "secret")
	var gotServerID string
	next := h.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotServerID = shared.ServerIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set(headerServerID, "lobby-1")
	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "lobby-1", gotServerID)
}

func TestReadyDefaultsToOK(t *testing.T) {
	h := &handlers{deps: Dependencies{Logger: slog.Default()}}
	rec := httptest.NewRecorder()
	h.ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyReportsProbeFailure(t *testing.T) {
	h := &handlers{deps: Dependencies{
		Logger: slog.Default(),
		Ready:  func(context.Context) error { return errors.New("store down") },
	}}
	rec := httptest.NewRecorder()
	h.ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := bearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Basic abc")
	_, ok = bearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Bearer  secret ")
	token, ok := bearerToken(req)
	require.True(t, ok)
	assert.Equal(t, "secret", token)
}
