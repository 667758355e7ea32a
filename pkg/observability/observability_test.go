package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_DisabledWithoutEndpoint(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, &Config{ServiceName: "vinledger"})
	require.NoError(t, err)
	require.NotNil(t, p)

	// Every call must be a safe no-op on an inert provider.
	_, done := p.TrackRequest(ctx, "test")
	done(errors.New("boom"))
	require.NoError(t, p.Shutdown(ctx))
}

func TestMiddleware_PassesThrough(t *testing.T) {
	p, err := New(context.Background(), &Config{})
	require.NoError(t, err)

	h := p.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/collecte/stats", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestMiddleware_ServerErrorCounted(t *testing.T) {
	p, err := New(context.Background(), &Config{})
	require.NoError(t, err)

	h := p.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/collecte/submit", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
