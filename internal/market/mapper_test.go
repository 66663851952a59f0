package market

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polymirror/polymirror/internal/config"
)

func newTestResolver(baseURL string) *Resolver {
	return NewResolver(config.GammaConfig{
		BaseURL:         baseURL,
		TimeoutMs:       2000,
		RatePerMinute:   6000,
		CacheTTLSeconds: 60,
	})
}

func TestResolveParsesMarket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "123", r.URL.Query().Get("clob_token_ids"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"question":"Will it rain?","slug":"will-it-rain","tokens":[
			{"token_id":"123","outcome":"Yes"},
			{"token_id":"456","outcome":"No"}]}]`)
	}))
	defer srv.Close()

	details := newTestResolver(srv.URL).Resolve(context.Background(), "123")
	assert.Equal(t, "Will it rain?", details.Question)
	assert.Equal(t, "Yes", details.Outcome)
	assert.Equal(t, "will-it-rain", details.Slug)
}

func TestResolveServerErrorYieldsPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	details := newTestResolver(srv.URL).Resolve(context.Background(), "123")
	assert.Equal(t, "Unknown", details.Question)
	assert.Equal(t, "Unknown", details.Outcome)
}

func TestResolveEmptyResponseYieldsPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	details := newTestResolver(srv.URL).Resolve(context.Background(), "123")
	assert.Equal(t, "Unknown", details.Question)
}

func TestResolveCachesSuccesses(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"question":"Q","slug":"q","tokens":[{"token_id":"123","outcome":"Yes"}]}]`)
	}))
	defer srv.Close()

	resolver := newTestResolver(srv.URL)
	resolver.Resolve(context.Background(), "123")
	resolver.Resolve(context.Background(), "123")
	assert.Equal(t, int64(1), hits.Load())
}

func TestResolveDoesNotCacheFailures(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	resolver := newTestResolver(srv.URL)
	resolver.Resolve(context.Background(), "123")
	resolver.Resolve(context.Background(), "123")
	assert.Equal(t, int64(2), hits.Load())
}
