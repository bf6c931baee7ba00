package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/switchmart/assistant-engine/internal/domain"
	"github.com/switchmart/assistant-engine/internal/infra/client"
	"github.com/switchmart/assistant-engine/internal/infra/resilience"
)

func testResilienceConfig() resilience.Config {
	return resilience.Config{
		MaxRetries:     2,
		InitialBackoff: 5 * time.Millisecond,
	}
}

func newEmbeddingClient(serverURL string, dimension int) *client.EmbeddingClient {
	return client.NewEmbeddingClient(
		&http.Client{Timeout: 2 * time.Second},
		serverURL,
		dimension,
		resilience.NewCircuitBreaker("embedding-test"),
		testResilienceConfig(),
	)
}

func TestEmbedQuery_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req["mode"] != "query" {
			t.Errorf("expected query mode, got %s", req["mode"])
		}
		json.NewEncoder(w).Encode(map[string]any{"vector": []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	c := newEmbeddingClient(srv.URL, 3)
	vec, err := c.EmbedQuery(context.Background(), "shipping time?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("expected 3-dimensional vector, got %d", len(vec))
	}
}

func TestEmbed_RateLimitNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newEmbeddingClient(srv.URL, 3)
	_, err := c.EmbedQuery(context.Background(), "hello")

	var rlErr *domain.ErrRateLimited
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected rate-limit error, got %v", err)
	}
	if rlErr.RetryAfter != 30*time.Second {
		t.Errorf("expected Retry-After 30s, got %s", rlErr.RetryAfter)
	}
	if calls != 1 {
		t.Errorf("a rate-limited call must not be retried, got %d calls", calls)
	}
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"vector": []float32{0.1, 0.2}})
	}))
	defer srv.Close()

	c := newEmbeddingClient(srv.URL, 768)
	_, err := c.EmbedDocument(context.Background(), "doc")

	var cfgErr *domain.ErrConfiguration
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestEmbed_ServerErrorRetriedThenWrapped(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newEmbeddingClient(srv.URL, 3)
	_, err := c.EmbedQuery(context.Background(), "hello")

	var extErr *domain.ErrExternalService
	if !errors.As(err, &extErr) {
		t.Fatalf("expected external-service error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected initial call plus 2 retries, got %d calls", calls)
	}
}
