// Package client contains HTTP clients for the external collaborators:
// the embedding provider, the reply generator and the turn classifier.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/switchmart/assistant-engine/internal/domain"
	"github.com/switchmart/assistant-engine/internal/infra/resilience"
)

var tracer = otel.Tracer("client")

// EmbeddingClient calls the embedding provider. Concurrent calls are
// bounded by a bulkhead; a catalog reindex must not starve chat turns.
type EmbeddingClient struct {
	httpClient *http.Client
	baseURL    string
	dimension  int
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	cfg        resilience.Config
}

// NewEmbeddingClient creates a new EmbeddingClient. dimension is the
// expected vector size; any other size from the provider is treated as
// a configuration error.
func NewEmbeddingClient(httpClient *http.Client, baseURL string, dimension int, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *EmbeddingClient {
	return &EmbeddingClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		dimension:  dimension,
		cb:         cb,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:        cfg,
	}
}

type embeddingRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
}

type embeddingResponse struct {
	Vector []float32 `json:"vector"`
}

// EmbedQuery embeds text in query mode.
func (c *EmbeddingClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, "query")
}

// EmbedDocument embeds text in document mode.
func (c *EmbeddingClient) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, "document")
}

func (c *EmbeddingClient) embed(ctx context.Context, text, mode string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "EmbeddingClient.embed")
	defer span.End()
	span.SetAttributes(attribute.String("mode", mode))

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.bulkhead.Release()

	var embResp embeddingResponse

	result, err := c.cb.Execute(func() (any, error) {
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := json.Marshal(embeddingRequest{Text: text, Mode: mode})
			if err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/embeddings", c.baseURL)
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			httpReq.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests {
				// Retrying into a rate limit makes it worse; surface
				// immediately and let the caller degrade.
				return resilience.Permanent(&domain.ErrRateLimited{
					Service:    "embedding",
					RetryAfter: retryAfter(resp),
				})
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("embedding API returned status %d", resp.StatusCode)
			}

			if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
				return err
			}
			if len(embResp.Vector) != c.dimension {
				return resilience.Permanent(&domain.ErrConfiguration{
					Setting: "EMBEDDING_DIMENSION",
					Message: fmt.Sprintf("provider returned %d dimensions, expected %d", len(embResp.Vector), c.dimension),
				})
			}
			return nil
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return embResp.Vector, nil
	})

	if err != nil {
		return nil, wrapClientErr("embedding", err)
	}
	return result.([]float32), nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// wrapClientErr maps transport-level failures onto the domain error
// types. Already-typed domain errors pass through unchanged so callers
// can match them with errors.As.
func wrapClientErr(service string, err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &domain.ErrCircuitOpen{Service: service}
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.ErrTimeout{Operation: service}
	}

	var rateLimited *domain.ErrRateLimited
	var configErr *domain.ErrConfiguration
	if errors.As(err, &rateLimited) || errors.As(err, &configErr) {
		return err
	}
	return &domain.ErrExternalService{Service: service, Err: err}
}
