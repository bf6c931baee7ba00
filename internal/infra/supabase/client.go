// Package supabase provides a PostgREST-backed implementation of the
// engine's repositories: knowledge base, catalog vectors, conversations,
// negotiations and the loyal-customer lookup.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/switchmart/assistant-engine/internal/domain"
	"github.com/switchmart/assistant-engine/internal/infra/resilience"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
	}
}

// do runs one PostgREST exchange through the circuit breaker and the
// retry policy. Transport errors and 5xx responses are retried; 4xx
// responses are permanent. A 404 or 204 yields a nil body and no error.
func (c *Client) do(ctx context.Context, method, path string, payload any, prefer string) ([]byte, error) {
	result, err := c.cb.Execute(func() (any, error) {
		var body []byte
		retryErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			b, err := c.roundTrip(ctx, method, path, payload, prefer)
			if err != nil {
				return err
			}
			body = b
			return nil
		})
		if retryErr != nil {
			return nil, retryErr
		}
		return body, nil
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if result == nil {
		return nil, nil
	}
	return result.([]byte), nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload any, prefer string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, resilience.Permanent(err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, resilience.Permanent(err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceRoleKey))
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("supabase: failed to read response body",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		return nil, nil // no data
	case resp.StatusCode >= 500:
		c.logger.Warn("supabase: server error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, fmt.Errorf("postgrest %s %s returned %d: %s", method, path, resp.StatusCode, string(body))
	case resp.StatusCode >= 300:
		// Client errors will not get better on retry.
		c.logger.Warn("supabase: request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, resilience.Permanent(&domain.ErrExternalService{
			Service: "supabase",
			Err:     fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(body)),
		})
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return body, nil
}

// wrapStoreErr maps breaker and transport failures onto the domain
// error types so handlers can match them with errors.As.
func wrapStoreErr(err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &domain.ErrCircuitOpen{Service: "supabase"}
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.ErrTimeout{Operation: "supabase"}
	}

	var external *domain.ErrExternalService
	if errors.As(err, &external) {
		return err
	}
	return &domain.ErrExternalService{Service: "supabase", Err: err}
}
