package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/switchmart/assistant-engine/internal/domain"
	"github.com/switchmart/assistant-engine/internal/infra/resilience"
)

// ReplyClient calls the reply-generation service.
type ReplyClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewReplyClient creates a new ReplyClient.
func NewReplyClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *ReplyClient {
	return &ReplyClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

// Generate requests a reply for the assembled context. Response time
// is measured here, around the whole exchange, and attached to the
// result for the turn metrics.
func (c *ReplyClient) Generate(ctx context.Context, req *domain.ReplyRequest) (*domain.ReplyResult, error) {
	ctx, span := tracer.Start(ctx, "ReplyClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("chat_id", req.ChatID))

	start := time.Now()
	var replyResult domain.ReplyResult

	result, err := c.cb.Execute(func() (any, error) {
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := json.Marshal(req)
			if err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/replies", c.baseURL)
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

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("reply API returned status %d", resp.StatusCode)
			}

			return json.NewDecoder(resp.Body).Decode(&replyResult)
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return &replyResult, nil
	})

	if err != nil {
		return nil, wrapClientErr("reply", err)
	}

	out := result.(*domain.ReplyResult)
	out.ResponseTimeMs = time.Since(start).Milliseconds()
	return out, nil
}
