package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/switchmart/assistant-engine/internal/domain"
	"github.com/switchmart/assistant-engine/internal/infra/resilience"
)

// ClassifierClient calls the NLU service that extracts the structured
// offer/sentiment signal from a negotiation message.
type ClassifierClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewClassifierClient creates a new ClassifierClient.
func NewClassifierClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *ClassifierClient {
	return &ClassifierClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

type classifyRequest struct {
	Message string `json:"message"`
}

// ClassifyTurn extracts the turn signal from a customer message.
func (c *ClassifierClient) ClassifyTurn(ctx context.Context, message string) (*domain.TurnSignal, error) {
	ctx, span := tracer.Start(ctx, "ClassifierClient.ClassifyTurn")
	defer span.End()

	var signal domain.TurnSignal

	result, err := c.cb.Execute(func() (any, error) {
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := json.Marshal(classifyRequest{Message: message})
			if err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/classify", c.baseURL)
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
				return fmt.Errorf("classifier API returned status %d", resp.StatusCode)
			}

			return json.NewDecoder(resp.Body).Decode(&signal)
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return &signal, nil
	})

	if err != nil {
		return nil, wrapClientErr("classifier", err)
	}
	return result.(*domain.TurnSignal), nil
}
