package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/switchmart/assistant-engine/internal/domain"
)

// ============================================================
// Negotiations — CRUD via PostgREST, cart and messages as jsonb
// ============================================================

// negotiationRow maps the negotiations table columns.
type negotiationRow struct {
	NegotiationID  string            `json:"negotiation_id"`
	Messages       []domain.Message  `json:"messages"`
	CartItems      []domain.CartItem `json:"cart_items"`
	TotalAmount    float64           `json:"total_amount"`
	FinalDiscount  float64           `json:"final_discount"`
	CustomerName   string            `json:"customer_name"`
	RejectionCount int               `json:"rejection_count"`
	Status         string            `json:"status"`
	LoyaltyApplied bool              `json:"loyalty_applied"`
	CreatedAt      string            `json:"created_at"`
	UpdatedAt      string            `json:"updated_at"`
}

func (r *negotiationRow) toDomain() domain.NegotiationRecord {
	return domain.NegotiationRecord{
		NegotiationID:  r.NegotiationID,
		Messages:       r.Messages,
		CartItems:      r.CartItems,
		TotalAmount:    r.TotalAmount,
		FinalDiscount:  r.FinalDiscount,
		CustomerName:   r.CustomerName,
		RejectionCount: r.RejectionCount,
		Status:         domain.NegotiationStatus(r.Status),
		LoyaltyApplied: r.LoyaltyApplied,
		CreatedAt:      parseTimestamp(r.CreatedAt),
		UpdatedAt:      parseTimestamp(r.UpdatedAt),
	}
}

func negotiationColumns(rec *domain.NegotiationRecord) map[string]any {
	return map[string]any{
		"negotiation_id":  rec.NegotiationID,
		"messages":        rec.Messages,
		"cart_items":      rec.CartItems,
		"total_amount":    rec.TotalAmount,
		"final_discount":  rec.FinalDiscount,
		"customer_name":   rec.CustomerName,
		"rejection_count": rec.RejectionCount,
		"status":          string(rec.Status),
		"loyalty_applied": rec.LoyaltyApplied,
		"created_at":      rec.CreatedAt.Format(time.RFC3339),
		"updated_at":      rec.UpdatedAt.Format(time.RFC3339),
	}
}

func (c *Client) GetNegotiation(ctx context.Context, negotiationID string) (*domain.NegotiationRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetNegotiation")
	defer span.End()

	path := fmt.Sprintf("negotiations?negotiation_id=eq.%s&limit=1", negotiationID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var rows []negotiationRow
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode negotiation: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "negotiation", ID: negotiationID}
	}
	rec := rows[0].toDomain()
	return &rec, nil
}

func (c *Client) CreateNegotiation(ctx context.Context, rec *domain.NegotiationRecord) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateNegotiation")
	defer span.End()

	_, err := c.doPost(ctx, "negotiations", negotiationColumns(rec))
	return err
}

func (c *Client) UpdateNegotiation(ctx context.Context, rec *domain.NegotiationRecord) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateNegotiation")
	defer span.End()

	cols := negotiationColumns(rec)
	delete(cols, "negotiation_id")
	delete(cols, "created_at")
	return c.doPatch(ctx, fmt.Sprintf("negotiations?negotiation_id=eq.%s", rec.NegotiationID), cols)
}

func (c *Client) ListNegotiations(ctx context.Context) ([]domain.NegotiationRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListNegotiations")
	defer span.End()

	body, err := c.doRequest(ctx, http.MethodGet, "negotiations?order=created_at.asc")
	if err != nil {
		return nil, err
	}
	if body == nil {
		return []domain.NegotiationRecord{}, nil
	}

	var rows []negotiationRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode negotiations: %w", err)
	}

	out := make([]domain.NegotiationRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}
