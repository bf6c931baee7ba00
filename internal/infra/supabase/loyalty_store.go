package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// ============================================================
// Loyal customers — lookup via PostgREST
// ============================================================

// IsLoyalCustomer reports whether name matches a loyal-customer record.
// The match is exact and case-sensitive; the table is curated by staff.
func (c *Client) IsLoyalCustomer(ctx context.Context, name string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.IsLoyalCustomer")
	defer span.End()

	path := fmt.Sprintf("loyal_customers?name=eq.%s&limit=1", url.QueryEscape(name))
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return false, err
	}
	if body == nil {
		return false, nil
	}

	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return false, fmt.Errorf("decode loyal customers: %w", err)
	}
	return len(rows) > 0, nil
}
