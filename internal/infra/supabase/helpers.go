package supabase

import (
	"context"
	"net/http"
)

// ============================================================
// PostgREST verbs, all funneled through Client.do
// ============================================================

func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	return c.do(ctx, method, path, nil, "return=representation")
}

func (c *Client) doPost(ctx context.Context, table string, data map[string]any) ([]byte, error) {
	return c.do(ctx, http.MethodPost, table, data, "return=representation")
}

func (c *Client) doPatch(ctx context.Context, path string, data map[string]any) error {
	_, err := c.do(ctx, http.MethodPatch, path, data, "return=minimal")
	return err
}

func (c *Client) doDelete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil, "")
	return err
}
