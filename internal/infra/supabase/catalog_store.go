package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/switchmart/assistant-engine/internal/domain"
)

// ============================================================
// Game catalog — read + vector maintenance via PostgREST
// ============================================================

// gameRow maps the games table columns.
type gameRow struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	Platforms      []string  `json:"platforms"`
	Price          float64   `json:"price"`
	AvailableStock int       `json:"available_stock"`
	Embedding      []float32 `json:"embedding"`
}

func (r *gameRow) toDomain() domain.GameEntry {
	return domain.GameEntry{
		ID:             r.ID,
		Title:          r.Title,
		Description:    r.Description,
		Category:       r.Category,
		Platforms:      r.Platforms,
		Price:          r.Price,
		AvailableStock: r.AvailableStock,
		Vector:         r.Embedding,
	}
}

func (c *Client) ListGames(ctx context.Context) ([]domain.GameEntry, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListGames")
	defer span.End()

	body, err := c.doRequest(ctx, http.MethodGet, "games?order=title.asc")
	if err != nil {
		return nil, err
	}
	if body == nil {
		return []domain.GameEntry{}, nil
	}

	var rows []gameRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode games: %w", err)
	}

	games := make([]domain.GameEntry, 0, len(rows))
	for i := range rows {
		games = append(games, rows[i].toDomain())
	}
	return games, nil
}

func (c *Client) UpdateGameVector(ctx context.Context, gameID string, vector []float32) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateGameVector")
	defer span.End()

	return c.doPatch(ctx, fmt.Sprintf("games?id=eq.%s", gameID), map[string]any{
		"embedding": vector,
	})
}
