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
// Knowledge base — CRUD via PostgREST
// ============================================================

// knowledgeRow maps the knowledge_entries table columns.
type knowledgeRow struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags"`
	Priority  int       `json:"priority"`
	Embedding []float32 `json:"embedding"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

func (r *knowledgeRow) toDomain() domain.KnowledgeEntry {
	return domain.KnowledgeEntry{
		ID:        r.ID,
		Question:  r.Question,
		Answer:    r.Answer,
		Category:  domain.KnowledgeCategory(r.Category),
		Tags:      r.Tags,
		Priority:  r.Priority,
		Vector:    r.Embedding,
		CreatedAt: parseTimestamp(r.CreatedAt),
		UpdatedAt: parseTimestamp(r.UpdatedAt),
	}
}

func knowledgeColumns(e *domain.KnowledgeEntry) map[string]any {
	return map[string]any{
		"id":         e.ID,
		"question":   e.Question,
		"answer":     e.Answer,
		"category":   string(e.Category),
		"tags":       e.Tags,
		"priority":   e.Priority,
		"embedding":  e.Vector,
		"created_at": e.CreatedAt.Format(time.RFC3339),
		"updated_at": e.UpdatedAt.Format(time.RFC3339),
	}
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, _ = time.Parse("2006-01-02T15:04:05", s)
	}
	return t
}

func (c *Client) ListEntries(ctx context.Context) ([]domain.KnowledgeEntry, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListEntries")
	defer span.End()

	body, err := c.doRequest(ctx, http.MethodGet, "knowledge_entries?order=created_at.asc")
	if err != nil {
		return nil, err
	}
	if body == nil {
		return []domain.KnowledgeEntry{}, nil
	}

	var rows []knowledgeRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode knowledge entries: %w", err)
	}

	entries := make([]domain.KnowledgeEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].toDomain())
	}
	return entries, nil
}

func (c *Client) GetEntry(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetEntry")
	defer span.End()

	path := fmt.Sprintf("knowledge_entries?id=eq.%s&limit=1", id)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var rows []knowledgeRow
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode knowledge entry: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "knowledge_entry", ID: id}
	}
	entry := rows[0].toDomain()
	return &entry, nil
}

func (c *Client) CreateEntry(ctx context.Context, entry *domain.KnowledgeEntry) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateEntry")
	defer span.End()

	_, err := c.doPost(ctx, "knowledge_entries", knowledgeColumns(entry))
	return err
}

func (c *Client) UpdateEntry(ctx context.Context, entry *domain.KnowledgeEntry) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateEntry")
	defer span.End()

	if _, err := c.GetEntry(ctx, entry.ID); err != nil {
		return err
	}

	cols := knowledgeColumns(entry)
	delete(cols, "id")
	delete(cols, "created_at")
	return c.doPatch(ctx, fmt.Sprintf("knowledge_entries?id=eq.%s", entry.ID), cols)
}

func (c *Client) DeleteEntry(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteEntry")
	defer span.End()

	if _, err := c.GetEntry(ctx, id); err != nil {
		return err
	}
	return c.doDelete(ctx, fmt.Sprintf("knowledge_entries?id=eq.%s", id))
}
