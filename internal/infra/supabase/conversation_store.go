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
// Conversations — CRUD via PostgREST, turn data as jsonb
// ============================================================

// conversationRow maps the conversations table columns. Messages,
// metrics and feedback live in jsonb columns and unmarshal straight
// into the domain types.
type conversationRow struct {
	ChatID            string               `json:"chat_id"`
	Messages          []domain.Message     `json:"messages"`
	Metrics           []domain.TurnMetrics `json:"metrics"`
	Feedback          *domain.Feedback     `json:"feedback"`
	NeedsReview       bool                 `json:"needs_review"`
	Reviewed          bool                 `json:"reviewed"`
	AdminNotes        string               `json:"admin_notes"`
	ConversationEnded bool                 `json:"conversation_ended"`
	CreatedAt         string               `json:"created_at"`
	UpdatedAt         string               `json:"updated_at"`
}

func (r *conversationRow) toDomain() domain.ConversationRecord {
	return domain.ConversationRecord{
		ChatID:            r.ChatID,
		Messages:          r.Messages,
		Metrics:           r.Metrics,
		Feedback:          r.Feedback,
		NeedsReview:       r.NeedsReview,
		Reviewed:          r.Reviewed,
		AdminNotes:        r.AdminNotes,
		ConversationEnded: r.ConversationEnded,
		CreatedAt:         parseTimestamp(r.CreatedAt),
		UpdatedAt:         parseTimestamp(r.UpdatedAt),
	}
}

func conversationColumns(rec *domain.ConversationRecord) map[string]any {
	return map[string]any{
		"chat_id":            rec.ChatID,
		"messages":           rec.Messages,
		"metrics":            rec.Metrics,
		"feedback":           rec.Feedback,
		"needs_review":       rec.NeedsReview,
		"reviewed":           rec.Reviewed,
		"admin_notes":        rec.AdminNotes,
		"conversation_ended": rec.ConversationEnded,
		"created_at":         rec.CreatedAt.Format(time.RFC3339),
		"updated_at":         rec.UpdatedAt.Format(time.RFC3339),
	}
}

func (c *Client) GetConversation(ctx context.Context, chatID string) (*domain.ConversationRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetConversation")
	defer span.End()

	path := fmt.Sprintf("conversations?chat_id=eq.%s&limit=1", chatID)
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var rows []conversationRow
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode conversation: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "conversation", ID: chatID}
	}
	rec := rows[0].toDomain()
	return &rec, nil
}

func (c *Client) CreateConversation(ctx context.Context, rec *domain.ConversationRecord) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateConversation")
	defer span.End()

	_, err := c.doPost(ctx, "conversations", conversationColumns(rec))
	return err
}

func (c *Client) UpdateConversation(ctx context.Context, rec *domain.ConversationRecord) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateConversation")
	defer span.End()

	cols := conversationColumns(rec)
	delete(cols, "chat_id")
	delete(cols, "created_at")
	return c.doPatch(ctx, fmt.Sprintf("conversations?chat_id=eq.%s", rec.ChatID), cols)
}

func (c *Client) ListNeedingReview(ctx context.Context) ([]domain.ConversationRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListNeedingReview")
	defer span.End()

	path := "conversations?needs_review=eq.true&reviewed=eq.false&order=updated_at.desc"
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return []domain.ConversationRecord{}, nil
	}

	var rows []conversationRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}

	out := make([]domain.ConversationRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}
