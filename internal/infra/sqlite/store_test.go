package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/switchmart/assistant-engine/internal/domain"
	"github.com/switchmart/assistant-engine/internal/infra/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKnowledgeEntryRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	entry := &domain.KnowledgeEntry{
		ID:        "e1",
		Question:  "Do you ship to Portugal?",
		Answer:    "Yes, within the EU.",
		Category:  domain.CategoryShipping,
		Tags:      []string{"shipping", "eu"},
		Priority:  3,
		Vector:    []float32{0.25, -1.5, 3.75},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateEntry(ctx, entry); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetEntry(ctx, "e1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Question != entry.Question || got.Category != domain.CategoryShipping {
		t.Errorf("unexpected entry: %+v", got)
	}
	if len(got.Vector) != 3 || got.Vector[2] != 3.75 {
		t.Errorf("vector did not survive the blob round-trip: %v", got.Vector)
	}
	if len(got.Tags) != 2 {
		t.Errorf("expected 2 tags, got %v", got.Tags)
	}

	entry.Answer = "Yes, EU-wide, 5-7 days."
	entry.UpdatedAt = now.Add(time.Minute)
	if err := s.UpdateEntry(ctx, entry); err != nil {
		t.Fatalf("update: %v", err)
	}

	entries, err := s.ListEntries(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Answer != entry.Answer {
		t.Errorf("unexpected list result: %+v", entries)
	}

	if err := s.DeleteEntry(ctx, "e1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = s.GetEntry(ctx, "e1")
	var nfErr *domain.ErrNotFound
	if !errors.As(err, &nfErr) {
		t.Fatalf("expected not-found after delete, got %v", err)
	}
}

func TestUpdateEntry_Missing(t *testing.T) {
	s := openStore(t)

	err := s.UpdateEntry(context.Background(), &domain.KnowledgeEntry{ID: "ghost", Category: domain.CategoryGeneral})
	var nfErr *domain.ErrNotFound
	if !errors.As(err, &nfErr) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestGameVectorUpdate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	game := &domain.GameEntry{
		ID:             "g1",
		Title:          "Splatoon 3",
		Description:    "ink shooter",
		Platforms:      []string{"switch"},
		Price:          49.99,
		AvailableStock: 10,
	}
	if err := s.InsertGame(ctx, game); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := s.UpdateGameVector(ctx, "g1", []float32{1, 2, 3}); err != nil {
		t.Fatalf("update vector: %v", err)
	}

	games, err := s.ListGames(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(games) != 1 || len(games[0].Vector) != 3 {
		t.Fatalf("expected stored vector, got %+v", games)
	}

	err = s.UpdateGameVector(ctx, "ghost", []float32{1})
	var nfErr *domain.ErrNotFound
	if !errors.As(err, &nfErr) {
		t.Fatalf("expected not-found for unknown game, got %v", err)
	}
}

func TestConversationRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	rating := 5
	rec := &domain.ConversationRecord{
		ChatID: "chat-1",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "hi", Timestamp: now},
			{Role: domain.RoleAssistant, Content: "hello!", Timestamp: now},
		},
		Metrics: []domain.TurnMetrics{
			{Turn: 1, RAG: &domain.RAGMetrics{Query: "hi", FAQRetrieved: 2, ContextLength: 120}},
		},
		Feedback:  &domain.Feedback{Helpful: true, Rating: &rating, SubmittedAt: now},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateConversation(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetConversation(ctx, "chat-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Messages) != 2 || got.Messages[1].Role != domain.RoleAssistant {
		t.Errorf("messages did not round-trip: %+v", got.Messages)
	}
	if len(got.Metrics) != 1 || got.Metrics[0].RAG.FAQRetrieved != 2 {
		t.Errorf("metrics did not round-trip: %+v", got.Metrics)
	}
	if got.Feedback == nil || *got.Feedback.Rating != 5 {
		t.Errorf("feedback did not round-trip: %+v", got.Feedback)
	}

	got.NeedsReview = true
	if err := s.UpdateConversation(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}

	pending, err := s.ListNeedingReview(ctx)
	if err != nil {
		t.Fatalf("list review: %v", err)
	}
	if len(pending) != 1 || pending[0].ChatID != "chat-1" {
		t.Errorf("expected chat-1 pending review, got %+v", pending)
	}
}

func TestNegotiationRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	rec := &domain.NegotiationRecord{
		NegotiationID: "neg-1",
		Messages:      []domain.Message{{Role: domain.RoleUser, Content: "deal?", Timestamp: now}},
		CartItems:     []domain.CartItem{{GameID: "g1", Title: "Pikmin 4", Quantity: 1, UnitPrice: 59.99}},
		TotalAmount:   59.99,
		CustomerName:  "Sam",
		Status:        domain.NegotiationOngoing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.CreateNegotiation(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec.Status = domain.NegotiationSuccess
	rec.FinalDiscount = 4.5
	rec.RejectionCount = 1
	if err := s.UpdateNegotiation(ctx, rec); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetNegotiation(ctx, "neg-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.NegotiationSuccess || got.FinalDiscount != 4.5 {
		t.Errorf("status update did not round-trip: %+v", got)
	}
	if got.TotalAmount != 59.99 || len(got.CartItems) != 1 {
		t.Errorf("cart snapshot did not round-trip: %+v", got)
	}

	all, err := s.ListNegotiations(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 negotiation, got %d", len(all))
	}
}

func TestLoyalCustomers(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	loyal, err := s.IsLoyalCustomer(ctx, "Sam")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if loyal {
		t.Error("unknown customer must not be loyal")
	}

	if err := s.AddLoyalCustomer(ctx, "Sam"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddLoyalCustomer(ctx, "Sam"); err != nil {
		t.Fatalf("duplicate add must be a no-op: %v", err)
	}

	loyal, err = s.IsLoyalCustomer(ctx, "Sam")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !loyal {
		t.Error("expected Sam to be loyal after add")
	}
}
