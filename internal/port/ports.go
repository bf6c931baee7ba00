// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/switchmart/assistant-engine/internal/domain"
)

// Embedder converts text into a fixed-dimension dense vector.
// Query and document modes may use different provider parameters, so
// both are exposed. A rate-limit refusal surfaces as
// *domain.ErrRateLimited; a dimension mismatch as *domain.ErrConfiguration.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}

// ReplyGenerator produces the assistant's reply from the assembled
// retrieval context. The engine supplies context and constraints; the
// generator owns the prose.
type ReplyGenerator interface {
	Generate(ctx context.Context, req *domain.ReplyRequest) (*domain.ReplyResult, error)
}

// TurnClassifier is the external NLU collaborator that extracts a
// structured offer/sentiment signal from a negotiation message.
type TurnClassifier interface {
	ClassifyTurn(ctx context.Context, message string) (*domain.TurnSignal, error)
}

// LoyaltyChecker reports whether a customer name matches a known loyal
// customer. Used only for the one-time negotiation floor bonus, never
// for authentication.
type LoyaltyChecker interface {
	IsLoyalCustomer(ctx context.Context, name string) (bool, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// KnowledgeBaseRepository persists FAQ entries, vectors included.
type KnowledgeBaseRepository interface {
	ListEntries(ctx context.Context) ([]domain.KnowledgeEntry, error)
	GetEntry(ctx context.Context, id string) (*domain.KnowledgeEntry, error)
	CreateEntry(ctx context.Context, entry *domain.KnowledgeEntry) error
	UpdateEntry(ctx context.Context, entry *domain.KnowledgeEntry) error
	DeleteEntry(ctx context.Context, id string) error
}

// CatalogRepository reads game entries for retrieval and maintains
// their embedding vectors. All other catalog mutations are owned by
// catalog management, outside this engine.
type CatalogRepository interface {
	ListGames(ctx context.Context) ([]domain.GameEntry, error)
	UpdateGameVector(ctx context.Context, gameID string, vector []float32) error
}

// ConversationRepository persists support-chat records.
type ConversationRepository interface {
	GetConversation(ctx context.Context, chatID string) (*domain.ConversationRecord, error)
	CreateConversation(ctx context.Context, rec *domain.ConversationRecord) error
	UpdateConversation(ctx context.Context, rec *domain.ConversationRecord) error
	ListNeedingReview(ctx context.Context) ([]domain.ConversationRecord, error)
}

// NegotiationRepository persists negotiation records.
type NegotiationRepository interface {
	GetNegotiation(ctx context.Context, negotiationID string) (*domain.NegotiationRecord, error)
	CreateNegotiation(ctx context.Context, rec *domain.NegotiationRecord) error
	UpdateNegotiation(ctx context.Context, rec *domain.NegotiationRecord) error
	ListNegotiations(ctx context.Context) ([]domain.NegotiationRecord, error)
}
