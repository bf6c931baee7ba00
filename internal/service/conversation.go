package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/switchmart/assistant-engine/internal/config"
	"github.com/switchmart/assistant-engine/internal/domain"
	"github.com/switchmart/assistant-engine/internal/infra/observability"
	"github.com/switchmart/assistant-engine/internal/port"
	"github.com/switchmart/assistant-engine/internal/retrieval"
)

var tracer = otel.Tracer("service")

// MaxMessageLen bounds a single inbound chat message.
const MaxMessageLen = 2000

// ConversationService runs the retrieval-augmented support chat:
// embed the query, search both corpora, assemble context, generate a
// reply, and persist the turn with its metrics.
type ConversationService struct {
	repo      port.ConversationRepository
	embedder  port.Embedder
	replier   port.ReplyGenerator
	retriever *retrieval.Retriever
	vecCache  port.Cache[[]float32]
	cfg       config.RetrievalConfig
	metrics   *observability.Metrics
	logger    *zap.Logger
	locks     *keyedMutex
}

// NewConversationService creates a ConversationService.
func NewConversationService(
	repo port.ConversationRepository,
	embedder port.Embedder,
	replier port.ReplyGenerator,
	retriever *retrieval.Retriever,
	vecCache port.Cache[[]float32],
	cfg config.RetrievalConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ConversationService {
	return &ConversationService{
		repo:      repo,
		embedder:  embedder,
		replier:   replier,
		retriever: retriever,
		vecCache:  vecCache,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		locks:     newKeyedMutex(),
	}
}

// HandleTurn processes one user message for chatID. Turns for the same
// chat are serialized; the first message creates the conversation.
//
// The user message is persisted before reply generation, so a turn
// that dies mid-generation leaves a trailing user message behind. The
// next turn tolerates that and simply appends.
func (s *ConversationService) HandleTurn(ctx context.Context, chatID, message string) (*domain.TurnResult, error) {
	ctx, span := tracer.Start(ctx, "conversation.HandleTurn")
	defer span.End()
	span.SetAttributes(attribute.String("chat_id", chatID))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("chat_turn", time.Since(start)) }()

	if message == "" {
		return nil, &domain.ErrValidation{Field: "message", Message: "must not be empty"}
	}
	if len(message) > MaxMessageLen {
		return nil, &domain.ErrValidation{Field: "message", Message: "exceeds maximum length"}
	}

	unlock := s.locks.Lock(chatID)
	defer unlock()

	rec, err := s.repo.GetConversation(ctx, chatID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if !errors.As(err, &notFound) {
			return nil, err
		}
		now := time.Now().UTC()
		rec = &domain.ConversationRecord{ChatID: chatID, CreatedAt: now, UpdatedAt: now}
		if err := s.repo.CreateConversation(ctx, rec); err != nil {
			return nil, err
		}
	}

	if rec.ConversationEnded {
		return nil, &domain.ErrInvalidState{Resource: "conversation", ID: chatID, State: "ended"}
	}

	queryVec, err := s.embedQuery(ctx, message)
	if err != nil {
		s.metrics.IncrExternalError("embedding")
		return nil, err
	}

	results, err := s.retriever.Retrieve(ctx, queryVec)
	if err != nil {
		return nil, err
	}
	assembled := retrieval.Assemble(results, s.cfg)

	rec.Messages = append(rec.Messages, domain.Message{
		Role:      domain.RoleUser,
		Content:   message,
		Timestamp: time.Now().UTC(),
	})
	rec.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateConversation(ctx, rec); err != nil {
		return nil, err
	}

	reply, err := s.replier.Generate(ctx, &domain.ReplyRequest{
		ChatID:           chatID,
		Query:            message,
		Context:          assembled.Text,
		HasLowConfidence: assembled.HasLowConfidence,
		History:          rec.Messages,
	})
	if err != nil {
		s.metrics.IncrExternalError("reply")
		return nil, err
	}

	rec.Messages = append(rec.Messages, domain.Message{
		Role:      domain.RoleAssistant,
		Content:   reply.Content,
		Timestamp: time.Now().UTC(),
	})
	rec.Metrics = append(rec.Metrics, domain.TurnMetrics{
		Turn: rec.TurnCount(),
		RAG: &domain.RAGMetrics{
			Query:            message,
			FAQRetrieved:     len(results.FAQ),
			GamesRetrieved:   len(results.Games),
			FAQAvgScore:      avgFAQScore(results.FAQ),
			GameAvgScore:     avgGameScore(results.Games),
			HasLowConfidence: assembled.HasLowConfidence,
			ContextLength:    assembled.ContextLength,
		},
		Response: &domain.ResponseMetrics{
			ModelUsed:      reply.ModelUsed,
			ResponseTimeMs: reply.ResponseTimeMs,
		},
	})
	if assembled.HasLowConfidence {
		rec.NeedsReview = true
	}
	if reply.ConversationEnded {
		rec.ConversationEnded = true
	}
	rec.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateConversation(ctx, rec); err != nil {
		return nil, err
	}

	s.metrics.IncrTurn(assembled.HasLowConfidence)
	s.logger.Info("chat turn processed",
		zap.String("chat_id", chatID),
		zap.Bool("low_confidence", assembled.HasLowConfidence),
		zap.Bool("ended", rec.ConversationEnded),
	)

	return &domain.TurnResult{
		ChatID:            chatID,
		Reply:             reply.Content,
		ConversationEnded: rec.ConversationEnded,
	}, nil
}

// embedQuery embeds the message, caching the vector. When the provider
// rate-limits, a previously cached vector for the same text keeps the
// turn alive; without one the rate-limit error surfaces to the caller.
func (s *ConversationService) embedQuery(ctx context.Context, message string) ([]float32, error) {
	cacheKey := "qvec:" + message
	vec, err := s.embedder.EmbedQuery(ctx, message)
	if err != nil {
		var rateLimited *domain.ErrRateLimited
		if errors.As(err, &rateLimited) {
			if cached, ok := s.vecCache.Get(cacheKey); ok {
				s.metrics.IncrCacheHit("query_vector")
				s.logger.Warn("embedding rate limited, using cached query vector")
				return cached, nil
			}
			s.metrics.IncrCacheMiss("query_vector")
		}
		return nil, err
	}
	s.vecCache.Set(cacheKey, vec)
	return vec, nil
}

// SubmitFeedback records per-chat feedback. Resubmission overwrites
// the previous record. Unhelpful feedback flags the chat for review.
func (s *ConversationService) SubmitFeedback(ctx context.Context, chatID string, fb domain.Feedback) error {
	ctx, span := tracer.Start(ctx, "conversation.SubmitFeedback")
	defer span.End()

	if fb.Rating != nil && (*fb.Rating < 1 || *fb.Rating > 5) {
		return &domain.ErrValidation{Field: "rating", Message: "must be between 1 and 5"}
	}

	unlock := s.locks.Lock(chatID)
	defer unlock()

	rec, err := s.repo.GetConversation(ctx, chatID)
	if err != nil {
		return err
	}

	fb.SubmittedAt = time.Now().UTC()
	rec.Feedback = &fb
	if !fb.Helpful {
		rec.NeedsReview = true
	}
	rec.UpdatedAt = time.Now().UTC()
	return s.repo.UpdateConversation(ctx, rec)
}

// EndConversation closes the chat to further turns. Ending an already
// ended chat is a no-op.
func (s *ConversationService) EndConversation(ctx context.Context, chatID string) error {
	ctx, span := tracer.Start(ctx, "conversation.End")
	defer span.End()

	unlock := s.locks.Lock(chatID)
	defer unlock()

	rec, err := s.repo.GetConversation(ctx, chatID)
	if err != nil {
		return err
	}
	if rec.ConversationEnded {
		return nil
	}
	rec.ConversationEnded = true
	rec.UpdatedAt = time.Now().UTC()
	return s.repo.UpdateConversation(ctx, rec)
}

// Review marks a flagged chat as reviewed with optional admin notes.
func (s *ConversationService) Review(ctx context.Context, chatID, notes string) error {
	ctx, span := tracer.Start(ctx, "conversation.Review")
	defer span.End()

	unlock := s.locks.Lock(chatID)
	defer unlock()

	rec, err := s.repo.GetConversation(ctx, chatID)
	if err != nil {
		return err
	}
	rec.Reviewed = true
	if notes != "" {
		rec.AdminNotes = notes
	}
	rec.UpdatedAt = time.Now().UTC()
	return s.repo.UpdateConversation(ctx, rec)
}

// GetConversation returns the full conversation record.
func (s *ConversationService) GetConversation(ctx context.Context, chatID string) (*domain.ConversationRecord, error) {
	return s.repo.GetConversation(ctx, chatID)
}

// ListNeedingReview returns conversations flagged for human review.
func (s *ConversationService) ListNeedingReview(ctx context.Context) ([]domain.ConversationRecord, error) {
	return s.repo.ListNeedingReview(ctx)
}

func avgFAQScore(faq []retrieval.ScoredFAQ) float64 {
	if len(faq) == 0 {
		return 0
	}
	var sum float64
	for _, f := range faq {
		sum += f.Score
	}
	return sum / float64(len(faq))
}

func avgGameScore(games []retrieval.ScoredGame) float64 {
	if len(games) == 0 {
		return 0
	}
	var sum float64
	for _, g := range games {
		sum += g.Score
	}
	return sum / float64(len(games))
}
