package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/switchmart/assistant-engine/internal/domain"
	"github.com/switchmart/assistant-engine/internal/infra/observability"
	"github.com/switchmart/assistant-engine/internal/port"
	"github.com/switchmart/assistant-engine/internal/retrieval"
)

// reindexConcurrency bounds parallel embedding calls during a full
// catalog reindex, so a large catalog cannot saturate the provider.
const reindexConcurrency = 4

// KnowledgeService manages the FAQ corpus and catalog embeddings. All
// mutations keep the retrieval caches coherent and the vector invariant
// intact: a stored entry's vector always embeds its current text.
type KnowledgeService struct {
	kb        port.KnowledgeBaseRepository
	catalog   port.CatalogRepository
	embedder  port.Embedder
	retriever *retrieval.Retriever
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewKnowledgeService creates a KnowledgeService.
func NewKnowledgeService(
	kb port.KnowledgeBaseRepository,
	catalog port.CatalogRepository,
	embedder port.Embedder,
	retriever *retrieval.Retriever,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *KnowledgeService {
	return &KnowledgeService{
		kb:        kb,
		catalog:   catalog,
		embedder:  embedder,
		retriever: retriever,
		metrics:   metrics,
		logger:    logger,
	}
}

func validateEntry(entry *domain.KnowledgeEntry) error {
	if entry.Question == "" {
		return &domain.ErrValidation{Field: "question", Message: "must not be empty"}
	}
	if len(entry.Question) > domain.MaxQuestionLen {
		return &domain.ErrValidation{Field: "question", Message: "exceeds maximum length"}
	}
	if entry.Answer == "" {
		return &domain.ErrValidation{Field: "answer", Message: "must not be empty"}
	}
	if len(entry.Answer) > domain.MaxAnswerLen {
		return &domain.ErrValidation{Field: "answer", Message: "exceeds maximum length"}
	}
	if !domain.ValidCategory(entry.Category) {
		return &domain.ErrValidation{Field: "category", Message: "unknown category"}
	}
	return nil
}

// CreateEntry validates, embeds and stores a new FAQ entry.
func (s *KnowledgeService) CreateEntry(ctx context.Context, entry *domain.KnowledgeEntry) (*domain.KnowledgeEntry, error) {
	ctx, span := tracer.Start(ctx, "knowledge.CreateEntry")
	defer span.End()

	if err := validateEntry(entry); err != nil {
		return nil, err
	}

	vec, err := s.embedder.EmbedDocument(ctx, entry.EmbeddingText())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry.ID = uuid.NewString()
	entry.Vector = vec
	entry.CreatedAt = now
	entry.UpdatedAt = now

	if err := s.kb.CreateEntry(ctx, entry); err != nil {
		return nil, err
	}
	s.retriever.InvalidateFAQ()
	s.logger.Info("knowledge entry created", zap.String("entry_id", entry.ID))
	return entry, nil
}

// UpdateEntry applies changes to an existing entry, re-embedding only
// when the question or answer text actually changed.
func (s *KnowledgeService) UpdateEntry(ctx context.Context, entry *domain.KnowledgeEntry) (*domain.KnowledgeEntry, error) {
	ctx, span := tracer.Start(ctx, "knowledge.UpdateEntry")
	defer span.End()

	if err := validateEntry(entry); err != nil {
		return nil, err
	}

	existing, err := s.kb.GetEntry(ctx, entry.ID)
	if err != nil {
		return nil, err
	}

	if existing.EmbeddingText() != entry.EmbeddingText() {
		vec, err := s.embedder.EmbedDocument(ctx, entry.EmbeddingText())
		if err != nil {
			return nil, err
		}
		entry.Vector = vec
	} else {
		entry.Vector = existing.Vector
	}

	entry.CreatedAt = existing.CreatedAt
	entry.UpdatedAt = time.Now().UTC()

	if err := s.kb.UpdateEntry(ctx, entry); err != nil {
		return nil, err
	}
	s.retriever.InvalidateFAQ()
	return entry, nil
}

// DeleteEntry removes an entry and invalidates the FAQ cache.
func (s *KnowledgeService) DeleteEntry(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "knowledge.DeleteEntry")
	defer span.End()

	if err := s.kb.DeleteEntry(ctx, id); err != nil {
		return err
	}
	s.retriever.InvalidateFAQ()
	s.logger.Info("knowledge entry deleted", zap.String("entry_id", id))
	return nil
}

// GetEntry returns one FAQ entry.
func (s *KnowledgeService) GetEntry(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	return s.kb.GetEntry(ctx, id)
}

// ListEntries returns the whole FAQ corpus.
func (s *KnowledgeService) ListEntries(ctx context.Context) ([]domain.KnowledgeEntry, error) {
	return s.kb.ListEntries(ctx)
}

// ReindexCatalog re-embeds every catalog entry. Games whose embedding
// fails are skipped and counted; one bad game does not abort the run.
func (s *KnowledgeService) ReindexCatalog(ctx context.Context) (updated int, failed int, err error) {
	ctx, span := tracer.Start(ctx, "knowledge.ReindexCatalog")
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("catalog_reindex", time.Since(start)) }()

	games, err := s.catalog.ListGames(ctx)
	if err != nil {
		return 0, 0, err
	}

	var (
		okCount   int
		failCount int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reindexConcurrency)

	results := make([]bool, len(games))
	for i, game := range games {
		i, game := i, game
		g.Go(func() error {
			vec, err := s.embedder.EmbedDocument(gctx, game.EmbeddingText())
			if err != nil {
				s.logger.Warn("reindex: embedding failed",
					zap.String("game_id", game.ID), zap.Error(err))
				return nil
			}
			if err := s.catalog.UpdateGameVector(gctx, game.ID, vec); err != nil {
				s.logger.Warn("reindex: vector update failed",
					zap.String("game_id", game.ID), zap.Error(err))
				return nil
			}
			results[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	for _, ok := range results {
		if ok {
			okCount++
		} else {
			failCount++
		}
	}

	s.retriever.InvalidateGames()
	s.logger.Info("catalog reindexed",
		zap.Int("updated", okCount), zap.Int("failed", failCount))
	return okCount, failCount, nil
}
