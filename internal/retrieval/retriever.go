package retrieval

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/switchmart/assistant-engine/internal/config"
	"github.com/switchmart/assistant-engine/internal/domain"
	"github.com/switchmart/assistant-engine/internal/infra/observability"
	"github.com/switchmart/assistant-engine/internal/port"
)

var tracer = otel.Tracer("retrieval")

const (
	faqCacheKey  = "corpus:faq"
	gameCacheKey = "corpus:games"
)

// ScoredFAQ is a knowledge-base entry with its similarity to the query.
type ScoredFAQ struct {
	Entry domain.KnowledgeEntry
	Score float64
}

// ScoredGame is a catalog entry with its similarity to the query.
type ScoredGame struct {
	Game  domain.GameEntry
	Score float64
}

// Results holds the top matches from both corpora for one query.
type Results struct {
	FAQ   []ScoredFAQ
	Games []ScoredGame
}

// Retriever runs brute-force cosine search over both corpora. Corpus
// lists are served from read-through TTL caches so a turn does not
// hit the store twice.
type Retriever struct {
	kb        port.KnowledgeBaseRepository
	catalog   port.CatalogRepository
	faqCache  port.Cache[[]domain.KnowledgeEntry]
	gameCache port.Cache[[]domain.GameEntry]
	cfg       config.RetrievalConfig
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewRetriever creates a Retriever.
func NewRetriever(
	kb port.KnowledgeBaseRepository,
	catalog port.CatalogRepository,
	faqCache port.Cache[[]domain.KnowledgeEntry],
	gameCache port.Cache[[]domain.GameEntry],
	cfg config.RetrievalConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Retriever {
	return &Retriever{
		kb:        kb,
		catalog:   catalog,
		faqCache:  faqCache,
		gameCache: gameCache,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// Retrieve searches both corpora concurrently and returns the top-K
// matches per corpus that clear the corpus min-score threshold.
func (r *Retriever) Retrieve(ctx context.Context, queryVec []float32) (*Results, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Retrieve")
	defer span.End()

	results := &Results{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		entries, err := r.loadFAQ(gctx)
		if err != nil {
			return err
		}
		results.FAQ = r.scoreFAQ(entries, queryVec)
		return nil
	})

	g.Go(func() error {
		games, err := r.loadGames(gctx)
		if err != nil {
			return err
		}
		results.Games = r.scoreGames(games, queryVec)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(results.FAQ) > 0 {
		r.metrics.RecordRetrievalScore("faq", results.FAQ[0].Score)
	}
	if len(results.Games) > 0 {
		r.metrics.RecordRetrievalScore("games", results.Games[0].Score)
	}

	r.logger.Debug("retrieval complete",
		zap.Int("faq_matches", len(results.FAQ)),
		zap.Int("game_matches", len(results.Games)),
	)
	return results, nil
}

// InvalidateFAQ drops the cached FAQ corpus, forcing the next
// retrieval to reload it. Called after knowledge-base mutations.
func (r *Retriever) InvalidateFAQ() {
	r.faqCache.Delete(faqCacheKey)
}

// InvalidateGames drops the cached game corpus.
func (r *Retriever) InvalidateGames() {
	r.gameCache.Delete(gameCacheKey)
}

func (r *Retriever) loadFAQ(ctx context.Context) ([]domain.KnowledgeEntry, error) {
	if entries, ok := r.faqCache.Get(faqCacheKey); ok {
		r.metrics.IncrCacheHit("faq")
		return entries, nil
	}
	r.metrics.IncrCacheMiss("faq")

	entries, err := r.kb.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	r.faqCache.Set(faqCacheKey, entries)
	return entries, nil
}

func (r *Retriever) loadGames(ctx context.Context) ([]domain.GameEntry, error) {
	if games, ok := r.gameCache.Get(gameCacheKey); ok {
		r.metrics.IncrCacheHit("games")
		return games, nil
	}
	r.metrics.IncrCacheMiss("games")

	games, err := r.catalog.ListGames(ctx)
	if err != nil {
		return nil, err
	}
	r.gameCache.Set(gameCacheKey, games)
	return games, nil
}

func (r *Retriever) scoreFAQ(entries []domain.KnowledgeEntry, queryVec []float32) []ScoredFAQ {
	scored := make([]ScoredFAQ, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) == 0 {
			continue
		}
		s := CosineSimilarity(queryVec, e.Vector)
		if s >= r.cfg.FAQMinScore {
			scored = append(scored, ScoredFAQ{Entry: e, Score: s})
		}
	}

	// Ties resolve by priority, then by most recently updated, so the
	// ordering is deterministic across runs.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Entry.Priority != scored[j].Entry.Priority {
			return scored[i].Entry.Priority > scored[j].Entry.Priority
		}
		return scored[i].Entry.UpdatedAt.After(scored[j].Entry.UpdatedAt)
	})

	if len(scored) > r.cfg.FAQTopK {
		scored = scored[:r.cfg.FAQTopK]
	}
	return scored
}

func (r *Retriever) scoreGames(games []domain.GameEntry, queryVec []float32) []ScoredGame {
	scored := make([]ScoredGame, 0, len(games))
	for _, g := range games {
		if len(g.Vector) == 0 {
			continue
		}
		s := CosineSimilarity(queryVec, g.Vector)
		if s >= r.cfg.GameMinScore {
			scored = append(scored, ScoredGame{Game: g, Score: s})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Game.Title < scored[j].Game.Title
	})

	if len(scored) > r.cfg.GameTopK {
		scored = scored[:r.cfg.GameTopK]
	}
	return scored
}
