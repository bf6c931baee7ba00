package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/switchmart/assistant-engine/internal/config"
	"github.com/switchmart/assistant-engine/internal/domain"
	"github.com/switchmart/assistant-engine/internal/handler"
	"github.com/switchmart/assistant-engine/internal/infra/cache"
	"github.com/switchmart/assistant-engine/internal/infra/client"
	"github.com/switchmart/assistant-engine/internal/infra/observability"
	"github.com/switchmart/assistant-engine/internal/infra/resilience"
	"github.com/switchmart/assistant-engine/internal/infra/sqlite"
	"github.com/switchmart/assistant-engine/internal/infra/supabase"
	"github.com/switchmart/assistant-engine/internal/port"
	"github.com/switchmart/assistant-engine/internal/retrieval"
	"github.com/switchmart/assistant-engine/internal/service"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("use_supabase", cfg.UseSupabase),
		zap.Int("embedding_dimension", cfg.EmbeddingDimension),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(context.Background(), "assistant-engine", cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Caches ---
	faqCache := cache.New[[]domain.KnowledgeEntry](cfg.CacheTTL)
	gameCache := cache.New[[]domain.GameEntry](cfg.CacheTTL)
	vecCache := cache.New[[]float32](cfg.CacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	modelCB := resilience.NewCircuitBreaker("model-apis")
	storeCB := resilience.NewCircuitBreaker("supabase")

	// --- Storage backend ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var (
		kbRepo      port.KnowledgeBaseRepository
		catalogRepo port.CatalogRepository
		convRepo    port.ConversationRepository
		negRepo     port.NegotiationRepository
		loyalty     port.LoyaltyChecker
	)

	if cfg.UseSupabase && cfg.SupabaseURL != "" {
		logger.Info("using Supabase as data backend",
			zap.String("supabase_url", cfg.SupabaseURL),
		)
		sb := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			storeCB,
			resilienceCfg,
			logger,
		)
		kbRepo, catalogRepo, convRepo, negRepo, loyalty = sb, sb, sb, sb, sb
	} else {
		logger.Info("using local SQLite store", zap.String("path", cfg.SQLitePath))
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			logger.Fatal("failed to open sqlite store", zap.Error(err))
		}
		defer store.Close()
		kbRepo, catalogRepo, convRepo, negRepo, loyalty = store, store, store, store, store
	}

	// --- Model clients ---
	embedder := client.NewEmbeddingClient(httpClient, cfg.EmbeddingAPIURL, cfg.EmbeddingDimension, modelCB, resilienceCfg)
	replier := client.NewReplyClient(httpClient, cfg.ReplyAPIURL, modelCB, resilienceCfg)
	classifier := client.NewClassifierClient(httpClient, cfg.ClassifierAPIURL, modelCB, resilienceCfg)

	// --- Retrieval ---
	retriever := retrieval.NewRetriever(kbRepo, catalogRepo, faqCache, gameCache, cfg.Retrieval, metrics, logger)

	// --- Services ---
	convSvc := service.NewConversationService(convRepo, embedder, replier, retriever, vecCache, cfg.Retrieval, metrics, logger)
	negSvc := service.NewNegotiationService(negRepo, classifier, loyalty, cfg.Negotiation, metrics, logger)
	analyticsSvc := service.NewAnalyticsService(negRepo, cfg.Negotiation, metrics, logger)
	kbSvc := service.NewKnowledgeService(kbRepo, catalogRepo, embedder, retriever, metrics, logger)

	// --- Scheduled cache sweeps ---
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 10m", func() {
		removed := faqCache.CleanExpired() + gameCache.CleanExpired() + vecCache.CleanExpired()
		if removed > 0 {
			logger.Debug("cache sweep complete", zap.Int("removed", removed))
		}
	}); err != nil {
		logger.Fatal("failed to schedule cache sweep", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	// --- Router ---
	router := handler.NewRouter(convSvc, negSvc, analyticsSvc, kbSvc, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
