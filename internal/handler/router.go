package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/switchmart/assistant-engine/internal/domain"
	"github.com/switchmart/assistant-engine/internal/infra/observability"
	"github.com/switchmart/assistant-engine/internal/service"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(
	convSvc *service.ConversationService,
	negSvc *service.NegotiationService,
	analyticsSvc *service.AnalyticsService,
	kbSvc *service.KnowledgeService,
	metrics *observability.Metrics,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.MetricsMiddleware(metrics))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(kbSvc, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 1. Support chat
		// =============================================
		r.Post("/chats/{chatId}/messages", chatTurnHandler(convSvc, logger))
		r.Post("/chats/{chatId}/feedback", feedbackHandler(convSvc, logger))
		r.Post("/chats/{chatId}/end", endChatHandler(convSvc, logger))
		r.Post("/chats/{chatId}/review", reviewChatHandler(convSvc, logger))
		r.Get("/chats/{chatId}", getChatHandler(convSvc, logger))

		// =============================================
		// 2. Price negotiation
		// =============================================
		r.Post("/negotiations/{negotiationId}/messages", negotiationTurnHandler(negSvc, logger))
		r.Post("/negotiations/{negotiationId}/abandon", abandonNegotiationHandler(negSvc, logger))
		r.Get("/negotiations/{negotiationId}", getNegotiationHandler(negSvc, logger))

		// =============================================
		// 3. Analytics
		// =============================================
		r.Get("/analytics/negotiations", negotiationReportHandler(analyticsSvc, logger))

		// =============================================
		// 4. Admin: knowledge base & catalog
		// =============================================
		r.Route("/admin", func(r chi.Router) {
			r.Get("/knowledge", listKnowledgeHandler(kbSvc, logger))
			r.Post("/knowledge", createKnowledgeHandler(kbSvc, logger))
			r.Get("/knowledge/{entryId}", getKnowledgeHandler(kbSvc, logger))
			r.Put("/knowledge/{entryId}", updateKnowledgeHandler(kbSvc, logger))
			r.Delete("/knowledge/{entryId}", deleteKnowledgeHandler(kbSvc, logger))
			r.Get("/reviews", listReviewsHandler(convSvc, logger))
			r.Post("/catalog/reindex", reindexCatalogHandler(kbSvc, logger))
		})

		// =============================================
		// 5. Engine metrics
		// =============================================
		r.Get("/metrics/engine", engineMetricsHandler(metrics))
	})

	return r
}

// ============================================================
// 1. Support chat
// ============================================================

type chatTurnRequest struct {
	Message string `json:"message"`
}

func chatTurnHandler(svc *service.ConversationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/chats/{chatId}/messages")
		defer span.End()

		chatID := chi.URLParam(r, "chatId")
		span.SetAttributes(attribute.String("chat_id", chatID))

		var req chatTurnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := svc.HandleTurn(ctx, chatID, req.Message)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func feedbackHandler(svc *service.ConversationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/chats/{chatId}/feedback")
		defer span.End()

		chatID := chi.URLParam(r, "chatId")

		var fb domain.Feedback
		if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := svc.SubmitFeedback(ctx, chatID, fb); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
	}
}

func endChatHandler(svc *service.ConversationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/chats/{chatId}/end")
		defer span.End()

		chatID := chi.URLParam(r, "chatId")
		if err := svc.EndConversation(ctx, chatID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
	}
}

type reviewRequest struct {
	Notes string `json:"notes,omitempty"`
}

func reviewChatHandler(svc *service.ConversationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/chats/{chatId}/review")
		defer span.End()

		chatID := chi.URLParam(r, "chatId")

		var req reviewRequest
		if r.Body != nil {
			// Notes are optional; an empty body is fine.
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		if err := svc.Review(ctx, chatID, req.Notes); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "reviewed"})
	}
}

func getChatHandler(svc *service.ConversationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/chats/{chatId}")
		defer span.End()

		chatID := chi.URLParam(r, "chatId")
		rec, err := svc.GetConversation(ctx, chatID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// ============================================================
// 2. Price negotiation
// ============================================================

func negotiationTurnHandler(svc *service.NegotiationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/negotiations/{negotiationId}/messages")
		defer span.End()

		negotiationID := chi.URLParam(r, "negotiationId")
		span.SetAttributes(attribute.String("negotiation_id", negotiationID))

		var req domain.NegotiationTurnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := svc.HandleTurn(ctx, negotiationID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func abandonNegotiationHandler(svc *service.NegotiationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/negotiations/{negotiationId}/abandon")
		defer span.End()

		negotiationID := chi.URLParam(r, "negotiationId")
		if err := svc.Abandon(ctx, negotiationID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "abandoned"})
	}
}

func getNegotiationHandler(svc *service.NegotiationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/negotiations/{negotiationId}")
		defer span.End()

		negotiationID := chi.URLParam(r, "negotiationId")
		rec, err := svc.GetNegotiation(ctx, negotiationID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// ============================================================
// 3. Analytics
// ============================================================

func negotiationReportHandler(svc *service.AnalyticsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/analytics/negotiations")
		defer span.End()

		report, err := svc.Report(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// ============================================================
// 4. Admin: knowledge base & catalog
// ============================================================

func listKnowledgeHandler(svc *service.KnowledgeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/knowledge")
		defer span.End()

		entries, err := svc.ListEntries(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func createKnowledgeHandler(svc *service.KnowledgeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/knowledge")
		defer span.End()

		var entry domain.KnowledgeEntry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		created, err := svc.CreateEntry(ctx, &entry)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func getKnowledgeHandler(svc *service.KnowledgeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/knowledge/{entryId}")
		defer span.End()

		entry, err := svc.GetEntry(ctx, chi.URLParam(r, "entryId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func updateKnowledgeHandler(svc *service.KnowledgeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/knowledge/{entryId}")
		defer span.End()

		var entry domain.KnowledgeEntry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		entry.ID = chi.URLParam(r, "entryId")

		updated, err := svc.UpdateEntry(ctx, &entry)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteKnowledgeHandler(svc *service.KnowledgeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/admin/knowledge/{entryId}")
		defer span.End()

		if err := svc.DeleteEntry(ctx, chi.URLParam(r, "entryId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listReviewsHandler(svc *service.ConversationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/reviews")
		defer span.End()

		chats, err := svc.ListNeedingReview(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, chats)
	}
}

type reindexResponse struct {
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

func reindexCatalogHandler(svc *service.KnowledgeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/catalog/reindex")
		defer span.End()

		updated, failed, err := svc.ReindexCatalog(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, reindexResponse{Updated: updated, Failed: failed})
	}
}

// ============================================================
// 5. Metrics & health
// ============================================================

func engineMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetEngineSnapshot())
	}
}

func healthzHandler(kbSvc *service.KnowledgeService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "assistant-engine", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if kbSvc != nil {
			start := time.Now()
			_, err := kbSvc.ListEntries(ctx)
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				status = "degraded"
				logger.Warn("knowledge store health probe failed", zap.Error(err))
			}
			services = append(services, domain.ServiceHealth{
				Name: "knowledge-store", Status: status, LatencyMs: latency, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

// ============================================================
// Probes
// ============================================================

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
