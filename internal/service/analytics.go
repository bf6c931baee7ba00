package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/switchmart/assistant-engine/internal/config"
	"github.com/switchmart/assistant-engine/internal/domain"
	"github.com/switchmart/assistant-engine/internal/infra/observability"
	"github.com/switchmart/assistant-engine/internal/port"
)

// firstOfferTurnThreshold is the message count at or below which a
// successful negotiation counts as a first-offer acceptance. Records
// hold only customer messages, so a single message means the deal
// closed on the opening turn.
const firstOfferTurnThreshold = 1

// AnalyticsService aggregates negotiation history into a report.
type AnalyticsService struct {
	repo    port.NegotiationRepository
	cfg     config.NegotiationConfig
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewAnalyticsService creates an AnalyticsService.
func NewAnalyticsService(
	repo port.NegotiationRepository,
	cfg config.NegotiationConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AnalyticsService {
	return &AnalyticsService{repo: repo, cfg: cfg, metrics: metrics, logger: logger}
}

// Report aggregates all negotiation records into a NegotiationReport.
func (s *AnalyticsService) Report(ctx context.Context) (*domain.NegotiationReport, error) {
	ctx, span := tracer.Start(ctx, "analytics.Report")
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("analytics_report", time.Since(start)) }()

	records, err := s.repo.ListNegotiations(ctx)
	if err != nil {
		return nil, err
	}

	report := buildReport(records, s.cfg)
	s.logger.Debug("analytics report built", zap.Int("records", report.TotalNegotiations))
	return report, nil
}

// buildReport computes the aggregate report. Pure: no I/O, no clock.
// With zero records every rate is 0 and no insights are emitted.
// Rates are percentages in [0,100].
func buildReport(records []domain.NegotiationRecord, cfg config.NegotiationConfig) *domain.NegotiationReport {
	report := &domain.NegotiationReport{Insights: []domain.Insight{}}
	if len(records) == 0 {
		return report
	}

	var (
		discountSum   float64
		messageSum    int
		firstOfferWon int
	)
	for _, r := range records {
		report.TotalNegotiations++
		messageSum += len(r.Messages)

		switch r.Status {
		case domain.NegotiationSuccess:
			report.SuccessCount++
			discountSum += r.FinalDiscount
			if len(r.Messages) <= firstOfferTurnThreshold {
				firstOfferWon++
			}
		case domain.NegotiationFailed:
			report.FailedCount++
		case domain.NegotiationAbandoned:
			report.AbandonedCount++
		}

		bandStats := &report.LowValue
		if r.TotalAmount > cfg.HighValueCutoff {
			bandStats = &report.HighValue
		}
		bandStats.Count++
		if r.Status == domain.NegotiationSuccess {
			bandStats.SuccessCount++
			bandStats.AverageDiscount += r.FinalDiscount
		}
	}

	total := float64(report.TotalNegotiations)
	report.SuccessRate = float64(report.SuccessCount) / total * 100
	report.AvgMessagesPerNegotiation = float64(messageSum) / total
	if report.SuccessCount > 0 {
		report.AverageDiscount = discountSum / float64(report.SuccessCount)
		report.FirstOfferAcceptanceRate = float64(firstOfferWon) / float64(report.SuccessCount) * 100
	}
	if report.HighValue.SuccessCount > 0 {
		report.HighValue.AverageDiscount /= float64(report.HighValue.SuccessCount)
	}
	if report.LowValue.SuccessCount > 0 {
		report.LowValue.AverageDiscount /= float64(report.LowValue.SuccessCount)
	}

	report.Insights = buildInsights(report, cfg)
	return report
}

// buildInsights applies the heuristic rules in a fixed order so the
// report is stable for equal inputs.
func buildInsights(r *domain.NegotiationReport, cfg config.NegotiationConfig) []domain.Insight {
	insights := []domain.Insight{}
	total := float64(r.TotalNegotiations)

	if r.TotalNegotiations >= 10 && r.SuccessRate < 30 {
		insights = append(insights, domain.Insight{
			Type:     "low_success_rate",
			Message:  fmt.Sprintf("Only %.0f%% of negotiations succeed; the discount band may be too tight.", r.SuccessRate),
			Priority: "high",
		})
	}
	if r.TotalNegotiations >= 10 && r.SuccessRate > 80 {
		insights = append(insights, domain.Insight{
			Type:     "high_success_rate",
			Message:  fmt.Sprintf("%.0f%% of negotiations succeed; discounts may be more generous than necessary.", r.SuccessRate),
			Priority: "medium",
		})
	}
	if r.AverageDiscount > cfg.CeilingPct*0.8 {
		insights = append(insights, domain.Insight{
			Type:     "high_average_discount",
			Message:  fmt.Sprintf("Average agreed discount %.1f%% is close to the %.1f%% ceiling.", r.AverageDiscount, cfg.CeilingPct),
			Priority: "medium",
		})
	}
	if abandonRate := float64(r.AbandonedCount) / total * 100; r.TotalNegotiations >= 10 && abandonRate > 40 {
		insights = append(insights, domain.Insight{
			Type:     "high_abandonment",
			Message:  fmt.Sprintf("%.0f%% of negotiations are abandoned before resolution.", abandonRate),
			Priority: "high",
		})
	}
	if r.HighValue.Count > 0 && r.LowValue.Count > 0 {
		highRate := float64(r.HighValue.SuccessCount) / float64(r.HighValue.Count)
		lowRate := float64(r.LowValue.SuccessCount) / float64(r.LowValue.Count)
		if highRate < lowRate {
			insights = append(insights, domain.Insight{
				Type:     "high_value_underperforming",
				Message:  "High-value carts close less often than low-value carts; consider loosening the high-value tightening.",
				Priority: "medium",
			})
		}
	}
	return insights
}
