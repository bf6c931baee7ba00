package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/switchmart/assistant-engine/internal/config"
	"github.com/switchmart/assistant-engine/internal/domain"
	"github.com/switchmart/assistant-engine/internal/infra/observability"
	"github.com/switchmart/assistant-engine/internal/port"
)

// NegotiationService drives the price-negotiation state machine. The
// allowable-discount band is pure arithmetic over the configured curve;
// the external classifier only supplies the offer/sentiment signal.
type NegotiationService struct {
	repo       port.NegotiationRepository
	classifier port.TurnClassifier
	loyalty    port.LoyaltyChecker
	cfg        config.NegotiationConfig
	metrics    *observability.Metrics
	logger     *zap.Logger
	locks      *keyedMutex
}

// NewNegotiationService creates a NegotiationService.
func NewNegotiationService(
	repo port.NegotiationRepository,
	classifier port.TurnClassifier,
	loyalty port.LoyaltyChecker,
	cfg config.NegotiationConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *NegotiationService {
	return &NegotiationService{
		repo:       repo,
		classifier: classifier,
		loyalty:    loyalty,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
		locks:      newKeyedMutex(),
	}
}

// band is the allowable discount range for the current turn.
type band struct {
	floor   float64
	ceiling float64
}

// computeBand derives the discount band from the cart snapshot and the
// negotiation history. The base band [FloorPct, FloorPct+SpreadPct] is
// tightened for high-value carts, widened per rejection, raised once
// for loyal customers, and always clamped to CeilingPct.
func (s *NegotiationService) computeBand(rec *domain.NegotiationRecord) band {
	floor := s.cfg.FloorPct
	if rec.LoyaltyApplied {
		floor += s.cfg.LoyaltyBonusPct
	}

	spread := s.cfg.SpreadPct
	if rec.TotalAmount > s.cfg.HighValueCutoff {
		spread -= s.cfg.HighValueTighteningPct
		if spread < 0 {
			spread = 0
		}
	}

	ceiling := floor + spread + float64(rec.RejectionCount)*s.cfg.PerRejectionPct
	if ceiling > s.cfg.CeilingPct {
		ceiling = s.cfg.CeilingPct
	}
	if floor > ceiling {
		floor = ceiling
	}
	return band{floor: floor, ceiling: ceiling}
}

// HandleTurn processes one customer message for negotiationID. The
// first turn freezes the cart snapshot and applies the one-time loyalty
// check; later cart fields in the request are ignored.
func (s *NegotiationService) HandleTurn(ctx context.Context, negotiationID string, req *domain.NegotiationTurnRequest) (*domain.NegotiationTurnResult, error) {
	ctx, span := tracer.Start(ctx, "negotiation.HandleTurn")
	defer span.End()
	span.SetAttributes(attribute.String("negotiation_id", negotiationID))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("negotiation_turn", time.Since(start)) }()

	if req.Message == "" {
		return nil, &domain.ErrValidation{Field: "message", Message: "must not be empty"}
	}

	unlock := s.locks.Lock(negotiationID)
	defer unlock()

	rec, err := s.repo.GetNegotiation(ctx, negotiationID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if !errors.As(err, &notFound) {
			return nil, err
		}
		rec, err = s.openNegotiation(ctx, negotiationID, req)
		if err != nil {
			return nil, err
		}
	}

	if rec.Status.Terminal() {
		return nil, &domain.ErrInvalidState{Resource: "negotiation", ID: negotiationID, State: string(rec.Status)}
	}

	signal, err := s.classifier.ClassifyTurn(ctx, req.Message)
	if err != nil {
		s.metrics.IncrExternalError("classifier")
		return nil, err
	}

	rec.Messages = append(rec.Messages, domain.Message{
		Role:      domain.RoleUser,
		Content:   req.Message,
		Timestamp: time.Now().UTC(),
	})

	if signal.Sentiment == domain.SentimentNegative {
		rec.RejectionCount++
	}

	b := s.computeBand(rec)
	offered := b.floor

	if p := signal.ProposedDiscountPct; p != nil {
		switch {
		case *p >= b.floor && *p <= b.ceiling:
			rec.Status = domain.NegotiationSuccess
			rec.FinalDiscount = *p
			offered = *p
		case *p > b.ceiling:
			offered = b.ceiling
		default:
			offered = b.floor
		}
	}

	if rec.Status == domain.NegotiationOngoing && rec.RejectionCount >= s.cfg.MaxRejections {
		rec.Status = domain.NegotiationFailed
	}

	rec.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateNegotiation(ctx, rec); err != nil {
		return nil, err
	}

	if rec.Status.Terminal() {
		s.metrics.IncrNegotiationEnd(rec.Status)
	}
	s.logger.Info("negotiation turn processed",
		zap.String("negotiation_id", negotiationID),
		zap.String("status", string(rec.Status)),
		zap.Float64("offered", offered),
		zap.Int("rejections", rec.RejectionCount),
	)

	return &domain.NegotiationTurnResult{
		NegotiationID:   negotiationID,
		Status:          rec.Status,
		OfferedDiscount: offered,
		FinalDiscount:   rec.FinalDiscount,
		RejectionCount:  rec.RejectionCount,
	}, nil
}

// openNegotiation freezes the cart snapshot and applies the one-time
// loyalty check. A loyalty-store failure degrades to no bonus rather
// than blocking the turn.
func (s *NegotiationService) openNegotiation(ctx context.Context, negotiationID string, req *domain.NegotiationTurnRequest) (*domain.NegotiationRecord, error) {
	if len(req.CartItems) == 0 {
		return nil, &domain.ErrValidation{Field: "cartItems", Message: "required on the first turn"}
	}
	if req.TotalAmount <= 0 {
		return nil, &domain.ErrValidation{Field: "totalAmount", Message: "must be positive"}
	}

	loyal := false
	if req.CustomerName != "" {
		var err error
		loyal, err = s.loyalty.IsLoyalCustomer(ctx, req.CustomerName)
		if err != nil {
			s.metrics.IncrExternalError("loyalty")
			s.logger.Warn("loyalty check failed, continuing without bonus", zap.Error(err))
			loyal = false
		}
	}

	now := time.Now().UTC()
	rec := &domain.NegotiationRecord{
		NegotiationID:  negotiationID,
		CartItems:      req.CartItems,
		TotalAmount:    req.TotalAmount,
		CustomerName:   req.CustomerName,
		Status:         domain.NegotiationOngoing,
		LoyaltyApplied: loyal,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateNegotiation(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Abandon marks an ongoing negotiation as abandoned. Abandoning an
// already abandoned negotiation is a no-op; success and failed are
// immutable.
func (s *NegotiationService) Abandon(ctx context.Context, negotiationID string) error {
	ctx, span := tracer.Start(ctx, "negotiation.Abandon")
	defer span.End()

	unlock := s.locks.Lock(negotiationID)
	defer unlock()

	rec, err := s.repo.GetNegotiation(ctx, negotiationID)
	if err != nil {
		return err
	}
	if rec.Status == domain.NegotiationAbandoned {
		return nil
	}
	if rec.Status.Terminal() {
		return &domain.ErrInvalidState{Resource: "negotiation", ID: negotiationID, State: string(rec.Status)}
	}

	rec.Status = domain.NegotiationAbandoned
	rec.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateNegotiation(ctx, rec); err != nil {
		return err
	}
	s.metrics.IncrNegotiationEnd(domain.NegotiationAbandoned)
	return nil
}

// GetNegotiation returns the full negotiation record.
func (s *NegotiationService) GetNegotiation(ctx context.Context, negotiationID string) (*domain.NegotiationRecord, error) {
	return s.repo.GetNegotiation(ctx, negotiationID)
}
