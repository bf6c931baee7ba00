package service_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/switchmart/assistant-engine/internal/domain"
	"github.com/switchmart/assistant-engine/internal/infra/observability"
	"github.com/switchmart/assistant-engine/internal/service"
)

func newNegService(repo *memNegRepo, classifier *stubClassifier, loyalty *stubLoyalty) *service.NegotiationService {
	return service.NewNegotiationService(
		repo, classifier, loyalty,
		testNegotiationConfig(),
		observability.NewMetrics(),
		zap.NewNop(),
	)
}

func pct(v float64) *float64 { return &v }

func firstTurnRequest(msg string) *domain.NegotiationTurnRequest {
	return &domain.NegotiationTurnRequest{
		Message: msg,
		CartItems: []domain.CartItem{
			{GameID: "g1", Title: "Mario Kart 8 Deluxe", Quantity: 1, UnitPrice: 59.99},
		},
		TotalAmount: 59.99,
	}
}

func TestNegotiation_FirstTurnFreezesSnapshot(t *testing.T) {
	repo := newMemNegRepo()
	svc := newNegService(repo, &stubClassifier{signals: []*domain.TurnSignal{
		{Sentiment: domain.SentimentNeutral},
	}}, &stubLoyalty{})

	if _, err := svc.HandleTurn(context.Background(), "neg-1", firstTurnRequest("any discount?")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Later turns must not touch the snapshot.
	second := &domain.NegotiationTurnRequest{
		Message:     "what about now?",
		CartItems:   []domain.CartItem{{GameID: "g2", Title: "Other", Quantity: 9, UnitPrice: 1}},
		TotalAmount: 9999,
	}
	if _, err := svc.HandleTurn(context.Background(), "neg-1", second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := repo.records["neg-1"]
	if rec.TotalAmount != 59.99 || len(rec.CartItems) != 1 || rec.CartItems[0].GameID != "g1" {
		t.Error("cart snapshot must be frozen on the first turn")
	}
}

func TestNegotiation_FirstTurnRequiresCart(t *testing.T) {
	svc := newNegService(newMemNegRepo(), &stubClassifier{signals: []*domain.TurnSignal{
		{Sentiment: domain.SentimentNeutral},
	}}, &stubLoyalty{})

	_, err := svc.HandleTurn(context.Background(), "neg-1", &domain.NegotiationTurnRequest{Message: "deal?"})
	var vErr *domain.ErrValidation
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error without a cart, got %v", err)
	}
}

func TestNegotiation_HighValueProposalWithinBandSucceeds(t *testing.T) {
	// 1900 cart is above the high-value cutoff: band is [2, 5] on turn one.
	repo := newMemNegRepo()
	svc := newNegService(repo, &stubClassifier{signals: []*domain.TurnSignal{
		{ProposedDiscountPct: pct(4), Sentiment: domain.SentimentPositive},
	}}, &stubLoyalty{})

	req := &domain.NegotiationTurnRequest{
		Message:     "4% and we have a deal",
		CartItems:   []domain.CartItem{{GameID: "g1", Title: "Bundle", Quantity: 1, UnitPrice: 1900}},
		TotalAmount: 1900,
	}
	res, err := svc.HandleTurn(context.Background(), "neg-1", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Status != domain.NegotiationSuccess {
		t.Fatalf("expected success, got %s", res.Status)
	}
	if res.FinalDiscount != 4 {
		t.Errorf("expected final discount 4, got %f", res.FinalDiscount)
	}
	if res.RejectionCount != 0 {
		t.Errorf("expected rejection count 0, got %d", res.RejectionCount)
	}
}

func TestNegotiation_ThreeRejectionsFail(t *testing.T) {
	repo := newMemNegRepo()
	svc := newNegService(repo, &stubClassifier{signals: []*domain.TurnSignal{
		{Sentiment: domain.SentimentNegative},
	}}, &stubLoyalty{})

	var res *domain.NegotiationTurnResult
	var err error
	res, err = svc.HandleTurn(context.Background(), "neg-1", firstTurnRequest("too low"))
	if err != nil || res.Status != domain.NegotiationOngoing {
		t.Fatalf("turn 1: expected ongoing, got %v/%v", res, err)
	}
	res, err = svc.HandleTurn(context.Background(), "neg-1", &domain.NegotiationTurnRequest{Message: "still too low"})
	if err != nil || res.Status != domain.NegotiationOngoing {
		t.Fatalf("turn 2: expected ongoing, got %v/%v", res, err)
	}
	res, err = svc.HandleTurn(context.Background(), "neg-1", &domain.NegotiationTurnRequest{Message: "no way"})
	if err != nil {
		t.Fatalf("turn 3: unexpected error: %v", err)
	}
	if res.Status != domain.NegotiationFailed {
		t.Errorf("expected failure on the third rejection, got %s", res.Status)
	}
	if res.RejectionCount != 3 {
		t.Errorf("expected 3 rejections, got %d", res.RejectionCount)
	}
	if res.FinalDiscount != 0 {
		t.Errorf("failed negotiation must carry no final discount, got %f", res.FinalDiscount)
	}
}

func TestNegotiation_CeilingNeverExceeded(t *testing.T) {
	// Alternate rejections with an absurd counter-offer: the engine's
	// offer must stay at or below the configured ceiling throughout.
	repo := newMemNegRepo()
	cfg := testNegotiationConfig()
	cfg.MaxRejections = 100
	svc := service.NewNegotiationService(
		repo,
		&stubClassifier{signals: []*domain.TurnSignal{
			{ProposedDiscountPct: pct(50), Sentiment: domain.SentimentNegative},
		}},
		&stubLoyalty{},
		cfg,
		observability.NewMetrics(),
		zap.NewNop(),
	)

	req := firstTurnRequest("give me 50%")
	for i := 0; i < 20; i++ {
		res, err := svc.HandleTurn(context.Background(), "neg-1", req)
		if err != nil {
			t.Fatalf("turn %d: unexpected error: %v", i+1, err)
		}
		if res.OfferedDiscount > cfg.CeilingPct {
			t.Fatalf("turn %d: offer %.2f exceeds ceiling %.2f", i+1, res.OfferedDiscount, cfg.CeilingPct)
		}
		if res.Status.Terminal() {
			t.Fatalf("turn %d: 50%% demand must never be accepted, got %s", i+1, res.Status)
		}
		req = &domain.NegotiationTurnRequest{Message: "still 50%"}
	}
}

func TestNegotiation_LowballCounteredAtFloor(t *testing.T) {
	repo := newMemNegRepo()
	svc := newNegService(repo, &stubClassifier{signals: []*domain.TurnSignal{
		{ProposedDiscountPct: pct(0.5), Sentiment: domain.SentimentNeutral},
	}}, &stubLoyalty{})

	res, err := svc.HandleTurn(context.Background(), "neg-1", firstTurnRequest("0.5% maybe?"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != domain.NegotiationOngoing {
		t.Fatalf("expected ongoing, got %s", res.Status)
	}
	if res.OfferedDiscount != testNegotiationConfig().FloorPct {
		t.Errorf("expected counter at floor %.1f, got %.1f", testNegotiationConfig().FloorPct, res.OfferedDiscount)
	}
}

func TestNegotiation_LoyaltyRaisesFloor(t *testing.T) {
	repo := newMemNegRepo()
	svc := newNegService(repo, &stubClassifier{signals: []*domain.TurnSignal{
		{ProposedDiscountPct: pct(3.5), Sentiment: domain.SentimentPositive},
	}}, &stubLoyalty{loyal: true})

	req := firstTurnRequest("3.5%?")
	req.CustomerName = "Alex"
	res, err := svc.HandleTurn(context.Background(), "neg-1", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Loyal floor is 4: a 3.5 proposal sits below it and draws a counter.
	if res.Status != domain.NegotiationOngoing {
		t.Fatalf("expected ongoing, got %s", res.Status)
	}
	if res.OfferedDiscount != 4 {
		t.Errorf("expected loyalty-raised floor 4, got %.1f", res.OfferedDiscount)
	}
	if !repo.records["neg-1"].LoyaltyApplied {
		t.Error("expected loyalty to be applied on the record")
	}
}

func TestNegotiation_TerminalIsImmutable(t *testing.T) {
	repo := newMemNegRepo()
	svc := newNegService(repo, &stubClassifier{signals: []*domain.TurnSignal{
		{ProposedDiscountPct: pct(3), Sentiment: domain.SentimentPositive},
	}}, &stubLoyalty{})

	res, err := svc.HandleTurn(context.Background(), "neg-1", firstTurnRequest("3%?"))
	if err != nil || res.Status != domain.NegotiationSuccess {
		t.Fatalf("expected success, got %v/%v", res, err)
	}

	_, err = svc.HandleTurn(context.Background(), "neg-1", &domain.NegotiationTurnRequest{Message: "actually, 5%?"})
	var stateErr *domain.ErrInvalidState
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected invalid-state error on a settled negotiation, got %v", err)
	}
	if repo.records["neg-1"].FinalDiscount != 3 {
		t.Error("final discount must not change after settlement")
	}
}

func TestNegotiation_Abandon(t *testing.T) {
	repo := newMemNegRepo()
	svc := newNegService(repo, &stubClassifier{signals: []*domain.TurnSignal{
		{Sentiment: domain.SentimentNeutral},
	}}, &stubLoyalty{})

	if _, err := svc.HandleTurn(context.Background(), "neg-1", firstTurnRequest("thinking about it")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Abandon(context.Background(), "neg-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.records["neg-1"].Status != domain.NegotiationAbandoned {
		t.Fatal("expected abandoned status")
	}

	// Abandoning again is a no-op.
	if err := svc.Abandon(context.Background(), "neg-1"); err != nil {
		t.Fatalf("second abandon must be a no-op, got %v", err)
	}

	// A settled negotiation cannot be abandoned.
	repo.records["neg-2"] = &domain.NegotiationRecord{
		NegotiationID: "neg-2",
		Status:        domain.NegotiationSuccess,
		FinalDiscount: 3,
	}
	err := svc.Abandon(context.Background(), "neg-2")
	var stateErr *domain.ErrInvalidState
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected invalid-state error, got %v", err)
	}
}
