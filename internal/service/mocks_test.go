package service_test

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/switchmart/assistant-engine/internal/config"
	"github.com/switchmart/assistant-engine/internal/domain"
	"github.com/switchmart/assistant-engine/internal/infra/cache"
	"github.com/switchmart/assistant-engine/internal/infra/observability"
	"github.com/switchmart/assistant-engine/internal/retrieval"
)

// --- repositories ---

type memConvRepo struct {
	records map[string]*domain.ConversationRecord
}

func newMemConvRepo() *memConvRepo {
	return &memConvRepo{records: make(map[string]*domain.ConversationRecord)}
}

func (m *memConvRepo) GetConversation(ctx context.Context, chatID string) (*domain.ConversationRecord, error) {
	rec, ok := m.records[chatID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "conversation", ID: chatID}
	}
	return rec, nil
}
func (m *memConvRepo) CreateConversation(ctx context.Context, rec *domain.ConversationRecord) error {
	m.records[rec.ChatID] = rec
	return nil
}
func (m *memConvRepo) UpdateConversation(ctx context.Context, rec *domain.ConversationRecord) error {
	m.records[rec.ChatID] = rec
	return nil
}
func (m *memConvRepo) ListNeedingReview(ctx context.Context) ([]domain.ConversationRecord, error) {
	var out []domain.ConversationRecord
	for _, r := range m.records {
		if r.NeedsReview && !r.Reviewed {
			out = append(out, *r)
		}
	}
	return out, nil
}

type memNegRepo struct {
	records map[string]*domain.NegotiationRecord
}

func newMemNegRepo() *memNegRepo {
	return &memNegRepo{records: make(map[string]*domain.NegotiationRecord)}
}

func (m *memNegRepo) GetNegotiation(ctx context.Context, id string) (*domain.NegotiationRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "negotiation", ID: id}
	}
	return rec, nil
}
func (m *memNegRepo) CreateNegotiation(ctx context.Context, rec *domain.NegotiationRecord) error {
	m.records[rec.NegotiationID] = rec
	return nil
}
func (m *memNegRepo) UpdateNegotiation(ctx context.Context, rec *domain.NegotiationRecord) error {
	m.records[rec.NegotiationID] = rec
	return nil
}
func (m *memNegRepo) ListNegotiations(ctx context.Context) ([]domain.NegotiationRecord, error) {
	var out []domain.NegotiationRecord
	for _, r := range m.records {
		out = append(out, *r)
	}
	return out, nil
}

type memKBRepo struct {
	entries   map[string]*domain.KnowledgeEntry
	listCalls int
}

func newMemKBRepo() *memKBRepo {
	return &memKBRepo{entries: make(map[string]*domain.KnowledgeEntry)}
}

func (m *memKBRepo) ListEntries(ctx context.Context) ([]domain.KnowledgeEntry, error) {
	m.listCalls++
	var out []domain.KnowledgeEntry
	for _, e := range m.entries {
		out = append(out, *e)
	}
	return out, nil
}
func (m *memKBRepo) GetEntry(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "knowledge_entry", ID: id}
	}
	cp := *e
	return &cp, nil
}
func (m *memKBRepo) CreateEntry(ctx context.Context, e *domain.KnowledgeEntry) error {
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}
func (m *memKBRepo) UpdateEntry(ctx context.Context, e *domain.KnowledgeEntry) error {
	if _, ok := m.entries[e.ID]; !ok {
		return &domain.ErrNotFound{Resource: "knowledge_entry", ID: e.ID}
	}
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}
func (m *memKBRepo) DeleteEntry(ctx context.Context, id string) error {
	if _, ok := m.entries[id]; !ok {
		return &domain.ErrNotFound{Resource: "knowledge_entry", ID: id}
	}
	delete(m.entries, id)
	return nil
}

type memCatalogRepo struct {
	games   map[string]*domain.GameEntry
	vectors map[string][]float32
}

func newMemCatalogRepo(games ...domain.GameEntry) *memCatalogRepo {
	m := &memCatalogRepo{
		games:   make(map[string]*domain.GameEntry),
		vectors: make(map[string][]float32),
	}
	for i := range games {
		g := games[i]
		m.games[g.ID] = &g
	}
	return m
}

func (m *memCatalogRepo) ListGames(ctx context.Context) ([]domain.GameEntry, error) {
	var out []domain.GameEntry
	for _, g := range m.games {
		out = append(out, *g)
	}
	return out, nil
}
func (m *memCatalogRepo) UpdateGameVector(ctx context.Context, gameID string, vector []float32) error {
	g, ok := m.games[gameID]
	if !ok {
		return &domain.ErrNotFound{Resource: "game", ID: gameID}
	}
	g.Vector = vector
	m.vectors[gameID] = vector
	return nil
}

// --- external collaborators ---

type stubEmbedder struct {
	vec      []float32
	err      error
	docCalls int
	failFor  string // documents containing this substring fail
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}
func (s *stubEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	s.docCalls++
	if s.failFor != "" && contains(text, s.failFor) {
		return nil, &domain.ErrExternalService{Service: "embedding", Err: context.DeadlineExceeded}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

type stubReplier struct {
	result *domain.ReplyResult
	err    error
}

func (s *stubReplier) Generate(ctx context.Context, req *domain.ReplyRequest) (*domain.ReplyResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubClassifier struct {
	signals []*domain.TurnSignal
	call    int
}

func (s *stubClassifier) ClassifyTurn(ctx context.Context, message string) (*domain.TurnSignal, error) {
	sig := s.signals[s.call%len(s.signals)]
	s.call++
	return sig, nil
}

type stubLoyalty struct {
	loyal bool
	err   error
}

func (s *stubLoyalty) IsLoyalCustomer(ctx context.Context, name string) (bool, error) {
	return s.loyal, s.err
}

// --- shared fixtures ---

func testRetrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		FAQTopK:         5,
		FAQMinScore:     0.35,
		GameTopK:        5,
		GameMinScore:    0.30,
		ConfidenceFloor: 0.50,
		MaxContextChars: 6000,
	}
}

func testNegotiationConfig() config.NegotiationConfig {
	return config.NegotiationConfig{
		FloorPct:               2,
		SpreadPct:              5,
		CeilingPct:             15,
		PerRejectionPct:        1.5,
		MaxRejections:          3,
		HighValueCutoff:        1500,
		HighValueTighteningPct: 2,
		LoyaltyBonusPct:        2,
	}
}

func newTestRetriever(kb *memKBRepo, cat *memCatalogRepo) *retrieval.Retriever {
	return retrieval.NewRetriever(
		kb, cat,
		cache.New[[]domain.KnowledgeEntry](time.Minute),
		cache.New[[]domain.GameEntry](time.Minute),
		testRetrievalConfig(),
		observability.NewMetrics(),
		zap.NewNop(),
	)
}
