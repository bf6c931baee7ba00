package retrieval_test

import (
	"strings"
	"testing"

	"github.com/switchmart/assistant-engine/internal/domain"
	"github.com/switchmart/assistant-engine/internal/retrieval"
)

func faqResult(id, question, answer string, score float64) retrieval.ScoredFAQ {
	return retrieval.ScoredFAQ{
		Entry: domain.KnowledgeEntry{ID: id, Question: question, Answer: answer},
		Score: score,
	}
}

func TestAssemble_OrdersByScore(t *testing.T) {
	res := &retrieval.Results{
		FAQ: []retrieval.ScoredFAQ{
			faqResult("1", "shipping time", "3-5 days", 0.9),
			faqResult("2", "refund policy", "30 days", 0.6),
		},
		Games: []retrieval.ScoredGame{
			{Game: domain.GameEntry{Title: "Zelda", Price: 59.99, AvailableStock: 4}, Score: 0.75},
		},
	}

	ctx := retrieval.Assemble(res, testRetrievalConfig())

	shipIdx := strings.Index(ctx.Text, "shipping time")
	zeldaIdx := strings.Index(ctx.Text, "Zelda")
	refundIdx := strings.Index(ctx.Text, "refund policy")
	if shipIdx < 0 || zeldaIdx < 0 || refundIdx < 0 {
		t.Fatalf("expected all snippets present, got:\n%s", ctx.Text)
	}
	if !(shipIdx < zeldaIdx && zeldaIdx < refundIdx) {
		t.Errorf("snippets not in score order:\n%s", ctx.Text)
	}
	if ctx.ContextLength != len(ctx.Text) {
		t.Errorf("ContextLength %d does not match text length %d", ctx.ContextLength, len(ctx.Text))
	}
}

func TestAssemble_BudgetSkipsWholeSnippets(t *testing.T) {
	long := strings.Repeat("x", 200)
	res := &retrieval.Results{
		FAQ: []retrieval.ScoredFAQ{
			faqResult("big", "big question", long, 0.9),
			faqResult("small", "small", "fits", 0.6),
		},
	}

	cfg := testRetrievalConfig()
	cfg.MaxContextChars = 60

	ctx := retrieval.Assemble(res, cfg)

	if strings.Contains(ctx.Text, long[:50]) {
		t.Error("oversized snippet must be skipped whole, not truncated")
	}
	if !strings.Contains(ctx.Text, "small") {
		t.Error("smaller snippet should still be included after a skip")
	}
	if ctx.ContextLength > cfg.MaxContextChars {
		t.Errorf("context length %d exceeds budget %d", ctx.ContextLength, cfg.MaxContextChars)
	}
}

func TestAssemble_EmptyResultsAreLowConfidence(t *testing.T) {
	ctx := retrieval.Assemble(&retrieval.Results{}, testRetrievalConfig())

	if !ctx.HasLowConfidence {
		t.Error("no matches in either corpus must flag low confidence")
	}
	if ctx.Text != "" || ctx.ContextLength != 0 {
		t.Errorf("expected empty context, got %q", ctx.Text)
	}
}

func TestAssemble_EmptyResultsAreLowConfidenceAtZeroFloor(t *testing.T) {
	cfg := testRetrievalConfig()
	cfg.ConfidenceFloor = 0

	ctx := retrieval.Assemble(&retrieval.Results{}, cfg)

	if !ctx.HasLowConfidence {
		t.Error("no matches must flag low confidence even with a zero floor")
	}
}

func TestAssemble_OneStrongCorpusIsEnough(t *testing.T) {
	res := &retrieval.Results{
		FAQ: []retrieval.ScoredFAQ{
			faqResult("1", "q", "a", 0.92),
		},
	}

	ctx := retrieval.Assemble(res, testRetrievalConfig())
	if ctx.HasLowConfidence {
		t.Error("a strong FAQ match alone must not flag low confidence")
	}
}

func TestAssemble_WeakMatchesAreLowConfidence(t *testing.T) {
	res := &retrieval.Results{
		FAQ: []retrieval.ScoredFAQ{
			faqResult("1", "q", "a", 0.40),
		},
		Games: []retrieval.ScoredGame{
			{Game: domain.GameEntry{Title: "Game"}, Score: 0.45},
		},
	}

	ctx := retrieval.Assemble(res, testRetrievalConfig())
	if !ctx.HasLowConfidence {
		t.Error("matches all below the floor must flag low confidence")
	}
}

func TestAssemble_Deterministic(t *testing.T) {
	res := &retrieval.Results{
		FAQ: []retrieval.ScoredFAQ{
			faqResult("1", "first", "a", 0.7),
			faqResult("2", "second", "a", 0.7),
		},
	}

	first := retrieval.Assemble(res, testRetrievalConfig())
	for i := 0; i < 5; i++ {
		if got := retrieval.Assemble(res, testRetrievalConfig()); got.Text != first.Text {
			t.Fatal("assembly must be deterministic for equal inputs")
		}
	}
}
