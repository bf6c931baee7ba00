package retrieval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/switchmart/assistant-engine/internal/config"
)

// AssembledContext is the prompt context built from retrieval results.
type AssembledContext struct {
	Text             string
	ContextLength    int
	HasLowConfidence bool
}

const snippetSeparator = "\n\n"

// Assemble merges FAQ and game snippets into a single context string
// bounded by cfg.MaxContextChars. Snippets are taken in descending
// score order; one that does not fit is skipped whole and lower-scored
// candidates are still tried, so the budget is never split mid-snippet.
//
// HasLowConfidence is set when the best score across both corpora is
// below cfg.ConfidenceFloor, and always when neither corpus returned a
// match, whatever the floor.
func Assemble(results *Results, cfg config.RetrievalConfig) AssembledContext {
	type candidate struct {
		score float64
		text  string
	}

	candidates := make([]candidate, 0, len(results.FAQ)+len(results.Games))
	for _, f := range results.FAQ {
		candidates = append(candidates, candidate{
			score: f.Score,
			text:  fmt.Sprintf("Q: %s\nA: %s", f.Entry.Question, f.Entry.Answer),
		})
	}
	for _, g := range results.Games {
		candidates = append(candidates, candidate{
			score: g.Score,
			text: fmt.Sprintf("Game: %s (%.2f, %d in stock)\n%s",
				g.Game.Title, g.Game.Price, g.Game.AvailableStock, g.Game.Description),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	var sb strings.Builder
	used := 0
	for _, c := range candidates {
		cost := len(c.text)
		if used > 0 {
			cost += len(snippetSeparator)
		}
		if used+cost > cfg.MaxContextChars {
			continue
		}
		if used > 0 {
			sb.WriteString(snippetSeparator)
		}
		sb.WriteString(c.text)
		used += cost
	}

	lowConfidence := true
	if len(results.FAQ) > 0 || len(results.Games) > 0 {
		best := 0.0
		if len(results.FAQ) > 0 {
			best = results.FAQ[0].Score
		}
		if len(results.Games) > 0 && results.Games[0].Score > best {
			best = results.Games[0].Score
		}
		lowConfidence = best < cfg.ConfidenceFloor
	}

	return AssembledContext{
		Text:             sb.String(),
		ContextLength:    used,
		HasLowConfidence: lowConfidence,
	}
}
