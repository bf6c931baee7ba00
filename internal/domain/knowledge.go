package domain

import "time"

// KnowledgeCategory classifies a FAQ entry. The set is fixed; admin
// mutations with any other value are rejected.
type KnowledgeCategory string

const (
	CategoryPayment  KnowledgeCategory = "payment"
	CategoryRental   KnowledgeCategory = "rental"
	CategoryTrade    KnowledgeCategory = "trade"
	CategoryShipping KnowledgeCategory = "shipping"
	CategoryGeneral  KnowledgeCategory = "general"
)

// ValidCategory reports whether c is one of the enumerated categories.
func ValidCategory(c KnowledgeCategory) bool {
	switch c {
	case CategoryPayment, CategoryRental, CategoryTrade, CategoryShipping, CategoryGeneral:
		return true
	}
	return false
}

// Maximum lengths for knowledge-base text fields.
const (
	MaxQuestionLen = 500
	MaxAnswerLen   = 4000
)

// KnowledgeEntry is one FAQ record in the support corpus.
// Vector is always the embedding of the current Question+Answer text;
// it is re-computed on every text change and never serialized to clients.
type KnowledgeEntry struct {
	ID        string            `json:"id"`
	Question  string            `json:"question"`
	Answer    string            `json:"answer"`
	Category  KnowledgeCategory `json:"category"`
	Tags      []string          `json:"tags,omitempty"`
	Priority  int               `json:"priority"`
	Vector    []float32         `json:"-"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// EmbeddingText returns the text that must back the entry's vector.
func (e *KnowledgeEntry) EmbeddingText() string {
	return e.Question + "\n" + e.Answer
}
