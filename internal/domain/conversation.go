package domain

import "time"

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is one turn fragment in a conversation or negotiation.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// RAGMetrics captures retrieval quality for a single turn.
type RAGMetrics struct {
	Query            string  `json:"query"`
	FAQRetrieved     int     `json:"faqRetrieved"`
	GamesRetrieved   int     `json:"gamesRetrieved"`
	FAQAvgScore      float64 `json:"faqAvgScore"`
	GameAvgScore     float64 `json:"gameAvgScore"`
	HasLowConfidence bool    `json:"hasLowConfidence"`
	ContextLength    int     `json:"contextLength"`
}

// ResponseMetrics captures reply-generation cost for a single turn.
type ResponseMetrics struct {
	ModelUsed      string `json:"modelUsed"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
}

// TurnMetrics attaches RAG and response metrics to the turn that
// produced them. Never retroactively edited.
type TurnMetrics struct {
	Turn     int              `json:"turn"`
	RAG      *RAGMetrics      `json:"rag,omitempty"`
	Response *ResponseMetrics `json:"response,omitempty"`
}

// Feedback is the single per-chat feedback record. Resubmission
// overwrites; this is not a log.
type Feedback struct {
	Helpful     bool      `json:"helpful"`
	Rating      *int      `json:"rating,omitempty"` // 1..5 when present
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// ConversationRecord is the persisted state of one support chat.
// Once ConversationEnded is true no further user turns are accepted,
// though feedback and admin annotations remain allowed.
type ConversationRecord struct {
	ChatID            string        `json:"chatId"`
	Messages          []Message     `json:"messages"`
	Metrics           []TurnMetrics `json:"metrics,omitempty"`
	Feedback          *Feedback     `json:"feedback,omitempty"`
	NeedsReview       bool          `json:"needsReview"`
	Reviewed          bool          `json:"reviewed"`
	AdminNotes        string        `json:"adminNotes,omitempty"`
	ConversationEnded bool          `json:"conversationEnded"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// TurnCount returns the number of user messages so far.
func (c *ConversationRecord) TurnCount() int {
	n := 0
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// TurnResult is what the chat surface returns for a processed turn.
type TurnResult struct {
	ChatID            string `json:"chatId"`
	Reply             string `json:"reply"`
	ConversationEnded bool   `json:"conversationEnded"`
}

// ReplyRequest is the payload sent to the external reply generator.
type ReplyRequest struct {
	ChatID           string    `json:"chat_id"`
	Query            string    `json:"query"`
	Context          string    `json:"context"`
	HasLowConfidence bool      `json:"has_low_confidence"`
	History          []Message `json:"history,omitempty"`
}

// ReplyResult is the reply generator's answer plus turn metadata.
type ReplyResult struct {
	Content           string `json:"content"`
	ConversationEnded bool   `json:"conversation_ended"`
	ModelUsed         string `json:"model_used"`
	ResponseTimeMs    int64  `json:"-"` // measured client-side
}
