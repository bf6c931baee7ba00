package domain

import "time"

// NegotiationStatus is the state of a price negotiation.
// The only legal transitions are ongoing -> {success, failed, abandoned};
// all three targets are terminal and final.
type NegotiationStatus string

const (
	NegotiationOngoing   NegotiationStatus = "ongoing"
	NegotiationSuccess   NegotiationStatus = "success"
	NegotiationFailed    NegotiationStatus = "failed"
	NegotiationAbandoned NegotiationStatus = "abandoned"
)

// Terminal reports whether the status permits no further transitions.
func (s NegotiationStatus) Terminal() bool {
	return s == NegotiationSuccess || s == NegotiationFailed || s == NegotiationAbandoned
}

// CartItem is one line of the cart snapshot frozen at negotiation start.
type CartItem struct {
	GameID    string  `json:"gameId"`
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// NegotiationRecord is the persisted state of one price negotiation.
// CartItems and TotalAmount are snapshots taken on the first turn and
// never mutated by later cart changes. FinalDiscount is set exactly once,
// on the success transition.
type NegotiationRecord struct {
	NegotiationID  string            `json:"negotiationId"`
	Messages       []Message         `json:"messages"`
	CartItems      []CartItem        `json:"cartItems"`
	TotalAmount    float64           `json:"totalAmount"`
	FinalDiscount  float64           `json:"finalDiscount"`
	CustomerName   string            `json:"customerName,omitempty"`
	RejectionCount int               `json:"rejectionCount"`
	Status         NegotiationStatus `json:"status"`
	LoyaltyApplied bool              `json:"loyaltyApplied"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// Sentiment is the classifier's read of the customer's latest message.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// TurnSignal is the structured output of the external NLU classifier
// for one negotiation turn. ProposedDiscountPct is nil when the customer
// made no concrete counter-offer.
type TurnSignal struct {
	ProposedDiscountPct *float64  `json:"proposed_discount_pct,omitempty"`
	Sentiment           Sentiment `json:"sentiment"`
}

// NegotiationTurnRequest is the inbound payload for a negotiation turn.
// CartItems, TotalAmount and CustomerName are only honored on the first
// turn, when the snapshot is frozen.
type NegotiationTurnRequest struct {
	Message      string     `json:"message"`
	CartItems    []CartItem `json:"cartItems,omitempty"`
	TotalAmount  float64    `json:"totalAmount,omitempty"`
	CustomerName string     `json:"customerName,omitempty"`
}

// NegotiationTurnResult is what the negotiation surface returns.
// OfferedDiscount is the engine's current counter-offer, always within
// the allowable band; the reply layer phrases it to the customer.
type NegotiationTurnResult struct {
	NegotiationID   string            `json:"negotiationId"`
	Status          NegotiationStatus `json:"status"`
	OfferedDiscount float64           `json:"offeredDiscount"`
	FinalDiscount   float64           `json:"finalDiscount,omitempty"`
	RejectionCount  int               `json:"rejectionCount"`
}
