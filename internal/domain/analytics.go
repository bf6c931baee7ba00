package domain

// PriceBandStats summarizes negotiations on one side of the
// high-value/low-value cutoff.
type PriceBandStats struct {
	Count           int     `json:"count"`
	SuccessCount    int     `json:"successCount"`
	AverageDiscount float64 `json:"averageDiscount"`
}

// Insight is one heuristic finding over the negotiation history.
type Insight struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Priority string `json:"priority"` // high, medium, low
}

// NegotiationReport is the aggregate analytics output.
// Rates are percentages in [0,100]; with zero records all rates are 0.
type NegotiationReport struct {
	TotalNegotiations         int            `json:"totalNegotiations"`
	SuccessCount              int            `json:"successCount"`
	FailedCount               int            `json:"failedCount"`
	AbandonedCount            int            `json:"abandonedCount"`
	SuccessRate               float64        `json:"successRate"`
	AverageDiscount           float64        `json:"averageDiscount"`
	FirstOfferAcceptanceRate  float64        `json:"firstOfferAcceptanceRate"`
	AvgMessagesPerNegotiation float64        `json:"avgMessagesPerNegotiation"`
	HighValue                 PriceBandStats `json:"highValue"`
	LowValue                  PriceBandStats `json:"lowValue"`
	Insights                  []Insight      `json:"insights"`
}
