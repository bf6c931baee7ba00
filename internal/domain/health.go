package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual service.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// EngineMetrics is returned by GET /v1/metrics/engine.
type EngineMetrics struct {
	TotalTurns         int64   `json:"totalTurns"`
	LowConfidenceRate  float64 `json:"lowConfidenceRate"`
	CacheHitRate       float64 `json:"cacheHitRate"`
	ErrorRate          float64 `json:"errorRate"`
	NegotiationsTotal  int64   `json:"negotiationsTotal"`
	NegotiationSuccess int64   `json:"negotiationSuccess"`
	Period             string  `json:"period"`
}
