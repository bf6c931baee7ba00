package domain

// GameEntry is the retrieval-relevant slice of a catalog game.
// Catalog management owns the full record; this engine only reads it
// and maintains the embedding vector.
type GameEntry struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	Platforms      []string  `json:"platforms"`
	Price          float64   `json:"price"`
	AvailableStock int       `json:"availableStock"`
	Vector         []float32 `json:"-"`
}

// EmbeddingText returns the text the game's vector is computed from.
func (g *GameEntry) EmbeddingText() string {
	return g.Title + "\n" + g.Description
}
