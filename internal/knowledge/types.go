package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VectorDim is the fixed embedding dimension for all collections.
// It matches the configured embedder's output; collection tables are
// created with vector(VectorDim) columns and cosine distance indexes.
const VectorDim = 1536

// Item is a knowledge base entry. Items are created at ingestion time
// and are read-only at serving time. Macro fields are only populated
// for nutrition items.
type Item struct {
	ID           string   `json:"id"`
	Category     string   `json:"category"`
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	BodyPart     string   `json:"bodyPart,omitempty"`
	ExerciseName string   `json:"exerciseName,omitempty"`
	Tags         []string `json:"tags,omitempty"`

	// Nutrition payload (nutrition collection only).
	FoodName    string `json:"foodName,omitempty"`
	ServingSize string `json:"servingSize,omitempty"`
	Calories    *int   `json:"calories,omitempty"`
	Carbs       *int   `json:"carbs,omitempty"`
	Protein     *int   `json:"protein,omitempty"`
	Fat         *int   `json:"fat,omitempty"`
}

// Result is a single vector search hit. Score is cosine similarity,
// higher is more relevant.
type Result struct {
	Item  Item
	Score float32
}

// ContentID derives a stable, deterministic point id from the item's
// natural key parts. Repeated ingestion of the same logical item
// produces the same id, so upserts overwrite instead of duplicating,
// across process runs and platforms.
func ContentID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
