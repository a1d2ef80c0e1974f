// Package rag implements embedding-based semantic retrieval over the
// knowledge base.
//
// The retriever composes a query string, obtains its embedding, and
// searches the vector store. Retrieval failure always degrades to "no
// grounding": callers receive an empty result set, never an error, so a
// missing or unreachable store can only reduce answer quality, not
// availability.
package rag

import (
	"context"
	"log/slog"
	"strings"

	"github.com/growlog/growlog/internal/knowledge"
)

// DefaultTopK is the number of snippets retrieved when the caller does
// not specify a limit.
const DefaultTopK = 5

// Embedder converts text to a vector. Implemented by *knowledge.Embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher performs top-k vector search. Implemented by *knowledge.Store.
type Searcher interface {
	Search(ctx context.Context, vec []float32, topK int) ([]knowledge.Result, error)
}

// Snippet is one ranked retrieval hit used to ground generated text.
type Snippet struct {
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	Category string  `json:"category"`
	Score    float32 `json:"score"`
}

// NutritionFact holds grounded macro-nutrient figures for a food.
// Macro pointers are nil when the knowledge base has no value.
type NutritionFact struct {
	FoodName    string `json:"foodName"`
	ServingSize string `json:"servingSize,omitempty"`
	Calories    *int   `json:"calories"`
	Carbs       *int   `json:"carbs"`
	Protein     *int   `json:"protein"`
	Fat         *int   `json:"fat"`
}

// Retriever resolves queries against the exercise-knowledge and
// nutrition collections. Safe for concurrent use.
type Retriever struct {
	embedder  Embedder
	kb        Searcher
	nutrition Searcher
	logger    *slog.Logger
}

// New creates a Retriever. Either searcher may be nil, in which case
// the corresponding lookups return empty results.
func New(embedder Embedder, kb, nutrition Searcher, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder:  embedder,
		kb:        kb,
		nutrition: nutrition,
		logger:    logger,
	}
}

// Retrieve returns up to topK knowledge snippets ranked by descending
// similarity. Any failure along the way (embedding, store unreachable,
// store not configured) logs and returns an empty slice.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) []Snippet {
	if r == nil || r.kb == nil || strings.TrimSpace(query) == "" {
		return nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn("retrieval degraded: embedding failed", "error", err)
		return nil
	}

	results, err := r.kb.Search(ctx, vec, topK)
	if err != nil {
		r.logger.Warn("retrieval degraded: search failed", "error", err)
		return nil
	}

	snippets := make([]Snippet, 0, len(results))
	for _, res := range results {
		snippets = append(snippets, Snippet{
			Title:    res.Item.Title,
			Content:  res.Item.Content,
			Category: res.Item.Category,
			Score:    res.Score,
		})
	}
	return snippets
}

// Nutrition resolves macro-nutrient facts for a food name via top-1
// similarity search against the nutrition collection. The second return
// is false when no fact could be resolved (absent data, embedding or
// store failure).
func (r *Retriever) Nutrition(ctx context.Context, foodName string) (*NutritionFact, bool) {
	if r == nil || r.nutrition == nil || strings.TrimSpace(foodName) == "" {
		return nil, false
	}

	vec, err := r.embedder.Embed(ctx, foodName)
	if err != nil {
		r.logger.Warn("nutrition lookup degraded: embedding failed", "food", foodName, "error", err)
		return nil, false
	}

	results, err := r.nutrition.Search(ctx, vec, 1)
	if err != nil {
		r.logger.Warn("nutrition lookup degraded: search failed", "food", foodName, "error", err)
		return nil, false
	}
	if len(results) == 0 {
		r.logger.Debug("no nutrition fact found", "food", foodName)
		return nil, false
	}

	item := results[0].Item
	if item.Calories == nil && item.Carbs == nil && item.Protein == nil && item.Fat == nil {
		// A hit without any macro values cannot ground anything.
		return nil, false
	}

	name := item.FoodName
	if name == "" {
		name = item.Title
	}

	return &NutritionFact{
		FoodName:    name,
		ServingSize: item.ServingSize,
		Calories:    item.Calories,
		Carbs:       item.Carbs,
		Protein:     item.Protein,
		Fat:         item.Fat,
	}, true
}

// PainQuery composes the retrieval query for a pain report.
func PainQuery(bodyPart, note string) string {
	q := bodyPart + " pain"
	if note != "" {
		q += " " + note
	}
	return q
}
