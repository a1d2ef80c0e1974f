// Package vision identifies food in an image and resolves its
// nutrition facts through the knowledge base.
package vision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/growlog/growlog/internal/rag"
	"github.com/growlog/growlog/internal/synth"
)

// Confidence levels for an analyzed food. Grounded means the knowledge
// base confirmed the identification; ungrounded means only the model's
// visual guess is available.
const (
	ConfidenceGrounded   = 0.9
	ConfidenceUngrounded = 0.7
)

// defaultMIMEType is assumed for uploads that do not declare one.
const defaultMIMEType = "image/jpeg"

// AnalyzedFood is the result of one image analysis. Macros is nil when
// the knowledge base has no matching fact.
type AnalyzedFood struct {
	FoodName    string             `json:"foodName"`
	ServingSize string             `json:"servingSize,omitempty"`
	Macros      *rag.NutritionFact `json:"macros,omitempty"`
	Confidence  float64            `json:"confidence"`
}

// Completer issues one completion call. Implemented by
// *synth.Synthesizer.
type Completer interface {
	Complete(ctx context.Context, req synth.Request) (*synth.Response, error)
}

// FactLookup resolves nutrition facts. Implemented by *rag.Retriever.
type FactLookup interface {
	Nutrition(ctx context.Context, foodName string) (*rag.NutritionFact, bool)
}

// Bridge runs the vision-to-nutrition pipeline. Safe for concurrent
// use.
type Bridge struct {
	llm    Completer
	facts  FactLookup
	model  string
	logger *slog.Logger
}

// New creates a Bridge. model may be empty to use the synthesizer's
// default vision-capable model.
func New(llm Completer, facts FactLookup, model string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{llm: llm, facts: facts, model: model, logger: logger}
}

// extraction is the wire shape the vision call returns.
type extraction struct {
	FoodName       string   `json:"foodName"`
	SearchKeywords []string `json:"searchKeywords"`
}

const extractSystem = `You identify food in photos. Respond with a single
JSON object only, no markdown:
{"foodName": the dish name, "searchKeywords": 2-4 short search terms for
looking the dish up, most specific first}`

// AnalyzeImage identifies the food in a base64-encoded image and
// resolves its macros against the knowledge base. Extraction failure is
// fatal: with no food identity there is no safe default. A failed
// knowledge lookup is not: the identification is returned ungrounded
// with nil macros and reduced confidence.
func (b *Bridge) AnalyzeImage(ctx context.Context, imageBase64 string) (*AnalyzedFood, error) {
	if strings.TrimSpace(imageBase64) == "" {
		return nil, fmt.Errorf("analyze image: %w: empty image", synth.ErrMalformedOutput)
	}

	resp, err := b.llm.Complete(ctx, synth.Request{
		System:     extractSystem,
		Prompt:     "Identify the food in this photo.",
		Image:      &synth.ImagePart{MIMEType: defaultMIMEType, Base64: imageBase64},
		JSONOutput: true,
		Model:      b.model,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze image: %w", err)
	}

	var ext extraction
	if err := resp.Decode(&ext); err != nil {
		return nil, fmt.Errorf("analyze image: %w", err)
	}
	ext.FoodName = strings.TrimSpace(ext.FoodName)
	if ext.FoodName == "" {
		return nil, fmt.Errorf("analyze image: %w: no food name extracted", synth.ErrMalformedOutput)
	}

	// Keywords in declared order, then the food name itself; first
	// grounded hit wins.
	keywords := append([]string{}, ext.SearchKeywords...)
	keywords = append(keywords, ext.FoodName)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if fact, ok := b.facts.Nutrition(ctx, kw); ok {
			return &AnalyzedFood{
				FoodName:    ext.FoodName,
				ServingSize: fact.ServingSize,
				Macros:      fact,
				Confidence:  ConfidenceGrounded,
			}, nil
		}
	}

	b.logger.Info("food identified but not grounded", "food", ext.FoodName)
	return &AnalyzedFood{FoodName: ext.FoodName, Confidence: ConfidenceUngrounded}, nil
}
