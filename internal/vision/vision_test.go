package vision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growlog/growlog/internal/log"
	"github.com/growlog/growlog/internal/rag"
	"github.com/growlog/growlog/internal/synth"
)

type fakeCompleter struct {
	text    string
	err     error
	lastReq synth.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req synth.Request) (*synth.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &synth.Response{Text: f.text}, nil
}

type fakeFacts struct {
	facts   map[string]*rag.NutritionFact
	queries []string
}

func (f *fakeFacts) Nutrition(_ context.Context, foodName string) (*rag.NutritionFact, bool) {
	f.queries = append(f.queries, foodName)
	fact, ok := f.facts[foodName]
	return fact, ok
}

func intp(v int) *int { return &v }

const imageB64 = "aGVsbG8="

func TestAnalyzeImageGroundedHit(t *testing.T) {
	llm := &fakeCompleter{text: `{"foodName": "Kimchi fried rice", "searchKeywords": ["kimchi fried rice", "fried rice"]}`}
	facts := &fakeFacts{facts: map[string]*rag.NutritionFact{
		"fried rice": {FoodName: "Fried rice", ServingSize: "1 plate", Calories: intp(520), Carbs: intp(70), Protein: intp(14), Fat: intp(18)},
	}}
	b := New(llm, facts, "", log.NewNop())

	got, err := b.AnalyzeImage(context.Background(), imageB64)
	require.NoError(t, err)

	assert.Equal(t, "Kimchi fried rice", got.FoodName)
	assert.Equal(t, ConfidenceGrounded, got.Confidence)
	require.NotNil(t, got.Macros)
	assert.Equal(t, 520, *got.Macros.Calories)
	assert.Equal(t, "1 plate", got.ServingSize)

	// First keyword missed, second hit; search stops there.
	assert.Equal(t, []string{"kimchi fried rice", "fried rice"}, facts.queries)

	require.NotNil(t, llm.lastReq.Image)
	assert.Equal(t, imageB64, llm.lastReq.Image.Base64)
}

func TestAnalyzeImageLookupMiss(t *testing.T) {
	llm := &fakeCompleter{text: `{"foodName": "Mystery casserole", "searchKeywords": ["casserole"]}`}
	b := New(llm, &fakeFacts{}, "", log.NewNop())

	got, err := b.AnalyzeImage(context.Background(), imageB64)
	require.NoError(t, err)

	// Identification survives, but ungrounded: no macros, lower
	// confidence.
	assert.Equal(t, "Mystery casserole", got.FoodName)
	assert.Equal(t, ConfidenceUngrounded, got.Confidence)
	assert.Nil(t, got.Macros)
}

func TestAnalyzeImageExtractionFailureIsFatal(t *testing.T) {
	tests := []struct {
		name string
		llm  *fakeCompleter
	}{
		{"service error", &fakeCompleter{err: errors.New("vision model down")}},
		{"not json", &fakeCompleter{text: "that looks like pasta"}},
		{"empty food name", &fakeCompleter{text: `{"foodName": "  ", "searchKeywords": []}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.llm, &fakeFacts{}, "", log.NewNop())
			_, err := b.AnalyzeImage(context.Background(), imageB64)
			assert.Error(t, err)
		})
	}
}

func TestAnalyzeImageEmptyInput(t *testing.T) {
	b := New(&fakeCompleter{}, &fakeFacts{}, "", log.NewNop())
	_, err := b.AnalyzeImage(context.Background(), "")
	assert.Error(t, err)
}
