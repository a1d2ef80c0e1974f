package pain

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growlog/growlog/internal/log"
	"github.com/growlog/growlog/internal/rag"
	"github.com/growlog/growlog/internal/synth"
)

type fakeRetriever struct {
	snippets  []rag.Snippet
	lastQuery string
	lastTopK  int
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, topK int) []rag.Snippet {
	f.lastQuery = query
	f.lastTopK = topK
	return f.snippets
}

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

func TestLevelFor(t *testing.T) {
	tests := []struct {
		count int
		want  Level
	}{
		{0, LevelLow},
		{1, LevelLow},
		{2, LevelLow},
		{3, LevelHigh},
		{10, LevelHigh},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.count), func(t *testing.T) {
			assert.Equal(t, tt.want, LevelFor(tt.count))
		})
	}
}

func TestAdviseForPainGrounded(t *testing.T) {
	retriever := &fakeRetriever{snippets: []rag.Snippet{
		{Title: "Shoulder mobility basics", Content: "...", Category: "recovery", Score: 0.91},
		{Title: "Rotator cuff care", Content: "...", Category: "recovery", Score: 0.84},
	}}
	llm := &fakeCompleter{text: "Rest the shoulder and keep the load light for a few days."}
	a := New(retriever, llm, "", 0.5, 5, log.NewNop())

	adv := a.AdviseForPain(context.Background(), "SHOULDER", 1, "after bench press")

	assert.Equal(t, LevelLow, adv.Level)
	assert.Equal(t, llm.text, adv.AdviceText)

	// The caller gets the full retrieval hits, not just titles.
	require.Len(t, adv.Sources, 2)
	assert.Equal(t, retriever.snippets, adv.Sources)
	assert.Equal(t, "recovery", adv.Sources[0].Category)
	assert.InDelta(t, 0.91, adv.Sources[0].Score, 0.001)

	assert.Equal(t, "SHOULDER pain after bench press", retriever.lastQuery)
	assert.Equal(t, 5, retriever.lastTopK)
	require.Len(t, llm.lastReq.Snippets, 2)
	assert.InDelta(t, 0.5, llm.lastReq.Temperature, 0.001)
}

func TestAdviseForPainFallsBackOnGenerationFailure(t *testing.T) {
	// Retrieval and generation both failing must still produce usable
	// advice at the right level.
	retriever := &fakeRetriever{}
	llm := &fakeCompleter{err: errors.New("model unavailable")}
	a := New(retriever, llm, "", 0.5, 5, log.NewNop())

	adv := a.AdviseForPain(context.Background(), "KNEE", 5, "")

	assert.Equal(t, LevelHigh, adv.Level)
	assert.Contains(t, adv.AdviceText, "KNEE")
	assert.Contains(t, adv.AdviceText, "5")
	assert.Nil(t, adv.Sources)
}

func TestAdviseForPainNoSnippetsNoSources(t *testing.T) {
	retriever := &fakeRetriever{}
	llm := &fakeCompleter{text: "Take it easy for a while."}
	a := New(retriever, llm, "", 0.5, 5, log.NewNop())

	adv := a.AdviseForPain(context.Background(), "BACK", 2, "")

	assert.Equal(t, LevelLow, adv.Level)
	assert.Nil(t, adv.Sources)
}

func TestNewTopKDefault(t *testing.T) {
	retriever := &fakeRetriever{}
	llm := &fakeCompleter{text: "ok"}
	a := New(retriever, llm, "", 0.5, 0, log.NewNop())

	a.AdviseForPain(context.Background(), "ARM", 1, "")

	assert.Equal(t, rag.DefaultTopK, retriever.lastTopK)
}
