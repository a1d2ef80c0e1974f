package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growlog/growlog/internal/knowledge"
	"github.com/growlog/growlog/internal/log"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vec := make([]float32, knowledge.VectorDim)
	vec[0] = float32(len(text))
	return vec, nil
}

type fakeTarget struct {
	name      string
	ensureErr error
	upsertErr error
	upserts   map[string]knowledge.Item
}

func newFakeTarget(name string) *fakeTarget {
	return &fakeTarget{name: name, upserts: make(map[string]knowledge.Item)}
}

func (f *fakeTarget) Collection() string { return f.name }

func (f *fakeTarget) EnsureCollection(context.Context) error { return f.ensureErr }

func (f *fakeTarget) Upsert(_ context.Context, id string, _ []float32, item knowledge.Item) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts[id] = item
	return nil
}

func TestRunIngestsBothSeedFiles(t *testing.T) {
	kb := newFakeTarget("exercise_knowledge")
	nut := newFakeTarget("nutrition_facts")
	l := New(&fakeEmbedder{}, kb, nut, log.NewNop())

	n, err := l.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, len(kb.upserts)+len(nut.upserts), n)
	assert.NotEmpty(t, kb.upserts)
	assert.NotEmpty(t, nut.upserts)

	// Nutrition items carry macro payloads.
	found := false
	for _, item := range nut.upserts {
		if item.FoodName == "Grilled chicken breast" {
			found = true
			require.NotNil(t, item.Calories)
			assert.Equal(t, 248, *item.Calories)
		}
	}
	assert.True(t, found)
}

func TestRunIdempotentIDs(t *testing.T) {
	kb := newFakeTarget("exercise_knowledge")
	nut := newFakeTarget("nutrition_facts")
	l := New(&fakeEmbedder{}, kb, nut, log.NewNop())

	_, err := l.Run(context.Background())
	require.NoError(t, err)
	first := len(kb.upserts) + len(nut.upserts)

	// Re-ingestion overwrites by stable id instead of duplicating.
	_, err = l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, len(kb.upserts)+len(nut.upserts))
}

func TestRunFailsWhenCollectionUnavailable(t *testing.T) {
	kb := newFakeTarget("exercise_knowledge")
	kb.ensureErr = errors.New("connection refused")
	l := New(&fakeEmbedder{}, kb, newFakeTarget("nutrition_facts"), log.NewNop())

	_, err := l.Run(context.Background())
	assert.Error(t, err)
}

func TestRunFailsWhenNothingIngested(t *testing.T) {
	l := New(&fakeEmbedder{err: errors.New("quota exhausted")},
		newFakeTarget("exercise_knowledge"), newFakeTarget("nutrition_facts"), log.NewNop())

	_, err := l.Run(context.Background())
	assert.Error(t, err)
}
