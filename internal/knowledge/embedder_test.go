package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder implements ai.Embedder with canned behavior.
type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(_ api.Registry) {}

func (m *mockEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.vec == nil {
		return &ai.EmbedResponse{}, nil
	}
	embeddings := make([]*ai.Embedding, len(req.Input))
	for i := range req.Input {
		embeddings[i] = &ai.Embedding{Embedding: m.vec}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func TestEmbed(t *testing.T) {
	e := NewEmbedder(&mockEmbedder{vec: []float32{0.1, 0.2, 0.3}}, 0)

	vec, err := e.Embed(context.Background(), "bench press shoulder pain")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedFailuresNeverYieldZeroVectors(t *testing.T) {
	tests := []struct {
		name string
		mock *mockEmbedder
	}{
		{"provider error", &mockEmbedder{err: errors.New("quota exceeded")}},
		{"no embeddings", &mockEmbedder{}},
		{"zero vector", &mockEmbedder{vec: []float32{0, 0, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEmbedder(tt.mock, 0)

			vec, err := e.Embed(context.Background(), "anything")

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrEmbed)
			assert.Nil(t, vec)
		})
	}
}
