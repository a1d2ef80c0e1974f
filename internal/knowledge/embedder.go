package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
)

// ErrEmbed indicates the embedding provider call failed or returned an
// unusable vector. Callers must treat this as "no embedding": a
// zero-vector is never returned in place of an error because it would
// corrupt similarity ranking.
var ErrEmbed = errors.New("embedding failed")

// Embedder adapts a Genkit ai.Embedder to the single-text form the
// retrieval pipeline needs. Safe for concurrent use.
type Embedder struct {
	embedder ai.Embedder
	timeout  time.Duration
}

// NewEmbedder wraps embedder with a per-call timeout.
// A timeout of 0 disables the bound (tests only).
func NewEmbedder(embedder ai.Embedder, timeout time.Duration) *Embedder {
	return &Embedder{embedder: embedder, timeout: timeout}
}

// Embed converts text to a fixed-length vector. On any failure it
// returns an error wrapping ErrEmbed, never a zero or empty vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbed, err)
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: provider returned no embedding", ErrEmbed)
	}

	vec := resp.Embeddings[0].Embedding
	if allZero(vec) {
		return nil, fmt.Errorf("%w: provider returned a zero vector", ErrEmbed)
	}

	return vec, nil
}

func allZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
