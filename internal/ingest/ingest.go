// Package ingest batch-loads the seed knowledge base into the vector
// store. It is invoked from the ingest command, never at serving time.
package ingest

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/growlog/growlog/internal/knowledge"
)

//go:embed seed/*.json
var seedFS embed.FS

const (
	kbSeedFile        = "seed/exercise_knowledge.json"
	nutritionSeedFile = "seed/nutrition_facts.json"
)

// Embedder converts text to a vector. Implemented by
// *knowledge.Embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Target is a writable collection. Implemented by *knowledge.Store.
type Target interface {
	Collection() string
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, id string, vec []float32, item knowledge.Item) error
}

// Loader ingests seed items into the exercise-knowledge and nutrition
// collections.
type Loader struct {
	embedder  Embedder
	kb        Target
	nutrition Target
	logger    *slog.Logger
}

// New creates a Loader.
func New(embedder Embedder, kb, nutrition Target, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{embedder: embedder, kb: kb, nutrition: nutrition, logger: logger}
}

// Run loads both seed files. Individual item failures are logged and
// skipped; Run fails only when a collection cannot be prepared or no
// item at all could be ingested. Returns the number of items upserted.
func (l *Loader) Run(ctx context.Context) (int, error) {
	total := 0
	for _, batch := range []struct {
		file   string
		target Target
	}{
		{kbSeedFile, l.kb},
		{nutritionSeedFile, l.nutrition},
	} {
		n, err := l.load(ctx, batch.file, batch.target)
		if err != nil {
			return total, err
		}
		total += n
	}
	if total == 0 {
		return 0, fmt.Errorf("no seed items could be ingested")
	}
	return total, nil
}

func (l *Loader) load(ctx context.Context, file string, target Target) (int, error) {
	items, err := readSeed(file)
	if err != nil {
		return 0, err
	}
	if err := target.EnsureCollection(ctx); err != nil {
		return 0, fmt.Errorf("prepare collection %s: %w", target.Collection(), err)
	}

	success := 0
	for _, item := range items {
		id := knowledge.ContentID(target.Collection(), item.Category, item.Title)

		vec, err := l.embedder.Embed(ctx, embedText(item))
		if err != nil {
			l.logger.Error("seed item skipped: embedding failed",
				"collection", target.Collection(), "title", item.Title, "error", err)
			continue
		}
		if err := target.Upsert(ctx, id, vec, item); err != nil {
			l.logger.Error("seed item skipped: upsert failed",
				"collection", target.Collection(), "title", item.Title, "error", err)
			continue
		}
		success++
	}

	l.logger.Info("seed batch ingested",
		"collection", target.Collection(), "total", len(items), "success", success)
	return success, nil
}

func readSeed(file string) ([]knowledge.Item, error) {
	data, err := seedFS.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", file, err)
	}
	var items []knowledge.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", file, err)
	}
	return items, nil
}

// embedText is the text an item is indexed under. Title plus content
// for knowledge; food name is the title for nutrition facts.
func embedText(item knowledge.Item) string {
	parts := []string{item.Title, item.Content}
	if item.FoodName != "" && item.FoodName != item.Title {
		parts = append([]string{item.FoodName}, parts...)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
