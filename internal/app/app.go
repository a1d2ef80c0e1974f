// Package app wires the application together: configuration, storage,
// model provider, and the pipeline components built on top of them.
package app

import (
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/growlog/growlog/internal/classifier"
	"github.com/growlog/growlog/internal/config"
	"github.com/growlog/growlog/internal/knowledge"
	"github.com/growlog/growlog/internal/log"
	"github.com/growlog/growlog/internal/nutrition"
	"github.com/growlog/growlog/internal/pain"
	"github.com/growlog/growlog/internal/rag"
	"github.com/growlog/growlog/internal/synth"
	"github.com/growlog/growlog/internal/vision"
)

// App is the application container. All fields are process-wide
// singletons, constructed once in Setup and shared read-mostly across
// requests.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	DBPool   *pgxpool.Pool
	Embedder *knowledge.Embedder

	KnowledgeStore *knowledge.Store
	NutritionStore *knowledge.Store

	Retriever   *rag.Retriever
	Synthesizer *synth.Synthesizer
	Classifier  *classifier.Classifier
	Advisor     *pain.Advisor
	Planner     *nutrition.Planner
	Bridge      *vision.Bridge

	// Lifecycle management
	dbCleanup   func()
	otelCleanup func()
}

// Close releases resources in reverse construction order.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
