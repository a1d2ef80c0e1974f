// Package pain maps symptom reports to a severity level and produces
// grounded, non-diagnostic advice text.
package pain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/growlog/growlog/internal/rag"
	"github.com/growlog/growlog/internal/synth"
)

// Level is the severity bucket derived from how often a symptom has
// been reported.
type Level string

const (
	LevelLow  Level = "LOW"
	LevelHigh Level = "HIGH"
)

// LevelFor buckets an occurrence count. Two or fewer reports is LOW,
// three or more is HIGH.
func LevelFor(count int) Level {
	if count <= 2 {
		return LevelLow
	}
	return LevelHigh
}

// Advice is the complete answer for one pain report. Sources carries
// the full retrieval hits the text was grounded in, scores included;
// it is nil when nothing was retrieved or generation fell back to the
// deterministic template.
type Advice struct {
	Level      Level         `json:"level"`
	AdviceText string        `json:"adviceText"`
	Sources    []rag.Snippet `json:"sources,omitempty"`
}

// Retriever fetches grounding snippets. Implemented by *rag.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) []rag.Snippet
}

// Completer issues one completion call. Implemented by
// *synth.Synthesizer.
type Completer interface {
	Complete(ctx context.Context, req synth.Request) (*synth.Response, error)
}

// Advisor produces leveled pain advice. Safe for concurrent use.
type Advisor struct {
	retriever   Retriever
	llm         Completer
	model       string
	temperature float32
	topK        int
	logger      *slog.Logger
}

// New creates an Advisor. model may be empty to use the synthesizer's
// default; topK values below 1 fall back to rag.DefaultTopK.
func New(retriever Retriever, llm Completer, model string, temperature float32, topK int, logger *slog.Logger) *Advisor {
	if logger == nil {
		logger = slog.Default()
	}
	if topK < 1 {
		topK = rag.DefaultTopK
	}
	return &Advisor{
		retriever:   retriever,
		llm:         llm,
		model:       model,
		temperature: temperature,
		topK:        topK,
		logger:      logger,
	}
}

// AdviseForPain returns leveled advice for a body part reported count
// times, optionally with a free-text note. It never fails: retrieval
// problems just reduce grounding, and generation failure yields a
// deterministic template with no sources.
func (a *Advisor) AdviseForPain(ctx context.Context, bodyPart string, count int, note string) Advice {
	level := LevelFor(count)

	snippets := a.retriever.Retrieve(ctx, rag.PainQuery(bodyPart, note), a.topK)

	resp, err := a.llm.Complete(ctx, synth.Request{
		System:      adviceSystem,
		Prompt:      advicePrompt(bodyPart, count, level, note),
		Snippets:    snippets,
		Temperature: a.temperature,
		Model:       a.model,
	})
	if err != nil {
		a.logger.Warn("pain advice fell back to template",
			"body_part", bodyPart, "level", level, "error", err)
		return Advice{Level: level, AdviceText: fallbackText(bodyPart, count)}
	}

	sources := snippets
	if len(sources) == 0 {
		sources = nil
	}
	return Advice{Level: level, AdviceText: resp.Text, Sources: sources}
}

const adviceSystem = `You are a careful fitness recovery assistant.
Give short, practical, general guidance for the reported discomfort.
Ground your answer in the reference knowledge when it is provided.
Never diagnose a condition or name a disease. For severe or persistent
pain, recommend seeing a medical professional.`

func advicePrompt(bodyPart string, count int, level Level, note string) string {
	p := fmt.Sprintf("The user reported %s pain %d time(s). Severity level: %s.", bodyPart, count, level)
	if note != "" {
		p += "\nUser note: " + note
	}
	p += "\nWrite 2-4 sentences of advice."
	return p
}

func fallbackText(bodyPart string, count int) string {
	return fmt.Sprintf(
		"You have reported %s pain %d time(s). Rest the area, avoid movements that aggravate it, and if the pain persists or worsens, consult a medical professional.",
		bodyPart, count)
}
