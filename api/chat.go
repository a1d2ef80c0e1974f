package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/growlog/growlog/internal/classifier"
	"github.com/growlog/growlog/internal/log"
	"github.com/growlog/growlog/internal/synth"
)

// Classifier extracts structured intent from text. Implemented by
// *classifier.Classifier.
type Classifier interface {
	Classify(ctx context.Context, text string, now time.Time) classifier.Result
}

// Completer issues one completion call. Implemented by
// *synth.Synthesizer.
type Completer interface {
	Complete(ctx context.Context, req synth.Request) (*synth.Response, error)
}

// ChatHandler handles POST /chat: classification plus a conversational
// short answer.
type ChatHandler struct {
	classifier Classifier
	llm        Completer
	logger     log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(c Classifier, llm Completer, logger log.Logger) *ChatHandler {
	return &ChatHandler{classifier: c, llm: llm, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", h.handleChat)
}

// ChatRequest is the POST /chat request body.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the POST /chat response body.
// RequiresFollowupLookup tells the caller to fetch domain records
// (workout history, pain reports) before acting on the classification.
type ChatResponse struct {
	Intent                 classifier.Intent   `json:"intent"`
	Action                 classifier.Action   `json:"action"`
	Entities               classifier.Entities `json:"entities"`
	ShortAnswer            string              `json:"shortAnswer"`
	RequiresFollowupLookup bool                `json:"requiresFollowupLookup"`
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, errInvalidRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, h.logger, http.StatusBadRequest, errInvalidRequest, "message is required")
		return
	}

	res := h.classifier.Classify(r.Context(), req.Message, time.Now())

	answer := res.ShortAnswer
	if answer == "" {
		answer = h.backfillAnswer(r.Context(), req.Message)
	}

	writeJSON(w, h.logger, http.StatusOK, ChatResponse{
		Intent:                 res.Intent,
		Action:                 res.Action,
		Entities:               res.Entities,
		ShortAnswer:            answer,
		RequiresFollowupLookup: requiresFollowupLookup(res.Intent),
	})
}

// requiresFollowupLookup reports whether the caller must consult
// domain records before responding to this intent.
func requiresFollowupLookup(intent classifier.Intent) bool {
	return intent == classifier.IntentPainReport || intent == classifier.IntentWorkout
}

const backfillSystem = `You are a friendly fitness and nutrition assistant.
Answer the user's message in one or two sentences.`

// backfillTemperature matches the conversational reply setting, a bit
// warmer than the grounded advice calls.
const backfillTemperature = 0.7

// backfillAnswer produces a conversational reply when classification
// returned none. Failure leaves the answer empty; the structured
// classification is still useful on its own.
func (h *ChatHandler) backfillAnswer(ctx context.Context, message string) string {
	resp, err := h.llm.Complete(ctx, synth.Request{
		System:      backfillSystem,
		Prompt:      message,
		Temperature: backfillTemperature,
	})
	if err != nil {
		h.logger.Warn("short answer backfill failed", "error", err)
		return ""
	}
	return strings.TrimSpace(resp.Text)
}
