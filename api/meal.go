package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/growlog/growlog/internal/log"
	"github.com/growlog/growlog/internal/nutrition"
	"github.com/growlog/growlog/internal/synth"
	"github.com/growlog/growlog/internal/vision"
)

// Meal analysis request types.
const (
	RequestGenerate     = "GENERATE"
	RequestReplan       = "REPLAN"
	RequestAnalyzeImage = "ANALYZE_IMAGE"
	RequestAdvice       = "ADVICE"
)

// Planner plans meals and writes nutrition guidance. Implemented by
// *nutrition.Planner.
type Planner interface {
	Generate(ctx context.Context, profile nutrition.Profile, goal nutrition.GoalSpec) ([]nutrition.MealRecord, error)
	Replan(ctx context.Context, goal nutrition.GoalSpec, meals []nutrition.MealRecord) ([]nutrition.MealRecord, error)
	Advise(ctx context.Context, meals []nutrition.MealRecord) (string, error)
}

// ImageAnalyzer resolves food images to nutrition facts. Implemented by
// *vision.Bridge.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, imageBase64 string) (*vision.AnalyzedFood, error)
}

// MealHandler handles POST /api/meal/analyze.
type MealHandler struct {
	planner Planner
	bridge  ImageAnalyzer
	logger  log.Logger
}

// NewMealHandler creates a meal analysis handler.
func NewMealHandler(planner Planner, bridge ImageAnalyzer, logger log.Logger) *MealHandler {
	return &MealHandler{planner: planner, bridge: bridge, logger: logger}
}

// RegisterRoutes registers meal routes on the given mux.
func (h *MealHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/meal/analyze", h.handleAnalyze)
}

// MealAnalyzeRequest is the POST /api/meal/analyze request body. Which
// fields are required depends on RequestType.
type MealAnalyzeRequest struct {
	RequestType     string                 `json:"requestType"`
	Profile         *nutrition.Profile     `json:"profile,omitempty"`
	Goal            *nutrition.GoalSpec    `json:"goal,omitempty"`
	CurrentMeals    []nutrition.MealRecord `json:"currentMeals,omitempty"`
	FoodImageBase64 string                 `json:"foodImageBase64,omitempty"`
}

// MealAnalyzeResponse carries exactly one populated field, matching
// the request type.
type MealAnalyzeResponse struct {
	SuggestedMeals []nutrition.MealRecord `json:"suggestedMeals,omitempty"`
	AnalyzedFood   *vision.AnalyzedFood   `json:"analyzedFood,omitempty"`
	AdviceComment  string                 `json:"adviceComment,omitempty"`
}

func (h *MealHandler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req MealAnalyzeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, errInvalidRequest, err.Error())
		return
	}

	switch req.RequestType {
	case RequestGenerate:
		if req.Goal == nil {
			writeError(w, h.logger, http.StatusBadRequest, errInvalidRequest, "goal is required for GENERATE")
			return
		}
		var profile nutrition.Profile
		if req.Profile != nil {
			profile = *req.Profile
		}
		meals, err := h.planner.Generate(r.Context(), profile, *req.Goal)
		if err != nil {
			h.writeUpstreamError(w, err)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, MealAnalyzeResponse{SuggestedMeals: meals})

	case RequestReplan:
		if req.Goal == nil {
			writeError(w, h.logger, http.StatusBadRequest, errInvalidRequest, "goal is required for REPLAN")
			return
		}
		if len(req.CurrentMeals) == 0 {
			writeError(w, h.logger, http.StatusBadRequest, errInvalidRequest, "currentMeals is required for REPLAN")
			return
		}
		meals, err := h.planner.Replan(r.Context(), *req.Goal, req.CurrentMeals)
		if err != nil {
			h.writeUpstreamError(w, err)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, MealAnalyzeResponse{SuggestedMeals: meals})

	case RequestAnalyzeImage:
		if strings.TrimSpace(req.FoodImageBase64) == "" {
			writeError(w, h.logger, http.StatusBadRequest, errInvalidRequest, "foodImageBase64 is required for ANALYZE_IMAGE")
			return
		}
		food, err := h.bridge.AnalyzeImage(r.Context(), req.FoodImageBase64)
		if err != nil {
			h.writeUpstreamError(w, err)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, MealAnalyzeResponse{AnalyzedFood: food})

	case RequestAdvice:
		if len(req.CurrentMeals) == 0 {
			writeError(w, h.logger, http.StatusBadRequest, errInvalidRequest, "currentMeals is required for ADVICE")
			return
		}
		comment, err := h.planner.Advise(r.Context(), req.CurrentMeals)
		if err != nil {
			h.writeUpstreamError(w, err)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, MealAnalyzeResponse{AdviceComment: comment})

	default:
		writeError(w, h.logger, http.StatusBadRequest, errInvalidRequest,
			"requestType must be one of GENERATE, REPLAN, ANALYZE_IMAGE, ADVICE")
	}
}

// writeUpstreamError maps pipeline failures onto caller-facing error
// kinds: unusable model output is distinguished from provider outages.
func (h *MealHandler) writeUpstreamError(w http.ResponseWriter, err error) {
	h.logger.Error("meal analysis failed", "error", err)
	if errors.Is(err, synth.ErrMalformedOutput) {
		writeError(w, h.logger, http.StatusBadGateway, errMalformedOutput, "model returned unusable output")
		return
	}
	writeError(w, h.logger, http.StatusBadGateway, errExternalService, "upstream model call failed")
}
