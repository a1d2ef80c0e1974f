package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/growlog/growlog/internal/log"
	"github.com/growlog/growlog/internal/pain"
)

// Advisor produces leveled pain advice. Implemented by *pain.Advisor.
type Advisor interface {
	AdviseForPain(ctx context.Context, bodyPart string, count int, note string) pain.Advice
}

// PainHandler handles POST /pain/advice.
type PainHandler struct {
	advisor Advisor
	logger  log.Logger
}

// NewPainHandler creates a pain advice handler.
func NewPainHandler(advisor Advisor, logger log.Logger) *PainHandler {
	return &PainHandler{advisor: advisor, logger: logger}
}

// RegisterRoutes registers pain routes on the given mux.
func (h *PainHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /pain/advice", h.handleAdvice)
}

// PainRequest is the POST /pain/advice request body.
type PainRequest struct {
	BodyPart string `json:"bodyPart"`
	Count    int    `json:"count"`
	Note     string `json:"note,omitempty"`
}

func (h *PainHandler) handleAdvice(w http.ResponseWriter, r *http.Request) {
	var req PainRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, errInvalidRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.BodyPart) == "" {
		writeError(w, h.logger, http.StatusBadRequest, errInvalidRequest, "bodyPart is required")
		return
	}
	if req.Count < 0 {
		writeError(w, h.logger, http.StatusBadRequest, errInvalidRequest, "count must not be negative")
		return
	}

	advice := h.advisor.AdviseForPain(r.Context(), req.BodyPart, req.Count, req.Note)
	writeJSON(w, h.logger, http.StatusOK, advice)
}
