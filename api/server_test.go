package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growlog/growlog/internal/classifier"
	"github.com/growlog/growlog/internal/log"
	"github.com/growlog/growlog/internal/nutrition"
	"github.com/growlog/growlog/internal/pain"
	"github.com/growlog/growlog/internal/synth"
	"github.com/growlog/growlog/internal/vision"
)

// Shared stubs for handler tests.

type stubClassifier struct {
	result classifier.Result
}

func (s *stubClassifier) Classify(context.Context, string, time.Time) classifier.Result {
	return s.result
}

type stubCompleter struct {
	text    string
	err     error
	lastReq synth.Request
}

func (s *stubCompleter) Complete(_ context.Context, req synth.Request) (*synth.Response, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &synth.Response{Text: s.text}, nil
}

type stubAdvisor struct {
	advice pain.Advice
}

func (s *stubAdvisor) AdviseForPain(context.Context, string, int, string) pain.Advice {
	return s.advice
}

type stubPlanner struct {
	meals  []nutrition.MealRecord
	advice string
	err    error
}

func (s *stubPlanner) Generate(context.Context, nutrition.Profile, nutrition.GoalSpec) ([]nutrition.MealRecord, error) {
	return s.meals, s.err
}

func (s *stubPlanner) Replan(context.Context, nutrition.GoalSpec, []nutrition.MealRecord) ([]nutrition.MealRecord, error) {
	return s.meals, s.err
}

func (s *stubPlanner) Advise(context.Context, []nutrition.MealRecord) (string, error) {
	return s.advice, s.err
}

type stubBridge struct {
	food *vision.AnalyzedFood
	err  error
}

func (s *stubBridge) AnalyzeImage(context.Context, string) (*vision.AnalyzedFood, error) {
	return s.food, s.err
}

func newTestServer(t *testing.T, c Classifier, llm Completer, adv Advisor, p Planner, b ImageAnalyzer) *Server {
	t.Helper()
	logger := log.NewNop()
	if c == nil {
		c = &stubClassifier{result: classifier.Fallback()}
	}
	if llm == nil {
		llm = &stubCompleter{}
	}
	if adv == nil {
		adv = &stubAdvisor{}
	}
	if p == nil {
		p = &stubPlanner{}
	}
	if b == nil {
		b = &stubBridge{}
	}
	return NewServer(nil,
		NewChatHandler(c, llm, logger),
		NewPainHandler(adv, logger),
		NewMealHandler(p, b, logger),
		logger)
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthLiveness(t *testing.T) {
	s := newTestServer(t, nil, nil, nil, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReadinessWithoutPool(t *testing.T) {
	s := newTestServer(t, nil, nil, nil, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/ready", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDAssigned(t *testing.T) {
	s := newTestServer(t, nil, nil, nil, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/health", "")

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDPreserved(t *testing.T) {
	s := newTestServer(t, nil, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := log.NewNop()
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	h := chain(panicking, recoveryMiddleware(logger), requestIDMiddleware, loggingMiddleware(logger))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
