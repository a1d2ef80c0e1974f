// Package classifier turns free-text utterances into a structured
// intent, action, and entity set via a schema-constrained model call.
//
// Classification is total: any failure (provider outage, malformed
// output, schema mismatch) degrades to the GENERAL_CHAT fallback
// result. Callers never see an error from Classify.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/growlog/growlog/internal/synth"
)

// Intent is the primary purpose of an utterance.
type Intent string

const (
	IntentWorkout       Intent = "WORKOUT"
	IntentPainReport    Intent = "PAIN_REPORT"
	IntentMealQuery     Intent = "MEAL_QUERY"
	IntentBodyQuery     Intent = "BODY_QUERY"
	IntentDeliveryQuery Intent = "DELIVERY_QUERY"
	IntentGeneralChat   Intent = "GENERAL_CHAT"
)

// Action is what the user wants done about the intent.
type Action string

const (
	ActionQuery     Action = "QUERY"
	ActionRecommend Action = "RECOMMEND"
	ActionModify    Action = "MODIFY"
	ActionReport    Action = "REPORT"
	ActionChat      Action = "CHAT"
)

// Closed vocabularies. Entity values outside these sets are nulled
// during normalization, never coerced to a nearest match.
var (
	intents = []string{
		string(IntentWorkout), string(IntentPainReport), string(IntentMealQuery),
		string(IntentBodyQuery), string(IntentDeliveryQuery), string(IntentGeneralChat),
	}
	actions = []string{
		string(ActionQuery), string(ActionRecommend), string(ActionModify),
		string(ActionReport), string(ActionChat),
	}
	bodyParts = []string{"SHOULDER", "CHEST", "BACK", "LEG", "ARM", "CORE"}
	exercises = []string{
		"BENCH_PRESS", "SQUAT", "DEADLIFT", "OVERHEAD_PRESS", "PULL_UP",
		"PUSH_UP", "LUNGE", "PLANK", "RUNNING", "CYCLING",
	}
	mealTimes        = []string{"BREAKFAST", "LUNCH", "DINNER"}
	bodyMetrics      = []string{"WEIGHT", "BODY_FAT", "MUSCLE_MASS", "BMI"}
	deliveryStatuses = []string{"ORDERED", "PREPARING", "SHIPPED", "DELIVERED", "CANCELLED"}
)

// DateToday is the literal placeholder returned for a date the model
// could not resolve to a concrete ISO day.
const DateToday = "today"

// Entities holds the structured values extracted from an utterance.
// Every field is present-or-nil; nil means "not expressed or not in
// the closed vocabulary".
type Entities struct {
	Date              *string `json:"date,omitempty"`
	ExerciseName      *string `json:"exerciseName,omitempty"`
	BodyPart          *string `json:"bodyPart,omitempty"`
	Intensity         *int    `json:"intensity,omitempty"`
	ExerciseCompleted *bool   `json:"exerciseCompleted,omitempty"`
	MealTime          *string `json:"mealTime,omitempty"`
	BodyMetric        *string `json:"bodyMetric,omitempty"`
	ProductName       *string `json:"productName,omitempty"`
	DeliveryStatus    *string `json:"deliveryStatus,omitempty"`
}

// Result is a complete classification. Exactly one intent and one
// action are always set.
type Result struct {
	Intent      Intent   `json:"intent"`
	Action      Action   `json:"action"`
	Entities    Entities `json:"entities"`
	ShortAnswer string   `json:"shortAnswer"`
}

// Fallback is the result used whenever classification cannot be
// trusted.
func Fallback() Result {
	return Result{Intent: IntentGeneralChat, Action: ActionChat}
}

// Completer issues one completion call. Implemented by
// *synth.Synthesizer.
type Completer interface {
	Complete(ctx context.Context, req synth.Request) (*synth.Response, error)
}

// Classifier performs schema-constrained intent extraction.
type Classifier struct {
	llm         Completer
	model       string
	temperature float32
	schema      *jsonschema.Resolved
	logger      *slog.Logger
}

// New creates a Classifier. model may be empty to use the
// synthesizer's default; temperature should be near zero since this is
// classification, not generation.
func New(llm Completer, model string, temperature float32, logger *slog.Logger) (*Classifier, error) {
	resolved, err := resultSchema().Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve classification schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		llm:         llm,
		model:       model,
		temperature: temperature,
		schema:      resolved,
		logger:      logger,
	}, nil
}

// Classify extracts intent, action, and entities from text. now anchors
// relative-date resolution ("yesterday" etc). The result is always
// usable; failures degrade to Fallback.
func (c *Classifier) Classify(ctx context.Context, text string, now time.Time) Result {
	resp, err := c.llm.Complete(ctx, synth.Request{
		System:      systemPrompt(now),
		Prompt:      text,
		Temperature: c.temperature,
		JSONOutput:  true,
		Model:       c.model,
	})
	if err != nil {
		c.logger.Warn("classification fell back to general chat", "error", err)
		return Fallback()
	}

	var raw any
	if err := resp.Decode(&raw); err != nil {
		c.logger.Warn("classification output unparseable", "error", err)
		return Fallback()
	}
	if err := c.schema.Validate(raw); err != nil {
		c.logger.Warn("classification output rejected by schema", "error", err)
		return Fallback()
	}

	var res Result
	if err := resp.Decode(&res); err != nil {
		c.logger.Warn("classification output unparseable", "error", err)
		return Fallback()
	}

	res.normalize()
	return res
}

func (r *Result) normalize() {
	e := &r.Entities
	e.BodyPart = normEnum(e.BodyPart, bodyParts)
	e.ExerciseName = normEnum(e.ExerciseName, exercises)
	e.MealTime = normEnum(e.MealTime, mealTimes)
	e.BodyMetric = normEnum(e.BodyMetric, bodyMetrics)
	e.DeliveryStatus = normEnum(e.DeliveryStatus, deliveryStatuses)

	if e.Intensity != nil && (*e.Intensity < 1 || *e.Intensity > 10) {
		e.Intensity = nil
	}
	if e.ProductName != nil && strings.TrimSpace(*e.ProductName) == "" {
		e.ProductName = nil
	}
	if e.Date != nil {
		d := strings.TrimSpace(*e.Date)
		if !strings.EqualFold(d, DateToday) {
			if _, err := time.Parse("2006-01-02", d); err != nil {
				d = DateToday
			}
		} else {
			d = DateToday
		}
		e.Date = &d
	}
	r.ShortAnswer = strings.TrimSpace(r.ShortAnswer)
}

// normEnum canonicalizes case and whitespace, then checks membership.
// Values outside the vocabulary become nil.
func normEnum(v *string, vocab []string) *string {
	if v == nil {
		return nil
	}
	canon := strings.ToUpper(strings.TrimSpace(*v))
	for _, w := range vocab {
		if canon == w {
			return &canon
		}
	}
	return nil
}

// ResolveDate converts a date entity into a concrete day. Empty,
// "today", and unparseable values all resolve to now's date, matching
// the lenient contract the consuming scheduler expects.
func ResolveDate(value string, now time.Time) time.Time {
	day := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
	v := strings.TrimSpace(value)
	if v == "" || strings.EqualFold(v, DateToday) {
		return day(now)
	}
	t, err := time.ParseInLocation("2006-01-02", v, now.Location())
	if err != nil {
		return day(now)
	}
	return t
}
