package classifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// resultSchema is the structural contract the model's JSON must meet
// before it is trusted. Intent and action are enum-checked here; entity
// vocabulary membership is handled by normalization so a single bad
// entity nulls that field instead of discarding the whole result.
func resultSchema() *jsonschema.Schema {
	nullable := func(typ string) *jsonschema.Schema {
		return &jsonschema.Schema{Types: []string{typ, "null"}}
	}
	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"intent", "action"},
		Properties: map[string]*jsonschema.Schema{
			"intent": {Type: "string", Enum: enumValues(intents)},
			"action": {Type: "string", Enum: enumValues(actions)},
			"entities": {
				Types: []string{"object", "null"},
				Properties: map[string]*jsonschema.Schema{
					"date":              nullable("string"),
					"exerciseName":      nullable("string"),
					"bodyPart":          nullable("string"),
					"intensity":         nullable("integer"),
					"exerciseCompleted": nullable("boolean"),
					"mealTime":          nullable("string"),
					"bodyMetric":        nullable("string"),
					"productName":       nullable("string"),
					"deliveryStatus":    nullable("string"),
				},
			},
			"shortAnswer": nullable("string"),
		},
	}
}

func enumValues(vocab []string) []any {
	out := make([]any, len(vocab))
	for i, v := range vocab {
		out[i] = v
	}
	return out
}

func systemPrompt(now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are an intent classifier for a fitness and nutrition assistant.
Today's date is %s.

Classify the user's message into exactly one intent and exactly one action,
and extract entities. Respond with a single JSON object only, no markdown,
no commentary:

{"intent": ..., "action": ..., "entities": {...}, "shortAnswer": ...}

Intents: %s
Actions: %s

Entity fields (use null for anything not clearly expressed):
- date: concrete day as YYYY-MM-DD. Resolve relative terms ("today",
  "yesterday", "the day before yesterday") against today's date. If a
  date is implied but cannot be resolved, use the literal string "today".
- exerciseName: one of %s
- bodyPart: one of %s
- intensity: integer 1-10
- exerciseCompleted: true or false
- mealTime: one of %s
- bodyMetric: one of %s
- productName: the product or food mentioned, as free text
- deliveryStatus: one of %s

Rules:
- Never invent an enum value. If the message does not clearly match one
  of the listed values, the field is null.
- A message that mentions both exercise and pain or injury is
  PAIN_REPORT, not WORKOUT.
- shortAnswer: for GENERAL_CHAT, a one or two sentence direct reply to
  the user; for every other intent, an empty string.`,
		now.Format("2006-01-02"),
		strings.Join(intents, ", "),
		strings.Join(actions, ", "),
		strings.Join(exercises, ", "),
		strings.Join(bodyParts, ", "),
		strings.Join(mealTimes, ", "),
		strings.Join(bodyMetrics, ", "),
		strings.Join(deliveryStatuses, ", "),
	)
	return b.String()
}
