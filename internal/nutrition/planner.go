package nutrition

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/growlog/growlog/internal/rag"
	"github.com/growlog/growlog/internal/synth"
)

// Completer issues one completion call. Implemented by
// *synth.Synthesizer.
type Completer interface {
	Complete(ctx context.Context, req synth.Request) (*synth.Response, error)
}

// FactLookup resolves grounded nutrition facts for a food name.
// Implemented by *rag.Retriever.
type FactLookup interface {
	Nutrition(ctx context.Context, foodName string) (*rag.NutritionFact, bool)
}

// Planner generates and replans meals against macro budgets. Proposed
// items are grounded through the knowledge base: when a fact exists for
// a food, its figures overwrite the model's guess.
type Planner struct {
	llm       Completer
	facts     FactLookup
	model     string
	planTemp  float32
	adviseTmp float32
	logger    *slog.Logger
}

// NewPlanner creates a Planner. model may be empty to use the
// synthesizer's default.
func NewPlanner(llm Completer, facts FactLookup, model string, planTemp, adviseTemp float32, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		llm:       llm,
		facts:     facts,
		model:     model,
		planTemp:  planTemp,
		adviseTmp: adviseTemp,
		logger:    logger,
	}
}

// proposedMeal is the wire shape the model returns per item.
type proposedMeal struct {
	MealTime    string `json:"mealTime"`
	FoodName    string `json:"foodName"`
	ServingSize string `json:"servingSize"`
	Calories    int    `json:"calories"`
	Carbs       int    `json:"carbs"`
	Protein     int    `json:"protein"`
	Fat         int    `json:"fat"`
}

// Generate proposes a full day's meals for the profile and goal.
// Returned records are all PLANNED and not additional.
func (p *Planner) Generate(ctx context.Context, profile Profile, goal GoalSpec) ([]MealRecord, error) {
	prompt := fmt.Sprintf(`Plan %d meals for one day.

User: age %d, gender %s, height %.0f cm, weight %.1f kg.
Goal: %s. Daily targets: %s.

%s`, goal.Meals(), profile.Age, profile.Gender, profile.HeightCM, profile.WeightKG,
		goal.GoalType, formatMacros(goal.Target), mealJSONInstruction)

	return p.propose(ctx, prompt)
}

// Replan proposes replacements for the not-yet-eaten meals of the day
// so the day still lands on the goal. The remaining budget is computed
// from eaten records only and passed through unclamped, so an
// over-target day shows the model negative numbers.
func (p *Planner) Replan(ctx context.Context, goal GoalSpec, meals []MealRecord) ([]MealRecord, error) {
	remaining := Remaining(goal, meals)

	var eaten, open []string
	for _, m := range meals {
		line := fmt.Sprintf("%s: %s (%s)", m.MealTime, m.FoodName, formatMacros(m.MacroSet()))
		if m.Status == StatusEaten {
			eaten = append(eaten, line)
		} else {
			open = append(open, line)
		}
	}

	prompt := fmt.Sprintf(`Replan the remaining meals of the day.

Goal: %s. Daily targets: %s.
Already eaten:
%s
Currently planned (replace these):
%s
Remaining budget for the rest of the day: %s.
Negative budget values mean the user is already over that target; keep
the replacements correspondingly light.

%s`, goal.GoalType, formatMacros(goal.Target),
		bulleted(eaten), bulleted(open), formatMacros(remaining), mealJSONInstruction)

	return p.propose(ctx, prompt)
}

func (p *Planner) propose(ctx context.Context, prompt string) ([]MealRecord, error) {
	resp, err := p.llm.Complete(ctx, synth.Request{
		System:      plannerSystem,
		Prompt:      prompt,
		Temperature: p.planTemp,
		JSONOutput:  true,
		Model:       p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("plan meals: %w", err)
	}

	var proposals []proposedMeal
	if err := resp.Decode(&proposals); err != nil {
		return nil, fmt.Errorf("plan meals: %w", err)
	}

	records := make([]MealRecord, 0, len(proposals))
	for _, prop := range proposals {
		if strings.TrimSpace(prop.FoodName) == "" {
			continue
		}
		records = append(records, p.finalize(ctx, prop))
	}
	return records, nil
}

// finalize turns a proposal into a PLANNED record, preferring grounded
// figures from the knowledge base over the model's estimates.
func (p *Planner) finalize(ctx context.Context, prop proposedMeal) MealRecord {
	rec := MealRecord{
		MealTime:     prop.MealTime,
		Status:       StatusPlanned,
		IsAdditional: false,
		FoodName:     strings.TrimSpace(prop.FoodName),
		ServingSize:  strings.TrimSpace(prop.ServingSize),
		Calories:     prop.Calories,
		Carbs:        prop.Carbs,
		Protein:      prop.Protein,
		Fat:          prop.Fat,
	}

	if fact, ok := p.facts.Nutrition(ctx, rec.FoodName); ok {
		if fact.Calories != nil {
			rec.Calories = *fact.Calories
		}
		if fact.Carbs != nil {
			rec.Carbs = *fact.Carbs
		}
		if fact.Protein != nil {
			rec.Protein = *fact.Protein
		}
		if fact.Fat != nil {
			rec.Fat = *fact.Fat
		}
		if fact.ServingSize != "" {
			rec.ServingSize = fact.ServingSize
		}
	}

	if rec.ServingSize == "" {
		rec.ServingSize = DefaultServingSize
	}
	return rec
}

// Advise writes short general nutrition guidance over the day's
// records.
func (p *Planner) Advise(ctx context.Context, meals []MealRecord) (string, error) {
	var total Macros
	var lines []string
	for _, m := range meals {
		total = total.Add(m.MacroSet())
		lines = append(lines, fmt.Sprintf("%s %s: %s (%s)", m.MealTime, m.Status, m.FoodName, formatMacros(m.MacroSet())))
	}

	prompt := fmt.Sprintf(`Today's meals:
%s
Day total: %s.

Write 2-3 sentences of general nutrition guidance about this day.
Stay non-diagnostic; do not prescribe supplements or medical changes.`,
		bulleted(lines), formatMacros(total))

	resp, err := p.llm.Complete(ctx, synth.Request{
		System:      plannerSystem,
		Prompt:      prompt,
		Temperature: p.adviseTmp,
		Model:       p.model,
	})
	if err != nil {
		return "", fmt.Errorf("nutrition advice: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

const plannerSystem = `You are a meal planning assistant. You work in
concrete foods with realistic serving sizes and macro-nutrient figures.`

const mealJSONInstruction = `Respond with a JSON array only, no markdown.
Each element: {"mealTime": "BREAKFAST"|"LUNCH"|"DINNER", "foodName": string,
"servingSize": string, "calories": int, "carbs": int, "protein": int, "fat": int}.`

func formatMacros(m Macros) string {
	return fmt.Sprintf("%d kcal, %dg carbs, %dg protein, %dg fat",
		m.Calories, m.Carbs, m.Protein, m.Fat)
}

func bulleted(lines []string) string {
	if len(lines) == 0 {
		return "- (none)"
	}
	return "- " + strings.Join(lines, "\n- ")
}
