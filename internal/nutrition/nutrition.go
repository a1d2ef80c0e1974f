// Package nutrition computes macro-nutrient budgets from meal records
// and plans meals against them.
package nutrition

// MealStatus tracks where a scheduled meal is in its lifecycle. The
// records are owned by an external meal tracker; this package only
// reads them.
type MealStatus string

const (
	StatusPlanned MealStatus = "PLANNED"
	StatusEaten   MealStatus = "EATEN"
	StatusSkipped MealStatus = "SKIPPED"
)

// GoalType is the user's overall nutrition objective.
type GoalType string

const (
	GoalDiet     GoalType = "DIET"
	GoalBulkUp   GoalType = "BULK_UP"
	GoalMaintain GoalType = "MAINTAIN"
)

const (
	// DefaultMealCount is used when a goal does not specify one.
	DefaultMealCount = 3

	// DefaultServingSize is assigned to generated meals whose serving
	// size could not be grounded or generated.
	DefaultServingSize = "1 serving"
)

// Macros is a macro-nutrient quantity set. Values may be negative in a
// remaining-budget context (over target).
type Macros struct {
	Calories int `json:"calories"`
	Carbs    int `json:"carbs"`
	Protein  int `json:"protein"`
	Fat      int `json:"fat"`
}

// Sub returns m - o componentwise.
func (m Macros) Sub(o Macros) Macros {
	return Macros{
		Calories: m.Calories - o.Calories,
		Carbs:    m.Carbs - o.Carbs,
		Protein:  m.Protein - o.Protein,
		Fat:      m.Fat - o.Fat,
	}
}

// Add returns m + o componentwise.
func (m Macros) Add(o Macros) Macros {
	return Macros{
		Calories: m.Calories + o.Calories,
		Carbs:    m.Carbs + o.Carbs,
		Protein:  m.Protein + o.Protein,
		Fat:      m.Fat + o.Fat,
	}
}

// MealRecord is one scheduled meal. The Original* fields shadow the
// plan as it stood before any modification, kept for audit and
// comparison by the owning system.
type MealRecord struct {
	ScheduleID int64      `json:"scheduleId"`
	UserID     int64      `json:"userId"`
	Date       string     `json:"date"`
	MealTime   string     `json:"mealTime"`
	Status     MealStatus `json:"status"`

	FoodName    string `json:"foodName"`
	ServingSize string `json:"servingSize"`
	Calories    int    `json:"calories"`
	Carbs       int    `json:"carbs"`
	Protein     int    `json:"protein"`
	Fat         int    `json:"fat"`

	IsAdditional bool `json:"isAdditional"`

	OriginalFoodName    string `json:"originalFoodName,omitempty"`
	OriginalServingSize string `json:"originalServingSize,omitempty"`
	OriginalCalories    int    `json:"originalCalories,omitempty"`
	OriginalCarbs       int    `json:"originalCarbs,omitempty"`
	OriginalProtein     int    `json:"originalProtein,omitempty"`
	OriginalFat         int    `json:"originalFat,omitempty"`
}

// MacroSet returns the record's macros as one value.
func (m MealRecord) MacroSet() Macros {
	return Macros{Calories: m.Calories, Carbs: m.Carbs, Protein: m.Protein, Fat: m.Fat}
}

// GoalSpec is the user's macro target for one day.
type GoalSpec struct {
	GoalType  GoalType `json:"goalType"`
	Target    Macros   `json:"target"`
	MealCount int      `json:"mealCount"`
}

// Meals returns the configured meal count, defaulting when unset.
func (g GoalSpec) Meals() int {
	if g.MealCount <= 0 {
		return DefaultMealCount
	}
	return g.MealCount
}

// Profile describes the user for plan generation.
type Profile struct {
	Age      int     `json:"age"`
	Gender   string  `json:"gender"`
	HeightCM float64 `json:"heightCm"`
	WeightKG float64 `json:"weightKg"`
}

// Consumed sums macros over records already eaten. Planned and skipped
// meals contribute nothing.
func Consumed(meals []MealRecord) Macros {
	var sum Macros
	for _, m := range meals {
		if m.Status == StatusEaten {
			sum = sum.Add(m.MacroSet())
		}
	}
	return sum
}

// Remaining is the day's budget still to eat: target minus consumed.
// Values are surfaced unclamped; a negative component means the user is
// already over that target.
func Remaining(goal GoalSpec, meals []MealRecord) Macros {
	return goal.Target.Sub(Consumed(meals))
}
