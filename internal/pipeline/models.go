package pipeline

import (
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
)

// Options tune the workflow stages.
type Options struct {
	SynthesisAttempts int
	Backoff           time.Duration
	MaxTokens         int
	ProjectionMonths  int
}

func (o Options) withDefaults() Options {
	if o.SynthesisAttempts < 1 {
		o.SynthesisAttempts = DefaultSynthesisAttempts
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.ProjectionMonths <= 0 {
		o.ProjectionMonths = DefaultProjectionMonths
	}
	return o
}

// synthesisReply is the JSON object the model must return.
type synthesisReply struct {
	Answer          string   `json:"answer"`
	CitedCategories []string `json:"cited_categories"`
}

// Template is a suggested prompt shown to users.
type Template struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

// Templates returns the catalogue of suggested prompts.
func Templates() []Template {
	return []Template{
		{
			ID:          "investment-review",
			Title:       "Investment Portfolio Review",
			Category:    "investment",
			Icon:        "show_chart",
			Description: "Get personalized advice on your investment mix",
			Prompt:      "Review my investment portfolio allocation.",
		},
		{
			ID:          "budget-optimizer",
			Title:       "Monthly Budget Optimizer",
			Category:    "budgeting",
			Icon:        "pie_chart",
			Description: "Optimize your monthly spending",
			Prompt:      "Where can I cut my monthly spending budget?",
		},
		{
			ID:          "spending-analysis",
			Title:       "Spending Pattern Analysis",
			Category:    "budgeting",
			Icon:        "analytics",
			Description: "Analyze your spending habits",
			Prompt:      "How has my spending changed over the last few months?",
		},
		{
			ID:          "savings-goal",
			Title:       "Savings Goal Planner",
			Category:    "savings",
			Icon:        "savings",
			Description: "Plan your savings goals",
			Prompt:      "If I keep saving at my current rate, how much savings will I have in six months?",
		},
	}
}

// aggregate is a derived series together with the categories it was
// computed from.
type aggregate struct {
	series  domain.Series
	sources domain.CategorySet
}

// Aggregates is the output of the computation stage.
type Aggregates struct {
	order []string
	items map[string]aggregate
}

func newAggregates() *Aggregates {
	return &Aggregates{items: make(map[string]aggregate)}
}

func (a *Aggregates) put(name string, s domain.Series, sources ...domain.Category) {
	if s.Len() == 0 {
		return
	}
	if _, exists := a.items[name]; !exists {
		a.order = append(a.order, name)
	}
	a.items[name] = aggregate{series: s, sources: domain.NewCategorySet(sources...)}
}

// Names returns aggregate names in computation order.
func (a *Aggregates) Names() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// Series returns the named series.
func (a *Aggregates) Series(name string) (domain.Series, bool) {
	agg, ok := a.items[name]
	return agg.series, ok
}

// Sources returns the union of categories every aggregate was derived from.
func (a *Aggregates) Sources() domain.CategorySet {
	out := make(domain.CategorySet)
	for _, agg := range a.items {
		for c := range agg.sources {
			out[c] = struct{}{}
		}
	}
	return out
}

// Map returns the aggregates keyed by name.
func (a *Aggregates) Map() map[string]domain.Series {
	out := make(map[string]domain.Series, len(a.items))
	for name, agg := range a.items {
		out[name] = agg.series
	}
	return out
}
