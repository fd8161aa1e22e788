package pipeline

import "time"

// Defaults for the insight workflow. Overridden through config.WorkflowConfig.
const (
	// DefaultSynthesisAttempts is how many times synthesis is tried before
	// falling back to the aggregates.
	DefaultSynthesisAttempts = 2

	// DefaultBackoff is the wait before the second synthesis attempt; later
	// attempts wait proportionally longer.
	DefaultBackoff = 500 * time.Millisecond

	// DefaultMaxTokens caps the synthesized answer length.
	DefaultMaxTokens = 1024

	// DefaultProjectionMonths is how far projections extrapolate.
	DefaultProjectionMonths = 6

	// summaryTopLabels bounds the per-category label list in prompts.
	summaryTopLabels = 5

	// breakdownSize is how many expense labels the breakdown chart keeps.
	breakdownSize = 10
)

// Fixed answers for short-circuited and degraded results.
const (
	RejectionAnswer       = "Sorry, I can't help with this. I can answer questions about your spending, income, savings, assets, liabilities and investments."
	NoDataAnswer          = "No authorized data is available to answer this question. Enable AI access for one or more categories in your permission settings."
	DataUnavailableAnswer = "Your financial data is temporarily unavailable. Please try again shortly."
	FallbackAnswerPrefix  = "I couldn't generate a written answer right now. Here are the figures computed from your data:"
	GenericFailureAnswer  = "Something went wrong while answering your question."
)

const monthLayout = "2006-01"
