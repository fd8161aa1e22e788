package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Intent is the classification assigned to a query by the intent stage.
type Intent string

const (
	IntentFactual     Intent = "factual"
	IntentTrend       Intent = "trend"
	IntentProjection  Intent = "projection"
	IntentUnsupported Intent = "unsupported"
)

// Status is the state of an insight workflow run.
type Status string

const (
	StatusPending          Status = "pending"
	StatusIntentClassified Status = "intent_classified"
	StatusComputed         Status = "computed"
	StatusSynthesized      Status = "synthesized"
	StatusDone             Status = "done"
	StatusRejected         Status = "rejected"
	StatusFailed           Status = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusRejected || s == StatusFailed
}

// Reasons attached to degraded or short-circuited results.
const (
	ReasonNoAuthorizedData = "no_authorized_data"
	ReasonDataUnavailable  = "data_unavailable"
	ReasonUnsupported      = "unsupported_intent"
	ReasonModelTimeout     = "model_timeout"
	ReasonModelError       = "model_error"
	ReasonStageFailed      = "stage_failed"
)

// Series is a labelled numeric series ready for charting.
type Series struct {
	Labels []string
	Values []decimal.Decimal
}

// Append adds one point to the series.
func (s *Series) Append(label string, v decimal.Decimal) {
	s.Labels = append(s.Labels, label)
	s.Values = append(s.Values, v)
}

// Len returns the number of points.
func (s Series) Len() int { return len(s.Values) }

// MarshalJSON renders the series in the {labels, data} chart shape.
func (s Series) MarshalJSON() ([]byte, error) {
	data := make([]float64, len(s.Values))
	for i, v := range s.Values {
		data[i] = v.InexactFloat64()
	}
	labels := s.Labels
	if labels == nil {
		labels = []string{}
	}
	return json.Marshal(struct {
		Labels []string  `json:"labels"`
		Data   []float64 `json:"data"`
	}{labels, data})
}

// InsightResult is the outcome of one answered query.
type InsightResult struct {
	QueryID            string            `json:"query_id"`
	Status             Status            `json:"status"`
	Intent             Intent            `json:"intent,omitempty"`
	Reason             string            `json:"reason,omitempty"`
	AnswerText         string            `json:"answer"`
	DerivedAggregates  map[string]Series `json:"derived_aggregates"`
	GroundedCategories []Category        `json:"grounded_categories"`
	OmittedCategories  []Category        `json:"omitted_categories,omitempty"`
	Attempts           int               `json:"attempts"`
}
