package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/finance-insights/internal/domain"
)

// promptInput is everything the synthesis prompt may draw on. It carries no
// repository handle: the snapshot is the only data source.
type promptInput struct {
	Query      string
	Intent     domain.Intent
	Snapshot   *domain.ContextSnapshot
	Aggregates *Aggregates
	History    []domain.ConversationTurn
}

// buildSynthesisPrompt renders the model prompt and reports which
// categories contributed content to it.
func buildSynthesisPrompt(in promptInput) (string, domain.CategorySet) {
	used := make(domain.CategorySet)
	cats := in.Snapshot.Categories()

	var b strings.Builder
	b.WriteString("You are a personal finance assistant answering a user's question about their own finances.\n\n")

	b.WriteString("DATA CATEGORIES YOU MAY USE: ")
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	b.WriteString(strings.Join(names, ", "))
	b.WriteString("\n\n")

	b.WriteString("DATA SUMMARY:\n")
	for _, c := range cats {
		writeCategorySummary(&b, c, in.Snapshot.Records(c))
		used[c] = struct{}{}
	}
	if omitted := in.Snapshot.Omitted(); len(omitted) > 0 {
		b.WriteString("Temporarily unavailable: ")
		for i, o := range omitted {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(string(o.Category))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if in.Aggregates != nil && len(in.Aggregates.Names()) > 0 {
		b.WriteString("COMPUTED FIGURES:\n")
		for _, name := range in.Aggregates.Names() {
			s, _ := in.Aggregates.Series(name)
			b.WriteString("- " + name + ": " + formatSeries(s) + "\n")
		}
		for c := range in.Aggregates.Sources() {
			used[c] = struct{}{}
		}
		b.WriteString("\n")
	}

	if len(in.History) > 0 {
		b.WriteString("RECENT CONVERSATION:\n")
		for _, t := range in.History {
			role := "User"
			if t.Role == domain.RoleAssistant {
				role = "Assistant"
			}
			b.WriteString(role + ": " + strings.TrimSpace(t.Text) + "\n")
			for _, c := range t.ReferencedCategories {
				used[c] = struct{}{}
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("QUESTION TYPE: " + string(in.Intent) + "\n")
	b.WriteString("QUESTION: " + strings.TrimSpace(in.Query) + "\n\n")

	b.WriteString("RULES:\n")
	b.WriteString("1. Use ONLY the figures above. Never invent amounts, dates or accounts.\n")
	b.WriteString("2. If the question needs data outside the listed categories, say that it is not available to you.\n")
	b.WriteString("3. Prefer the COMPUTED FIGURES over your own arithmetic.\n")
	b.WriteString("4. For projections, state that they are linear estimates based on past months.\n")
	b.WriteString("5. Keep the answer under 150 words and do not give regulated investment advice.\n\n")

	b.WriteString("OUTPUT FORMAT:\n")
	b.WriteString("Return ONLY a raw JSON object, no code fences, no extra text:\n")
	b.WriteString(`{"answer": "<your answer>", "cited_categories": ["<category you relied on>", ...]}` + "\n")
	b.WriteString("cited_categories must only contain names from DATA CATEGORIES YOU MAY USE.\n")

	return b.String(), used
}

// writeCategorySummary writes counts, totals, date range and the most
// frequent labels for one category. Individual records are not listed.
func writeCategorySummary(b *strings.Builder, c domain.Category, recs []domain.FinancialRecord) {
	fmt.Fprintf(b, "- %s: %d records", c, len(recs))
	if len(recs) == 0 {
		b.WriteString("\n")
		return
	}
	fmt.Fprintf(b, ", total %s", sum(recs).StringFixed(2))
	fmt.Fprintf(b, ", from %s to %s",
		recs[0].Timestamp.UTC().Format("2006-01-02"),
		recs[len(recs)-1].Timestamp.UTC().Format("2006-01-02"))

	freq := make(map[string]int)
	for _, r := range recs {
		freq[recordLabel(r)]++
	}
	labels := make([]string, 0, len(freq))
	for l := range freq {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if freq[labels[i]] != freq[labels[j]] {
			return freq[labels[i]] > freq[labels[j]]
		}
		return labels[i] < labels[j]
	})
	if len(labels) > summaryTopLabels {
		labels = labels[:summaryTopLabels]
	}
	b.WriteString(", main items: " + strings.Join(labels, ", ") + "\n")
}

func formatSeries(s domain.Series) string {
	parts := make([]string, s.Len())
	for i := range s.Values {
		parts[i] = s.Labels[i] + "=" + s.Values[i].StringFixed(2)
	}
	return strings.Join(parts, "; ")
}

// fallbackAnswer renders the aggregates as plain text for degraded results.
func fallbackAnswer(aggs *Aggregates) string {
	if aggs == nil || len(aggs.Names()) == 0 {
		return FallbackAnswerPrefix + " (none)"
	}
	var b strings.Builder
	b.WriteString(FallbackAnswerPrefix)
	for _, name := range aggs.Names() {
		s, _ := aggs.Series(name)
		b.WriteString("\n- " + strings.ReplaceAll(name, "_", " ") + ": " + formatSeries(s))
	}
	return b.String()
}
