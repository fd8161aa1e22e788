package pipeline

import (
	"sort"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/shopspring/decimal"
)

// Compute derives chart-ready aggregates from the snapshot. It is pure and
// deterministic: the same snapshot and intent always give the same output.
// Only categories present in the snapshot contribute.
func Compute(snap *domain.ContextSnapshot, intent domain.Intent, projectionMonths int) *Aggregates {
	out := newAggregates()
	cats := snap.Categories()
	if len(cats) == 0 {
		return out
	}

	var totals, counts domain.Series
	for _, c := range cats {
		recs := snap.Records(c)
		totals.Append(string(c), round(sum(recs)))
		counts.Append(string(c), decimal.NewFromInt(int64(len(recs))))
	}
	out.put("category_totals", totals, cats...)
	out.put("record_counts", counts, cats...)

	var monthly []string
	if snap.Has(domain.CategoryTransactions) {
		txs := snap.Records(domain.CategoryTransactions)
		out.put("monthly_spending", monthlySeries(txs, func(r domain.FinancialRecord) decimal.Decimal { return r.Amount.Neg() }), domain.CategoryTransactions)
		amounts, labelCounts := breakdown(txs)
		out.put("category_breakdown", amounts, domain.CategoryTransactions)
		out.put("category_breakdown_count", labelCounts, domain.CategoryTransactions)
		monthly = append(monthly, "monthly_spending")
	}
	if snap.Has(domain.CategoryIncome) {
		out.put("monthly_income", monthlySeries(snap.Records(domain.CategoryIncome), func(r domain.FinancialRecord) decimal.Decimal { return r.Amount.Abs() }), domain.CategoryIncome)
		monthly = append(monthly, "monthly_income")
	}
	if snap.Has(domain.CategoryTransactions) && snap.Has(domain.CategoryIncome) {
		spending, _ := out.Series("monthly_spending")
		income, _ := out.Series("monthly_income")
		out.put("monthly_net", subtractSeries(income, spending), domain.CategoryIncome, domain.CategoryTransactions)
		monthly = append(monthly, "monthly_net")
	}

	if snap.Has(domain.CategoryInvestments) {
		out.put("allocation", allocation(snap.Records(domain.CategoryInvestments)), domain.CategoryInvestments)
	}

	if nw, sources, ok := netWorth(snap); ok {
		var s domain.Series
		s.Append("net_worth", round(nw))
		out.put("net_worth", s, sources...)
	}

	switch intent {
	case domain.IntentTrend:
		for _, name := range monthly {
			s, _ := out.Series(name)
			out.put(name+"_change", deltas(s), out.items[name].sources.Sorted()...)
		}
	case domain.IntentProjection:
		project(out, snap, projectionMonths)
	}

	return out
}

func sum(rs []domain.FinancialRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rs {
		total = total.Add(r.Amount)
	}
	return total
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// monthlySeries buckets records by calendar month (UTC), oldest first.
func monthlySeries(rs []domain.FinancialRecord, value func(domain.FinancialRecord) decimal.Decimal) domain.Series {
	buckets := make(map[string]decimal.Decimal)
	for _, r := range rs {
		m := r.Timestamp.UTC().Format(monthLayout)
		buckets[m] = buckets[m].Add(value(r))
	}
	months := make([]string, 0, len(buckets))
	for m := range buckets {
		months = append(months, m)
	}
	sort.Strings(months)

	var s domain.Series
	for _, m := range months {
		s.Append(m, round(buckets[m]))
	}
	return s
}

// subtractSeries returns a - b over the union of their labels.
func subtractSeries(a, b domain.Series) domain.Series {
	values := make(map[string]decimal.Decimal)
	for i, l := range a.Labels {
		values[l] = values[l].Add(a.Values[i])
	}
	for i, l := range b.Labels {
		values[l] = values[l].Sub(b.Values[i])
	}
	labels := make([]string, 0, len(values))
	for l := range values {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	var s domain.Series
	for _, l := range labels {
		s.Append(l, round(values[l]))
	}
	return s
}

func recordLabel(r domain.FinancialRecord) string {
	for _, key := range []string{domain.MetaLabel, domain.MetaType, domain.MetaDescription} {
		if v := r.Metadata[key]; v != "" {
			return v
		}
	}
	return "uncategorized"
}

// breakdown sums outflows by label and keeps the largest breakdownSize.
func breakdown(txs []domain.FinancialRecord) (domain.Series, domain.Series) {
	amounts := make(map[string]decimal.Decimal)
	counts := make(map[string]int64)
	for _, r := range txs {
		if !r.Amount.IsNegative() {
			continue
		}
		l := recordLabel(r)
		amounts[l] = amounts[l].Add(r.Amount.Neg())
		counts[l]++
	}

	labels := make([]string, 0, len(amounts))
	for l := range amounts {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if c := amounts[labels[i]].Cmp(amounts[labels[j]]); c != 0 {
			return c > 0
		}
		return labels[i] < labels[j]
	})
	if len(labels) > breakdownSize {
		labels = labels[:breakdownSize]
	}

	var a, c domain.Series
	for _, l := range labels {
		a.Append(l, round(amounts[l]))
		c.Append(l, decimal.NewFromInt(counts[l]))
	}
	return a, c
}

// allocation sums investment value by type, largest first.
func allocation(rs []domain.FinancialRecord) domain.Series {
	byType := make(map[string]decimal.Decimal)
	for _, r := range rs {
		t := r.Metadata[domain.MetaType]
		if t == "" {
			t = "other"
		}
		byType[t] = byType[t].Add(r.Amount)
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if c := byType[types[i]].Cmp(byType[types[j]]); c != 0 {
			return c > 0
		}
		return types[i] < types[j]
	})

	var s domain.Series
	for _, t := range types {
		s.Append(t, round(byType[t]))
	}
	return s
}

// netWorth adds assets, savings and investments and subtracts liabilities,
// using only the balance categories present in the snapshot.
func netWorth(snap *domain.ContextSnapshot) (decimal.Decimal, []domain.Category, bool) {
	total := decimal.Zero
	var sources []domain.Category
	for _, c := range []domain.Category{domain.CategoryAssets, domain.CategorySavings, domain.CategoryInvestments} {
		if snap.Has(c) {
			total = total.Add(sum(snap.Records(c)))
			sources = append(sources, c)
		}
	}
	if snap.Has(domain.CategoryLiabilities) {
		for _, r := range snap.Records(domain.CategoryLiabilities) {
			total = total.Sub(r.Amount.Abs())
		}
		sources = append(sources, domain.CategoryLiabilities)
	}
	return total, sources, len(sources) > 0
}

// deltas returns the change between consecutive points.
func deltas(s domain.Series) domain.Series {
	var out domain.Series
	for i := 1; i < s.Len(); i++ {
		out.Append(s.Labels[i], round(s.Values[i].Sub(s.Values[i-1])))
	}
	return out
}

// project extrapolates the best available monthly series and, when savings
// are visible, the resulting savings balance.
func project(out *Aggregates, snap *domain.ContextSnapshot, months int) {
	var base string
	for _, name := range []string{"monthly_net", "monthly_income", "monthly_spending"} {
		if _, ok := out.Series(name); ok {
			base = name
			break
		}
	}
	if base == "" || months <= 0 {
		return
	}

	s, _ := out.Series(base)
	projected := linearProjection(s, months)
	baseSources := out.items[base].sources.Sorted()
	out.put("projection", projected, baseSources...)

	if base == "monthly_net" && snap.Has(domain.CategorySavings) {
		balance := sum(snap.Records(domain.CategorySavings))
		var savings domain.Series
		for i, l := range projected.Labels {
			balance = balance.Add(projected.Values[i])
			savings.Append(l, round(balance))
		}
		out.put("projected_savings", savings, append(baseSources, domain.CategorySavings)...)
	}
}

// linearProjection fits y = a + b*x by least squares over the series and
// extends it by n months past the last label.
func linearProjection(s domain.Series, n int) domain.Series {
	var out domain.Series
	if s.Len() == 0 {
		return out
	}

	count := decimal.NewFromInt(int64(s.Len()))
	sumX, sumY, sumXY, sumXX := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for i, y := range s.Values {
		x := decimal.NewFromInt(int64(i))
		sumX = sumX.Add(x)
		sumY = sumY.Add(y)
		sumXY = sumXY.Add(x.Mul(y))
		sumXX = sumXX.Add(x.Mul(x))
	}

	slope := decimal.Zero
	denom := count.Mul(sumXX).Sub(sumX.Mul(sumX))
	if !denom.IsZero() {
		slope = count.Mul(sumXY).Sub(sumX.Mul(sumY)).Div(denom)
	}
	intercept := sumY.Sub(slope.Mul(sumX)).Div(count)

	last, err := time.Parse(monthLayout, s.Labels[s.Len()-1])
	if err != nil {
		return out
	}
	for i := 0; i < n; i++ {
		x := decimal.NewFromInt(int64(s.Len() + i))
		out.Append(last.AddDate(0, i+1, 0).Format(monthLayout), round(intercept.Add(slope.Mul(x))))
	}
	return out
}
