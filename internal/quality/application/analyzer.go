package application

import (
	"fmt"
	"math"
	"strconv"

	"water-quality-cloud/internal/observability/metrics"
	quality "water-quality-cloud/internal/quality/domain"
	telemetry "water-quality-cloud/internal/telemetry/domain"
)

const (
	recentWindow   = 3
	trendThreshold = 0.20
)

// ToSamples converts stored readings into numeric samples, preserving order.
// Values that do not parse are dropped.
func ToSamples(readings []telemetry.Reading) []quality.Sample {
	samples := make([]quality.Sample, 0, len(readings))
	dropped := 0
	for _, r := range readings {
		value, ok := quality.ParseValue(r.Value)
		if !ok {
			dropped++
			continue
		}
		samples = append(samples, quality.Sample{
			Parameter:  quality.NormalizeParameter(r.Parameter),
			Value:      value,
			RecordedAt: r.RecordedAt,
		})
	}
	metrics.AddReadingsDropped(dropped)
	return samples
}

// GroupByParameter groups sample values by normalised parameter in input order.
func GroupByParameter(samples []quality.Sample) map[string][]float64 {
	grouped := make(map[string][]float64)
	for _, s := range samples {
		grouped[s.Parameter] = append(grouped[s.Parameter], s.Value)
	}
	return grouped
}

// Analyze evaluates every rule in table order against the samples, which must be
// ordered ascending by time. It has no side effects.
func Analyze(table *quality.RuleTable, samples []quality.Sample) []quality.Verdict {
	if table == nil || len(samples) == 0 {
		return nil
	}
	series := make(map[string][]float64)
	for _, s := range samples {
		rule, ok := table.Lookup(s.Parameter)
		if !ok {
			continue
		}
		series[rule.Name] = append(series[rule.Name], s.Value)
	}

	var verdicts []quality.Verdict
	for _, rule := range table.Rules() {
		values := series[rule.Name]
		if len(values) == 0 {
			continue
		}
		if verdict, ok := evaluate(rule, values); ok {
			verdicts = append(verdicts, verdict)
		}
	}
	return verdicts
}

// AnalyzeReadings is Analyze over raw readings.
func AnalyzeReadings(table *quality.RuleTable, readings []telemetry.Reading) []quality.Verdict {
	return Analyze(table, ToSamples(readings))
}

func evaluate(rule quality.ParameterRule, values []float64) (quality.Verdict, bool) {
	n := len(values)
	recent := values[n-min(recentWindow, n):]
	older := values[:max(1, n-recentWindow)]

	recentAvg := mean(recent)
	olderAvg := mean(older)

	violated := false
	message := ""
	switch {
	case rule.Min != nil && recentAvg < *rule.Min:
		violated = true
		message = fmt.Sprintf("%s level critically low (%.2f), below minimum threshold (%s)",
			rule.Name, recentAvg, formatBound(*rule.Min))
	case rule.Max != nil && recentAvg > *rule.Max:
		violated = true
		message = fmt.Sprintf("%s level critically high (%.2f), above maximum threshold (%s)",
			rule.Name, recentAvg, formatBound(*rule.Max))
	}

	if !violated && olderAvg != 0 {
		change := math.Abs(recentAvg-olderAvg) / math.Abs(olderAvg)
		if change > trendThreshold {
			direction := "decreasing"
			if recentAvg > olderAvg {
				direction = "increasing"
			}
			message = fmt.Sprintf("%s showing concerning %s trend (was %.2f, now %.2f)",
				rule.Name, direction, olderAvg, recentAvg)
			violated = true
		}
	}

	if !violated {
		return quality.Verdict{}, false
	}

	// Direction only, not bound-aware: a falling dissolved oxygen level reads as improving.
	trend := quality.TrendImproving
	if recentAvg > olderAvg {
		trend = quality.TrendWorsening
	}
	return quality.Verdict{
		Parameter: rule.Name,
		Message:   message,
		Severity:  rule.Severity,
		Threshold: quality.Threshold{
			Min:      rule.Min,
			Max:      rule.Max,
			Severity: rule.Severity,
		},
		RecentValue: quality.Round(recentAvg, 4),
		Trend:       trend,
	}, true
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// formatBound renders whole numbers with one decimal place (5 -> "5.0").
func formatBound(value float64) string {
	text := strconv.FormatFloat(value, 'f', -1, 64)
	if value == math.Trunc(value) {
		text += ".0"
	}
	return text
}
