package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tubepulse/tubepulse/pkg/models"
)

const topThemes = 10

func formatError(er *models.ErrorResult) string {
	if er == nil {
		return "Analysis failed."
	}
	return fmt.Sprintf("%s (%s)", er.Message, er.ErrorType)
}

// formatAggregate renders batch totals and the most frequent themes.
func formatAggregate(agg models.BatchAggregate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Comments:        %d\n", agg.TotalComments)
	fmt.Fprintf(&b, "Analyzed:        %d\n", len(agg.Analyses))
	fmt.Fprintf(&b, "Failed:          %d\n", agg.FailedCount())
	fmt.Fprintf(&b, "Avg sentiment:   %+.3f\n", agg.Aggregated.AvgSentiment)
	fmt.Fprintf(&b, "Avg controversy: %.2f\n", agg.Aggregated.AvgControversy)
	b.WriteString(formatThemes(agg.Aggregated.ThemeFrequency))
	return b.String()
}

func formatThemes(freq map[string]int) string {
	if len(freq) == 0 {
		return "No themes found.\n"
	}
	themes := make([]string, 0, len(freq))
	for t := range freq {
		themes = append(themes, t)
	}
	sort.Slice(themes, func(i, j int) bool {
		if freq[themes[i]] != freq[themes[j]] {
			return freq[themes[i]] > freq[themes[j]]
		}
		return themes[i] < themes[j]
	})
	if len(themes) > topThemes {
		themes = themes[:topThemes]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n%-30s %6s\n", "Theme", "Count")
	b.WriteString(strings.Repeat("-", 37) + "\n")
	for _, t := range themes {
		fmt.Fprintf(&b, "%-30s %6d\n", t, freq[t])
	}
	return b.String()
}

func formatReport(r models.Report) string {
	agg := models.BatchAggregate{
		TotalComments: r.CommentCount,
		Analyses:      r.IndividualAnalyses,
		Aggregated:    r.SentimentAnalysis,
	}
	out := formatAggregate(agg)
	if r.Insights != "" {
		out += "\nInsights\n" + r.Insights + "\n"
	}
	return out
}

func formatVideo(v *models.VideoRecord) string {
	return fmt.Sprintf("Video:    %s (%s)\nChannel:  %s\nViews:    %d\n",
		v.Title, v.VideoID, v.Channel, v.Views)
}

func formatCacheReport(r models.CacheReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %8s %8s %8s %8s %8s %10s\n",
		"Cache", "Size", "Max", "Hits", "Misses", "Hit%", "Evictions")
	b.WriteString(strings.Repeat("-", 66) + "\n")
	for _, s := range []models.CacheStats{r.SentimentCache, r.BatchCache} {
		fmt.Fprintf(&b, "%-10s %8d %8d %8d %8d %7.1f%% %10d\n",
			s.Name, s.Size, s.MaxSize, s.Hits, s.Misses, s.HitRate*100, s.Evictions)
	}
	return b.String()
}

// formatCallSummary formats call summaries as a text table.
func formatCallSummary(rows []models.CallSummary) string {
	if len(rows) == 0 {
		return "No remote calls recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-25s %-22s %8s %9s %12s\n",
		"Model", "Outcome", "Calls", "Attempts", "Avg Latency")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-25s %-22s %8d %9d %10.0fms\n",
			r.Model, r.Outcome, r.Calls, r.TotalAttempts, r.AvgLatencyMs)
	}
	return b.String()
}

// formatBudgetStatus formats budget statuses as a text table.
func formatBudgetStatus(statuses []models.BudgetStatus) string {
	if len(statuses) == 0 {
		return "No budget policies found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-8s %10s %10s %10s %6s\n",
		"Policy", "Period", "Max Calls", "Used", "Remaining", "Usage%")
	b.WriteString(strings.Repeat("-", 70) + "\n")
	for _, s := range statuses {
		name := s.Policy.Name
		if name == "" {
			name = "-"
		}
		pct := float64(0)
		if s.Policy.MaxCalls > 0 {
			pct = float64(s.Used) / float64(s.Policy.MaxCalls) * 100
		}
		fmt.Fprintf(&b, "%-20s %-8s %10d %10d %10d %5.1f%%\n",
			name, s.Policy.Period, s.Policy.MaxCalls, s.Used, s.Remaining, pct)
	}
	return b.String()
}
