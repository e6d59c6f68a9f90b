package analyzer

import (
	"sort"

	"github.com/tubepulse/tubepulse/pkg/models"
)

// Aggregate folds per-comment outcomes into batch statistics. Successful analyses are
// kept in input order and failures are counted only in TotalComments. Averages are
// zero when nothing succeeded. The sentiment sum is taken over sorted scores, so any
// permutation of the same outcomes yields an identical average.
func Aggregate(outcomes []models.Outcome) models.BatchAggregate {
	agg := models.BatchAggregate{
		TotalComments: len(outcomes),
		Analyses:      make([]models.AnalysisResult, 0, len(outcomes)),
		Aggregated: models.Aggregated{
			ThemeFrequency: make(map[string]int),
		},
	}

	scores := make([]float64, 0, len(outcomes))
	controversy := 0
	for _, o := range outcomes {
		switch o.Kind() {
		case models.OutcomeSuccess:
			r := *o.Result
			agg.Analyses = append(agg.Analyses, r)
			scores = append(scores, r.SentimentScore)
			controversy += r.ControversyLevel
			for _, theme := range r.TopThemes {
				agg.Aggregated.ThemeFrequency[theme]++
			}
		case models.OutcomeError:
		}
	}

	if n := len(agg.Analyses); n > 0 {
		sort.Float64s(scores)
		sum := 0.0
		for _, s := range scores {
			sum += s
		}
		agg.Aggregated.AvgSentiment = sum / float64(n)
		agg.Aggregated.AvgControversy = float64(controversy) / float64(n)
	}
	return agg
}
