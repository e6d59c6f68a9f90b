package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tubepulse/tubepulse/pkg/models"
)

const maxThemes = 3

// rawAnalysis mirrors the JSON the sentiment model is asked to produce. Pointers
// distinguish missing fields from zero values.
type rawAnalysis struct {
	SentimentScore   *float64  `json:"sentiment_score"`
	TopThemes        *[]string `json:"top_3_themes"`
	ControversyLevel *float64  `json:"controversy_level"`
}

// ParseAnalysis validates a model response and normalizes it into an AnalysisResult.
// Markdown code fences around the JSON are tolerated, out-of-range numbers are
// clamped and themes are trimmed and limited to three.
func ParseAnalysis(text string) (models.AnalysisResult, error) {
	var raw rawAnalysis
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("decode analysis: %w", err)
	}

	switch {
	case raw.SentimentScore == nil:
		return models.AnalysisResult{}, errors.New("missing sentiment_score")
	case raw.TopThemes == nil:
		return models.AnalysisResult{}, errors.New("missing top_3_themes")
	case raw.ControversyLevel == nil:
		return models.AnalysisResult{}, errors.New("missing controversy_level")
	}

	level := *raw.ControversyLevel
	if level != math.Trunc(level) {
		return models.AnalysisResult{}, fmt.Errorf("controversy_level %v is not an integer", level)
	}

	themes := make([]string, 0, maxThemes)
	for _, th := range *raw.TopThemes {
		th = strings.TrimSpace(th)
		if th == "" {
			continue
		}
		themes = append(themes, th)
		if len(themes) == maxThemes {
			break
		}
	}

	return models.AnalysisResult{
		SentimentScore:   clamp(*raw.SentimentScore, -1, 1),
		TopThemes:        themes,
		ControversyLevel: int(clamp(level, 1, 10)),
	}, nil
}

// stripFences removes a surrounding ``` or ```json fence.
func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
