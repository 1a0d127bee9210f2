package engagement

import (
	"math"
	"strings"
	"unicode/utf8"
)

// MinSubstantiveLength is the trimmed length a free-text response must
// exceed before it counts as progress.
const MinSubstantiveLength = 10

// Weights splits the weighted formula between sections and responses.
type Weights struct {
	Sections  float64 `yaml:"sections"`
	Responses float64 `yaml:"responses"`
}

// DefaultWeights is the 70/30 split used by reflection-heavy surfaces.
var DefaultWeights = Weights{Sections: 0.7, Responses: 0.3}

// Compute returns min(100, seen/max(total,1)*100).
func Compute(seen, total int) float64 {
	return clampPercent(ratio(seen, total) * 100)
}

// ComputeWeighted blends the section ratio with the answered ratio using
// DefaultWeights.
func ComputeWeighted(seen, total int, answeredRatio float64) float64 {
	return DefaultWeights.compute(seen, total, answeredRatio)
}

func (w Weights) compute(seen, total int, answeredRatio float64) float64 {
	if answeredRatio < 0 {
		answeredRatio = 0
	}
	if answeredRatio > 1 {
		answeredRatio = 1
	}
	return clampPercent(w.Sections*ratio(seen, total)*100 + w.Responses*answeredRatio*100)
}

// IsSubstantive reports whether a free-text response counts as progress.
func IsSubstantive(response string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(response)) > MinSubstantiveLength
}

// AnsweredRatio is the share of required prompts that have a substantive
// response. It is 0 when nothing is required.
func AnsweredRatio(responses []string, required int) float64 {
	if required <= 0 {
		return 0
	}
	n := 0
	for _, r := range responses {
		if IsSubstantive(r) {
			n++
		}
	}
	if n > required {
		n = required
	}
	return float64(n) / float64(required)
}

// Calculator picks the formula for a surface. It is pure; callers keep
// and compare its output.
type Calculator struct {
	Weighted bool
	Weights  Weights
}

// Percent computes completion. The weighted formula only applies when the
// surface has prompts to answer; otherwise sections alone decide.
func (c Calculator) Percent(seen, total int, responses []string, required int) float64 {
	if !c.Weighted || required <= 0 {
		return Compute(seen, total)
	}
	w := c.Weights
	if w == (Weights{}) {
		w = DefaultWeights
	}
	return w.compute(seen, total, AnsweredRatio(responses, required))
}

func ratio(seen, total int) float64 {
	if seen < 0 {
		seen = 0
	}
	return float64(seen) / float64(max(total, 1))
}

func clampPercent(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	return math.Min(100, p)
}
