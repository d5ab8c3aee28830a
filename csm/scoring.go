package csm

import "sort"

// ScoreConfig tunes the score calculator.
type ScoreConfig struct {
	// MaxScorePerQuestion is the numeric ceiling of a single rating.
	MaxScorePerQuestion float64
	// Clamp bounds AvgScore to [0, 100]. A raw average outside that
	// range means the answers and the ceiling disagree; the result is
	// flagged anomalous instead of leaking a 250% score downstream.
	Clamp bool
}

// DefaultScoreConfig matches the 1..5 rating scale.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{MaxScorePerQuestion: 5, Clamp: true}
}

// ScoreResult is the outcome of scoring one set of answers.
type ScoreResult struct {
	TotalScore float64
	MaxScore   float64
	AvgScore   float64
	RiskLevel  RiskLevel
	Anomalous  bool
}

// weightFor returns the question's weight. Questions the form does not
// carry, and fields without an explicit weight, count with weight 1.
func weightFor(fields []FormField, questionID string) float64 {
	for _, f := range fields {
		if f.QuestionID == questionID {
			if f.Weight > 0 {
				return f.Weight
			}
			return 1
		}
	}
	return 1
}

// TotalScore sums weight * rating over the scorable answers. "n/a"
// answers contribute nothing.
func TotalScore(answers []Answer, fields []FormField) float64 {
	var total float64
	for _, a := range answers {
		if !a.Score.Scorable() {
			continue
		}
		total += a.Score.Numeric() * weightFor(fields, a.QuestionID)
	}
	return total
}

// MaxScore sums weight * maxPerQuestion over the same scorable
// answers, so "n/a" questions drop out of the denominator as well.
func MaxScore(answers []Answer, fields []FormField, maxPerQuestion float64) float64 {
	var max float64
	for _, a := range answers {
		if !a.Score.Scorable() {
			continue
		}
		max += maxPerQuestion * weightFor(fields, a.QuestionID)
	}
	return max
}

// AverageScore converts total and max into a percentage. An empty or
// all-"n/a" sheet scores 0.
func AverageScore(total, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return total / max * 100
}

// RiskLevelFor buckets an average percentage. Bounds are inclusive:
// exactly 80 is Low and exactly 60 is Medium.
func RiskLevelFor(avg float64) RiskLevel {
	switch {
	case avg >= 80:
		return RiskLow
	case avg >= 60:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// Calculate scores a set of answers against its form fields. Answers
// are folded in question id order so the same answer set always lands
// on the same floats regardless of the order the caller accumulated
// them in.
func Calculate(answers []Answer, fields []FormField, cfg ScoreConfig) ScoreResult {
	if cfg.MaxScorePerQuestion <= 0 {
		cfg.MaxScorePerQuestion = 5
	}

	sorted := make([]Answer, len(answers))
	copy(sorted, answers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].QuestionID < sorted[j].QuestionID })

	res := ScoreResult{
		TotalScore: TotalScore(sorted, fields),
		MaxScore:   MaxScore(sorted, fields, cfg.MaxScorePerQuestion),
	}
	res.AvgScore = AverageScore(res.TotalScore, res.MaxScore)
	if cfg.Clamp && (res.AvgScore < 0 || res.AvgScore > 100) {
		res.Anomalous = true
		res.AvgScore = min(100, max(0, res.AvgScore))
	}
	res.RiskLevel = RiskLevelFor(res.AvgScore)
	return res
}
