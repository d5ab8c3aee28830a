package csm

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCalculate(t *testing.T) {
	twoStandard := []FormField{
		{QuestionID: "q1", CkType: CheckStandard, Weight: 1},
		{QuestionID: "q2", CkType: CheckStandard, Weight: 1},
	}
	fiveScale := []FormField{
		{QuestionID: "q1", CkType: CheckMandatory, Weight: 1},
		{QuestionID: "q2", CkType: CheckStandard, Weight: 1},
		{QuestionID: "q3", CkType: CheckStandard, Weight: 1},
		{QuestionID: "q4", CkType: CheckStandard, Weight: 1},
	}
	weighted := []FormField{
		{QuestionID: "q1", CkType: CheckMandatory, Weight: 2},
		{QuestionID: "q2", CkType: CheckStandard, Weight: 1},
	}

	tests := []struct {
		name      string
		answers   []Answer
		fields    []FormField
		cfg       ScoreConfig
		total     float64
		max       float64
		avg       float64
		risk      RiskLevel
		anomalous bool
	}{
		{
			// A 5 against a 2-point ceiling blows past 100%; the clamp
			// pins it and flags the sheet.
			name:      "ceiling_mismatch_clamped",
			answers:   []Answer{{QuestionID: "q1", Score: "5"}, {QuestionID: "q2", Score: ScoreNA}},
			fields:    twoStandard,
			cfg:       ScoreConfig{MaxScorePerQuestion: 2, Clamp: true},
			total:     5,
			max:       2,
			avg:       100,
			risk:      RiskLow,
			anomalous: true,
		},
		{
			name:    "ceiling_mismatch_raw",
			answers: []Answer{{QuestionID: "q1", Score: "5"}, {QuestionID: "q2", Score: ScoreNA}},
			fields:  twoStandard,
			cfg:     ScoreConfig{MaxScorePerQuestion: 2, Clamp: false},
			total:   5,
			max:     2,
			avg:     250,
			risk:    RiskLow,
		},
		{
			name: "five_scale_boundary_low",
			answers: []Answer{
				{QuestionID: "q1", Score: "4"},
				{QuestionID: "q2", Score: "4"},
				{QuestionID: "q3", Score: "5"},
				{QuestionID: "q4", Score: "3"},
			},
			fields: fiveScale,
			cfg:    DefaultScoreConfig(),
			total:  16,
			max:    20,
			avg:    80,
			risk:   RiskLow,
		},
		{
			name: "na_drops_out_of_denominator",
			answers: []Answer{
				{QuestionID: "q1", Score: "3"},
				{QuestionID: "q2", Score: ScoreNA},
				{QuestionID: "q3", Score: ScoreNA},
				{QuestionID: "q4", Score: "3"},
			},
			fields: fiveScale,
			cfg:    DefaultScoreConfig(),
			total:  6,
			max:    10,
			avg:    60,
			risk:   RiskMedium,
		},
		{
			name:    "weights_scale_both_sides",
			answers: []Answer{{QuestionID: "q1", Score: "5"}, {QuestionID: "q2", Score: "1"}},
			fields:  weighted,
			cfg:     DefaultScoreConfig(),
			total:   11,
			max:     15,
			avg:     11.0 / 15.0 * 100,
			risk:    RiskMedium,
		},
		{
			name:    "all_na_scores_zero",
			answers: []Answer{{QuestionID: "q1", Score: ScoreNA}, {QuestionID: "q2", Score: ScoreNA}},
			fields:  twoStandard,
			cfg:     DefaultScoreConfig(),
			total:   0,
			max:     0,
			avg:     0,
			risk:    RiskHigh,
		},
		{
			name:    "empty_sheet_scores_zero",
			answers: nil,
			fields:  fiveScale,
			cfg:     DefaultScoreConfig(),
			total:   0,
			max:     0,
			avg:     0,
			risk:    RiskHigh,
		},
		{
			// Answers for questions the form dropped keep weight 1.
			name:    "unknown_question_weight_one",
			answers: []Answer{{QuestionID: "legacy", Score: "4"}},
			fields:  twoStandard,
			cfg:     DefaultScoreConfig(),
			total:   4,
			max:     5,
			avg:     80,
			risk:    RiskLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Calculate(tt.answers, tt.fields, tt.cfg)
			if !almostEqual(res.TotalScore, tt.total) {
				t.Errorf("TotalScore = %v, want %v", res.TotalScore, tt.total)
			}
			if !almostEqual(res.MaxScore, tt.max) {
				t.Errorf("MaxScore = %v, want %v", res.MaxScore, tt.max)
			}
			if !almostEqual(res.AvgScore, tt.avg) {
				t.Errorf("AvgScore = %v, want %v", res.AvgScore, tt.avg)
			}
			if res.RiskLevel != tt.risk {
				t.Errorf("RiskLevel = %v, want %v", res.RiskLevel, tt.risk)
			}
			if res.Anomalous != tt.anomalous {
				t.Errorf("Anomalous = %v, want %v", res.Anomalous, tt.anomalous)
			}
		})
	}
}

func TestRiskLevelFor(t *testing.T) {
	tests := []struct {
		avg  float64
		want RiskLevel
	}{
		{100, RiskLow},
		{85, RiskLow},
		{80, RiskLow},
		{79.999, RiskMedium},
		{65, RiskMedium},
		{60, RiskMedium},
		{59.999, RiskHigh},
		{45, RiskHigh},
		{0, RiskHigh},
	}
	for _, tt := range tests {
		if got := RiskLevelFor(tt.avg); got != tt.want {
			t.Errorf("RiskLevelFor(%v) = %v, want %v", tt.avg, got, tt.want)
		}
	}
}

func TestCalculateOrderIndependent(t *testing.T) {
	fields := []FormField{
		{QuestionID: "q1", CkType: CheckStandard, Weight: 0.1},
		{QuestionID: "q2", CkType: CheckStandard, Weight: 0.2},
		{QuestionID: "q3", CkType: CheckStandard, Weight: 0.3},
		{QuestionID: "q4", CkType: CheckStandard, Weight: 0.7},
	}
	forward := []Answer{
		{QuestionID: "q1", Score: "3"},
		{QuestionID: "q2", Score: "5"},
		{QuestionID: "q3", Score: ScoreNA},
		{QuestionID: "q4", Score: "2"},
	}
	shuffled := []Answer{forward[2], forward[0], forward[3], forward[1]}
	reversed := []Answer{forward[3], forward[2], forward[1], forward[0]}

	base := Calculate(forward, fields, DefaultScoreConfig())
	for _, other := range [][]Answer{shuffled, reversed} {
		if got := Calculate(other, fields, DefaultScoreConfig()); got != base {
			t.Errorf("Calculate depends on answer order: %+v vs %+v", got, base)
		}
	}
}

func TestScoreValues(t *testing.T) {
	tests := []struct {
		score    Score
		scorable bool
		numeric  float64
		valid    bool
	}{
		{"5", true, 5, true},
		{"1", true, 1, true},
		{ScoreNA, false, 0, true},
		{"", false, 0, false},
		{"0", true, 0, false},
		{"-3", true, -3, false},
		{"banana", true, 0, false},
	}
	for _, tt := range tests {
		if got := tt.score.Scorable(); got != tt.scorable {
			t.Errorf("Score(%q).Scorable() = %v, want %v", tt.score, got, tt.scorable)
		}
		if got := tt.score.Numeric(); !almostEqual(got, tt.numeric) {
			t.Errorf("Score(%q).Numeric() = %v, want %v", tt.score, got, tt.numeric)
		}
		if got := tt.score.Valid(); got != tt.valid {
			t.Errorf("Score(%q).Valid() = %v, want %v", tt.score, got, tt.valid)
		}
	}
}
