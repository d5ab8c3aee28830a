// Package csm models contractor safety assessments: checklist forms,
// vendors, scored answer sheets, and the assessment lifecycle that
// ties them together.
package csm

import (
	"strconv"
	"time"
)

// Collection names in the document store.
const (
	CollectionVendors     = "vendors"
	CollectionForms       = "forms"
	CollectionAssessments = "assessments"
)

// Score is the answer value for one checklist question. "n/a" marks a
// question as not applicable; everything else is the string form of a
// numeric rating.
type Score string

// ScoreNA excludes a question from scoring entirely.
const ScoreNA Score = "n/a"

// Scorable reports whether the score carries a numeric rating.
func (s Score) Scorable() bool { return s != "" && s != ScoreNA }

// Numeric returns the rating value, or 0 for "n/a" and unset scores.
func (s Score) Numeric() float64 {
	if !s.Scorable() {
		return 0
	}
	n, err := strconv.ParseFloat(string(s), 64)
	if err != nil {
		return 0
	}
	return n
}

// Valid reports whether the score is "n/a" or a positive rating.
func (s Score) Valid() bool { return s == ScoreNA || s.Numeric() > 0 }

// CheckType controls whether a question accepts "n/a".
type CheckType string

const (
	// CheckMandatory questions must carry a numeric score.
	CheckMandatory CheckType = "M"
	// CheckStandard questions may be skipped with "n/a".
	CheckStandard CheckType = "S"
)

// Mandatory reports whether the question rejects "n/a".
func (c CheckType) Mandatory() bool { return c == CheckMandatory }

// Answer is one scored question on an assessment.
type Answer struct {
	QuestionID  string `json:"questionId"`
	Score       Score  `json:"score"`
	Comment     string `json:"comment,omitempty"`
	IsConfirmed bool   `json:"isConfirmed"`
}

// FormField is one question on a checklist form. Weight scales the
// question's contribution to both the total and the maximum score.
type FormField struct {
	QuestionID string    `json:"questionId" validate:"required"`
	Label      string    `json:"label"`
	CkType     CheckType `json:"ckType" validate:"required,oneof=M S"`
	Weight     float64   `json:"weight"`
}

// ChecklistForm is the set of questions a vendor is assessed against.
type ChecklistForm struct {
	FormID string      `json:"formId" validate:"required"`
	Name   string      `json:"name"`
	Fields []FormField `json:"fields" validate:"required,min=1,dive"`
}

// Field returns the form field for a question id.
func (f ChecklistForm) Field(questionID string) (FormField, bool) {
	for _, fd := range f.Fields {
		if fd.QuestionID == questionID {
			return fd, true
		}
	}
	return FormField{}, false
}

// Vendor is a contractor subject to safety assessments.
type Vendor struct {
	VdCode   string `json:"vdCode" validate:"required"`
	VdName   string `json:"vdName" validate:"required"`
	Category string `json:"category,omitempty"`
	Contact  string `json:"contact,omitempty"`
}

// RiskLevel buckets an average score percentage.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Assessment is one safety assessment of a vendor. At most one
// assessment per vendor is active at a time, and a finished assessment
// never changes again.
type Assessment struct {
	ID         string    `json:"id" validate:"required"`
	VdCode     string    `json:"vdCode" validate:"required"`
	VdName     string    `json:"vdName"`
	FormID     string    `json:"formId" validate:"required"`
	Auditor    string    `json:"auditor"`
	Answers    []Answer  `json:"answers"`
	TotalScore float64   `json:"totalScore"`
	MaxScore   float64   `json:"maxScore"`
	AvgScore   float64   `json:"avgScore"`
	RiskLevel  RiskLevel `json:"riskLevel,omitempty"`
	Anomalous  bool      `json:"anomalous,omitempty"`
	IsActive   bool      `json:"isActive"`
	IsFinish   bool      `json:"isFinish"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// AssessmentSummary is the dashboard projection: the most recent
// assessment outcome per vendor.
type AssessmentSummary struct {
	VdCode         string    `json:"vdCode"`
	VdName         string    `json:"vdName"`
	AvgScore       float64   `json:"avgScore"`
	RiskLevel      RiskLevel `json:"riskLevel"`
	IsFinish       bool      `json:"isFinish"`
	LastAssessedAt time.Time `json:"lastAssessedAt"`
}
