package csm

import (
	"testing"

	"github.com/briangreenhill/csmkit/fault"
)

func testForm() ChecklistForm {
	return ChecklistForm{
		FormID: "F1",
		Name:   "Site safety walk",
		Fields: []FormField{
			{QuestionID: "q1", Label: "PPE worn on site", CkType: CheckMandatory, Weight: 1},
			{QuestionID: "q2", Label: "Permits displayed", CkType: CheckStandard, Weight: 1},
			{QuestionID: "q3", Label: "Scaffolding certified", CkType: CheckStandard, Weight: 2},
		},
	}
}

func TestSetScoreMandatoryRejectsNA(t *testing.T) {
	s := NewSheet(testForm())

	err := s.SetScore("q1", ScoreNA)
	if !fault.HasCode(err, fault.CodeValidation) {
		t.Fatalf("SetScore(mandatory, n/a) = %v, want VALIDATION_ERROR", err)
	}
	if got := len(s.Answers()); got != 0 {
		t.Errorf("rejected edit left %d answers behind, want 0", got)
	}

	if err := s.SetScore("q1", "4"); err != nil {
		t.Fatalf("SetScore(mandatory, 4) = %v", err)
	}
	if err := s.SetScore("q2", ScoreNA); err != nil {
		t.Fatalf("SetScore(standard, n/a) = %v", err)
	}
}

func TestSetScoreRejectsBadInput(t *testing.T) {
	s := NewSheet(testForm())

	if err := s.SetScore("q9", "3"); !fault.HasCode(err, fault.CodeNotFound) {
		t.Errorf("unknown question = %v, want DATA_NOT_FOUND", err)
	}
	for _, bad := range []Score{"", "0", "-2", "abc"} {
		if err := s.SetScore("q2", bad); !fault.HasCode(err, fault.CodeValidation) {
			t.Errorf("SetScore(%q) = %v, want VALIDATION_ERROR", bad, err)
		}
	}
}

func TestCommentAndConfirm(t *testing.T) {
	s := NewSheet(testForm())

	if err := s.SetComment("q2", "permit board missing"); err != nil {
		t.Fatalf("SetComment: %v", err)
	}
	if err := s.Confirm("q2"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	answers := s.Answers()
	if len(answers) != 1 {
		t.Fatalf("got %d answers, want 1", len(answers))
	}
	a := answers[0]
	if a.Comment != "permit board missing" || !a.IsConfirmed || a.Score != "" {
		t.Errorf("answer = %+v, want comment and confirmation without a score", a)
	}

	if err := s.Confirm("q3"); !fault.HasCode(err, fault.CodeValidation) {
		t.Errorf("Confirm without an answer = %v, want VALIDATION_ERROR", err)
	}
	if err := s.SetComment("q9", "x"); !fault.HasCode(err, fault.CodeNotFound) {
		t.Errorf("SetComment on unknown question = %v, want DATA_NOT_FOUND", err)
	}
}

func TestAnswersFollowFormOrder(t *testing.T) {
	// The legacy answer belongs to a question the form dropped.
	s := NewSheet(testForm(), Answer{QuestionID: "zz-old", Score: "2"})
	if err := s.SetScore("q3", "5"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetScore("q1", "3"); err != nil {
		t.Fatal(err)
	}

	got := s.Answers()
	want := []string{"q1", "q3", "zz-old"}
	if len(got) != len(want) {
		t.Fatalf("got %d answers, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].QuestionID != id {
			t.Errorf("answers[%d] = %s, want %s", i, got[i].QuestionID, id)
		}
	}
}

func TestMissingAndComplete(t *testing.T) {
	// A historical sheet may carry n/a on a mandatory question; it
	// still counts as missing.
	s := NewSheet(testForm(), Answer{QuestionID: "q1", Score: ScoreNA})

	if got := s.Missing(); len(got) != 1 || got[0] != "q1" {
		t.Errorf("Missing() = %v, want [q1]", got)
	}
	if s.Complete() {
		t.Error("sheet reported complete with an unscored mandatory question")
	}

	if err := s.SetScore("q1", "5"); err != nil {
		t.Fatal(err)
	}
	if !s.Complete() {
		t.Errorf("Complete() = false after scoring, Missing() = %v", s.Missing())
	}
}

func TestOnChangeFiresPerMutation(t *testing.T) {
	s := NewSheet(testForm())
	var fired int
	s.OnChange(func() { fired++ })

	_ = s.SetScore("q1", "4")
	_ = s.SetScore("q1", "5")
	_ = s.SetComment("q1", "ok")
	_ = s.Confirm("q1")
	if fired != 4 {
		t.Errorf("hook fired %d times, want 4", fired)
	}

	_ = s.SetScore("q1", ScoreNA) // rejected
	_ = s.SetScore("q9", "1")     // rejected
	if fired != 4 {
		t.Errorf("hook fired on a rejected mutation, count = %d", fired)
	}
}

func TestSheetScore(t *testing.T) {
	s := NewSheet(testForm())
	_ = s.SetScore("q1", "4")
	_ = s.SetScore("q2", ScoreNA)
	_ = s.SetScore("q3", "5")

	res := s.Score(DefaultScoreConfig())
	// q1: 4*1, q3: 5*2 -> total 14 of max 15.
	if !almostEqual(res.TotalScore, 14) || !almostEqual(res.MaxScore, 15) {
		t.Errorf("score = %v/%v, want 14/15", res.TotalScore, res.MaxScore)
	}
	if res.RiskLevel != RiskLow {
		t.Errorf("risk = %v, want Low", res.RiskLevel)
	}
}
