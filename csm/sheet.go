package csm

import (
	"sort"
	"sync"

	"github.com/briangreenhill/csmkit/fault"
)

// Sheet is a mutable answer sheet bound to one checklist form. Every
// mutation validates against the form before touching state, so a
// rejected edit leaves the sheet exactly as it was.
type Sheet struct {
	form     ChecklistForm
	onChange func()

	mu      sync.Mutex
	answers map[string]Answer
}

// NewSheet builds a sheet for form, seeded with any existing answers.
func NewSheet(form ChecklistForm, existing ...Answer) *Sheet {
	s := &Sheet{
		form:    form,
		answers: make(map[string]Answer, len(form.Fields)),
	}
	for _, a := range existing {
		s.answers[a.QuestionID] = a
	}
	return s
}

// OnChange registers a hook invoked after every successful mutation.
// The hook runs outside the sheet's lock.
func (s *Sheet) OnChange(fn func()) { s.onChange = fn }

func (s *Sheet) mutate(fn func() error) error {
	s.mu.Lock()
	err := fn()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if s.onChange != nil {
		s.onChange()
	}
	return nil
}

// SetScore records a rating for a question. Mandatory questions reject
// "n/a".
func (s *Sheet) SetScore(questionID string, score Score) error {
	return s.mutate(func() error {
		field, ok := s.form.Field(questionID)
		if !ok {
			return fault.NotFound("questions", questionID)
		}
		if !score.Valid() {
			return fault.Validation("score %q is neither a rating nor n/a", score)
		}
		if field.CkType.Mandatory() && score == ScoreNA {
			return fault.Validation("question %s is mandatory and cannot be n/a", questionID)
		}
		a := s.answers[questionID]
		a.QuestionID = questionID
		a.Score = score
		s.answers[questionID] = a
		return nil
	})
}

// SetComment attaches a free-text note to a question.
func (s *Sheet) SetComment(questionID, comment string) error {
	return s.mutate(func() error {
		if _, ok := s.form.Field(questionID); !ok {
			return fault.NotFound("questions", questionID)
		}
		a := s.answers[questionID]
		a.QuestionID = questionID
		a.Comment = comment
		s.answers[questionID] = a
		return nil
	})
}

// Confirm marks a question's answer as reviewed.
func (s *Sheet) Confirm(questionID string) error {
	return s.mutate(func() error {
		a, ok := s.answers[questionID]
		if !ok {
			return fault.Validation("question %s has no answer to confirm", questionID)
		}
		a.IsConfirmed = true
		s.answers[questionID] = a
		return nil
	})
}

// Answers returns the recorded answers in form field order. Answers
// for questions the form no longer carries come last, sorted by id.
func (s *Sheet) Answers() []Answer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Answer, 0, len(s.answers))
	seen := make(map[string]bool, len(s.answers))
	for _, f := range s.form.Fields {
		if a, ok := s.answers[f.QuestionID]; ok {
			out = append(out, a)
			seen[f.QuestionID] = true
		}
	}
	var extra []Answer
	for id, a := range s.answers {
		if !seen[id] {
			extra = append(extra, a)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].QuestionID < extra[j].QuestionID })
	return append(out, extra...)
}

// Missing lists mandatory questions that still lack a numeric score.
func (s *Sheet) Missing() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, f := range s.form.Fields {
		if !f.CkType.Mandatory() {
			continue
		}
		if a, ok := s.answers[f.QuestionID]; !ok || !a.Score.Scorable() {
			out = append(out, f.QuestionID)
		}
	}
	return out
}

// Complete reports whether every mandatory question is scored.
func (s *Sheet) Complete() bool { return len(s.Missing()) == 0 }

// Score calculates the sheet's current result.
func (s *Sheet) Score(cfg ScoreConfig) ScoreResult {
	return Calculate(s.Answers(), s.form.Fields, cfg)
}
