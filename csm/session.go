package csm

import (
	"context"
	"sync"
	"time"

	"github.com/briangreenhill/csmkit/autosave"
)

// SessionConfig tunes an editing session.
type SessionConfig struct {
	// SaveDelay is the debounce window between the last edit and the
	// auto-save that persists it.
	SaveDelay time.Duration
	// OnState observes auto-save state transitions, typically to drive
	// a status indicator.
	OnState func(autosave.State)
}

// Session is one editing pass over an assessment: an answer sheet
// bound to the assessment's form, with debounced auto-save wired to
// the service. Edits mutate the sheet and nudge the auto-save
// controller; the controller decides when the accumulated answers
// actually travel.
type Session struct {
	svc   *Service
	form  ChecklistForm
	sheet *Sheet
	ctrl  *autosave.Controller

	mu         sync.Mutex
	assessment Assessment
}

// NewSession opens an editing session on an assessment. A zero
// SaveDelay falls back to the service default.
func (s *Service) NewSession(a Assessment, form ChecklistForm, cfg SessionConfig) *Session {
	delay := cfg.SaveDelay
	if delay <= 0 {
		delay = s.saveDelay
	}
	sess := &Session{
		svc:        s,
		form:       form,
		assessment: a,
	}
	sess.sheet = NewSheet(form, a.Answers...)
	sess.ctrl = autosave.New(autosave.Config{Delay: delay, OnChange: cfg.OnState}, sess.persist)
	sess.sheet.OnChange(sess.ctrl.Touch)
	return sess
}

// persist is the auto-save callback: it snapshots the sheet onto the
// assessment and runs a full save through the service.
func (sess *Session) persist(ctx context.Context) error {
	sess.mu.Lock()
	a := sess.assessment
	sess.mu.Unlock()
	a.Answers = sess.sheet.Answers()

	if err := sess.svc.SaveAssessment(ctx, &a, sess.form); err != nil {
		return err
	}

	sess.mu.Lock()
	sess.assessment = a
	sess.mu.Unlock()
	return nil
}

// SetScore records a rating and schedules an auto-save.
func (sess *Session) SetScore(questionID string, score Score) error {
	return sess.sheet.SetScore(questionID, score)
}

// SetComment attaches a note and schedules an auto-save.
func (sess *Session) SetComment(questionID, comment string) error {
	return sess.sheet.SetComment(questionID, comment)
}

// Confirm marks an answer reviewed and schedules an auto-save.
func (sess *Session) Confirm(questionID string) error {
	return sess.sheet.Confirm(questionID)
}

// Score calculates the live result for the current answers.
func (sess *Session) Score() ScoreResult {
	return sess.sheet.Score(sess.svc.cfg)
}

// Sheet exposes the underlying answer sheet.
func (sess *Session) Sheet() *Sheet { return sess.sheet }

// Assessment returns the last persisted revision.
func (sess *Session) Assessment() Assessment {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.assessment
}

// SaveState reports the auto-save pipeline state.
func (sess *Session) SaveState() autosave.State { return sess.ctrl.State() }

// SaveNow flushes pending edits immediately.
func (sess *Session) SaveNow(ctx context.Context) error {
	return sess.ctrl.SaveNow(ctx)
}

// Finish flushes the sheet one last time, then locks the assessment.
// The session stops auto-saving once finished.
func (sess *Session) Finish(ctx context.Context) error {
	if err := sess.ctrl.SaveNow(ctx); err != nil {
		return err
	}
	sess.ctrl.Close()

	sess.mu.Lock()
	a := sess.assessment
	sess.mu.Unlock()
	a.Answers = sess.sheet.Answers()

	if err := sess.svc.FinishAssessment(ctx, &a, sess.form); err != nil {
		return err
	}

	sess.mu.Lock()
	sess.assessment = a
	sess.mu.Unlock()
	return nil
}

// Close tears the session down. Pending unsaved edits are abandoned;
// callers that care flush with SaveNow first.
func (sess *Session) Close() { sess.ctrl.Close() }
