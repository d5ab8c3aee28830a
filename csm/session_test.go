package csm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/briangreenhill/csmkit/autosave"
	"github.com/briangreenhill/csmkit/store"
)

// countingWriter wraps a Writer so tests can count how many saves
// actually travel.
type countingWriter struct {
	inner store.Writer

	mu      sync.Mutex
	updates int
	batches int
}

func (w *countingWriter) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	w.mu.Lock()
	w.updates++
	w.mu.Unlock()
	return w.inner.Update(ctx, collection, id, patch)
}

func (w *countingWriter) Delete(ctx context.Context, collection, id string) error {
	return w.inner.Delete(ctx, collection, id)
}

func (w *countingWriter) BatchWrite(ctx context.Context, ops []store.WriteOp) error {
	w.mu.Lock()
	w.batches++
	w.mu.Unlock()
	return w.inner.BatchWrite(ctx, ops)
}

func (w *countingWriter) updateCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.updates
}

func newSessionFixture(t *testing.T, cfg SessionConfig) (*Session, *countingWriter, *store.MemStore) {
	t.Helper()
	mem := store.NewMemStore()
	if err := mem.Seed(CollectionForms, "F1", testForm()); err != nil {
		t.Fatal(err)
	}
	writer := &countingWriter{inner: mem}
	svc := NewService(mem, writer)

	a, err := svc.StartAssessment(context.Background(), Vendor{VdCode: "VD001", VdName: "Apex Scaffolding"}, testForm(), "inspector.a")
	if err != nil {
		t.Fatal(err)
	}
	sess := svc.NewSession(a, testForm(), cfg)
	t.Cleanup(sess.Close)
	return sess, writer, mem
}

func waitSaveState(t *testing.T, sess *Session, want autosave.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sess.SaveState() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("save state = %v, want %v", sess.SaveState(), want)
}

func TestSessionCoalescesEditsIntoOneSave(t *testing.T) {
	sess, writer, mem := newSessionFixture(t, SessionConfig{SaveDelay: 30 * time.Millisecond})

	if err := sess.SetScore("q1", "3"); err != nil {
		t.Fatal(err)
	}
	if err := sess.SetScore("q1", "5"); err != nil {
		t.Fatal(err)
	}
	if err := sess.SetComment("q1", "hard hats on"); err != nil {
		t.Fatal(err)
	}
	waitSaveState(t, sess, autosave.StateSaved)

	if got := writer.updateCount(); got != 1 {
		t.Errorf("burst of 3 edits produced %d saves, want 1", got)
	}

	doc, _ := mem.GetByID(context.Background(), CollectionAssessments, sess.Assessment().ID)
	var stored Assessment
	if err := doc.Decode(&stored); err != nil {
		t.Fatal(err)
	}
	if len(stored.Answers) != 1 || stored.Answers[0].Score != "5" || stored.Answers[0].Comment != "hard hats on" {
		t.Errorf("stored answers = %+v, want the final q1 state", stored.Answers)
	}
}

func TestSessionRejectedEditDoesNotSchedule(t *testing.T) {
	sess, writer, _ := newSessionFixture(t, SessionConfig{SaveDelay: 20 * time.Millisecond})

	if err := sess.SetScore("q1", ScoreNA); err == nil {
		t.Fatal("mandatory n/a accepted")
	}
	time.Sleep(80 * time.Millisecond)

	if got := writer.updateCount(); got != 0 {
		t.Errorf("rejected edit still produced %d saves", got)
	}
	if got := sess.SaveState(); got != autosave.StateIdle {
		t.Errorf("save state = %v, want idle", got)
	}
}

func TestSessionObservesStates(t *testing.T) {
	var mu sync.Mutex
	var seen []autosave.State
	sess, _, _ := newSessionFixture(t, SessionConfig{
		SaveDelay: 20 * time.Millisecond,
		OnState: func(s autosave.State) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		},
	})

	if err := sess.SetScore("q1", "4"); err != nil {
		t.Fatal(err)
	}
	waitSaveState(t, sess, autosave.StateSaved)

	mu.Lock()
	defer mu.Unlock()
	want := []autosave.State{autosave.StatePendingSave, autosave.StateSaving, autosave.StateSaved}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition[%d] = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestSessionScoreIsLive(t *testing.T) {
	sess, _, _ := newSessionFixture(t, SessionConfig{SaveDelay: time.Hour})

	if err := sess.SetScore("q1", "4"); err != nil {
		t.Fatal(err)
	}
	if err := sess.SetScore("q3", "5"); err != nil {
		t.Fatal(err)
	}

	res := sess.Score()
	// q1: 4*1, q3: 5*2 -> 14 of 15.
	if !almostEqual(res.TotalScore, 14) || !almostEqual(res.MaxScore, 15) {
		t.Errorf("live score = %v/%v, want 14/15", res.TotalScore, res.MaxScore)
	}
}

func TestSessionFinish(t *testing.T) {
	sess, writer, mem := newSessionFixture(t, SessionConfig{SaveDelay: time.Hour})
	ctx := context.Background()

	if err := sess.SetScore("q1", "4"); err != nil {
		t.Fatal(err)
	}
	if err := sess.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	doc, _ := mem.GetByID(ctx, CollectionAssessments, sess.Assessment().ID)
	var stored Assessment
	if err := doc.Decode(&stored); err != nil {
		t.Fatal(err)
	}
	if !stored.IsFinish || stored.IsActive {
		t.Errorf("stored = %+v, want finished and inactive", stored)
	}

	// Edits after Finish stay local; no further saves fire.
	before := writer.updateCount()
	_ = sess.SetScore("q1", "2")
	time.Sleep(50 * time.Millisecond)
	if got := writer.updateCount(); got != before {
		t.Errorf("finished session still saved (%d -> %d)", before, got)
	}
}

func TestSessionCloseAbandonsPendingEdits(t *testing.T) {
	sess, writer, _ := newSessionFixture(t, SessionConfig{SaveDelay: 20 * time.Millisecond})

	if err := sess.SetScore("q1", "4"); err != nil {
		t.Fatal(err)
	}
	sess.Close()
	time.Sleep(80 * time.Millisecond)

	if got := writer.updateCount(); got != 0 {
		t.Errorf("closed session still saved %d times", got)
	}
}
