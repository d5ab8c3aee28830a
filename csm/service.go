package csm

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/csmkit/fault"
	"github.com/briangreenhill/csmkit/store"
)

// Service runs the assessment workflows on top of a document store.
// Reads go through the injected DocumentStore, normally the resilient
// decorator. Writes go through a store.Writer so they can detour
// through the offline queue when connectivity is down.
type Service struct {
	reads     store.DocumentStore
	writes    store.Writer
	cfg       ScoreConfig
	saveDelay time.Duration
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithScoreConfig overrides the score calculator settings.
func WithScoreConfig(cfg ScoreConfig) ServiceOption {
	return func(s *Service) { s.cfg = cfg }
}

// WithSessionDelay sets the auto-save debounce sessions default to
// when their own config leaves it zero.
func WithSessionDelay(d time.Duration) ServiceOption {
	return func(s *Service) { s.saveDelay = d }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithIDFunc injects the assessment id generator.
func WithIDFunc(fn func() string) ServiceOption {
	return func(s *Service) { s.newID = fn }
}

// NewService wires a Service. When writes is nil, writes go straight
// to reads.
func NewService(reads store.DocumentStore, writes store.Writer, opts ...ServiceOption) *Service {
	s := &Service{
		reads:  reads,
		writes: writes,
		cfg:    DefaultScoreConfig(),
		log:    zerolog.Nop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	if s.writes == nil {
		s.writes = reads
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ScoreConfig returns the calculator settings the service scores with.
func (s *Service) ScoreConfig() ScoreConfig { return s.cfg }

// ListVendors returns every vendor sorted by code.
func (s *Service) ListVendors(ctx context.Context) ([]Vendor, error) {
	docs, err := s.reads.GetAll(ctx, CollectionVendors)
	if err != nil {
		return nil, err
	}
	out := make([]Vendor, 0, len(docs))
	for _, d := range docs {
		var v Vendor
		if err := d.Decode(&v); err != nil {
			return nil, fault.Validation("vendor %s: %v", d.ID, err)
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VdCode < out[j].VdCode })
	return out, nil
}

// GetForm loads one checklist form.
func (s *Service) GetForm(ctx context.Context, formID string) (ChecklistForm, error) {
	doc, err := s.reads.GetByID(ctx, CollectionForms, formID)
	if err != nil {
		return ChecklistForm{}, err
	}
	var f ChecklistForm
	if err := doc.Decode(&f); err != nil {
		return ChecklistForm{}, fault.Validation("form %s: %v", formID, err)
	}
	return f, nil
}

// GetAssessment loads one assessment.
func (s *Service) GetAssessment(ctx context.Context, id string) (Assessment, error) {
	doc, err := s.reads.GetByID(ctx, CollectionAssessments, id)
	if err != nil {
		return Assessment{}, err
	}
	var a Assessment
	if err := doc.Decode(&a); err != nil {
		return Assessment{}, fault.Validation("assessment %s: %v", id, err)
	}
	return a, nil
}

// ActiveAssessment returns the vendor's currently active assessment,
// or DATA_NOT_FOUND when the vendor has none open.
func (s *Service) ActiveAssessment(ctx context.Context, vdCode string) (Assessment, error) {
	docs, err := s.reads.Query(ctx, CollectionAssessments, activeQuery(vdCode))
	if err != nil {
		return Assessment{}, err
	}
	if len(docs) == 0 {
		return Assessment{}, fault.NotFound(CollectionAssessments, vdCode)
	}
	var a Assessment
	if err := docs[0].Decode(&a); err != nil {
		return Assessment{}, fault.Validation("assessment %s: %v", docs[0].ID, err)
	}
	return a, nil
}

func activeQuery(vdCode string) store.Query {
	return store.Query{
		Filters: []store.Filter{
			{Field: "vdCode", Op: "==", Value: vdCode},
			{Field: "isActive", Op: "==", Value: true},
		},
	}
}

// StartAssessment opens a new active assessment for a vendor. Any
// assessment currently active for that vendor is deactivated in the
// same batch as the create, so the store never holds two active
// assessments for one vendor no matter where a failure lands.
func (s *Service) StartAssessment(ctx context.Context, vendor Vendor, form ChecklistForm, auditor string) (Assessment, error) {
	active, err := s.reads.Query(ctx, CollectionAssessments, activeQuery(vendor.VdCode))
	if err != nil {
		return Assessment{}, err
	}

	now := s.now().UTC()
	a := Assessment{
		ID:        s.newID(),
		VdCode:    vendor.VdCode,
		VdName:    vendor.VdName,
		FormID:    form.FormID,
		Auditor:   auditor,
		Answers:   []Answer{},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyResult(&a, Calculate(a.Answers, form.Fields, s.cfg))

	doc, err := json.Marshal(a)
	if err != nil {
		return Assessment{}, fault.Validation("assessment encode: %v", err)
	}

	ops := make([]store.WriteOp, 0, len(active)+1)
	for _, d := range active {
		ops = append(ops, store.WriteOp{
			Kind:       store.OpUpdate,
			Collection: CollectionAssessments,
			ID:         d.ID,
			Patch:      map[string]any{"isActive": false, "updatedAt": now},
		})
	}
	ops = append(ops, store.WriteOp{
		Kind:       store.OpSet,
		Collection: CollectionAssessments,
		ID:         a.ID,
		Doc:        doc,
	})
	if err := s.writes.BatchWrite(ctx, ops); err != nil {
		return Assessment{}, err
	}

	s.log.Info().
		Str("assessment_id", a.ID).
		Str("vendor", vendor.VdCode).
		Int("deactivated", len(active)).
		Msg("assessment started")
	return a, nil
}

// SaveAssessment recomputes the scores for the assessment's answers
// and persists them. Finished assessments are immutable. A concurrent
// save is detected by comparing the stored updatedAt against the
// revision the caller started from; when the freshness read fails for
// a transient reason the save proceeds so offline edits still queue.
func (s *Service) SaveAssessment(ctx context.Context, a *Assessment, form ChecklistForm) error {
	if a.IsFinish {
		return fault.Validation("assessment %s is finished and cannot change", a.ID)
	}

	stored, err := s.reads.GetByID(ctx, CollectionAssessments, a.ID)
	switch {
	case err == nil:
		var cur Assessment
		if derr := stored.Decode(&cur); derr == nil {
			if cur.IsFinish {
				return fault.Validation("assessment %s is finished and cannot change", a.ID)
			}
			if cur.UpdatedAt.After(a.UpdatedAt) {
				return fault.Conflict("assessment %s changed at %s, reload before saving",
					a.ID, cur.UpdatedAt.Format(time.RFC3339))
			}
		}
	case fault.Retryable(err) || fault.HasCode(err, fault.CodeCircuitOpen):
		// Freshness unknown while the backend is unreachable. The save
		// still has to queue; the conflict will surface on sync.
	default:
		return err
	}

	res := Calculate(a.Answers, form.Fields, s.cfg)
	now := s.now().UTC()
	patch := map[string]any{
		"answers":    a.Answers,
		"totalScore": res.TotalScore,
		"maxScore":   res.MaxScore,
		"avgScore":   res.AvgScore,
		"riskLevel":  string(res.RiskLevel),
		"anomalous":  res.Anomalous,
		"updatedAt":  now,
	}
	if err := s.writes.Update(ctx, CollectionAssessments, a.ID, patch); err != nil {
		return err
	}

	applyResult(a, res)
	a.UpdatedAt = now
	s.log.Debug().
		Str("assessment_id", a.ID).
		Float64("avg_score", res.AvgScore).
		Str("risk_level", string(res.RiskLevel)).
		Msg("assessment saved")
	return nil
}

// FinishAssessment locks an assessment: final scores are computed, the
// active flag drops, and the document never changes again. Every
// mandatory question must be scored first.
func (s *Service) FinishAssessment(ctx context.Context, a *Assessment, form ChecklistForm) error {
	if a.IsFinish {
		return fault.Validation("assessment %s is already finished", a.ID)
	}
	sheet := NewSheet(form, a.Answers...)
	if missing := sheet.Missing(); len(missing) > 0 {
		return fault.Validation("cannot finish: mandatory questions unanswered: %s", strings.Join(missing, ", "))
	}

	res := Calculate(a.Answers, form.Fields, s.cfg)
	now := s.now().UTC()
	patch := map[string]any{
		"answers":    a.Answers,
		"totalScore": res.TotalScore,
		"maxScore":   res.MaxScore,
		"avgScore":   res.AvgScore,
		"riskLevel":  string(res.RiskLevel),
		"anomalous":  res.Anomalous,
		"isFinish":   true,
		"isActive":   false,
		"updatedAt":  now,
	}
	if err := s.writes.Update(ctx, CollectionAssessments, a.ID, patch); err != nil {
		return err
	}

	applyResult(a, res)
	a.IsFinish = true
	a.IsActive = false
	a.UpdatedAt = now
	s.log.Info().
		Str("assessment_id", a.ID).
		Str("vendor", a.VdCode).
		Str("risk_level", string(res.RiskLevel)).
		Msg("assessment finished")
	return nil
}

// Summaries builds the dashboard projection: each vendor's most
// recently updated assessment outcome, sorted by vendor code.
func (s *Service) Summaries(ctx context.Context) ([]AssessmentSummary, error) {
	docs, err := s.reads.GetAll(ctx, CollectionAssessments)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]Assessment)
	for _, d := range docs {
		var a Assessment
		if err := d.Decode(&a); err != nil {
			s.log.Warn().Str("doc", d.ID).Err(err).Msg("skipping malformed assessment")
			continue
		}
		cur, ok := latest[a.VdCode]
		if !ok || a.UpdatedAt.After(cur.UpdatedAt) {
			latest[a.VdCode] = a
		}
	}

	out := make([]AssessmentSummary, 0, len(latest))
	for _, a := range latest {
		out = append(out, AssessmentSummary{
			VdCode:         a.VdCode,
			VdName:         a.VdName,
			AvgScore:       a.AvgScore,
			RiskLevel:      a.RiskLevel,
			IsFinish:       a.IsFinish,
			LastAssessedAt: a.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VdCode < out[j].VdCode })
	return out, nil
}

func applyResult(a *Assessment, res ScoreResult) {
	a.TotalScore = res.TotalScore
	a.MaxScore = res.MaxScore
	a.AvgScore = res.AvgScore
	a.RiskLevel = res.RiskLevel
	a.Anomalous = res.Anomalous
}
