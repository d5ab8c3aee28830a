package csm

import (
	"github.com/go-playground/validator/v10"

	"github.com/briangreenhill/csmkit/fault"
	"github.com/briangreenhill/csmkit/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RegisterShapes installs the document shapes for every collection
// this package owns, so the store rejects malformed documents before
// they travel anywhere.
func RegisterShapes(r *store.Registry) {
	r.Register(vendorShape{})
	r.Register(formShape{})
	r.Register(assessmentShape{})
}

type vendorShape struct{}

func (vendorShape) Collection() string { return CollectionVendors }
func (vendorShape) New() any           { return &Vendor{} }

func (vendorShape) Validate(doc any) error {
	if err := validate.Struct(doc.(*Vendor)); err != nil {
		return fault.Validation("vendor: %v", err)
	}
	return nil
}

type formShape struct{}

func (formShape) Collection() string { return CollectionForms }
func (formShape) New() any           { return &ChecklistForm{} }

func (formShape) Validate(doc any) error {
	if err := validate.Struct(doc.(*ChecklistForm)); err != nil {
		return fault.Validation("form: %v", err)
	}
	return nil
}

type assessmentShape struct{}

func (assessmentShape) Collection() string { return CollectionAssessments }
func (assessmentShape) New() any           { return &Assessment{} }

func (assessmentShape) Validate(doc any) error {
	a := doc.(*Assessment)
	if err := validate.Struct(a); err != nil {
		return fault.Validation("assessment: %v", err)
	}
	for _, ans := range a.Answers {
		if !ans.Score.Valid() {
			return fault.Validation("assessment %s: question %s has score %q", a.ID, ans.QuestionID, ans.Score)
		}
	}
	return nil
}

// assessmentIdentity lists the fields fixed at creation time.
var assessmentIdentity = []string{"id", "vdCode", "formId", "createdAt"}

func (assessmentShape) CheckPatch(patch map[string]any) error {
	if len(patch) == 0 {
		return fault.Validation("empty assessment patch")
	}
	for _, f := range assessmentIdentity {
		if _, ok := patch[f]; ok {
			return fault.Validation("assessment field %s is immutable", f)
		}
	}
	return nil
}
