package store

import (
	"encoding/json"
	"testing"

	"github.com/briangreenhill/csmkit/fault"
)

type siteDoc struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type siteShape struct{}

func (siteShape) Collection() string { return "sites" }
func (siteShape) New() any           { return &siteDoc{} }

func (siteShape) Validate(doc any) error {
	s := doc.(*siteDoc)
	if s.Code == "" {
		return fault.Validation("site code required")
	}
	return nil
}

func (siteShape) CheckPatch(patch map[string]any) error {
	if _, ok := patch["code"]; ok {
		return fault.Validation("code is immutable")
	}
	return nil
}

// zoneShape registers a collection without patch rules.
type zoneShape struct{}

func (zoneShape) Collection() string     { return "zones" }
func (zoneShape) New() any               { return &map[string]any{} }
func (zoneShape) Validate(doc any) error { return nil }

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.Register(siteShape{})
	r.Register(zoneShape{})
	return r
}

func TestRegistryLookup(t *testing.T) {
	r := newTestRegistry()

	if _, ok := r.Get("sites"); !ok {
		t.Error("registered shape not found")
	}
	if _, ok := r.Get("unknown"); ok {
		t.Error("Get returned a shape for an unregistered collection")
	}

	cols := r.Collections()
	if len(cols) != 2 || cols[0] != "sites" || cols[1] != "zones" {
		t.Errorf("Collections() = %v, want [sites zones]", cols)
	}
}

func TestCheckDoc(t *testing.T) {
	r := newTestRegistry()

	tests := []struct {
		name       string
		collection string
		raw        string
		wantCode   fault.Code
	}{
		{"valid", "sites", `{"code":"S1","name":"North"}`, ""},
		{"invalid", "sites", `{"name":"North"}`, fault.CodeValidation},
		{"malformed_json", "sites", `{"code":`, fault.CodeValidation},
		{"unregistered_passes", "audits", `{"anything":true}`, ""},
	}

	for _, tt := range tests {
		err := r.CheckDoc(tt.collection, json.RawMessage(tt.raw))
		if tt.wantCode == "" {
			if err != nil {
				t.Errorf("%s: CheckDoc = %v, want nil", tt.name, err)
			}
			continue
		}
		if !fault.HasCode(err, tt.wantCode) {
			t.Errorf("%s: CheckDoc = %v, want code %s", tt.name, err, tt.wantCode)
		}
	}
}

func TestCheckPatch(t *testing.T) {
	r := newTestRegistry()

	if err := r.CheckPatch("sites", map[string]any{"name": "South"}); err != nil {
		t.Errorf("allowed patch rejected: %v", err)
	}
	err := r.CheckPatch("sites", map[string]any{"code": "S2"})
	if !fault.HasCode(err, fault.CodeValidation) {
		t.Errorf("immutable field patch = %v, want VALIDATION_ERROR", err)
	}

	// Shapes without patch rules accept any patch, as do unregistered
	// collections.
	if err := r.CheckPatch("zones", map[string]any{"code": "Z9"}); err != nil {
		t.Errorf("patch on shape without rules = %v, want nil", err)
	}
	if err := r.CheckPatch("audits", map[string]any{"x": 1}); err != nil {
		t.Errorf("patch on unregistered collection = %v, want nil", err)
	}
}
