package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/briangreenhill/csmkit/fault"
)

type memDoc struct {
	VdCode   string  `json:"vdCode"`
	IsActive bool    `json:"isActive"`
	AvgScore float64 `json:"avgScore"`
}

func seedMemStore(t *testing.T) *MemStore {
	t.Helper()
	m := NewMemStore()
	docs := map[string]memDoc{
		"a1": {VdCode: "VD001", IsActive: true, AvgScore: 85},
		"a2": {VdCode: "VD001", IsActive: false, AvgScore: 62},
		"a3": {VdCode: "VD002", IsActive: true, AvgScore: 45},
	}
	for id, d := range docs {
		if err := m.Seed("assessments", id, d); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	return m
}

func TestGetByID(t *testing.T) {
	m := seedMemStore(t)
	ctx := context.Background()

	doc, err := m.GetByID(ctx, "assessments", "a1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	var got memDoc
	if err := doc.Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.VdCode != "VD001" || !got.IsActive {
		t.Errorf("decoded doc = %+v, want VD001 active", got)
	}

	_, err = m.GetByID(ctx, "assessments", "missing")
	if !fault.HasCode(err, fault.CodeNotFound) {
		t.Errorf("missing doc err = %v, want DATA_NOT_FOUND", err)
	}
}

func TestGetAllSortedByID(t *testing.T) {
	m := seedMemStore(t)

	docs, err := m.GetAll(context.Background(), "assessments")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("GetAll returned %d docs, want 3", len(docs))
	}
	for i, want := range []string{"a1", "a2", "a3"} {
		if docs[i].ID != want {
			t.Errorf("docs[%d].ID = %s, want %s", i, docs[i].ID, want)
		}
	}

	empty, err := m.GetAll(context.Background(), "nothing-here")
	if err != nil || len(empty) != 0 {
		t.Errorf("GetAll on empty collection = (%v, %v), want ([], nil)", empty, err)
	}
}

func TestQueryFilters(t *testing.T) {
	m := seedMemStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		q    Query
		ids  []string
	}{
		{
			"equality",
			Query{Filters: []Filter{{Field: "vdCode", Op: "==", Value: "VD001"}}},
			[]string{"a1", "a2"},
		},
		{
			"bool_and_string",
			Query{Filters: []Filter{{Field: "vdCode", Op: "==", Value: "VD001"}, {Field: "isActive", Op: "==", Value: true}}},
			[]string{"a1"},
		},
		{
			"numeric_threshold",
			Query{Filters: []Filter{{Field: "avgScore", Op: ">=", Value: 60}}},
			[]string{"a1", "a2"},
		},
		{
			"order_desc",
			Query{OrderBy: "avgScore", Desc: true},
			[]string{"a1", "a2", "a3"},
		},
		{
			"order_asc_limit",
			Query{OrderBy: "avgScore", Limit: 2},
			[]string{"a3", "a2"},
		},
		{
			"not_equal",
			Query{Filters: []Filter{{Field: "vdCode", Op: "!=", Value: "VD001"}}},
			[]string{"a3"},
		},
	}

	for _, tt := range tests {
		docs, err := m.Query(ctx, "assessments", tt.q)
		if err != nil {
			t.Fatalf("%s: Query: %v", tt.name, err)
		}
		if len(docs) != len(tt.ids) {
			t.Errorf("%s: got %d docs, want %d", tt.name, len(docs), len(tt.ids))
			continue
		}
		for i, want := range tt.ids {
			if docs[i].ID != want {
				t.Errorf("%s: docs[%d].ID = %s, want %s", tt.name, i, docs[i].ID, want)
			}
		}
	}
}

func TestUpdateMergesPatch(t *testing.T) {
	m := seedMemStore(t)
	ctx := context.Background()

	err := m.Update(ctx, "assessments", "a1", map[string]any{"isActive": false, "note": "rotated"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc, _ := m.GetByID(ctx, "assessments", "a1")
	var fields map[string]any
	if err := json.Unmarshal(doc.Data, &fields); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fields["isActive"] != false {
		t.Errorf("isActive = %v, want false", fields["isActive"])
	}
	if fields["note"] != "rotated" {
		t.Errorf("note = %v, patch should add new fields", fields["note"])
	}
	if fields["vdCode"] != "VD001" {
		t.Errorf("vdCode = %v, untouched fields must survive a patch", fields["vdCode"])
	}

	err = m.Update(ctx, "assessments", "missing", map[string]any{"x": 1})
	if !fault.HasCode(err, fault.CodeNotFound) {
		t.Errorf("patching a missing doc = %v, want DATA_NOT_FOUND", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	m := seedMemStore(t)
	ctx := context.Background()

	if err := m.Delete(ctx, "assessments", "a1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.Delete(ctx, "assessments", "a1"); err != nil {
		t.Errorf("second Delete = %v, want nil", err)
	}
	if _, err := m.GetByID(ctx, "assessments", "a1"); !fault.HasCode(err, fault.CodeNotFound) {
		t.Error("deleted doc still readable")
	}
}

func TestBatchWriteAppliesAllOps(t *testing.T) {
	m := seedMemStore(t)
	ctx := context.Background()

	newDoc, _ := json.Marshal(memDoc{VdCode: "VD003", IsActive: true, AvgScore: 70})
	ops := []WriteOp{
		{Kind: OpUpdate, Collection: "assessments", ID: "a1", Patch: map[string]any{"isActive": false}},
		{Kind: OpSet, Collection: "assessments", ID: "a4", Doc: newDoc},
		{Kind: OpDelete, Collection: "assessments", ID: "a3"},
	}
	if err := m.BatchWrite(ctx, ops); err != nil {
		t.Fatalf("BatchWrite: %v", err)
	}

	doc, _ := m.GetByID(ctx, "assessments", "a1")
	var a1 memDoc
	_ = doc.Decode(&a1)
	if a1.IsActive {
		t.Error("batch update not applied")
	}
	if _, err := m.GetByID(ctx, "assessments", "a4"); err != nil {
		t.Error("batch set not applied")
	}
	if _, err := m.GetByID(ctx, "assessments", "a3"); !fault.HasCode(err, fault.CodeNotFound) {
		t.Error("batch delete not applied")
	}
}

func TestBatchWriteIsAtomicOnError(t *testing.T) {
	m := seedMemStore(t)
	ctx := context.Background()

	newDoc, _ := json.Marshal(memDoc{VdCode: "VD004"})
	ops := []WriteOp{
		{Kind: OpSet, Collection: "assessments", ID: "a5", Doc: newDoc},
		{Kind: OpUpdate, Collection: "assessments", ID: "missing", Patch: map[string]any{"x": 1}},
	}

	err := m.BatchWrite(ctx, ops)
	if !fault.HasCode(err, fault.CodeNotFound) {
		t.Fatalf("BatchWrite = %v, want DATA_NOT_FOUND", err)
	}
	// The valid set op must not have landed.
	if _, err := m.GetByID(ctx, "assessments", "a5"); !fault.HasCode(err, fault.CodeNotFound) {
		t.Error("failed batch left a partial write behind")
	}
}
