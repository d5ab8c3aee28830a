package store

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/briangreenhill/csmkit/fault"
)

// Shape describes one known document kind. Registering shapes turns
// the store's raw payloads into a checked union of document types
// instead of untyped maps propagated through the app.
type Shape interface {
	// Collection returns the collection this shape belongs to.
	Collection() string

	// New returns a pointer to a zero value of the underlying type.
	New() any

	// Validate checks a decoded document before it is written.
	Validate(doc any) error
}

// PatchChecker is an optional Shape extension for vetting partial
// updates, e.g. refusing patches to identity fields.
type PatchChecker interface {
	CheckPatch(patch map[string]any) error
}

// Registry holds the document shapes known to the application.
type Registry struct {
	mu     sync.RWMutex
	shapes map[string]Shape
}

// NewRegistry creates an empty shape registry.
func NewRegistry() *Registry {
	return &Registry{shapes: make(map[string]Shape)}
}

// Register adds a shape, replacing any previous one for the collection.
func (r *Registry) Register(s Shape) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shapes[s.Collection()] = s
}

// Get retrieves the shape registered for a collection.
func (r *Registry) Get(collection string) (Shape, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.shapes[collection]
	return s, ok
}

// Collections returns the registered collection names, sorted.
func (r *Registry) Collections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.shapes))
	for name := range r.shapes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckDoc decodes raw into the collection's shape and validates it.
// Collections without a registered shape pass unchecked.
func (r *Registry) CheckDoc(collection string, raw json.RawMessage) error {
	s, ok := r.Get(collection)
	if !ok {
		return nil
	}
	doc := s.New()
	if err := json.Unmarshal(raw, doc); err != nil {
		return fault.Validation("%s document malformed: %v", collection, err)
	}
	if err := s.Validate(doc); err != nil {
		if fault.CodeOf(err) != "" {
			return err
		}
		return fault.Validation("%s document invalid: %v", collection, err)
	}
	return nil
}

// CheckPatch vets a partial update when the collection's shape opts in.
func (r *Registry) CheckPatch(collection string, patch map[string]any) error {
	s, ok := r.Get(collection)
	if !ok {
		return nil
	}
	pc, ok := s.(PatchChecker)
	if !ok {
		return nil
	}
	if err := pc.CheckPatch(patch); err != nil {
		if fault.CodeOf(err) != "" {
			return err
		}
		return fault.Validation("%s patch invalid: %v", collection, err)
	}
	return nil
}
