package uistate

import (
	"sort"
	"sync"
)

// Registry keeps two layers of per-task state, the local draft and the confirmed state, and serves
// their merge.
type Registry[T any] struct {
	mu        sync.RWMutex
	draft     map[string]T
	confirmed map[string]T
	merge     func(local, confirmed T) T
}

func NewRegistry[T any](merge func(local, confirmed T) T) *Registry[T] {
	return &Registry[T]{
		draft:     make(map[string]T),
		confirmed: make(map[string]T),
		merge:     merge,
	}
}

// SetDraft records the learner's local state for key.
func (r *Registry[T]) SetDraft(key string, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draft[key] = v
}

// Confirm records authoritative state for key.
func (r *Registry[T]) Confirm(key string, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed[key] = v
}

// ConfirmFunc updates the confirmed state for key from its previous value and returns the merged view.
func (r *Registry[T]) ConfirmFunc(key string, fn func(prev T) T) T {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed[key] = fn(r.confirmed[key])
	return r.getLocked(key)
}

// Confirmed returns the authoritative layer for key.
func (r *Registry[T]) Confirmed(key string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.confirmed[key]
	return v, ok
}

// Get returns the merged state for key.
func (r *Registry[T]) Get(key string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, hasDraft := r.draft[key]
	_, hasConfirmed := r.confirmed[key]
	return r.getLocked(key), hasDraft || hasConfirmed
}

func (r *Registry[T]) getLocked(key string) T {
	d, hasDraft := r.draft[key]
	c, hasConfirmed := r.confirmed[key]
	switch {
	case hasDraft && hasConfirmed:
		return r.merge(d, c)
	case hasDraft:
		return d
	}
	return c
}

// Keys returns every key with state, sorted.
func (r *Registry[T]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.draft)+len(r.confirmed))
	for k := range r.draft {
		seen[k] = struct{}{}
	}
	for k := range r.confirmed {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns the merged state of every key.
func (r *Registry[T]) Snapshot() map[string]T {
	out := make(map[string]T)
	for _, k := range r.Keys() {
		v, _ := r.Get(k)
		out[k] = v
	}
	return out
}

// Store groups the registries of one lesson session.
type Store struct {
	Drills       *Registry[DrillBlockState]
	Constructors *Registry[ConstructorState]
	Choices      *Registry[ChoiceState]
}

func NewStore() *Store {
	return &Store{
		Drills:       NewRegistry(MergeDrillBlock),
		Constructors: NewRegistry(MergeConstructor),
		Choices:      NewRegistry(MergeChoice),
	}
}

// Snapshot is the merged UI state sent to clients.
type Snapshot struct {
	Drills       map[string]DrillBlockState  `json:"drills"`
	Constructors map[string]ConstructorState `json:"constructors"`
	Choices      map[string]ChoiceState      `json:"choices"`
}

func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Drills:       s.Drills.Snapshot(),
		Constructors: s.Constructors.Snapshot(),
		Choices:      s.Choices.Snapshot(),
	}
}
