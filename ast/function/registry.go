// Package function implements the global function registry described in
// spec.md §4.5: an append-only table mapping name to descriptor, with
// case-sensitive, case-insensitive, then prefix-abbreviation lookup.
package function

import (
	"strings"
	"sync"

	"github.com/kirkendall/jsoncalc/value"
)

// Slot is the per-call accumulator cell for an aggregate function. It is
// nil when a function is evaluated outside of any group/each accumulator
// context (e.g. a direct call like sum([1,2,3,4])), in which case the
// function is responsible for folding its own array argument (see
// ast/function/aggregation).
type Slot = *interface{}

// Descriptor describes one callable, scalar or aggregate, per spec.md
// §3 "Function descriptor".
type Descriptor struct {
	Name       string
	ArgSpec    string
	ReturnType string

	// Fn computes the final value. For a non-aggregate function, slot is
	// always nil. For an aggregate function, slot is the accumulator cell:
	// if non-nil, it already holds folded state (the caller is finalizing
	// a group); if nil, Fn must fold args itself (a direct, ungrouped
	// call).
	Fn func(args []*value.Value, slot Slot) (*value.Value, error)

	// IsAggregate is true for functions with a per-row fold step.
	IsAggregate bool
	// NewSlot constructs a zero accumulator cell; only set when IsAggregate.
	NewSlot func() interface{}
	// AgFn folds one row's already-evaluated args into *slot; only set
	// when IsAggregate.
	AgFn func(args []*value.Value, slot Slot) error

	// User-defined function support (spec.md §3 "user-body?, user-params?").
	UserBody   interface{} // *command.Block, typed as interface{} to avoid an import cycle
	UserParams []UserParam
}

// UserParam is one parameter of a user-defined function, with its
// positional default value (spec.md §4.4 "missing positional args get the
// template's default value").
type UserParam struct {
	Name    string
	Default *value.Value
}

// Registry is a thread-safe, append-only function table. Mutation is
// confined to process start-up, plugin load, and user-function definition,
// all serialized by the command layer, per spec.md §4.5 and §5.
type Registry struct {
	mu   sync.RWMutex
	byName map[string]*Descriptor
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Register adds or overwrites a descriptor by exact name.
func (r *Registry) Register(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[d.Name]; !exists {
		r.order = append(r.order, d.Name)
	}
	r.byName[d.Name] = d
}

// Lookup resolves a name to a descriptor: (1) exact case-sensitive, (2)
// case-insensitive, (3) prefix-abbreviation for names of 2+ characters,
// per spec.md §4.5.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.byName[name]; ok {
		return d, true
	}
	lower := strings.ToLower(name)
	for _, n := range r.order {
		if strings.ToLower(n) == lower {
			return r.byName[n], true
		}
	}
	if len(name) >= 2 {
		var match *Descriptor
		count := 0
		for _, n := range r.order {
			if strings.HasPrefix(strings.ToLower(n), lower) {
				match = r.byName[n]
				count++
			}
		}
		if count == 1 {
			return match, true
		}
	}
	return nil, false
}

// Names returns all registered function names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
