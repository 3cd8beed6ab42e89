// Package fn is the function registry and dispatch layer: it resolves a
// name appearing in a formula to an executable implementation, enforces
// arity and override policy, and converts host-side failures into engine
// error values. Every engine owns its registry instance, so independent
// engines can carry independent override sets.
package fn

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/vk/sheetgridgo/internal/ref"
	"github.com/vk/sheetgridgo/internal/value"
)

// Invocation is the capability surface handed to a callable: the evaluation
// clock, a seeded random source, the workbook's date system, and the cell
// being computed. Nothing else about the calling convention is assumed.
type Invocation struct {
	Clock      Clock
	Rand       *rand.Rand
	DateSystem value.DateSystem
	Cell       ref.Cell
}

// Callable executes a function against already-evaluated arguments. Range
// arguments arrive as row-major array values. A returned error is converted
// to a #VALUE! cell value at the dispatch boundary; it never escapes an
// evaluation pass.
type Callable func(inv *Invocation, args []value.Value) (value.Value, error)

// Unbounded marks a function with no maximum argument count.
const Unbounded = -1

// Entry describes one registered function.
type Entry struct {
	Name          string // canonical uppercase name
	MinArgs       int
	MaxArgs       int // Unbounded for variadic
	Volatile      bool
	Deterministic bool
	ThreadSafe    bool
	Builtin       bool

	fn Callable
}

// Options configures a registration.
type Options struct {
	MinArgs              int
	MaxArgs              int // Unbounded for variadic
	Volatile             bool
	NonDeterministic     bool
	ThreadSafe           bool
	AllowOverrideBuiltin bool
}

// OverrideNotAllowedError rejects a registration that would shadow a
// builtin without the explicit override flag.
type OverrideNotAllowedError struct {
	Name string
}

func (e *OverrideNotAllowedError) Error() string {
	return fmt.Sprintf("function %q is a builtin; set allow_override_builtin to replace it", e.Name)
}

// Registry maps canonical names to entries. Lookup and unregistration are
// case-insensitive. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry returns a registry seeded with the builtin function set.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]*Entry)}
	seedBuiltins(r)
	return r
}

func canonical(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Register inserts or replaces an entry. Registering over a builtin name
// without AllowOverrideBuiltin fails with *OverrideNotAllowedError and
// leaves the builtin in place.
func (r *Registry) Register(name string, fn Callable, opts Options) error {
	key := canonical(name)
	if key == "" {
		return fmt.Errorf("function name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("function %q: callable must not be nil", key)
	}
	if opts.MaxArgs != Unbounded && opts.MaxArgs < opts.MinArgs {
		return fmt.Errorf("function %q: max_args %d below min_args %d", key, opts.MaxArgs, opts.MinArgs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[key]; ok && existing.Builtin && !opts.AllowOverrideBuiltin {
		return &OverrideNotAllowedError{Name: key}
	}
	r.entries[key] = &Entry{
		Name:          key,
		MinArgs:       opts.MinArgs,
		MaxArgs:       opts.MaxArgs,
		Volatile:      opts.Volatile,
		Deterministic: !opts.NonDeterministic,
		ThreadSafe:    opts.ThreadSafe,
		fn:            fn,
	}
	return nil
}

// registerBuiltin seeds one builtin entry; only called at construction.
func (r *Registry) registerBuiltin(name string, fn Callable, opts Options) {
	key := canonical(name)
	r.entries[key] = &Entry{
		Name:          key,
		MinArgs:       opts.MinArgs,
		MaxArgs:       opts.MaxArgs,
		Volatile:      opts.Volatile,
		Deterministic: !opts.NonDeterministic,
		ThreadSafe:    true,
		Builtin:       true,
		fn:            fn,
	}
}

// Unregister removes an entry by name, case-insensitively. It reports
// whether an entry was removed; later references to the name resolve as
// unknown.
func (r *Registry) Unregister(name string) bool {
	key := canonical(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; !ok {
		return false
	}
	delete(r.entries, key)
	return true
}

// Lookup resolves a name case-insensitively.
func (r *Registry) Lookup(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[canonical(name)]
	return e, ok
}

// List returns entry metadata sorted by canonical name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
