package fn

import (
	"fmt"

	"github.com/vk/sheetgridgo/internal/value"
)

// Dispatch resolves and invokes a function by name. Every failure mode maps
// to an error value rather than a Go error, so a single bad call never
// aborts the evaluation pass that contains it:
//
//   - unknown name        -> #NAME?
//   - arity violation     -> #VALUE! (the callable is never invoked)
//   - callable error      -> #VALUE! with a single-line message
//   - callable panic      -> #VALUE! with a single-line message
func (r *Registry) Dispatch(inv *Invocation, name string, args []value.Value) value.Value {
	entry, ok := r.Lookup(name)
	if !ok {
		return value.Err(value.ErrName, fmt.Sprintf("unknown function %s", canonical(name)))
	}
	argc := len(args)
	if argc < entry.MinArgs || (entry.MaxArgs != Unbounded && argc > entry.MaxArgs) {
		return value.Err(value.ErrVal, arityMessage(entry, argc))
	}
	return invoke(entry, inv, args)
}

func arityMessage(e *Entry, argc int) string {
	if e.MaxArgs == Unbounded {
		return fmt.Sprintf("%s expects at least %d argument(s), got %d", e.Name, e.MinArgs, argc)
	}
	if e.MinArgs == e.MaxArgs {
		return fmt.Sprintf("%s expects %d argument(s), got %d", e.Name, e.MinArgs, argc)
	}
	return fmt.Sprintf("%s expects between %d and %d arguments, got %d", e.Name, e.MinArgs, e.MaxArgs, argc)
}

// invoke runs the callable with panic containment. A panicking user
// function is a host-side fault and must surface as an error value, never
// unwind past the vertex being computed.
func invoke(entry *Entry, inv *Invocation, args []value.Value) (result value.Value) {
	defer func() {
		if rec := recover(); rec != nil {
			result = value.Err(value.ErrVal,
				fmt.Sprintf("%s panicked: %s", entry.Name, value.SingleLine(fmt.Sprintf("%v", rec))))
		}
	}()

	out, err := entry.fn(inv, args)
	if err != nil {
		if ev, ok := err.(*value.ErrValue); ok {
			return value.Err(ev.Kind, ev.Display())
		}
		return value.Err(value.ErrVal,
			fmt.Sprintf("%s failed: %s", entry.Name, value.SingleLine(err.Error())))
	}
	return out
}
