package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/vk/sheetgridgo/internal/ref"
)

const defaultChangeLimit = 1024

type changeKind string

const (
	changeSetValue   changeKind = "set_value"
	changeSetFormula changeKind = "set_formula"
	changeClearCell  changeKind = "clear_cell"
)

// ChangeEntry is one recorded edit. Timestamps come from the workbook
// clock so deterministic sessions produce reproducible logs.
type ChangeEntry struct {
	Seq         uint64
	Kind        string
	Cell        string
	Detail      string
	Actor       string
	Correlation string
	Reason      string
	At          time.Time
}

// changelog is a bounded ring of edits with ambient attribution fields.
// Every edit gets a correlation id; when the caller has not set one, a
// fresh UUID is minted per edit.
type changelog struct {
	limit       int
	seq         uint64
	actor       string
	correlation string
	reason      string
	entries     []ChangeEntry
}

func (l *changelog) record(w *Workbook, kind changeKind, c ref.Cell, detail string) {
	if l.limit == 0 {
		l.limit = defaultChangeLimit
	}
	corr := l.correlation
	if corr == "" {
		corr = uuid.NewString()
	}
	l.seq++
	l.entries = append(l.entries, ChangeEntry{
		Seq:         l.seq,
		Kind:        string(kind),
		Cell:        ref.FormatCell(c),
		Detail:      detail,
		Actor:       l.actor,
		Correlation: corr,
		Reason:      l.reason,
		At:          w.clock.Now(),
	})
	if len(l.entries) > l.limit {
		l.entries = l.entries[len(l.entries)-l.limit:]
	}
}

// SetActor attributes subsequent edits to the named actor.
func (w *Workbook) SetActor(actor string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.changes.actor = actor
}

// SetCorrelation pins subsequent edits to one correlation id; an empty id
// restores per-edit UUIDs.
func (w *Workbook) SetCorrelation(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.changes.correlation = id
}

// SetReason attaches a human-readable reason to subsequent edits.
func (w *Workbook) SetReason(reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.changes.reason = reason
}

// Changes returns a copy of the retained change log, oldest first.
func (w *Workbook) Changes() []ChangeEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]ChangeEntry, len(w.changes.entries))
	copy(out, w.changes.entries)
	return out
}
