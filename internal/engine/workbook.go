package engine

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/vk/sheetgridgo/internal/fn"
	"github.com/vk/sheetgridgo/internal/parse"
	"github.com/vk/sheetgridgo/internal/ref"
	"github.com/vk/sheetgridgo/internal/value"
)

// Workbook is the unit of evaluation: a set of named sheets, one dependency
// graph spanning all of them, and one function registry. All public methods
// are safe for concurrent use; a single mutex serializes edits and
// evaluation so readers always observe a consistent graph.
type Workbook struct {
	mu sync.Mutex

	order  []*sheet
	sheets map[string]*sheet // lowercased name

	graph    *graph
	registry *fn.Registry
	dialect  parse.Dialect

	dateSystem value.DateSystem
	clock      fn.Clock
	rng        *rand.Rand

	// freezeVolatiles pins volatile formulas to their cached values during
	// full passes; set for deterministic evaluation runs.
	freezeVolatiles bool

	// blockedSpills remembers the region each blocked anchor wanted, so
	// edits that unblock it re-dirty the anchor.
	blockedSpills map[ref.Cell]ref.Range

	workers int
	log     *slog.Logger

	changes changelog

	backingPath string
}

// Mode describes a workbook's persistence semantics.
type Mode uint8

const (
	// ModeEphemeral workbooks live only in memory.
	ModeEphemeral Mode = iota
	// ModeBacked workbooks are tied to an external document on disk.
	ModeBacked
)

func (m Mode) String() string {
	if m == ModeBacked {
		return "backed"
	}
	return "ephemeral"
}

// Options configures a new workbook. The zero value is usable.
type Options struct {
	// Dialect selects the formula syntax. Defaults to DialectExcel.
	Dialect parse.Dialect
	// DateSystem selects the serial-date epoch. Defaults to 1900.
	DateSystem value.DateSystem
	// Clock backs NOW and TODAY. Defaults to the system clock in the
	// local timezone.
	Clock fn.Clock
	// RandSeed seeds the stream behind RAND and RANDBETWEEN.
	RandSeed uint64
	// Workers caps batch-evaluation parallelism. Zero means a sensible
	// default; one forces fully serial passes.
	Workers int
	// Logger receives structured evaluation events. Defaults to
	// slog.Default().
	Logger *slog.Logger
	// ChangeLimit bounds the retained change log. Zero keeps the default.
	ChangeLimit int
}

// New builds an empty workbook with a seeded builtin registry.
func New(opts Options) *Workbook {
	if opts.Clock == nil {
		opts.Clock = fn.SystemClock{TZ: fn.LocalTZ()}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	w := &Workbook{
		sheets:        make(map[string]*sheet),
		blockedSpills: make(map[ref.Cell]ref.Range),
		graph:         newGraph(),
		registry:      fn.NewRegistry(),
		dialect:       opts.Dialect,
		dateSystem:    opts.DateSystem,
		clock:         opts.Clock,
		rng:           rand.New(rand.NewPCG(opts.RandSeed, opts.RandSeed^0x9e3779b97f4a7c15)),
		workers:       opts.Workers,
		log:           opts.Logger,
	}
	w.changes.limit = opts.ChangeLimit
	return w
}

// Registry exposes the workbook's function registry for inspection. Mutate
// a live workbook's function set through RegisterFunction and
// UnregisterFunction instead; direct registry writes leave stale cached
// results in place.
func (w *Workbook) Registry() *fn.Registry { return w.registry }

// RegisterFunction registers a function and re-dirties every formula that
// calls it, so a cell that previously resolved the name as unknown
// recomputes on its next read or pass.
func (w *Workbook) RegisterFunction(name string, callable fn.Callable, opts fn.Options) error {
	if err := w.registry.Register(name, callable, opts); err != nil {
		return err
	}
	w.invalidateCallers(name)
	return nil
}

// UnregisterFunction removes a function and re-dirties its callers; their
// next evaluation resolves the name as unknown.
func (w *Workbook) UnregisterFunction(name string) bool {
	if !w.registry.Unregister(name) {
		return false
	}
	w.invalidateCallers(name)
	return true
}

// invalidateCallers re-classifies and dirties every formula whose call set
// contains the name. Classification flags depend on the registry entry, so
// they are recomputed alongside the dirty marking.
func (w *Workbook) invalidateCallers(name string) {
	key := strings.ToUpper(strings.TrimSpace(name))
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, v := range w.graph.nodes {
		if !v.formula {
			continue
		}
		s, ok := w.sheets[sheetKey(id.Sheet)]
		if !ok {
			continue
		}
		cl := s.cellAt(id.Row, id.Col)
		if cl == nil || cl.ast == nil {
			continue
		}
		calls := false
		for _, fname := range parse.Funcs(cl.ast) {
			if fname == key {
				calls = true
				break
			}
		}
		if !calls {
			continue
		}
		w.classifyFormula(id, v, cl.ast)
		w.graph.markDirty(id)
		w.graph.markAffected(id)
	}
}

// DateSystem reports the workbook's serial-date epoch.
func (w *Workbook) DateSystem() value.DateSystem { return w.dateSystem }

// Mode reports whether the workbook is backed by an external document.
func (w *Workbook) Mode() Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.backingPath != "" {
		return ModeBacked
	}
	return ModeEphemeral
}

// BackingPath returns the document path a backed workbook was loaded from
// or last saved to; empty for ephemeral workbooks.
func (w *Workbook) BackingPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.backingPath
}

// SetBackingPath records the external document backing this workbook.
func (w *Workbook) SetBackingPath(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.backingPath = path
}

// SetClock replaces the evaluation clock. Volatile formulas are not
// implicitly dirtied; the next full pass recomputes them anyway.
func (w *Workbook) SetClock(c fn.Clock) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clock = c
}

// ReseedRand restarts the random stream behind RAND and RANDBETWEEN.
func (w *Workbook) ReseedRand(seed uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// SetFreezeVolatiles controls whether full passes recompute volatile
// formulas or keep their cached values.
func (w *Workbook) SetFreezeVolatiles(freeze bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.freezeVolatiles = freeze
}

func sheetKey(name string) string { return strings.ToLower(name) }

// AddSheet appends a sheet. Names compare case-insensitively.
func (w *Workbook) AddSheet(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("sheet name must not be empty")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.sheets[sheetKey(name)]; ok {
		return fmt.Errorf("sheet %q already exists", name)
	}
	s := newSheet(name)
	w.sheets[sheetKey(name)] = s
	w.order = append(w.order, s)
	return nil
}

// Sheets lists sheet names in creation order.
func (w *Workbook) Sheets() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.order))
	for i, s := range w.order {
		out[i] = s.name
	}
	return out
}

// HasSheet reports whether a sheet with the given name exists.
func (w *Workbook) HasSheet(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.sheets[sheetKey(name)]
	return ok
}

func (w *Workbook) sheetFor(name string) (*sheet, error) {
	s, ok := w.sheets[sheetKey(name)]
	if !ok {
		return nil, fmt.Errorf("unknown sheet %q", name)
	}
	return s, nil
}

// canonicalCell validates an address and rewrites its sheet component to
// the stored sheet name so graph keys compare stably.
func (w *Workbook) canonicalCell(c ref.Cell) (ref.Cell, *sheet, error) {
	if c.Row < 1 || c.Col < 1 {
		return ref.Cell{}, nil, fmt.Errorf("cell address %s out of bounds (rows and columns are 1-based)", ref.FormatCell(c))
	}
	s, err := w.sheetFor(c.Sheet)
	if err != nil {
		return ref.Cell{}, nil, err
	}
	c.Sheet = s.name
	return c, s, nil
}

// resolveSheetNames fills empty sheet components on parsed references with
// the host sheet, so all graph keys are fully qualified.
func resolveSheetNames(n parse.Node, host string) {
	parse.Walk(n, func(x parse.Node) {
		switch t := x.(type) {
		case *parse.CellRef:
			if t.Cell.Sheet == "" {
				t.Cell.Sheet = host
			}
		case *parse.RangeRef:
			if t.Range.Sheet == "" {
				t.Range.Sheet = host
			}
		}
	})
}

// SetValue stores a literal, replacing any formula at the address, and
// dirties every affected formula.
func (w *Workbook) SetValue(c ref.Cell, v value.Value) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.setValueLocked(c, v)
}

func (w *Workbook) setValueLocked(c ref.Cell, v value.Value) error {
	c, s, err := w.canonicalCell(c)
	if err != nil {
		return err
	}
	cl := s.ensureCell(c.Row, c.Col)
	if cl.isSpill() {
		w.breakSpillLocked(*cl.spillAnchor)
		cl = s.ensureCell(c.Row, c.Col)
	}
	if cl.isFormula() {
		w.clearSpillRegionLocked(c, cl)
		w.graph.removeVertex(c)
		delete(w.blockedSpills, c)
	}
	*cl = cell{literal: v}
	w.graph.markAffected(c)
	w.reviveBlockedSpills(c)
	w.changes.record(w, changeSetValue, c, v.String())
	return nil
}

// reviveBlockedSpills re-dirties any anchor whose blocked spill region
// covers the edited cell; removing the blocker lets the next evaluation
// try the spill again.
func (w *Workbook) reviveBlockedSpills(c ref.Cell) {
	for anchor, region := range w.blockedSpills {
		if anchor != c && region.Contains(c) {
			w.graph.markDirty(anchor)
		}
	}
}

// SetFormula parses and installs a formula, atomically replacing the cell's
// previous edges and dirtying the cell plus everything downstream. A
// formula that fails to parse is stored with its syntax error as the cached
// value; it takes no edges and is not dirty.
func (w *Workbook) SetFormula(c ref.Cell, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.setFormulaLocked(c, text)
}

func (w *Workbook) setFormulaLocked(c ref.Cell, text string) error {
	c, s, err := w.canonicalCell(c)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("formula text must not be empty")
	}

	cl := s.ensureCell(c.Row, c.Col)
	if cl.isSpill() {
		w.breakSpillLocked(*cl.spillAnchor)
		cl = s.ensureCell(c.Row, c.Col)
	}
	if cl.isFormula() {
		w.clearSpillRegionLocked(c, cl)
		w.graph.clearEdges(c)
		delete(w.blockedSpills, c)
	}

	ast, perr := parse.Parse(text, w.dialect)
	if perr != nil {
		w.graph.removeVertex(c)
		*cl = cell{
			formula: text,
			cached:  value.Err(value.ErrGeneric, perr.Error()),
		}
		w.graph.markAffected(c)
		w.changes.record(w, changeSetFormula, c, text)
		w.log.Debug("formula rejected by parser", "cell", ref.FormatCell(c), "error", perr)
		return nil
	}
	resolveSheetNames(ast, s.name)

	*cl = cell{formula: text, ast: ast, dirty: true}

	v := w.graph.getOrCreate(c)
	v.formula = true
	cells, ranges := parse.Refs(ast)
	for _, p := range cells {
		w.graph.addEdge(c, p)
	}
	for _, r := range ranges {
		w.graph.addRangeEdge(c, r.Normalize())
	}
	w.classifyFormula(c, v, ast)

	w.graph.markDirty(c)
	w.graph.markAffected(c)
	w.changes.record(w, changeSetFormula, c, text)
	return nil
}

// classifyFormula derives the vertex flags from the formula's call set:
// volatile if any called function is volatile, parallel-eligible only when
// every resolvable call is thread-safe and deterministic. Unknown names
// force serial evaluation; they resolve to an error value at dispatch.
func (w *Workbook) classifyFormula(c ref.Cell, v *vertex, ast parse.Node) {
	volatile := false
	parallelOK := true
	for _, name := range parse.Funcs(ast) {
		e, ok := w.registry.Lookup(name)
		if !ok {
			parallelOK = false
			continue
		}
		if e.Volatile {
			volatile = true
		}
		if !e.ThreadSafe || !e.Deterministic {
			parallelOK = false
		}
	}
	v.volatile = volatile
	v.parallelOK = parallelOK
	w.graph.setVolatile(c, volatile)
}

// ClearCell removes whatever the address holds and dirties dependents.
// Clearing an empty cell is a no-op.
func (w *Workbook) ClearCell(c ref.Cell) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.clearCellLocked(c)
}

func (w *Workbook) clearCellLocked(c ref.Cell) error {
	c, s, err := w.canonicalCell(c)
	if err != nil {
		return err
	}
	cl := s.cellAt(c.Row, c.Col)
	if cl == nil {
		return nil
	}
	if cl.isSpill() {
		w.breakSpillLocked(*cl.spillAnchor)
		return nil
	}
	if cl.isFormula() {
		w.clearSpillRegionLocked(c, cl)
		w.graph.removeVertex(c)
		delete(w.blockedSpills, c)
	}
	s.deleteCell(c.Row, c.Col)
	w.graph.markAffected(c)
	w.reviveBlockedSpills(c)
	w.changes.record(w, changeClearCell, c, "")
	return nil
}

// GetValue returns the cell's current value, computing it on demand if the
// cell or anything it depends on is stale.
func (w *Workbook) GetValue(c ref.Cell) (value.Value, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, _, err := w.canonicalCell(c)
	if err != nil {
		return value.Empty(), err
	}
	st := newEvalState(w)
	return st.ensure(c), nil
}

// GetFormula returns the formula text at the address, if any.
func (w *Workbook) GetFormula(c ref.Cell) (string, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, s, err := w.canonicalCell(c)
	if err != nil {
		return "", false, err
	}
	cl := s.cellAt(c.Row, c.Col)
	if cl == nil || !cl.isFormula() {
		return "", false, nil
	}
	return cl.formula, true, nil
}

// Peek returns the stored value without triggering evaluation; stale
// formula cells report their last cached value.
func (w *Workbook) Peek(c ref.Cell) (value.Value, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, s, err := w.canonicalCell(c)
	if err != nil {
		return value.Empty(), err
	}
	return s.cellAt(c.Row, c.Col).currentValue(), nil
}

// IsDirty reports whether the formula at the address awaits recomputation.
func (w *Workbook) IsDirty(c ref.Cell) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, _, err := w.canonicalCell(c)
	if err != nil {
		return false, err
	}
	return w.graph.isDirty(c), nil
}

// UsedCells lists every occupied cell of a sheet in row-major order.
func (w *Workbook) UsedCells(sheetName string) []ref.Cell {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, err := w.sheetFor(sheetName)
	if err != nil {
		return nil
	}
	out := make([]ref.Cell, 0, len(s.cells))
	for k := range s.cells {
		out = append(out, ref.Cell{Sheet: s.name, Row: k.row, Col: k.col})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Col < out[j].Col
	})
	return out
}

// readCellLocked is the interpreter's view of storage: empty for missing
// cells, the literal or cached value otherwise. It never evaluates.
func (w *Workbook) readCellLocked(c ref.Cell) value.Value {
	s, err := w.sheetFor(c.Sheet)
	if err != nil {
		return value.ErrKind(value.ErrRef)
	}
	return s.cellAt(c.Row, c.Col).currentValue()
}

// expandRange lists the concrete cells a range covers.
func (w *Workbook) expandRange(r ref.Range) []ref.Cell {
	return r.Normalize().Cells()
}
