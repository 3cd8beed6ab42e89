package sheetport

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vk/sheetgridgo/internal/ctxlog"
	"github.com/vk/sheetgridgo/internal/engine"
	"github.com/vk/sheetgridgo/internal/fn"
	"github.com/vk/sheetgridgo/internal/ref"
)

// Session binds a validated manifest to a live workbook. All port reads
// and writes go through the declared schemas; the workbook underneath is
// shared, not owned.
type Session struct {
	doc   *Document
	wb    *engine.Workbook
	sheet string
}

// NewSession checks every port location against the workbook and returns
// the bound session. Unqualified locations resolve to the workbook's first
// sheet.
func NewSession(ctx context.Context, doc *Document, wb *engine.Workbook) (*Session, error) {
	logger := ctxlog.FromContext(ctx)

	sheets := wb.Sheets()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	s := &Session{doc: doc, wb: wb, sheet: sheets[0]}

	for _, p := range doc.Ports {
		for _, loc := range portLocations(p) {
			c, err := s.resolveLocation(loc)
			if err != nil {
				return nil, fmt.Errorf("port %s: %w", p.ID, err)
			}
			if !wb.HasSheet(c.Sheet) {
				return nil, fmt.Errorf("port %s: location %s names unknown sheet %q", p.ID, loc, c.Sheet)
			}
		}
	}
	logger.Debug("session bound", "ports", len(doc.Ports), "default_sheet", s.sheet)
	return s, nil
}

func portLocations(p *Port) []string {
	if p.shape() == ShapeRecord {
		out := make([]string, len(p.Fields))
		for i, f := range p.Fields {
			out[i] = f.Location
		}
		return out
	}
	return []string{p.Location}
}

func (s *Session) resolveLocation(loc string) (ref.Cell, error) {
	c, err := ref.ParseCell(loc)
	if err != nil {
		return ref.Cell{}, err
	}
	if c.Sheet == "" {
		c.Sheet = s.sheet
	}
	return c, nil
}

// PortInfo is the externally visible description of one port.
type PortInfo struct {
	ID         string
	Dir        string
	Shape      string
	Type       string            // scalar ports
	Location   string            // scalar ports
	Fields     map[string]string // record ports: field name -> type
	HasDefault bool
}

// DescribePorts lists the declared ports sorted by id.
func (s *Session) DescribePorts() []PortInfo {
	out := make([]PortInfo, 0, len(s.doc.Ports))
	for _, p := range s.doc.Ports {
		info := PortInfo{
			ID:         p.ID,
			Dir:        p.Dir,
			Shape:      p.shape(),
			HasDefault: p.Default != nil,
		}
		if info.Shape == ShapeRecord {
			info.Fields = make(map[string]string, len(p.Fields))
			for _, f := range p.Fields {
				info.Fields[f.Name] = f.Type
			}
		} else {
			info.Location = p.Location
			if p.Schema != nil {
				info.Type = p.Schema.Type
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReadInputs reads every in-port's current cell contents, substituting
// declared defaults for unset cells.
func (s *Session) ReadInputs() (map[string]any, error) {
	return s.readPorts(DirIn)
}

// ReadOutputs evaluates and reads every out-port.
func (s *Session) ReadOutputs() (map[string]any, error) {
	return s.readPorts(DirOut)
}

func (s *Session) readPorts(dir string) (map[string]any, error) {
	out := make(map[string]any)
	for _, p := range s.doc.Ports {
		if p.Dir != dir {
			continue
		}
		v, err := s.readPort(p)
		if err != nil {
			return nil, err
		}
		out[p.ID] = v
	}
	return out, nil
}

func (s *Session) readPort(p *Port) (any, error) {
	if p.shape() == ShapeRecord {
		rec := make(map[string]any, len(p.Fields))
		for _, f := range p.Fields {
			c, err := s.resolveLocation(f.Location)
			if err != nil {
				return nil, err
			}
			v, err := s.wb.GetValue(c)
			if err != nil {
				return nil, err
			}
			v, err = coerceCellValue(v, f.Type)
			if err != nil {
				return nil, fmt.Errorf("port %s field %s: %w", p.ID, f.Name, err)
			}
			rec[f.Name] = v.ToAny()
		}
		return rec, nil
	}

	c, err := s.resolveLocation(p.Location)
	if err != nil {
		return nil, err
	}
	v, err := s.wb.GetValue(c)
	if err != nil {
		return nil, err
	}
	if v.IsEmpty() && p.Dir == DirIn {
		if dv, ok, derr := defaultValue(p); derr != nil {
			return nil, derr
		} else if ok {
			v = dv
		}
	}
	typ := "any"
	if p.Schema != nil {
		typ = p.Schema.Type
	}
	v, err = coerceCellValue(v, typ)
	if err != nil {
		return nil, fmt.Errorf("port %s: %w", p.ID, err)
	}
	return v.ToAny(), nil
}

// Violation is one rejected port write.
type Violation struct {
	Port    string
	Message string
}

// ConstraintViolationError reports every violation found while validating
// a write batch. When it is returned, no cell was modified.
type ConstraintViolationError struct {
	Violations []Violation
}

func (e *ConstraintViolationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s: %s", v.Port, v.Message)
	}
	return fmt.Sprintf("constraint violations: %s", strings.Join(parts, "; "))
}

// WriteInputs validates every value against its port schema and
// constraints, then commits them all in one batch. On any violation the
// whole write is rejected and the workbook is untouched.
func (s *Session) WriteInputs(inputs map[string]any) error {
	var violations []Violation
	var updates []engine.ValueUpdate

	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, id := range keys {
		p, ok := s.doc.PortByID(id)
		if !ok {
			violations = append(violations, Violation{Port: id, Message: "unknown port"})
			continue
		}
		if p.Dir != DirIn {
			violations = append(violations, Violation{Port: id, Message: "not an input port"})
			continue
		}
		ups, vs := s.prepareWrite(p, inputs[id])
		violations = append(violations, vs...)
		updates = append(updates, ups...)
	}

	if len(violations) > 0 {
		return &ConstraintViolationError{Violations: violations}
	}
	return s.wb.SetValues(updates)
}

func (s *Session) prepareWrite(p *Port, raw any) ([]engine.ValueUpdate, []Violation) {
	if p.shape() == ShapeRecord {
		rec, ok := raw.(map[string]any)
		if !ok {
			return nil, []Violation{{Port: p.ID, Message: fmt.Sprintf("record port wants a map, got %T", raw)}}
		}
		var updates []engine.ValueUpdate
		var violations []Violation

		names := make([]string, 0, len(rec))
		for n := range rec {
			names = append(names, n)
		}
		sort.Strings(names)

		for _, name := range names {
			f := p.fieldByName(name)
			if f == nil {
				violations = append(violations, Violation{Port: p.ID, Message: fmt.Sprintf("unknown field %q", name)})
				continue
			}
			v, err := coerceGoValue(rec[name], f.Type)
			if err != nil {
				violations = append(violations, Violation{Port: p.ID, Message: fmt.Sprintf("field %s: %v", name, err)})
				continue
			}
			if err := checkMin(v, f.Min); err != nil {
				violations = append(violations, Violation{Port: p.ID, Message: fmt.Sprintf("field %s: %v", name, err)})
				continue
			}
			c, err := s.resolveLocation(f.Location)
			if err != nil {
				violations = append(violations, Violation{Port: p.ID, Message: err.Error()})
				continue
			}
			updates = append(updates, engine.ValueUpdate{Cell: c, Value: v})
		}
		return updates, violations
	}

	typ := "any"
	var min *float64
	if p.Schema != nil {
		typ, min = p.Schema.Type, p.Schema.Min
	}
	v, err := coerceGoValue(raw, typ)
	if err != nil {
		return nil, []Violation{{Port: p.ID, Message: err.Error()}}
	}
	if err := checkMin(v, min); err != nil {
		return nil, []Violation{{Port: p.ID, Message: err.Error()}}
	}
	c, err := s.resolveLocation(p.Location)
	if err != nil {
		return nil, []Violation{{Port: p.ID, Message: err.Error()}}
	}
	return []engine.ValueUpdate{{Cell: c, Value: v}}, nil
}

func (p *Port) fieldByName(name string) *Field {
	for _, f := range p.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// DeterminismConfigError rejects an evaluation configuration that cannot
// reproduce: a fixed timestamp paired with the ambient local timezone.
type DeterminismConfigError struct {
	Reason string
}

func (e *DeterminismConfigError) Error() string {
	return fmt.Sprintf("determinism configuration rejected: %s", e.Reason)
}

// Options configures one deterministic evaluation pass.
type Options struct {
	// FreezeVolatiles keeps volatile formulas at their cached values.
	FreezeVolatiles bool
	// RandSeed, when set, restarts the workbook's random stream.
	RandSeed *uint64
	// FixedTimestamp pins NOW and TODAY. Requires a non-local Timezone.
	FixedTimestamp *time.Time
	// Timezone names the zone date/time functions observe: "utc",
	// "local", or a fixed offset like "+02:00".
	Timezone string
}

// EvaluateOnce applies the evaluation options, runs one full pass, and
// returns the out-ports.
func (s *Session) EvaluateOnce(ctx context.Context, opts Options) (map[string]any, error) {
	logger := ctxlog.FromContext(ctx)

	tz, err := fn.ParseTimeZone(opts.Timezone)
	if err != nil {
		return nil, &DeterminismConfigError{Reason: err.Error()}
	}
	if opts.FixedTimestamp != nil {
		clk, err := fn.NewFixedClock(*opts.FixedTimestamp, tz)
		if err != nil {
			return nil, &DeterminismConfigError{Reason: err.Error()}
		}
		s.wb.SetClock(clk)
	} else if opts.Timezone != "" {
		s.wb.SetClock(fn.SystemClock{TZ: tz})
	}
	if opts.RandSeed != nil {
		s.wb.ReseedRand(*opts.RandSeed)
	}
	s.wb.SetFreezeVolatiles(opts.FreezeVolatiles)

	sum, err := s.wb.EvaluateAll(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("evaluation pass finished",
		"computed", sum.Computed, "cycles", sum.Cycles, "rounds", sum.Rounds)
	return s.ReadOutputs()
}

// Workbook exposes the bound workbook for callers that need direct cell
// access alongside port I/O.
func (s *Session) Workbook() *engine.Workbook { return s.wb }
