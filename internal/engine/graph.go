package engine

import (
	"github.com/vk/sheetgridgo/internal/ref"
)

// The dependency graph tracks, for every formula cell, the cells and
// ranges it reads and the cells that read it. Range dependencies are kept
// lazily as observer sets instead of being expanded into per-cell edges,
// so wide ranges stay cheap.

type vertex struct {
	id ref.Cell

	precedents map[ref.Cell]*vertex
	dependents map[ref.Cell]*vertex
	rangePrecs map[ref.Range]struct{}

	// formula is true for cells that actually hold a formula; plain
	// precedent cells get passive vertices that only carry edges.
	formula bool
	// volatile marks formulas that call at least one volatile function.
	volatile bool
	// parallelOK marks formulas whose whole call set is thread-safe and
	// deterministic, making them eligible for concurrent batch evaluation.
	parallelOK bool
}

type graph struct {
	nodes          map[ref.Cell]*vertex
	rangeObservers map[ref.Range]map[ref.Cell]struct{}
	dirty          map[ref.Cell]struct{}
	volatiles      map[ref.Cell]struct{}
}

func newGraph() *graph {
	return &graph{
		nodes:          make(map[ref.Cell]*vertex),
		rangeObservers: make(map[ref.Range]map[ref.Cell]struct{}),
		dirty:          make(map[ref.Cell]struct{}),
		volatiles:      make(map[ref.Cell]struct{}),
	}
}

func (g *graph) getOrCreate(id ref.Cell) *vertex {
	if v, ok := g.nodes[id]; ok {
		return v
	}
	v := &vertex{
		id:         id,
		precedents: make(map[ref.Cell]*vertex),
		dependents: make(map[ref.Cell]*vertex),
		rangePrecs: make(map[ref.Range]struct{}),
	}
	g.nodes[id] = v
	return v
}

func (g *graph) vertexAt(id ref.Cell) (*vertex, bool) {
	v, ok := g.nodes[id]
	return v, ok
}

// addEdge records that from reads to.
func (g *graph) addEdge(from, to ref.Cell) {
	fv := g.getOrCreate(from)
	tv := g.getOrCreate(to)
	fv.precedents[to] = tv
	tv.dependents[from] = fv
}

// addRangeEdge records that from reads every cell of r.
func (g *graph) addRangeEdge(from ref.Cell, r ref.Range) {
	v := g.getOrCreate(from)
	v.rangePrecs[r] = struct{}{}
	obs := g.rangeObservers[r]
	if obs == nil {
		obs = make(map[ref.Cell]struct{})
		g.rangeObservers[r] = obs
	}
	obs[from] = struct{}{}
}

// clearEdges drops every outgoing edge of id, keeping incoming dependents
// intact. Called when a formula is rewritten so the new edge set replaces
// the old one atomically under the workbook lock.
func (g *graph) clearEdges(id ref.Cell) {
	v, ok := g.nodes[id]
	if !ok {
		return
	}
	for p, pv := range v.precedents {
		delete(pv.dependents, id)
		g.cleanupIfIsolated(p)
	}
	v.precedents = make(map[ref.Cell]*vertex)
	for r := range v.rangePrecs {
		if obs, ok := g.rangeObservers[r]; ok {
			delete(obs, id)
			if len(obs) == 0 {
				delete(g.rangeObservers, r)
			}
		}
	}
	v.rangePrecs = make(map[ref.Range]struct{})
}

// removeVertex demotes id back to a non-formula cell: edges are cleared,
// flags reset, and the node itself is dropped unless dependents still
// point at it.
func (g *graph) removeVertex(id ref.Cell) {
	v, ok := g.nodes[id]
	if !ok {
		return
	}
	g.clearEdges(id)
	v.formula = false
	v.volatile = false
	v.parallelOK = false
	delete(g.dirty, id)
	delete(g.volatiles, id)
	g.cleanupIfIsolated(id)
}

func (g *graph) cleanupIfIsolated(id ref.Cell) {
	v, ok := g.nodes[id]
	if !ok {
		return
	}
	if v.formula || len(v.precedents) > 0 || len(v.dependents) > 0 || len(v.rangePrecs) > 0 {
		return
	}
	delete(g.nodes, id)
	delete(g.dirty, id)
}

func (g *graph) markDirty(id ref.Cell) {
	if v, ok := g.nodes[id]; ok && v.formula {
		g.dirty[id] = struct{}{}
	}
}

func (g *graph) clearDirty(id ref.Cell) {
	delete(g.dirty, id)
}

func (g *graph) isDirty(id ref.Cell) bool {
	_, ok := g.dirty[id]
	return ok
}

func (g *graph) setVolatile(id ref.Cell, volatile bool) {
	if volatile {
		g.volatiles[id] = struct{}{}
	} else {
		delete(g.volatiles, id)
	}
}

// markVolatilesDirty re-enters every volatile formula into the dirty set;
// called at the top of each full pass so volatiles recompute regardless of
// dependency staleness.
func (g *graph) markVolatilesDirty() {
	for id := range g.volatiles {
		g.markDirty(id)
	}
}

// markAffected dirties every formula whose value can change when the cell
// at id changes: transitive dependents, observers of any range containing
// id, and the observers' own transitive dependents.
func (g *graph) markAffected(id ref.Cell) {
	seen := make(map[ref.Cell]struct{})
	var walk func(c ref.Cell)
	walk = func(c ref.Cell) {
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		if v, ok := g.nodes[c]; ok {
			for dep := range v.dependents {
				g.markDirty(dep)
				walk(dep)
			}
		}
		for r, obs := range g.rangeObservers {
			if r.Contains(c) {
				for o := range obs {
					if _, done := seen[o]; !done {
						g.markDirty(o)
						walk(o)
					}
				}
			}
		}
	}
	walk(id)
}

// calcOrder computes a dependency-first order over the given candidate
// vertices, following precedent edges (including range expansions)
// restricted to the candidate set. Vertices on a cycle are returned
// separately and excluded from the order.
func (g *graph) calcOrder(candidates map[ref.Cell]struct{}, expand func(ref.Range) []ref.Cell) (order []ref.Cell, cyclic map[ref.Cell]struct{}) {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[ref.Cell]int, len(candidates))
	cyclic = make(map[ref.Cell]struct{})
	var stack []ref.Cell

	var visit func(id ref.Cell)
	visit = func(id ref.Cell) {
		switch state[id] {
		case visiting:
			// Back edge: everything on the stack from id onward forms
			// the cycle. Dependents further up still evaluate normally
			// and will read the circular error as a plain value.
			for i := len(stack) - 1; i >= 0; i-- {
				cyclic[stack[i]] = struct{}{}
				if stack[i] == id {
					break
				}
			}
			return
		case done:
			return
		}
		state[id] = visiting
		stack = append(stack, id)

		if v, ok := g.nodes[id]; ok {
			for p := range v.precedents {
				if _, isCand := candidates[p]; isCand {
					visit(p)
				}
			}
			for r := range v.rangePrecs {
				for _, c := range expand(r) {
					if _, isCand := candidates[c]; isCand {
						visit(c)
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done
		if _, bad := cyclic[id]; !bad {
			order = append(order, id)
		}
	}

	for id := range candidates {
		visit(id)
	}
	return order, cyclic
}
