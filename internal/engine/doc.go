// Package engine is the evaluation core: sheets of cells, the dependency
// graph that tracks which formulas read which cells and ranges, and the
// two recalculation strategies built on top of it. Demand evaluation
// recomputes exactly the stale slice above one requested cell; batch
// evaluation recomputes everything stale (plus volatiles) in dependency
// order, running independent thread-safe formulas concurrently.
//
// Dependency cycles never fail an evaluation pass; the cells on the cycle
// are assigned the circular-reference error and everything downstream
// reads it as an ordinary value. Array results spill into adjacent cells,
// with a blocked spill reported as an error on the anchor.
package engine
