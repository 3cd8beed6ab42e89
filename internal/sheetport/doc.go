// Package sheetport turns a workbook into a typed function: an HCL
// manifest declares named ports, each bound to a cell or a group of cells,
// and a Session moves values across them. Inputs are validated against the
// declared schemas before anything is written, so a rejected batch leaves
// the workbook exactly as it was. EvaluateOnce runs a full recalculation
// under an explicitly pinned clock, seed, and timezone, which makes a
// session's output a pure function of its inputs.
package sheetport
