// Package tools defines the tool capability contract and the registry that
// validates, dispatches and observes tool invocations for the turn loop.
//
// Invariants:
// - Tool names are unique; duplicates fail registry construction.
// - Inputs are schema-validated before a tool runs.
// - Every outcome reaches the model as a string; unknown tools and tool
//   failures are reported as result text, never raised.
package tools
