// Package history maintains the ordered, truncatable conversation ledger for
// one agent run.
//
// Invariants:
// - Turn order is conversation order and is replayed verbatim to the model.
// - Truncation drops whole turns only and never separates a tool call from
//   its result.
// - At most one tool call per assistant turn is consumable by the loop;
//   enforcement of that limit belongs to the caller.
package history
