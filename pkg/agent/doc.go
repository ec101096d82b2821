// Package agent drives the turn loop: one model call and at most one tool
// call per turn, with cooperative interruption and realtime event emission.
//
// Invariants:
// - A single run per agent instance advances turns strictly sequentially.
// - The interruption flag is read at exactly two checkpoints: before the
//   model call and before tool execution.
// - Every state transition is emitted to the event queue in causal order.
// - The ledger always ends well-formed, so a resumed run can continue.
//
// Usage:
//
//	ag, _ := agent.New(agent.Config{
//		Client:   client,
//		Registry: registry,
//		Ledger:   ledger,
//		Queue:    queue,
//		Logger:   logger,
//	})
//	result, _ := ag.Run(ctx, agent.RunParams{Instruction: "hello"})
//	_ = result
package agent
