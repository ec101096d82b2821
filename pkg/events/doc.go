// Package events defines the agent's realtime event records and the ordered
// queue that carries them from the turn loop to the fan-out consumer.
//
// Invariants:
// - Events are immutable once emitted.
// - Delivery order equals emission order.
// - Put never blocks the producer; the queue is bounded only by memory.
package events
