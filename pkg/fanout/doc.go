// Package fanout drains the event queue, persisting every event and
// forwarding a filtered subset to a realtime transport.
//
// Invariants:
// - One consumer per session, one event in flight at a time.
// - Persistence failure never propagates to the turn loop.
// - The first transport failure silences forwarding for the rest of the run;
//   persistence continues.
// - User-originated events are never echoed over the transport.
package fanout
