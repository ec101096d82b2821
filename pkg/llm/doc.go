// Package llm defines the model client contract consumed by the turn loop
// and ships Anthropic and OpenAI implementations of it.
//
// Invariants:
// - Generate receives the full projected ledger on every call.
// - Responses are returned as ledger content blocks, order preserved.
// - Retry, backoff and wire details stay inside each provider.
package llm
