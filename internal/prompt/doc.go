// Package prompt turns the server's stream of prompt requests into a
// bounded UI model.
//
// Every "prompt" event passes an admission pipeline:
//
//  1. Rate check: more than 5 arrivals in a rolling one-second window are
//     dropped.
//  2. Circuit breaker: 10 arrivals in the window trip a latch that rejects
//     everything until the next transport is attached, and disconnects the
//     current transport once.
//  3. Payload validation: unknown types, oversized text and too many inputs
//     are rejected.
//  4. Toasts go to a FIFO list of 5; the oldest is evicted on overflow.
//  5. Modal prompts (input, confirm, notice) become active when nothing is
//     active, otherwise wait in a queue of 3. A fourth waiting prompt is
//     dropped.
//
// Resolving the active prompt promotes the next queued one. DismissAll
// answers "dismissed" for the active prompt and every queued prompt, in that
// order, and clears the toasts; it works while the breaker is tripped.
// ForceClose is available 5 seconds after a modal becomes active whatever
// its payload says.
//
// The UI reads Snapshot (or subscribes to it) and writes only through
// Respond, DismissAll, DismissToast and ForceClose. All rendering of prompt
// text goes through View, RenderHTML or ConsoleText, which escape or strip
// every server-supplied string.
package prompt
