// Package observer contains ready-made statemachine.Observer implementations:
// an in-memory Recorder for tests and diagnostics, a structured Log sink,
// a Broadcast bridge into pkg/broadcast, a Redis pub/sub sink, a signed
// Webhook sink and a Filter that forwards only selected occurrence kinds.
//
// The Redis and Webhook sinks send the JSON form of an occurrence (Payload).
// They perform network I/O, so machines using them usually run with
// asynchronous delivery or an observer timeout.
package observer
