// Package events carries page change notifications out of the database actor.
// Emitters never block: events are buffered, batched on a background goroutine,
// and fanned out to sinks such as structured logs, Prometheus counters, or a
// message publisher.
package events
