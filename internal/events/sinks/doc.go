// Package sinks implements event consumers: structured logging, Prometheus
// counters, and a publisher that forwards page changes to a message topic.
package sinks
