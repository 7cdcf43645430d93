// Package notifications publishes job lifecycle events via NATS.
//
// Events are emitted on a per-event subject under the configured base
// subject, carrying the job ID and stage context as JSON. When no NATS URL is
// configured the service degrades to a no-op, so workflow code never guards
// its publish calls.
package notifications
