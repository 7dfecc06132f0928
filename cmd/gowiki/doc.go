// Package main hosts the gowiki entrypoint.
//
// Architecture overview:
//   - HTTP: internal/web serves the page index, page view/edit, save, create and delete routes, plus a small JSON
//     API (/api/pages, /api/backup) and the /healthz, /readyz and /metrics endpoints.
//   - Bus: every database call travels as a JSON request over the in-process bus (internal/bus) to a single
//     consumer registered by internal/dbservice. One goroutine owns the page store, so writes are serialized.
//   - Storage: pages live in SQLite (default), Postgres, or memory. Backups are JSON snapshots written to a
//     BlobStore (memory, local disk, or GCS).
//   - Events: successful writes and backups are batched by internal/events and fanned out to zap logs,
//     Prometheus counters and, when a topic is configured, Google Pub/Sub.
//   - Configuration & plumbing: Viper reads an optional file and WIKI_* variables; zap provides structured logging.
//
// Quick checklist:
//   - Run locally: go run ./cmd/gowiki serve --config wiki.yaml (or rely solely on env overrides).
//   - One-off snapshot: go run ./cmd/gowiki backup.
//   - The process reacts to SIGINT/SIGTERM by draining HTTP, then the bus, then the event hub.
package main
