// Package web serves the wiki over HTTP. Notable routes:
//   - GET / lists pages; GET /wiki/{page} renders one with its edit form.
//   - POST /save, /create, /delete handle the HTML forms and redirect with 303.
//   - GET /healthz and /readyz for probes, GET /metrics for Prometheus.
//   - GET /api/pages exports every page as JSON; POST /api/backup writes a snapshot.
//
// Handlers reach the database only through a dbservice.Service.
package web
