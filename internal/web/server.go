package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/gowiki/internal/backup"
	"github.com/JakeFAU/gowiki/internal/dbservice"
	"github.com/JakeFAU/gowiki/internal/metrics"
	"github.com/JakeFAU/gowiki/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/gowiki/internal/publisher/memory"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer turns page Markdown into HTML.
type Renderer interface {
	Render(source string) (template.HTML, error)
}

// Pinger reports whether the page store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backuper writes a snapshot of every page.
type Backuper interface {
	Run(ctx context.Context) (backup.Result, error)
}

// EventLog holds recently published page events.
type EventLog interface {
	Messages() []memorypublisher.PublishedMessage
}

// Deps are the collaborators the handlers call into. Backup and Events may
// be nil.
type Deps struct {
	Service  dbservice.Service
	Markdown Renderer
	Store    Pinger
	Backup   Backuper
	Events   EventLog
	Logger   *zap.Logger
}

// Options tune middleware.
type Options struct {
	RequestTimeout time.Duration
	// APIKey, when non-empty, is required on /api routes.
	APIKey string
	// WriteLimiter, when set, throttles form posts per client address.
	WriteLimiter *ratelimit.Limiter
}

// Server wires HTTP handlers to the database service.
type Server struct {
	router    chi.Router
	deps      Deps
	logger    *zap.Logger
	templates *template.Template
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, opts Options) (*Server, error) {
	if deps.Service == nil {
		return nil, fmt.Errorf("web: service is required")
	}
	if deps.Markdown == nil {
		return nil, fmt.Errorf("web: markdown renderer is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tmpl, err := template.New("wiki").Funcs(template.FuncMap{
		"pagePath": pageLocation,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	s := &Server{deps: deps, logger: logger, templates: tmpl}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(opts.RequestTimeout))
		r.Get("/", s.index)
		r.Get("/wiki/{page}", s.page)
		r.Group(func(r chi.Router) {
			if opts.WriteLimiter != nil && opts.WriteLimiter.Enabled() {
				r.Use(s.throttleMiddleware(opts.WriteLimiter))
			}
			r.Post("/save", s.save)
			r.Post("/create", s.create)
			r.Post("/delete", s.remove)
		})

		r.Route("/api", func(r chi.Router) {
			if opts.APIKey != "" {
				r.Use(apiKeyMiddleware(opts.APIKey))
			}
			r.Get("/pages", s.exportPages)
			r.Post("/backup", s.runBackup)
			r.Get("/events", s.recentEvents)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, r, http.StatusNotFound, "No such route.")
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}
