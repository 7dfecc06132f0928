package web

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	memorypublisher "github.com/JakeFAU/gowiki/internal/publisher/memory"
	"github.com/JakeFAU/gowiki/internal/wiki"
)

type indexData struct {
	Title string
	Pages []string
}

type pageData struct {
	wiki.PageView
	Content template.HTML
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	names, err := s.deps.Service.FetchAllPages(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.renderHTML(w, r, "index.html", indexData{Title: wiki.HomeTitle, Pages: names})
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	name, err := pageParam(r)
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Malformed page name.")
		return
	}
	view, err := s.deps.Service.GetPage(r.Context(), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	content, err := s.deps.Markdown.Render(view.RawContent)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.renderHTML(w, r, "page.html", pageData{PageView: view, Content: content})
}

func (s *Server) save(w http.ResponseWriter, r *http.Request) {
	id, err := formID(r)
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req := wiki.UpsertRequest{
		ID:       id,
		Title:    r.PostFormValue("title"),
		NewPage:  r.PostFormValue("newPage") == wiki.NewPageFlag(true),
		Markdown: r.PostFormValue("markdown"),
	}
	if err := s.deps.Service.UpsertPage(r.Context(), req); err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, pageLocation(req.Title), http.StatusSeeOther)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PostFormValue("pageName"))
	location := "/"
	if name != "" {
		location = pageLocation(name)
	}
	s.logger.Debug("create redirect", zap.String("page", name), zap.String("location", location))
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	id, err := formID(r)
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("deleting page", zap.Int64("id", id))
	if err := s.deps.Service.DeletePage(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) exportPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.deps.Service.FetchAllPageData(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if pages == nil {
		pages = []wiki.Page{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

func (s *Server) runBackup(w http.ResponseWriter, r *http.Request) {
	if s.deps.Backup == nil {
		writeError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	}
	res, err := s.deps.Backup.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) recentEvents(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "events are published externally")
		return
	}
	msgs := s.deps.Events.Messages()
	if msgs == nil {
		msgs = []memorypublisher.PublishedMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": msgs})
}

func formID(r *http.Request) (int64, error) {
	raw := r.PostFormValue("id")
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, errors.New("malformed page id " + strconv.Quote(raw))
	}
	return id, nil
}

// pageParam decodes {page}. chi matches on the escaped path only when the
// request carried one.
func pageParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "page")
	if r.URL.RawPath == "" {
		return raw, nil
	}
	name, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("unescape page name: %w", err)
	}
	return name, nil
}

func pageLocation(name string) string {
	return "/wiki/" + url.PathEscape(name)
}

// fail maps service errors onto status codes and renders the error page.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	s.renderError(w, r, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, wiki.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, wiki.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, wiki.ErrInvalidName):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
