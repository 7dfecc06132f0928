package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gowiki/internal/backup"
	"github.com/JakeFAU/gowiki/internal/dbservice"
	"github.com/JakeFAU/gowiki/internal/markdown"
	"github.com/JakeFAU/gowiki/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/gowiki/internal/publisher/memory"
	"github.com/JakeFAU/gowiki/internal/storage/memory"
	"github.com/JakeFAU/gowiki/internal/wiki"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeBackup struct {
	res backup.Result
	err error
}

func (b fakeBackup) Run(context.Context) (backup.Result, error) { return b.res, b.err }

type failingService struct {
	dbservice.Service
	err error
}

func (f failingService) FetchAllPages(context.Context) ([]string, error) { return nil, f.err }

func (f failingService) GetPage(context.Context, string) (wiki.PageView, error) {
	return wiki.PageView{}, f.err
}

func (f failingService) FetchAllPageData(context.Context) ([]wiki.Page, error) { return nil, f.err }

type panickingService struct {
	dbservice.Service
}

func (panickingService) FetchAllPages(context.Context) ([]string, error) { panic("boom") }

func newTestServer(t *testing.T, deps Deps, opts Options) (*Server, *memory.PageStore) {
	t.Helper()
	store := memory.NewPageStore()
	if deps.Service == nil {
		deps.Service = dbservice.New(store, fakeClock{now: time.Unix(0, 0).UTC()}, nil)
	}
	if deps.Markdown == nil {
		deps.Markdown = markdown.New()
	}
	srv, err := NewServer(deps, opts)
	require.NoError(t, err)
	return srv, store
}

func do(t *testing.T, srv *Server, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Index(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, Deps{}, Options{})
	rec := do(t, srv, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Home of our Wiki!!!")
	require.Contains(t, rec.Body.String(), "The wiki is currently empty!")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	_, err := store.CreatePage(context.Background(), "Beta", "b")
	require.NoError(t, err)
	_, err = store.CreatePage(context.Background(), "Alpha Page", "a")
	require.NoError(t, err)

	rec = do(t, srv, http.MethodGet, "/", nil)
	body := rec.Body.String()
	require.Contains(t, body, `href="/wiki/Alpha%20Page"`)
	require.Less(t, strings.Index(body, "Alpha Page"), strings.Index(body, "Beta"))
}

func TestServer_IndexEscapesPageLinks(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, Deps{}, Options{})
	_, err := store.CreatePage(context.Background(), "Q&A?v2#top", "q")
	require.NoError(t, err)
	_, err = store.CreatePage(context.Background(), "100%", "p")
	require.NoError(t, err)

	body := do(t, srv, http.MethodGet, "/", nil).Body.String()
	require.Contains(t, body, `href="/wiki/Q&amp;A%3Fv2%23top"`)
	require.Contains(t, body, `href="/wiki/100%25"`)

	rec := do(t, srv, http.MethodGet, "/wiki/Q&A%3Fv2%23top", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `name="id" value="`)
	require.NotContains(t, rec.Body.String(), `value="-1"`)
}

func TestServer_PageRendersMissingPage(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, Deps{}, Options{})
	rec := do(t, srv, http.MethodGet, "/wiki/Fresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `<h1 id="a-new-page">A new page</h1>`)
	require.Contains(t, body, `name="newPage" value="yes"`)
	require.Contains(t, body, `name="id" value="-1"`)
	require.NotContains(t, body, `action="/delete"`)
}

func TestServer_PageRendersExistingPage(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, Deps{}, Options{})
	id, err := store.CreatePage(context.Background(), "Go Tips", "**bold** <script>x</script>")
	require.NoError(t, err)

	rec := do(t, srv, http.MethodGet, "/wiki/Go%20Tips", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "<strong>bold</strong>")
	require.NotContains(t, body, "<script>x</script>")
	require.Contains(t, body, `name="newPage" value="no"`)
	require.Contains(t, body, `action="/delete"`)
	require.Contains(t, body, `value="`+strconv.FormatInt(id, 10)+`"`)
}

func TestServer_SaveCreatesAndUpdates(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, Deps{}, Options{})
	rec := do(t, srv, http.MethodPost, "/save", url.Values{
		"id":       {"-1"},
		"title":    {"My Page"},
		"newPage":  {"yes"},
		"markdown": {"# hello"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/wiki/My%20Page", rec.Header().Get("Location"))

	page, err := store.GetPage(context.Background(), "My Page")
	require.NoError(t, err)
	require.Equal(t, "# hello", page.Content)

	rec = do(t, srv, http.MethodPost, "/save", url.Values{
		"id":       {strconv.FormatInt(page.ID, 10)},
		"title":    {"My Page"},
		"newPage":  {"no"},
		"markdown": {"# updated"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	page, err = store.GetPage(context.Background(), "My Page")
	require.NoError(t, err)
	require.Equal(t, "# updated", page.Content)
}

func TestServer_SaveErrors(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, Deps{}, Options{})
	_, err := store.CreatePage(context.Background(), "Taken", "x")
	require.NoError(t, err)

	cases := []struct {
		name   string
		form   url.Values
		status int
	}{
		{"malformed id", url.Values{"id": {"abc"}, "title": {"x"}}, http.StatusBadRequest},
		{"missing id", url.Values{"title": {"x"}}, http.StatusBadRequest},
		{"unknown id", url.Values{"id": {"999"}, "title": {"x"}, "newPage": {"no"}}, http.StatusNotFound},
		{"duplicate", url.Values{"id": {"-1"}, "title": {"Taken"}, "newPage": {"yes"}}, http.StatusConflict},
		{"blank title", url.Values{"id": {"-1"}, "title": {" "}, "newPage": {"yes"}}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/save", tc.form)
			require.Equal(t, tc.status, rec.Code)
			require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		})
	}
}

func TestServer_Create(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, Deps{}, Options{})
	rec := do(t, srv, http.MethodPost, "/create", url.Values{"pageName": {"New Idea"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/wiki/New%20Idea", rec.Header().Get("Location"))

	rec = do(t, srv, http.MethodPost, "/create", url.Values{"pageName": {""}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))

	names, err := store.ListPageNames(context.Background())
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestServer_Delete(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, Deps{}, Options{})
	id, err := store.CreatePage(context.Background(), "Doomed", "x")
	require.NoError(t, err)

	rec := do(t, srv, http.MethodPost, "/delete", url.Values{"id": {strconv.FormatInt(id, 10)}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))
	_, err = store.GetPage(context.Background(), "Doomed")
	require.ErrorIs(t, err, wiki.ErrNotFound)

	rec = do(t, srv, http.MethodPost, "/delete", url.Values{"id": {strconv.FormatInt(id, 10)}})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodPost, "/delete", url.Values{"id": {"nope"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ServiceFailureRendersErrorPage(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, Deps{Service: failingService{err: errors.New("db unavailable")}}, Options{})
	for _, target := range []string{"/", "/wiki/Home"} {
		rec := do(t, srv, http.MethodGet, target, nil)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Contains(t, rec.Body.String(), "500 Internal Server Error")
		require.Contains(t, rec.Body.String(), "db unavailable")
	}
}

func TestServer_PanicIsRecovered(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, Deps{Service: panickingService{}}, Options{})
	rec := do(t, srv, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_HealthAndReadiness(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, Deps{Store: fakePinger{}}, Options{})
	rec := do(t, srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	down, _ := newTestServer(t, Deps{Store: fakePinger{err: errors.New("no db")}}, Options{})
	rec = do(t, down, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "no db")
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, Deps{}, Options{})
	do(t, srv, http.MethodGet, "/", nil)
	rec := do(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_ExportPages(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, Deps{}, Options{})
	rec := do(t, srv, http.MethodGet, "/api/pages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"pages":[]}`, rec.Body.String())

	_, err := store.CreatePage(context.Background(), "Home", "# hi")
	require.NoError(t, err)
	rec = do(t, srv, http.MethodGet, "/api/pages", nil)
	require.JSONEq(t, `{"pages":[{"id":1,"name":"Home","content":"# hi"}]}`, rec.Body.String())
}

func TestServer_APIKey(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, Deps{}, Options{APIKey: "secret"})
	rec := do(t, srv, http.MethodGet, "/api/pages", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = do(t, srv, http.MethodGet, "/api/pages?api_key=wrong", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/pages", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/pages?api_key=secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_WritesAreThrottledPerClient(t *testing.T) {
	t.Parallel()

	limiter := ratelimit.New(ratelimit.Config{RPS: 0.001, Burst: 1})
	srv, _ := newTestServer(t, Deps{}, Options{WriteLimiter: limiter})
	form := url.Values{"pageName": {"Home"}}

	rec := do(t, srv, http.MethodPost, "/create", form)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = do(t, srv, http.MethodPost, "/create", form)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1000", rec.Header().Get("Retry-After"))

	req := httptest.NewRequest(http.MethodPost, "/create", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "198.51.100.7:4000"
	other := httptest.NewRecorder()
	srv.Handler().ServeHTTP(other, req)
	require.Equal(t, http.StatusSeeOther, other.Code)

	rec = do(t, srv, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code, "reads are never throttled")
}

func TestServer_RecentEvents(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, Deps{}, Options{})
	rec := do(t, srv, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	log := memorypublisher.New()
	_, err := log.Publish(context.Background(), "wiki-pages", map[string]string{"kind": "PAGE_DELETED"})
	require.NoError(t, err)
	withLog, _ := newTestServer(t, Deps{Events: log}, Options{})
	rec = do(t, withLog, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t,
		`{"events":[{"id":"memory-1","topic":"wiki-pages","payload":{"kind":"PAGE_DELETED"}}]}`,
		rec.Body.String())

	empty, _ := newTestServer(t, Deps{Events: memorypublisher.New()}, Options{})
	rec = do(t, empty, http.MethodGet, "/api/events", nil)
	require.JSONEq(t, `{"events":[]}`, rec.Body.String())
}

func TestServer_Backup(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, Deps{}, Options{})
	rec := do(t, srv, http.MethodPost, "/api/backup", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ok, _ := newTestServer(t, Deps{Backup: fakeBackup{res: backup.Result{ID: "snap", URI: "memory://x"}}}, Options{})
	rec = do(t, ok, http.MethodPost, "/api/backup", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"uri":"memory://x"`)

	broken, _ := newTestServer(t, Deps{Backup: fakeBackup{err: errors.New("bucket gone")}}, Options{})
	rec = do(t, broken, http.MethodPost, "/api/backup", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_RequestIDPropagates(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, Deps{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
	require.Contains(t, rec.Body.String(), "Request abc-123")
}

func TestNewServerRequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := NewServer(Deps{}, Options{})
	require.Error(t, err)
	_, err = NewServer(Deps{Service: failingService{}}, Options{})
	require.Error(t, err)
}
