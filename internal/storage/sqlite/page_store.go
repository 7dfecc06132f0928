// Package sqlite implements the embedded, file-backed page store used by default.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/gowiki/internal/wiki"
)

const memoryPath = ":memory:"

const schema = `
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name VARCHAR(255) NOT NULL UNIQUE,
		content TEXT NOT NULL DEFAULT ''
	);
`

// Config controls where the database file lives.
type Config struct {
	// Path is the database file; ":memory:" keeps everything in process.
	Path string
}

// PageStore implements wiki.Store on SQLite.
type PageStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// New opens (and creates, if needed) the database file. Parent directories
// are created as required. Call Init to create the schema.
func New(cfg Config, logger *zap.Logger) (*PageStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// All writes go through the single database actor; one connection also
	// keeps ":memory:" databases from fragmenting across the pool.
	db.SetMaxOpenConns(1)

	if path != memoryPath {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	logger.Info("SQLite store opened", zap.String("path", path))
	return &PageStore{db: db, logger: logger}, nil
}

// Init creates the pages table when it does not exist.
func (s *PageStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// ListPageNames returns all page names in ascending order.
func (s *PageStore) ListPageNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pages ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan page name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return names, nil
}

// GetPage fetches a page by name.
func (s *PageStore) GetPage(ctx context.Context, name string) (wiki.Page, error) {
	page := wiki.Page{Name: name}
	err := s.db.QueryRowContext(ctx, "SELECT id, content FROM pages WHERE name = ?", name).
		Scan(&page.ID, &page.Content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wiki.Page{}, wiki.ErrNotFound
		}
		return wiki.Page{}, fmt.Errorf("get page: %w", err)
	}
	return page, nil
}

// CreatePage inserts a page and returns its generated ID.
func (s *PageStore) CreatePage(ctx context.Context, name, content string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO pages (name, content) VALUES (?, ?)", name, content)
	if err != nil {
		if isConstraintViolation(err) {
			return 0, wiki.ErrConflict
		}
		return 0, fmt.Errorf("insert page: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted id: %w", err)
	}
	return id, nil
}

// SavePage updates the content of the page with the given ID.
func (s *PageStore) SavePage(ctx context.Context, id int64, content string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE pages SET content = ? WHERE id = ?", content, id)
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	return requireAffected(res)
}

// DeletePage removes the page with the given ID.
func (s *PageStore) DeletePage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	return requireAffected(res)
}

// AllPages returns every page ordered by ID.
func (s *PageStore) AllPages(ctx context.Context) ([]wiki.Page, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, content FROM pages ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list page data: %w", err)
	}
	defer rows.Close()

	pages := []wiki.Page{}
	for rows.Next() {
		var page wiki.Page
		if err := rows.Scan(&page.ID, &page.Name, &page.Content); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page data: %w", err)
	}
	return pages, nil
}

// Ping checks the database handle.
func (s *PageStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *PageStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read affected rows: %w", err)
	}
	if n == 0 {
		return wiki.ErrNotFound
	}
	return nil
}

// SQLite reports constraint failures only through the error text.
func isConstraintViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
