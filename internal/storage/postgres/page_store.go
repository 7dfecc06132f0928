// Package postgres provides a Postgres-backed page store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/gowiki/internal/wiki"
)

const uniqueViolation = "23505"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for page rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the store needs; pgxmock satisfies it in tests.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PageStore implements wiki.Store on Postgres.
type PageStore struct {
	pool  pool
	table string
}

// NewPageStore creates a Postgres-backed PageStore using the provided config.
func NewPageStore(ctx context.Context, cfg Config) (*PageStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PageStore{pool: p, table: table}, nil
}

// NewPageStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPageStoreWithPool(p pool, table string) (*PageStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &PageStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "pages"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Init creates the pages table when it does not exist.
func (s *PageStore) Init(ctx context.Context) error {
	query := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id BIGSERIAL PRIMARY KEY, name VARCHAR(%d) UNIQUE NOT NULL, content TEXT NOT NULL DEFAULT '')",
		s.table, wiki.MaxNameLength,
	)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create pages table: %w", err)
	}
	return nil
}

// ListPageNames returns all page names in ascending order.
func (s *PageStore) ListPageNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT name FROM %s ORDER BY name", s.table))
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
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT id, content FROM %s WHERE name = $1", s.table), name).
		Scan(&page.ID, &page.Content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return wiki.Page{}, wiki.ErrNotFound
		}
		return wiki.Page{}, fmt.Errorf("get page: %w", err)
	}
	return page, nil
}

// CreatePage inserts a page and returns its generated ID.
func (s *PageStore) CreatePage(ctx context.Context, name, content string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf("INSERT INTO %s (name, content) VALUES ($1, $2) RETURNING id", s.table), name, content).
		Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, wiki.ErrConflict
		}
		return 0, fmt.Errorf("insert page: %w", err)
	}
	return id, nil
}

// SavePage updates the content of the page with the given ID.
func (s *PageStore) SavePage(ctx context.Context, id int64, content string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf("UPDATE %s SET content = $1 WHERE id = $2", s.table), content, id)
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return wiki.ErrNotFound
	}
	return nil
}

// DeletePage removes the page with the given ID.
func (s *PageStore) DeletePage(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table), id)
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return wiki.ErrNotFound
	}
	return nil
}

// AllPages returns every page ordered by ID.
func (s *PageStore) AllPages(ctx context.Context) ([]wiki.Page, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT id, name, content FROM %s ORDER BY id", s.table))
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

// Ping checks connectivity.
func (s *PageStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *PageStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
