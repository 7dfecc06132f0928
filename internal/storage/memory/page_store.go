package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/gowiki/internal/wiki"
)

// PageStore provides an in-memory implementation for development/testing.
type PageStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]wiki.Page
	byName map[string]int64
}

// NewPageStore constructs a PageStore.
func NewPageStore() *PageStore {
	return &PageStore{
		byID:   make(map[int64]wiki.Page),
		byName: make(map[string]int64),
	}
}

// Init is a no-op; the maps are ready on construction.
func (s *PageStore) Init(context.Context) error {
	return nil
}

// ListPageNames returns every page name in ascending order.
func (s *PageStore) ListPageNames(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// GetPage fetches a page by name.
func (s *PageStore) GetPage(_ context.Context, name string) (wiki.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	if !ok {
		return wiki.Page{}, wiki.ErrNotFound
	}
	return s.byID[id], nil
}

// CreatePage inserts a new page and returns its ID.
func (s *PageStore) CreatePage(_ context.Context, name, content string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[name]; exists {
		return 0, wiki.ErrConflict
	}
	s.nextID++
	page := wiki.Page{ID: s.nextID, Name: name, Content: content}
	s.byID[page.ID] = page
	s.byName[name] = page.ID
	return page.ID, nil
}

// SavePage replaces the content of an existing page.
func (s *PageStore) SavePage(_ context.Context, id int64, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.byID[id]
	if !ok {
		return wiki.ErrNotFound
	}
	page.Content = content
	s.byID[id] = page
	return nil
}

// DeletePage removes a page by ID.
func (s *PageStore) DeletePage(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.byID[id]
	if !ok {
		return wiki.ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byName, page.Name)
	return nil
}

// AllPages returns a copy of every page ordered by ID.
func (s *PageStore) AllPages(context.Context) ([]wiki.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]wiki.Page, 0, len(s.byID))
	for _, page := range s.byID {
		out = append(out, page)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Ping always succeeds.
func (s *PageStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *PageStore) Close() error {
	return nil
}
