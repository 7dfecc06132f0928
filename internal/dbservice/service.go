// Package dbservice exposes the wiki's database operations as a Service that
// can be called directly, bound to a bus address, or reached through a proxy.
package dbservice

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/gowiki/internal/events"
	"github.com/JakeFAU/gowiki/internal/wiki"
)

// DefaultAddress is the bus address the database consumer listens on.
const DefaultAddress = "wikidb.queue"

// Service is the set of database operations the HTTP layer depends on.
type Service interface {
	// FetchAllPages returns every page name in ascending order.
	FetchAllPages(ctx context.Context) ([]string, error)
	// GetPage returns the view for name. A missing page yields a view with
	// ID -1, the starter Markdown, and NewPage "yes".
	GetPage(ctx context.Context, name string) (wiki.PageView, error)
	// UpsertPage inserts when req.NewPage is set, otherwise updates by ID.
	UpsertPage(ctx context.Context, req wiki.UpsertRequest) error
	// DeletePage removes a page by ID.
	DeletePage(ctx context.Context, id int64) error
	// FetchAllPageData returns every page with its content.
	FetchAllPageData(ctx context.Context) ([]wiki.Page, error)
}

// Direct implements Service with plain calls into a wiki.Store.
type Direct struct {
	store   wiki.Store
	clock   wiki.Clock
	logger  *zap.Logger
	emitter events.Emitter
}

var _ Service = (*Direct)(nil)

// Option customizes a Direct service.
type Option func(*Direct)

// WithEmitter reports successful writes to e.
func WithEmitter(e events.Emitter) Option {
	return func(d *Direct) {
		if e != nil {
			d.emitter = e
		}
	}
}

// New constructs a Direct service.
func New(store wiki.Store, clock wiki.Clock, logger *zap.Logger, opts ...Option) *Direct {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Direct{store: store, clock: clock, logger: logger, emitter: events.Discard}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// InitDatabase creates the schema.
func (d *Direct) InitDatabase(ctx context.Context) error {
	if err := d.store.Init(ctx); err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	d.logger.Info("database has been initialized")
	return nil
}

// FetchAllPages implements Service.
func (d *Direct) FetchAllPages(ctx context.Context) ([]string, error) {
	names, err := d.store.ListPageNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch all pages: %w", err)
	}
	d.logger.Debug("fetched pages", zap.Int("count", len(names)))
	return names, nil
}

// GetPage implements Service.
func (d *Direct) GetPage(ctx context.Context, name string) (wiki.PageView, error) {
	view := wiki.PageView{
		Title:     name,
		Timestamp: d.clock.Now(),
	}
	page, err := d.store.GetPage(ctx, name)
	switch {
	case err == nil:
		view.ID = page.ID
		view.RawContent = page.Content
		view.NewPage = wiki.NewPageFlag(false)
	case errors.Is(err, wiki.ErrNotFound):
		view.ID = wiki.MissingPageID
		view.RawContent = wiki.EmptyPageMarkdown
		view.NewPage = wiki.NewPageFlag(true)
	default:
		return wiki.PageView{}, fmt.Errorf("get page %q: %w", name, err)
	}
	return view, nil
}

// UpsertPage implements Service.
func (d *Direct) UpsertPage(ctx context.Context, req wiki.UpsertRequest) error {
	d.logger.Debug("retrieved data to upsert",
		zap.Bool("new_page", req.NewPage),
		zap.Int64("id", req.ID),
		zap.String("title", req.Title),
	)
	if req.NewPage {
		if err := wiki.ValidateName(req.Title); err != nil {
			return err
		}
		id, err := d.store.CreatePage(ctx, req.Title, req.Markdown)
		if err != nil {
			return fmt.Errorf("create page %q: %w", req.Title, err)
		}
		d.emit(events.KindPageCreated, req.Title, id, len(req.Markdown))
		return nil
	}
	if err := d.store.SavePage(ctx, req.ID, req.Markdown); err != nil {
		return fmt.Errorf("save page %d: %w", req.ID, err)
	}
	d.emit(events.KindPageUpdated, req.Title, req.ID, len(req.Markdown))
	return nil
}

// DeletePage implements Service.
func (d *Direct) DeletePage(ctx context.Context, id int64) error {
	if err := d.store.DeletePage(ctx, id); err != nil {
		return fmt.Errorf("delete page %d: %w", id, err)
	}
	d.emit(events.KindPageDeleted, "", id, 0)
	return nil
}

// FetchAllPageData implements Service.
func (d *Direct) FetchAllPageData(ctx context.Context) ([]wiki.Page, error) {
	pages, err := d.store.AllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch all page data: %w", err)
	}
	return pages, nil
}

func (d *Direct) emit(kind events.Kind, name string, id int64, size int) {
	evt := events.New(kind, d.clock.Now())
	evt.Page = name
	evt.PageID = id
	evt.Bytes = int64(size)
	d.emitter.Emit(evt)
}
