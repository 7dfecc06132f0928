// Package backup writes JSON snapshots of every page to a blob store.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gowiki/internal/events"
	"github.com/JakeFAU/gowiki/internal/metrics"
	"github.com/JakeFAU/gowiki/internal/wiki"
)

const contentType = "application/json"

// PageSource supplies the pages to snapshot. dbservice.Service satisfies it.
type PageSource interface {
	FetchAllPageData(ctx context.Context) ([]wiki.Page, error)
}

// Snapshot is the document written to the blob store.
type Snapshot struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Pages     []SnapshotPage `json:"pages"`
}

// SnapshotPage is one page inside a Snapshot.
type SnapshotPage struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Result describes a written snapshot.
type Result struct {
	ID        string    `json:"id"`
	URI       string    `json:"uri"`
	Hash      string    `json:"sha256"`
	Pages     int       `json:"pages"`
	Bytes     int       `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Deps bundles the collaborators of an Exporter.
type Deps struct {
	Source  PageSource
	Blobs   wiki.BlobStore
	Hasher  wiki.Hasher
	Clock   wiki.Clock
	IDs     wiki.IDGenerator
	Emitter events.Emitter
	Logger  *zap.Logger
}

// Exporter takes snapshots.
type Exporter struct {
	deps   Deps
	prefix string
}

// NewExporter validates deps. prefix is prepended to every object path.
func NewExporter(deps Deps, prefix string) (*Exporter, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("backup: page source is required")
	case deps.Blobs == nil:
		return nil, errors.New("backup: blob store is required")
	case deps.Hasher == nil:
		return nil, errors.New("backup: hasher is required")
	case deps.Clock == nil:
		return nil, errors.New("backup: clock is required")
	case deps.IDs == nil:
		return nil, errors.New("backup: id generator is required")
	}
	if deps.Emitter == nil {
		deps.Emitter = events.Discard
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Exporter{deps: deps, prefix: strings.Trim(prefix, "/")}, nil
}

// Run writes one snapshot.
func (e *Exporter) Run(ctx context.Context) (Result, error) {
	res, err := e.run(ctx)
	if err != nil {
		metrics.ObserveBackup("error", 0)
		evt := events.New(events.KindBackupFailed, e.deps.Clock.Now())
		evt.Note = err.Error()
		e.deps.Emitter.Emit(evt)
		e.deps.Logger.Error("backup failed", zap.Error(err))
		return Result{}, err
	}
	metrics.ObserveBackup("success", res.Pages)
	evt := events.New(events.KindBackupDone, res.CreatedAt)
	evt.Note = res.URI
	evt.Bytes = int64(res.Bytes)
	e.deps.Emitter.Emit(evt)
	e.deps.Logger.Info("backup written",
		zap.String("snapshot_id", res.ID),
		zap.String("uri", res.URI),
		zap.String("sha256", res.Hash),
		zap.Int("pages", res.Pages),
	)
	return res, nil
}

func (e *Exporter) run(ctx context.Context) (Result, error) {
	pages, err := e.deps.Source.FetchAllPageData(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch pages: %w", err)
	}
	id, err := e.deps.IDs.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("snapshot id: %w", err)
	}
	snap := Snapshot{
		ID:        id,
		CreatedAt: e.deps.Clock.Now().UTC(),
		Pages:     make([]SnapshotPage, 0, len(pages)),
	}
	for _, p := range pages {
		snap.Pages = append(snap.Pages, SnapshotPage{Name: p.Name, Content: p.Content})
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return Result{}, fmt.Errorf("encode snapshot: %w", err)
	}
	hash, err := e.deps.Hasher.Hash(data)
	if err != nil {
		return Result{}, fmt.Errorf("hash snapshot: %w", err)
	}
	uri, err := e.deps.Blobs.PutObject(ctx, e.objectPath(snap), contentType, bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("put snapshot: %w", err)
	}
	return Result{
		ID:        id,
		URI:       uri,
		Hash:      hash,
		Pages:     len(snap.Pages),
		Bytes:     len(data),
		CreatedAt: snap.CreatedAt,
	}, nil
}

func (e *Exporter) objectPath(snap Snapshot) string {
	return path.Join(e.prefix, snap.CreatedAt.Format(time.DateOnly), snap.ID+".json")
}

// Decode parses a snapshot previously written by Run.
func Decode(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
