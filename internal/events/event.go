package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind names what happened to the wiki.
type Kind string

// Supported event kinds.
const (
	KindPageCreated  Kind = "PAGE_CREATED"
	KindPageUpdated  Kind = "PAGE_UPDATED"
	KindPageDeleted  Kind = "PAGE_DELETED"
	KindBackupDone   Kind = "BACKUP_DONE"
	KindBackupFailed Kind = "BACKUP_FAILED"
)

// Event describes one change.
type Event struct {
	ID     uuid.UUID `json:"id"`
	TS     time.Time `json:"ts"`
	Kind   Kind      `json:"kind"`
	Page   string    `json:"page,omitempty"`
	PageID int64     `json:"pageId,omitempty"`
	// Bytes is the Markdown size written, or the snapshot size for backups.
	Bytes int64  `json:"bytes,omitempty"`
	Note  string `json:"note,omitempty"`
}

// New stamps an event of kind with a time-ordered (v7) ID and the given time.
func New(kind Kind, ts time.Time) Event {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Event{ID: id, TS: ts.UTC(), Kind: kind}
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.ID == uuid.Nil {
		return errors.New("event id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindPageCreated:
		if e.Page == "" {
			return errors.New("page created requires page name")
		}
	case KindPageUpdated, KindPageDeleted:
		if e.PageID <= 0 {
			return fmt.Errorf("%s requires page id", e.Kind)
		}
	case KindBackupDone, KindBackupFailed:
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Bytes < 0 {
		return errors.New("bytes must be >= 0")
	}
	return nil
}

// IsPageChange reports whether the event touched a page.
func (e Event) IsPageChange() bool {
	switch e.Kind {
	case KindPageCreated, KindPageUpdated, KindPageDeleted:
		return true
	default:
		return false
	}
}
