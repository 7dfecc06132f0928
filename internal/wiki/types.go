// Package wiki defines the page model and the interfaces shared across subsystems.
package wiki

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// HomeTitle is rendered as the heading of the index page.
const HomeTitle = "Home of our Wiki!!!"

// EmptyPageMarkdown seeds the editor for a page that does not exist yet.
const EmptyPageMarkdown = "# A new page\n" + "\n" + "Feel-free to write in Markdown!\n"

// MissingPageID marks a PageView whose page has not been created.
const MissingPageID int64 = -1

// MaxNameLength matches the width of the name column.
const MaxNameLength = 255

// Sentinel errors returned by stores and services.
var (
	ErrNotFound    = errors.New("page not found")
	ErrConflict    = errors.New("page already exists")
	ErrInvalidName = errors.New("invalid page name")
)

// Page is one row of the pages table.
type Page struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// PageView carries what the page template needs to render a page, existing or not.
type PageView struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	RawContent string    `json:"rawContent"`
	NewPage    string    `json:"newPage"`
	Timestamp  time.Time `json:"timestamp"`
}

// IsNew reports whether the view describes a page that is not stored yet.
func (v PageView) IsNew() bool {
	return v.NewPage == "yes"
}

// NewPageFlag converts a boolean into the "yes"/"no" form used by the edit form.
func NewPageFlag(isNew bool) string {
	if isNew {
		return "yes"
	}
	return "no"
}

// UpsertRequest describes a save from the edit form.
type UpsertRequest struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	NewPage  bool   `json:"newPage"`
	Markdown string `json:"markDown"`
}

// ValidateName enforces the constraints of the name column and the /wiki/{page} route.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	case len(name) > MaxNameLength:
		return fmt.Errorf("%w: name exceeds %d bytes", ErrInvalidName, MaxNameLength)
	case strings.Contains(name, "/"):
		return fmt.Errorf("%w: name may not contain '/'", ErrInvalidName)
	}
	return nil
}
