package dbservice

import (
	"errors"

	"github.com/JakeFAU/gowiki/internal/bus"
	"github.com/JakeFAU/gowiki/internal/wiki"
)

// ErrorCode is sent with a failed reply.
type ErrorCode int

// Failure codes understood by Proxy.
const (
	NoActionSpecified ErrorCode = iota
	BadAction
	DBError
	NotFound
	Conflict
	InvalidRequest
)

func (c ErrorCode) String() string {
	switch c {
	case NoActionSpecified:
		return "NO_ACTION_SPECIFIED"
	case BadAction:
		return "BAD_ACTION"
	case DBError:
		return "DB_ERROR"
	case NotFound:
		return "NOT_FOUND"
	case Conflict:
		return "CONFLICT"
	case InvalidRequest:
		return "INVALID_REQUEST"
	default:
		return "UNKNOWN"
	}
}

// Action header values.
const (
	ActionHeader       = "action"
	ActionAllPages     = "all-pages"
	ActionRenderPage   = "render-page"
	ActionUpsertPage   = "upsert-page"
	ActionDeletePage   = "delete-page"
	ActionAllPagesData = "all-pages-data"
)

var (
	errBadAction = errors.New("bad action")
	errMalformed = errors.New("malformed request body")
)

func codeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, errBadAction):
		return BadAction
	case errors.Is(err, errMalformed):
		return InvalidRequest
	case errors.Is(err, wiki.ErrNotFound):
		return NotFound
	case errors.Is(err, wiki.ErrConflict):
		return Conflict
	case errors.Is(err, wiki.ErrInvalidName):
		return InvalidRequest
	default:
		return DBError
	}
}

// fromReply maps a bus failure back onto the wiki sentinel errors.
func fromReply(err error) error {
	var replyErr *bus.ReplyError
	if !errors.As(err, &replyErr) {
		return err
	}
	switch ErrorCode(replyErr.Code) {
	case NotFound:
		return errors.Join(wiki.ErrNotFound, err)
	case Conflict:
		return errors.Join(wiki.ErrConflict, err)
	case InvalidRequest:
		return errors.Join(wiki.ErrInvalidName, err)
	default:
		return err
	}
}
