package dbservice

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gowiki/internal/bus"
	"github.com/JakeFAU/gowiki/internal/metrics"
	"github.com/JakeFAU/gowiki/internal/wiki"
)

// Wire payloads. Field names are part of the bus contract.
type (
	pageRequest struct {
		Page string `json:"page"`
	}
	deleteRequest struct {
		ID int64 `json:"id"`
	}
	pagesReply struct {
		Pages []string `json:"pages"`
	}
	filesReply struct {
		Files []wiki.Page `json:"files"`
	}
	emptyReply struct{}
)

// Register binds svc to address. The consumer handles one request at a time,
// so every store access behind address is serialized.
func Register(b *bus.Bus, address string, svc Service, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &binder{svc: svc, logger: logger}
	if err := b.Consumer(address, h.handle); err != nil {
		return fmt.Errorf("register %s: %w", address, err)
	}
	return nil
}

type binder struct {
	svc    Service
	logger *zap.Logger
}

func (h *binder) handle(msg *bus.Message) {
	start := time.Now()
	action := msg.Header(ActionHeader)
	outcome := "ok"
	defer func() {
		metrics.ObserveDBRequest(action, outcome, time.Since(start))
	}()

	if !msg.HasHeader(ActionHeader) {
		h.logger.Error("no action header specified", zap.String("address", msg.Address()))
		outcome = NoActionSpecified.String()
		msg.Fail(int(NoActionSpecified), "No action header specified")
		return
	}

	reply, err := h.dispatch(msg, action)
	if err != nil {
		code := codeFor(err)
		outcome = code.String()
		h.logger.Warn("database request failed",
			zap.String("action", action),
			zap.String("code", code.String()),
			zap.Error(err),
		)
		msg.Fail(int(code), err.Error())
		return
	}
	body, err := json.Marshal(reply)
	if err != nil {
		outcome = DBError.String()
		msg.Fail(int(DBError), fmt.Sprintf("encode reply: %v", err))
		return
	}
	msg.Reply(body)
}

func (h *binder) dispatch(msg *bus.Message, action string) (any, error) {
	ctx := msg.Context()
	switch action {
	case ActionAllPages:
		names, err := h.svc.FetchAllPages(ctx)
		if err != nil {
			return nil, err
		}
		if names == nil {
			names = []string{}
		}
		return pagesReply{Pages: names}, nil
	case ActionRenderPage:
		var req pageRequest
		if err := decode(msg.Body(), &req); err != nil {
			return nil, err
		}
		return h.svc.GetPage(ctx, req.Page)
	case ActionUpsertPage:
		var req wiki.UpsertRequest
		if err := decode(msg.Body(), &req); err != nil {
			return nil, err
		}
		return emptyReply{}, h.svc.UpsertPage(ctx, req)
	case ActionDeletePage:
		var req deleteRequest
		if err := decode(msg.Body(), &req); err != nil {
			return nil, err
		}
		return emptyReply{}, h.svc.DeletePage(ctx, req.ID)
	case ActionAllPagesData:
		pages, err := h.svc.FetchAllPageData(ctx)
		if err != nil {
			return nil, err
		}
		if pages == nil {
			pages = []wiki.Page{}
		}
		return filesReply{Files: pages}, nil
	default:
		return nil, fmt.Errorf("%w: %s", errBadAction, action)
	}
}

func decode(body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}
