package dbservice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/gowiki/internal/bus"
	"github.com/JakeFAU/gowiki/internal/wiki"
)

// Proxy implements Service by sending requests to a bus address. Failures
// carrying NotFound, Conflict, or InvalidRequest codes unwrap to the matching
// wiki sentinel error.
type Proxy struct {
	bus     *bus.Bus
	address string
	timeout time.Duration
}

var _ Service = (*Proxy)(nil)

// NewProxy returns a Service backed by the consumer at address. A zero timeout
// uses the bus send timeout.
func NewProxy(b *bus.Bus, address string, timeout time.Duration) *Proxy {
	return &Proxy{bus: b, address: address, timeout: timeout}
}

// FetchAllPages implements Service.
func (p *Proxy) FetchAllPages(ctx context.Context) ([]string, error) {
	var reply pagesReply
	if err := p.call(ctx, ActionAllPages, nil, &reply); err != nil {
		return nil, err
	}
	return reply.Pages, nil
}

// GetPage implements Service.
func (p *Proxy) GetPage(ctx context.Context, name string) (wiki.PageView, error) {
	var view wiki.PageView
	if err := p.call(ctx, ActionRenderPage, pageRequest{Page: name}, &view); err != nil {
		return wiki.PageView{}, err
	}
	return view, nil
}

// UpsertPage implements Service.
func (p *Proxy) UpsertPage(ctx context.Context, req wiki.UpsertRequest) error {
	return p.call(ctx, ActionUpsertPage, req, nil)
}

// DeletePage implements Service.
func (p *Proxy) DeletePage(ctx context.Context, id int64) error {
	return p.call(ctx, ActionDeletePage, deleteRequest{ID: id}, nil)
}

// FetchAllPageData implements Service.
func (p *Proxy) FetchAllPageData(ctx context.Context) ([]wiki.Page, error) {
	var reply filesReply
	if err := p.call(ctx, ActionAllPagesData, nil, &reply); err != nil {
		return nil, err
	}
	return reply.Files, nil
}

func (p *Proxy) call(ctx context.Context, action string, req, reply any) error {
	body := []byte("{}")
	if req != nil {
		var err error
		if body, err = json.Marshal(req); err != nil {
			return fmt.Errorf("encode %s request: %w", action, err)
		}
	}
	raw, err := p.bus.Request(ctx, p.address, body, bus.DeliveryOptions{
		Headers: map[string]string{ActionHeader: action},
		Timeout: p.timeout,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", action, fromReply(err))
	}
	if reply == nil {
		return nil
	}
	if err := json.Unmarshal(raw, reply); err != nil {
		return fmt.Errorf("decode %s reply: %w", action, err)
	}
	return nil
}
