package bus

import (
	"context"
	"fmt"
	"sync"
)

// Message is a single request as seen by a consumer.
type Message struct {
	address string
	headers map[string]string
	body    []byte
	ctx     context.Context

	once   sync.Once
	answer chan answer
}

type answer struct {
	body []byte
	err  error
}

// ReplyError is the failure a handler sends back with Fail.
type ReplyError struct {
	Code    int
	Message string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("reply failure (code %d): %s", e.Code, e.Message)
}

// Address returns the address the message was sent to.
func (m *Message) Address() string {
	return m.address
}

// Header returns a delivery header, or "" when absent.
func (m *Message) Header(key string) string {
	return m.headers[key]
}

// HasHeader reports whether key was set by the sender.
func (m *Message) HasHeader(key string) bool {
	_, ok := m.headers[key]
	return ok
}

// Headers returns a copy of the delivery headers.
func (m *Message) Headers() map[string]string {
	return cloneHeaders(m.headers)
}

// Body returns the raw request payload.
func (m *Message) Body() []byte {
	return m.body
}

// Context is the sender's context, bounded by the send timeout.
func (m *Message) Context() context.Context {
	return m.ctx
}

// Reply answers the request successfully. Only the first answer counts.
func (m *Message) Reply(body []byte) {
	m.deliver(answer{body: body})
}

// Fail answers the request with a ReplyError. Only the first answer counts.
func (m *Message) Fail(code int, message string) {
	m.deliver(answer{err: &ReplyError{Code: code, Message: message}})
}

func (m *Message) deliver(a answer) bool {
	delivered := false
	m.once.Do(func() {
		m.answer <- a
		delivered = true
	})
	return delivered
}
