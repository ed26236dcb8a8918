// Package render converts a caught failure into response body text.
//
// Each Renderer produces one representation (JSON, XML, plain text, HTML) in
// two flavours: Render for production, which exposes nothing beyond a generic
// message and the request correlation id, and RenderVerbose for development,
// which includes the failure type, message, code, and stack trace.
//
// Renderers are obtained from a Container by identifier. A Container holds
// factory functions rather than instances, so every Get returns a renderer
// owned exclusively by the calling request.
package render

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/tbourn/go-errorcatcher/internal/failure"
	"github.com/tbourn/go-errorcatcher/internal/reqctx"
)

// Renderer identifiers registered by DefaultContainer.
const (
	IDJSON = "json"
	IDXML  = "xml"
	IDText = "text"
	IDHTML = "html"
)

// DefaultMessage is the only failure description shown outside development.
const DefaultMessage = "An internal server error occurred."

// ErrUnknownRenderer is returned by Container.Get for unregistered ids.
var ErrUnknownRenderer = errors.New("unknown renderer")

// Renderer turns a failure description into body text of one format.
type Renderer interface {
	// SetRequest binds the request being answered. It is called once,
	// before any Render call.
	SetRequest(r *http.Request)
	// Request returns the bound request, or nil before SetRequest.
	Request() *http.Request
	// Render produces the production representation.
	Render(f failure.Failure) string
	// RenderVerbose produces the development representation.
	RenderVerbose(f failure.Failure) string
}

// Factory builds a new, unshared Renderer.
type Factory func() Renderer

// Container resolves renderer identifiers to fresh Renderer instances.
// It is immutable after construction and safe for concurrent use.
type Container struct {
	factories map[string]Factory
}

// NewContainer copies factories into a new Container. Nil factories are
// ignored.
func NewContainer(factories map[string]Factory) *Container {
	c := &Container{factories: make(map[string]Factory, len(factories))}
	for id, fn := range factories {
		if fn != nil {
			c.factories[id] = fn
		}
	}
	return c
}

// DefaultContainer registers the built-in JSON, XML, text and HTML renderers.
func DefaultContainer() *Container {
	return NewContainer(map[string]Factory{
		IDJSON: func() Renderer { return NewJSON() },
		IDXML:  func() Renderer { return NewXML() },
		IDText: func() Renderer { return NewText() },
		IDHTML: func() Renderer { return NewHTML() },
	})
}

// Get returns a new Renderer for id, or ErrUnknownRenderer.
func (c *Container) Get(id string) (Renderer, error) {
	fn, ok := c.factories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRenderer, id)
	}
	r := fn()
	if r == nil {
		return nil, fmt.Errorf("%w: factory for %q returned nil", ErrUnknownRenderer, id)
	}
	return r, nil
}

// IDs lists the registered identifiers in lexical order.
func (c *Container) IDs() []string {
	ids := make([]string, 0, len(c.factories))
	for id := range c.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// requestBound is embedded by the built-in renderers to hold the bound
// request.
type requestBound struct {
	req *http.Request
}

// SetRequest implements Renderer.
func (b *requestBound) SetRequest(r *http.Request) { b.req = r }

// Request implements Renderer.
func (b *requestBound) Request() *http.Request { return b.req }

// requestID returns the correlation id of the bound request, if any.
func (b *requestBound) requestID() string {
	if b.req == nil {
		return ""
	}
	return reqctx.RequestID(b.req.Context())
}
