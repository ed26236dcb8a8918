// Package middleware contains the Gin middleware used by the HTTP layer.
//
// This file provides the error-catching middleware. It sits at the end of
// the middleware stack, runs the rest of the chain, and turns any failure
// that escapes it (a panic of any value, or an error attached to the Gin
// context by a stage that wrote nothing) into a single HTTP 500 response
// whose body format follows the client's Accept header.
//
// The flow for a caught failure is:
//
//  1. Negotiate: walk the Accept tokens in order and pick the first one that
//     is a key of the FormatRegistry; fall back to text/html. Matching is on
//     the exact token string: q-values, parameters and wildcards are not
//     interpreted.
//  2. Resolve: map the chosen media type to a renderer id and obtain a fresh
//     renderer from the injected resolver.
//  3. Delegate: bind the request to the renderer and hand both the failure
//     and the renderer to the failure handler, which records the failure and
//     returns the body text.
//  4. Respond: write status 500, Content-Type set to exactly the negotiated
//     value, and the body; abort the rest of the chain.
//
// A renderer that cannot be resolved is a configuration error. It is
// reported by NewErrorCatcher at construction time, returned by Handle, and
// re-raised as a panic by the middleware.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-errorcatcher/internal/failure"
	"github.com/tbourn/go-errorcatcher/internal/render"
)

// DefaultContentType is selected when no Accept token matches the registry.
const DefaultContentType = "text/html"

var (
	// ErrRendererNotFound reports that a media type has no usable renderer.
	ErrRendererNotFound = errors.New("renderer not found")
	// ErrNilDependency reports a missing resolver or failure handler.
	ErrNilDependency = errors.New("nil dependency")
)

// FormatRegistry maps media types to renderer identifiers. It is immutable:
// constructors copy their input and only read accessors are exposed.
type FormatRegistry struct {
	m map[string]string
}

// DefaultFormats returns the built-in registry.
func DefaultFormats() FormatRegistry {
	return NewFormatRegistry(map[string]string{
		"application/json": render.IDJSON,
		"application/xml":  render.IDXML,
		"text/xml":         render.IDXML,
		"text/plain":       render.IDText,
		"text/html":        render.IDHTML,
	})
}

// NewFormatRegistry builds a registry from a copy of m.
func NewFormatRegistry(m map[string]string) FormatRegistry {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return FormatRegistry{m: cp}
}

// Lookup returns the renderer id registered for mediaType.
func (r FormatRegistry) Lookup(mediaType string) (string, bool) {
	id, ok := r.m[mediaType]
	return id, ok
}

// Has reports whether mediaType is a registry key.
func (r FormatRegistry) Has(mediaType string) bool {
	_, ok := r.m[mediaType]
	return ok
}

// MediaTypes lists the registered media types in lexical order.
func (r FormatRegistry) MediaTypes() []string {
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered media types.
func (r FormatRegistry) Len() int { return len(r.m) }

// ParseAccept splits an Accept header value on commas, trims surrounding
// whitespace and drops empty tokens. Token content is kept verbatim.
func ParseAccept(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Negotiator selects a response media type from an Accept header.
type Negotiator struct {
	formats FormatRegistry
}

// NewNegotiator returns a Negotiator over formats.
func NewNegotiator(formats FormatRegistry) Negotiator {
	return Negotiator{formats: formats}
}

// Select returns the first Accept token that is a registry key, or
// DefaultContentType.
func (n Negotiator) Select(accept string) string {
	for _, tok := range ParseAccept(accept) {
		if n.formats.Has(tok) {
			return tok
		}
	}
	return DefaultContentType
}

// SelectFormat negotiates against DefaultFormats.
func SelectFormat(accept string) string {
	return NewNegotiator(DefaultFormats()).Select(accept)
}

// RendererResolver yields a fresh renderer for an identifier.
// *render.Container implements it.
type RendererResolver interface {
	Get(id string) (render.Renderer, error)
}

// FailureHandler records caught failures and produces body text.
// *errorhandler.Handler implements it.
type FailureHandler interface {
	HandleCaught(f failure.Failure, r render.Renderer) string
	Report(f failure.Failure, r *http.Request)
}

// RenderedError is the response for a caught failure, written with
// status 500.
type RenderedError struct {
	ContentType string
	Body        string
}

// ErrorCatcher converts unhandled failures into negotiated 500 responses.
// It holds no per-request state and is safe for concurrent use.
type ErrorCatcher struct {
	formats       FormatRegistry
	negotiator    Negotiator
	resolver      RendererResolver
	handler       FailureHandler
	catchAttached bool
}

// CatcherOption configures an ErrorCatcher.
type CatcherOption func(*ErrorCatcher)

// WithAttachedErrors controls whether errors attached with c.Error by a
// stage that left the response undecided are treated as failures.
// Enabled by default.
func WithAttachedErrors(enabled bool) CatcherOption {
	return func(e *ErrorCatcher) { e.catchAttached = enabled }
}

// NewErrorCatcher validates that every renderer id in formats, and the
// default media type, resolves through resolver. It returns an error
// wrapping ErrRendererNotFound otherwise.
func NewErrorCatcher(formats FormatRegistry, resolver RendererResolver, handler FailureHandler, opts ...CatcherOption) (*ErrorCatcher, error) {
	if resolver == nil {
		return nil, fmt.Errorf("%w: renderer resolver", ErrNilDependency)
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: failure handler", ErrNilDependency)
	}

	e := &ErrorCatcher{
		formats:       formats,
		negotiator:    NewNegotiator(formats),
		resolver:      resolver,
		handler:       handler,
		catchAttached: true,
	}
	for _, opt := range opts {
		opt(e)
	}

	if _, err := e.resolve(DefaultContentType); err != nil {
		return nil, err
	}
	for _, mt := range formats.MediaTypes() {
		if _, err := e.resolve(mt); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Handle negotiates, renders and returns the response for f. r is not
// modified. A multi-valued Accept header is joined with commas first.
func (e *ErrorCatcher) Handle(f failure.Failure, r *http.Request) (RenderedError, error) {
	var accept string
	if r != nil {
		accept = strings.Join(r.Header.Values("Accept"), ",")
	}
	contentType := e.negotiator.Select(accept)

	renderer, err := e.resolve(contentType)
	if err != nil {
		return RenderedError{}, err
	}
	renderer.SetRequest(r)

	body := e.handler.HandleCaught(f, renderer)
	return RenderedError{ContentType: contentType, Body: body}, nil
}

func (e *ErrorCatcher) resolve(mediaType string) (render.Renderer, error) {
	id, ok := e.formats.Lookup(mediaType)
	if !ok {
		return nil, fmt.Errorf("%w: no renderer registered for %q", ErrRendererNotFound, mediaType)
	}
	renderer, err := e.resolver.Get(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q (id %q): %w", ErrRendererNotFound, mediaType, id, err)
	}
	if renderer == nil {
		return nil, fmt.Errorf("%w: %q (id %q) resolved to nil", ErrRendererNotFound, mediaType, id)
	}
	return renderer, nil
}

// Middleware returns the Gin handler. Install it last so it wraps the
// route handlers; a normal return leaves the response untouched. When
// attached errors are caught (WithAttachedErrors), a handler that returns
// with c.Error set and nothing written counts as having raised a failure.
func (e *ErrorCatcher) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			e.respond(c, failure.FromPanic(rec, debug.Stack()))
		}()

		c.Next()

		if e.catchAttached && len(c.Errors) > 0 && undecided(c) {
			e.respond(c, failure.FromError(c.Errors.Last().Err, nil))
		}
	}
}

// undecided reports whether no stage has written or chosen a status.
func undecided(c *gin.Context) bool {
	return !c.Writer.Written() && c.Writer.Status() == http.StatusOK
}

func (e *ErrorCatcher) respond(c *gin.Context, f failure.Failure) {
	if c.Writer.Written() {
		// Too late for a body; still record what happened.
		e.handler.Report(f, c.Request)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	out, err := e.Handle(f, c.Request)
	if err != nil {
		lg := LoggerFrom(c)
		lg.Error().Err(err).Str("failure", f.Error()).Msg("error renderer unavailable")
		panic(err)
	}

	// c.Data keeps a Content-Type set earlier in the chain; replace it.
	c.Header("Content-Type", out.ContentType)
	c.Data(http.StatusInternalServerError, out.ContentType, []byte(out.Body))
	c.Abort()
}
