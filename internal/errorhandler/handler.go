// Package errorhandler is the failure-processing facility behind the
// error-catching middleware.
//
// It is the single place a caught failure flows to. For every failure it:
//
//   - emits a structured zerolog error event (type, message, request id,
//     method, path, stack),
//   - increments the errors_caught_total Prometheus counter,
//   - marks the active OpenTelemetry span as failed and records the error,
//   - optionally persists an incident through a Recorder,
//
// and then asks the renderer for the body text: verbose in development
// (ExposeDetails), generic otherwise. The middleware never inspects or alters
// any of this.
package errorhandler

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-errorcatcher/internal/domain"
	"github.com/tbourn/go-errorcatcher/internal/failure"
	"github.com/tbourn/go-errorcatcher/internal/redact"
	"github.com/tbourn/go-errorcatcher/internal/render"
	"github.com/tbourn/go-errorcatcher/internal/reqctx"
)

// Failure kinds used as the "kind" metric label.
const (
	KindRuntime = "runtime"
	KindError   = "error"
	KindPanic   = "panic"
)

// caughtTotal counts caught failures by kind. The label set is fixed to
// keep cardinality bounded.
var caughtTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "errors_caught_total",
		Help: "Total number of unhandled failures caught and rendered.",
	},
	[]string{"kind"},
)

func init() {
	prometheus.MustRegister(caughtTotal)
}

// Recorder persists an incident for a caught failure.
type Recorder interface {
	Record(ctx context.Context, inc *domain.Incident) error
}

// Handler processes caught failures. It is safe for concurrent use once
// constructed.
type Handler struct {
	exposeDetails bool
	logger        *zerolog.Logger
	recorder      Recorder
}

// Option configures a Handler.
type Option func(*Handler)

// WithExposeDetails selects verbose rendering (type, message, trace).
// Enable only in development.
func WithExposeDetails(expose bool) Option {
	return func(h *Handler) { h.exposeDetails = expose }
}

// WithLogger sets the logger for failure events. Without it the global
// zerolog logger is used at the time of each call.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) { h.logger = &l }
}

// WithRecorder enables incident persistence.
func WithRecorder(r Recorder) Option {
	return func(h *Handler) { h.recorder = r }
}

// New constructs a Handler. By default details are hidden and no incidents
// are stored.
func New(opts ...Option) *Handler {
	h := &Handler{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ExposeDetails reports whether verbose rendering is enabled.
func (h *Handler) ExposeDetails() bool { return h.exposeDetails }

// HandleCaught records f and returns the body produced by r. The request
// bound to r supplies the recorded context; a renderer with no bound
// request yields a log event and metric only.
func (h *Handler) HandleCaught(f failure.Failure, r render.Renderer) string {
	h.Report(f, r.Request())

	if h.exposeDetails {
		return r.RenderVerbose(f)
	}
	return r.Render(f)
}

// Report performs the recording half of HandleCaught without rendering.
// It is used when a response can no longer be written. req may be nil.
func (h *Handler) Report(f failure.Failure, req *http.Request) {
	caughtTotal.WithLabelValues(kindOf(f)).Inc()

	lg := h.log()
	ev := lg.Error().
		Str("type", f.Type).
		Str("detail", f.Message).
		Bool("runtime", f.Runtime)
	if f.Code != "" {
		ev = ev.Str("code", f.Code)
	}
	if f.Err != nil {
		ev = ev.Err(f.Err)
	}
	if req != nil {
		ev = ev.
			Str("request_id", reqctx.RequestID(req.Context())).
			Str("method", req.Method).
			Str("path", req.URL.Path)
	}
	if len(f.Stack) > 0 {
		ev = ev.Bytes("stack", f.Stack)
	}
	ev.Msg("unhandled failure")

	if req == nil {
		return
	}
	markSpan(req.Context(), f)
	h.record(req, f)
}

func (h *Handler) log() *zerolog.Logger {
	if h.logger != nil {
		return h.logger
	}
	return &log.Logger
}

// record stores an incident with personal data scrubbed from its text.
// Persistence problems are logged and never influence the response.
func (h *Handler) record(req *http.Request, f failure.Failure) {
	if h.recorder == nil {
		return
	}
	inc := &domain.Incident{
		RequestID: reqctx.RequestID(req.Context()),
		Type:      f.Type,
		Message:   redact.String(f.Message),
		Runtime:   f.Runtime,
		Method:    req.Method,
		Path:      redact.String(req.URL.Path),
	}
	// The client may already be gone; the incident is still worth keeping.
	ctx := context.WithoutCancel(req.Context())
	if err := h.recorder.Record(ctx, inc); err != nil {
		lg := h.log()
		lg.Warn().Err(err).
			Str("request_id", inc.RequestID).
			Msg("incident not recorded")
	}
}

// markSpan flags the request span, if one is recording.
func markSpan(ctx context.Context, f failure.Failure) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(f, trace.WithAttributes(
		attribute.String("exception.type", f.Type),
		attribute.Bool("failure.runtime", f.Runtime),
	))
	span.SetStatus(codes.Error, f.Message)
}

func kindOf(f failure.Failure) string {
	switch {
	case f.Runtime:
		return KindRuntime
	case f.Err != nil:
		return KindError
	default:
		return KindPanic
	}
}
