package render

import (
	"strconv"
	"strings"

	"github.com/tbourn/go-errorcatcher/internal/failure"
)

// TextRenderer renders failures as plain text.
type TextRenderer struct {
	requestBound
}

// NewText returns a TextRenderer with no request bound.
func NewText() *TextRenderer { return &TextRenderer{} }

// Render implements Renderer.
func (r *TextRenderer) Render(_ failure.Failure) string {
	var b strings.Builder
	b.WriteString(DefaultMessage)
	r.writeRequestID(&b)
	return b.String()
}

// RenderVerbose implements Renderer.
//
//	*errors.errorString: boom
//	Code: E42
//	Request ID: 6f1c…
//
//	Stack trace:
//	#0 main.handler
//	   /src/main.go:21
func (r *TextRenderer) RenderVerbose(f failure.Failure) string {
	var b strings.Builder
	b.WriteString(f.Error())
	if f.Code != "" {
		b.WriteString("\nCode: ")
		b.WriteString(f.Code)
	}
	r.writeRequestID(&b)
	if len(f.Trace) > 0 {
		b.WriteString("\n\nStack trace:")
		for i, fr := range f.Trace {
			b.WriteString("\n#")
			b.WriteString(strconv.Itoa(i))
			b.WriteByte(' ')
			b.WriteString(fr.Function)
			b.WriteString("\n   ")
			b.WriteString(fr.File)
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(fr.Line))
		}
	}
	return b.String()
}

func (r *TextRenderer) writeRequestID(b *strings.Builder) {
	if id := r.requestID(); id != "" {
		b.WriteString("\nRequest ID: ")
		b.WriteString(id)
	}
}
