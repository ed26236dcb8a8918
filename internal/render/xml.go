package render

import (
	"encoding/xml"

	"github.com/tbourn/go-errorcatcher/internal/failure"
)

// xmlBody is the wire shape of an XML error body.
type xmlBody struct {
	XMLName   xml.Name        `xml:"error"`
	Message   string          `xml:"message"`
	Type      string          `xml:"type,omitempty"`
	Code      string          `xml:"code,omitempty"`
	RequestID string          `xml:"request-id,omitempty"`
	Trace     []failure.Frame `xml:"trace>frame,omitempty"`
}

// XMLRenderer renders failures as an <error> document. It serves both
// application/xml and text/xml.
type XMLRenderer struct {
	requestBound
}

// NewXML returns an XMLRenderer with no request bound.
func NewXML() *XMLRenderer { return &XMLRenderer{} }

// Render implements Renderer.
func (r *XMLRenderer) Render(_ failure.Failure) string {
	return r.encode(xmlBody{Message: DefaultMessage, RequestID: r.requestID()})
}

// RenderVerbose implements Renderer.
func (r *XMLRenderer) RenderVerbose(f failure.Failure) string {
	return r.encode(xmlBody{
		Message:   f.Message,
		Type:      f.Type,
		Code:      f.Code,
		RequestID: r.requestID(),
		Trace:     f.Trace,
	})
}

func (r *XMLRenderer) encode(b xmlBody) string {
	out, err := xml.Marshal(b)
	if err != nil {
		return xml.Header + "<error><message>" + DefaultMessage + "</message></error>"
	}
	return xml.Header + string(out)
}
