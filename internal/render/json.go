package render

import (
	json "github.com/goccy/go-json"

	"github.com/tbourn/go-errorcatcher/internal/failure"
)

// jsonBody is the wire shape of a JSON error body.
type jsonBody struct {
	Message   string          `json:"message"`
	Type      string          `json:"type,omitempty"`
	Code      string          `json:"code,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Trace     []failure.Frame `json:"trace,omitempty"`
}

// JSONRenderer renders failures as a single JSON object.
//
//	{"message":"An internal server error occurred.","request_id":"…"}
type JSONRenderer struct {
	requestBound
}

// NewJSON returns a JSONRenderer with no request bound.
func NewJSON() *JSONRenderer { return &JSONRenderer{} }

// Render implements Renderer.
func (r *JSONRenderer) Render(_ failure.Failure) string {
	return r.encode(jsonBody{Message: DefaultMessage, RequestID: r.requestID()})
}

// RenderVerbose implements Renderer.
func (r *JSONRenderer) RenderVerbose(f failure.Failure) string {
	return r.encode(jsonBody{
		Message:   f.Message,
		Type:      f.Type,
		Code:      f.Code,
		RequestID: r.requestID(),
		Trace:     f.Trace,
	})
}

func (r *JSONRenderer) encode(b jsonBody) string {
	out, err := json.Marshal(b)
	if err != nil {
		return `{"message":"` + DefaultMessage + `"}`
	}
	return string(out)
}
