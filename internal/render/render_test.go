package render

import (
	"encoding/xml"
	"errors"
	"html/template"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/tbourn/go-errorcatcher/internal/failure"
	"github.com/tbourn/go-errorcatcher/internal/reqctx"
)

func sampleFailure() failure.Failure {
	return failure.Failure{
		Type:    "*errors.errorString",
		Message: "db <down>",
		Code:    "E_DB",
		Trace: []failure.Frame{
			{Function: "main.handler", File: "/src/main.go", Line: 21},
		},
	}
}

func requestWithID(id string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	return r.WithContext(reqctx.WithRequestID(r.Context(), id))
}

func TestContainer_GetReturnsFreshInstances(t *testing.T) {
	c := DefaultContainer()
	if got := strings.Join(c.IDs(), ","); got != "html,json,text,xml" {
		t.Fatalf("IDs = %q", got)
	}

	a, err := c.Get(IDJSON)
	if err != nil {
		t.Fatalf("Get json: %v", err)
	}
	b, _ := c.Get(IDJSON)
	if a == b {
		t.Fatalf("expected distinct renderer instances per Get")
	}

	if _, err := c.Get("pdf"); !errors.Is(err, ErrUnknownRenderer) {
		t.Fatalf("Get pdf err = %v; want ErrUnknownRenderer", err)
	}
}

func TestContainer_NilFactories(t *testing.T) {
	c := NewContainer(map[string]Factory{
		"skip": nil,
		"nil":  func() Renderer { return nil },
	})
	if _, err := c.Get("skip"); !errors.Is(err, ErrUnknownRenderer) {
		t.Fatalf("nil factory should not be registered, err = %v", err)
	}
	if _, err := c.Get("nil"); !errors.Is(err, ErrUnknownRenderer) {
		t.Fatalf("factory returning nil should fail, err = %v", err)
	}
}

func TestJSONRenderer(t *testing.T) {
	r := NewJSON()
	r.SetRequest(requestWithID("rid-1"))

	var prod map[string]any
	if err := json.Unmarshal([]byte(r.Render(sampleFailure())), &prod); err != nil {
		t.Fatalf("json: %v", err)
	}
	if prod["message"] != DefaultMessage || prod["request_id"] != "rid-1" {
		t.Fatalf("unexpected production body: %v", prod)
	}
	if _, leaked := prod["type"]; leaked {
		t.Fatalf("production body must not expose type: %v", prod)
	}

	var verbose jsonBody
	if err := json.Unmarshal([]byte(r.RenderVerbose(sampleFailure())), &verbose); err != nil {
		t.Fatalf("json: %v", err)
	}
	if verbose.Message != "db <down>" || verbose.Type != "*errors.errorString" || verbose.Code != "E_DB" {
		t.Fatalf("unexpected verbose body: %+v", verbose)
	}
	if len(verbose.Trace) != 1 || verbose.Trace[0].Line != 21 {
		t.Fatalf("unexpected trace: %+v", verbose.Trace)
	}
}

func TestXMLRenderer(t *testing.T) {
	r := NewXML()
	r.SetRequest(requestWithID("rid-2"))

	out := r.Render(sampleFailure())
	if !strings.HasPrefix(out, xml.Header) {
		t.Fatalf("missing xml header: %q", out)
	}
	var prod xmlBody
	if err := xml.Unmarshal([]byte(out), &prod); err != nil {
		t.Fatalf("xml: %v", err)
	}
	if prod.Message != DefaultMessage || prod.RequestID != "rid-2" || prod.Type != "" {
		t.Fatalf("unexpected production body: %+v", prod)
	}

	var verbose xmlBody
	if err := xml.Unmarshal([]byte(r.RenderVerbose(sampleFailure())), &verbose); err != nil {
		t.Fatalf("xml: %v", err)
	}
	if verbose.Message != "db <down>" || verbose.Code != "E_DB" || len(verbose.Trace) != 1 {
		t.Fatalf("unexpected verbose body: %+v", verbose)
	}
	if verbose.Trace[0].Function != "main.handler" {
		t.Fatalf("unexpected frame: %+v", verbose.Trace[0])
	}
}

func TestTextRenderer(t *testing.T) {
	r := NewText()
	if got := r.Render(sampleFailure()); got != DefaultMessage {
		t.Fatalf("Render without request = %q", got)
	}

	r.SetRequest(requestWithID("rid-3"))
	if got := r.Render(sampleFailure()); got != DefaultMessage+"\nRequest ID: rid-3" {
		t.Fatalf("Render = %q", got)
	}

	want := "*errors.errorString: db <down>\nCode: E_DB\nRequest ID: rid-3\n\nStack trace:\n#0 main.handler\n   /src/main.go:21"
	if got := r.RenderVerbose(sampleFailure()); got != want {
		t.Fatalf("RenderVerbose =\n%s\nwant\n%s", got, want)
	}
}

func TestHTMLRenderer_ProductionAndVerbose(t *testing.T) {
	r := NewHTML()
	r.SetRequest(requestWithID("rid-4"))

	prod := r.Render(sampleFailure())
	if !strings.Contains(prod, `<html lang="en">`) || !strings.Contains(prod, DefaultMessage) {
		t.Fatalf("unexpected production page:\n%s", prod)
	}
	if strings.Contains(prod, "db &lt;down&gt;") || strings.Contains(prod, "main.handler") {
		t.Fatalf("production page leaked details:\n%s", prod)
	}
	if !strings.Contains(prod, "<code>rid-4</code>") {
		t.Fatalf("expected request id reference:\n%s", prod)
	}

	verbose := r.RenderVerbose(sampleFailure())
	if !strings.Contains(verbose, "db &lt;down&gt;") {
		t.Fatalf("verbose page should escape and include the message:\n%s", verbose)
	}
	if !strings.Contains(verbose, "/src/main.go:21") || !strings.Contains(verbose, "E_DB") {
		t.Fatalf("verbose page missing trace or code:\n%s", verbose)
	}
}

func TestHTMLRenderer_AcceptLanguage(t *testing.T) {
	cases := []struct {
		header string
		lang   string
	}{
		{"", "en"},
		{"de-AT,de;q=0.9", "de"},
		{"el", "el"},
		{"fr-FR", "en"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Accept-Language", tc.header)
		}
		r := NewHTML()
		r.SetRequest(req)
		out := r.Render(failure.Failure{})
		if !strings.Contains(out, `lang="`+tc.lang+`"`) {
			t.Fatalf("Accept-Language %q: want lang %q, got:\n%s", tc.header, tc.lang, out)
		}
		if !strings.Contains(out, pageTexts[tc.lang].Title) {
			t.Fatalf("Accept-Language %q: missing translated title", tc.header)
		}
	}
}

func TestHTMLRenderer_CustomTemplate(t *testing.T) {
	tmpl := template.Must(template.New("custom").Parse(`custom:{{.Text.Title}}:{{.Verbose}}`))
	r := NewHTML(WithTemplate(tmpl))
	if got := r.Render(failure.Failure{}); got != "custom:Internal Server Error:false" {
		t.Fatalf("custom Render = %q", got)
	}

	broken := template.Must(template.New("broken").Parse(`{{.Missing.Field}}`))
	r = NewHTML(WithTemplate(broken))
	if got := r.Render(failure.Failure{}); !strings.Contains(got, "<!DOCTYPE html>") {
		t.Fatalf("broken template should fall back to default page, got %q", got)
	}
}
