package render

import (
	"bytes"
	"html/template"

	"golang.org/x/text/language"

	"github.com/tbourn/go-errorcatcher/internal/failure"
)

// pageText holds the translatable strings of the error page.
type pageText struct {
	Title     string
	Message   string
	Reference string
}

// Supported page languages; the first entry is the fallback.
var (
	pageLanguages = []language.Tag{language.English, language.German, language.Greek}
	pageMatcher   = language.NewMatcher(pageLanguages)

	pageTexts = map[string]pageText{
		"en": {Title: "Internal Server Error", Message: DefaultMessage, Reference: "Reference"},
		"de": {Title: "Interner Serverfehler", Message: "Ein interner Serverfehler ist aufgetreten.", Reference: "Referenz"},
		"el": {Title: "Εσωτερικό σφάλμα διακομιστή", Message: "Παρουσιάστηκε εσωτερικό σφάλμα διακομιστή.", Reference: "Αναφορά"},
	}
)

var defaultPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<title>{{.Text.Title}}</title>
</head>
<body>
<h1>{{.Text.Title}}</h1>
{{- if .Verbose}}
<h2>{{.Failure.Type}}</h2>
<p class="message">{{.Failure.Message}}</p>
{{- with .Failure.Code}}
<p class="code">{{.}}</p>
{{- end}}
{{- if .Failure.Trace}}
<table class="trace">
{{- range $i, $f := .Failure.Trace}}
<tr><td>#{{$i}}</td><td>{{$f.Function}}</td><td>{{$f.File}}:{{$f.Line}}</td></tr>
{{- end}}
</table>
{{- end}}
{{- else}}
<p class="message">{{.Text.Message}}</p>
{{- end}}
{{- with .RequestID}}
<p class="reference">{{$.Text.Reference}}: <code>{{.}}</code></p>
{{- end}}
</body>
</html>
`))

// pageData is the template input.
type pageData struct {
	Lang      string
	Text      pageText
	Verbose   bool
	Failure   failure.Failure
	RequestID string
}

// HTMLRenderer renders failures as a standalone HTML page. The page language
// follows the bound request's Accept-Language header.
type HTMLRenderer struct {
	requestBound
	tmpl *template.Template
}

// HTMLOption customizes an HTMLRenderer.
type HTMLOption func(*HTMLRenderer)

// WithTemplate replaces the built-in page. The template receives Lang, Text
// (Title, Message, Reference), Verbose, Failure, and RequestID.
func WithTemplate(t *template.Template) HTMLOption {
	return func(r *HTMLRenderer) {
		if t != nil {
			r.tmpl = t
		}
	}
}

// NewHTML returns an HTMLRenderer with no request bound.
func NewHTML(opts ...HTMLOption) *HTMLRenderer {
	r := &HTMLRenderer{tmpl: defaultPage}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render implements Renderer.
func (r *HTMLRenderer) Render(f failure.Failure) string {
	return r.execute(f, false)
}

// RenderVerbose implements Renderer.
func (r *HTMLRenderer) RenderVerbose(f failure.Failure) string {
	return r.execute(f, true)
}

func (r *HTMLRenderer) execute(f failure.Failure, verbose bool) string {
	lang := r.lang()
	data := pageData{
		Lang:      lang,
		Text:      pageTexts[lang],
		Verbose:   verbose,
		Failure:   f,
		RequestID: r.requestID(),
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		buf.Reset()
		if err := defaultPage.Execute(&buf, data); err != nil {
			return template.HTMLEscapeString(data.Text.Message)
		}
	}
	return buf.String()
}

// lang picks the page language from Accept-Language.
func (r *HTMLRenderer) lang() string {
	if r.req == nil {
		return "en"
	}
	tag, _ := language.MatchStrings(pageMatcher, r.req.Header.Get("Accept-Language"))
	base, _ := tag.Base()
	if _, ok := pageTexts[base.String()]; !ok {
		return "en"
	}
	return base.String()
}
