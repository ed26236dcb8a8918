// Package redact scrubs obvious personal data from free text before it is
// stored or exposed.
//
// Failure messages frequently embed user input (an e-mail that failed
// validation, a phone number in a query). Incidents are served back through
// the API, so their text goes through String first. Server logs keep the
// original text.
package redact

import (
	"net/http"
	"regexp"
	"strings"
)

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so hex runs inside UUIDs never match.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// Placeholders substituted for redacted values.
const (
	IDMark     = "[REDACTED:id]"
	EmailMark  = "[REDACTED:email]"
	PhoneMark  = "[REDACTED:phone]"
	HeaderMark = "[REDACTED]"
)

// String replaces UUIDs, e-mail addresses and phone numbers in s.
func String(s string) string {
	if s == "" {
		return s
	}
	// IDs first: the phone pattern is the loosest.
	out := uuidRE.ReplaceAllString(s, IDMark)
	out = emailRE.ReplaceAllString(out, EmailMark)
	return phoneRE.ReplaceAllString(out, PhoneMark)
}

// Headers flattens h into a map with sensitive headers masked and all other
// values passed through String. Authorization, Cookie and Set-Cookie are
// always masked; extra names are matched case-insensitively.
func Headers(h http.Header, extra ...string) map[string]string {
	mask := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, name := range extra {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			mask[name] = struct{}{}
		}
	}

	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := mask[strings.ToLower(k)]; ok {
			out[k] = HeaderMark
			continue
		}
		out[k] = String(strings.Join(vv, ", "))
	}
	return out
}
