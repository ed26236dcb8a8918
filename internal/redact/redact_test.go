package redact

import (
	"net/http"
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	cases := map[string]string{
		"":                               "",
		"no secrets here":                "no secrets here",
		"user bob@example.com not found": "user " + EmailMark + " not found",
		"call 212-555-1212 now":          "call " + PhoneMark + " now",
		"chat 141add05-4415-4938-b5a1-17e0d3171aff missing": "chat " + IDMark + " missing",
	}
	for in, want := range cases {
		if got := String(in); got != want {
			t.Fatalf("String(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestString_UUIDNotMistakenForPhone(t *testing.T) {
	got := String("id=123e4567-e89b-12d3-a456-426614174000")
	if strings.Contains(got, PhoneMark) || !strings.Contains(got, IDMark) {
		t.Fatalf("unexpected redaction %q", got)
	}
}

func TestHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer abc")
	h.Set("Cookie", "sid=1")
	h.Set("X-Api-Key", "k")
	h.Set("From", "alice@example.org")
	h.Add("Accept", "text/html")
	h.Add("Accept", "application/json")

	got := Headers(h, " x-api-key ")
	if got["Authorization"] != HeaderMark || got["Cookie"] != HeaderMark || got["X-Api-Key"] != HeaderMark {
		t.Fatalf("sensitive headers not masked: %v", got)
	}
	if got["From"] != EmailMark {
		t.Fatalf("From = %q", got["From"])
	}
	if got["Accept"] != "text/html, application/json" {
		t.Fatalf("Accept = %q", got["Accept"])
	}
}
