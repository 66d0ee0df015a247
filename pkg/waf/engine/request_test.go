package engine

import (
	"net/http/httptest"
	"strings"
	"testing"

	"sentra-hq/bastion/pkg/waf"
)

func TestFromHTTP_Normalization(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	eng.SetPolicy(compile(t, &waf.Document{Version: "v1"}))

	r := httptest.NewRequest("POST", "/search%20path?q=a%27%20or%20%271", strings.NewReader("user=admin&note=hi"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("Cookie", "session=abc; theme=dark")
	r.RemoteAddr = "203.0.113.7:51234"

	req, err := eng.FromHTTP(r)
	if err != nil {
		t.Fatalf("FromHTTP failed: %v", err)
	}

	// The request line is decoded exactly once.
	if req.URI != "/search path?q=a' or '1" {
		t.Errorf("Expected single-pass decoded URI, got %q", req.URI)
	}
	if req.Method != "POST" {
		t.Errorf("Expected POST, got %q", req.Method)
	}
	if got := req.QueryArgs.Get("q"); got != "a' or '1" {
		t.Errorf("Expected decoded query arg, got %q", got)
	}
	if got := req.PostArgs.Get("user"); got != "admin" {
		t.Errorf("Expected parsed form body, got %q", got)
	}
	if got := req.Cookies["theme"]; len(got) != 1 || got[0] != "dark" {
		t.Errorf("Expected cookie parsed, got %v", got)
	}
	if req.ClientIP != "203.0.113.7" {
		t.Errorf("Expected port stripped from client address, got %q", req.ClientIP)
	}
	if string(req.Body) != "user=admin&note=hi" {
		t.Errorf("Expected body captured, got %q", req.Body)
	}
}

func TestFromHTTP_DecodesOnlyOnce(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	eng.SetPolicy(compile(t, &waf.Document{Version: "v1"}))

	// %2527 decodes to %27 after one pass; a second pass would yield '.
	r := httptest.NewRequest("GET", "/q%2527", nil)
	req, err := eng.FromHTTP(r)
	if err != nil {
		t.Fatalf("FromHTTP failed: %v", err)
	}
	if !strings.Contains(req.URI, "%27") {
		t.Errorf("Expected doubly-encoded payload to remain encoded once, got %q", req.URI)
	}
	if strings.Contains(req.URI, "'") {
		t.Errorf("URI must not be decoded twice, got %q", req.URI)
	}
}

func TestFromHTTP_PlusIsLiteralInPath(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	eng.SetPolicy(compile(t, &waf.Document{Version: "v1"}))

	// "+" is form encoding for space in the query only; in the path it
	// is a literal character.
	r := httptest.NewRequest("GET", "/c++/docs?q=a+b", nil)
	req, err := eng.FromHTTP(r)
	if err != nil {
		t.Fatalf("FromHTTP failed: %v", err)
	}
	if req.URI != "/c++/docs?q=a b" {
		t.Errorf("Expected literal plus in path and space in query, got %q", req.URI)
	}
}

func TestFromHTTP_XForwardedFor(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	eng.SetPolicy(compile(t, &waf.Document{Version: "v1"}))

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:443"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	req, err := eng.FromHTTP(r)
	if err != nil {
		t.Fatalf("FromHTTP failed: %v", err)
	}
	if req.ClientIP != "203.0.113.9" {
		t.Errorf("Expected first forwarded hop, got %q", req.ClientIP)
	}
}

func TestFromHTTP_BodyLimit(t *testing.T) {
	doc := &waf.Document{Version: "v1"}
	doc.Settings.MaxRequestBodySizeKB = 1

	eng, _ := newTestEngine(t, nil)
	eng.SetPolicy(compile(t, doc))

	t.Run("within limit", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("a", 1024)))
		req, err := eng.FromHTTP(r)
		if err != nil {
			t.Fatalf("FromHTTP failed: %v", err)
		}
		if req.BodyOversized {
			t.Error("Expected body at the limit to be inspected")
		}
		if len(req.Body) != 1024 {
			t.Errorf("Expected 1024-byte body, got %d", len(req.Body))
		}
	})

	t.Run("over limit", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("a", 1025)))
		req, err := eng.FromHTTP(r)
		if err != nil {
			t.Fatalf("FromHTTP failed: %v", err)
		}
		if !req.BodyOversized {
			t.Error("Expected oversized body flagged")
		}
		if req.Body != nil {
			t.Error("Expected oversized body not retained")
		}
	})
}

func TestFromHTTP_BodyCheckDisabled(t *testing.T) {
	doc := &waf.Document{Version: "v1"}
	disabled := false
	doc.Settings.RequestBodyCheck = &disabled

	eng, _ := newTestEngine(t, nil)
	eng.SetPolicy(compile(t, doc))

	r := httptest.NewRequest("POST", "/", strings.NewReader("user=admin"))
	req, err := eng.FromHTTP(r)
	if err != nil {
		t.Fatalf("FromHTTP failed: %v", err)
	}
	if req.Body != nil || req.BodyOversized {
		t.Error("Expected body ignored when inspection is disabled")
	}
}
