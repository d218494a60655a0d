package api

import (
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestShortenAndRedirect(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "POST", "/api/shorten", `{"url":"https://shop.example/create-account?wa=2348000000001","expiryMinutes":60}`)
	assertHTTPStatus(t, http.StatusCreated, rr.Code, "shorten")
	resp := assertJSONStatus(t, rr, "ok")
	result := resp.Result.(map[string]interface{})
	code := result["code"].(string)
	if len(code) != 7 {
		t.Errorf("expected 7 character code, got %q", code)
	}
	if result["shortUrl"] != "https://cb.example/s/"+code {
		t.Errorf("unexpected short url %v", result["shortUrl"])
	}

	rr = env.do(t, "GET", "/s/"+code, "")
	assertHTTPStatus(t, http.StatusFound, rr.Code, "redirect")
	loc := rr.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://shop.example/create-account?") || !strings.Contains(loc, "wa=2348000000001") || !strings.Contains(loc, "code="+code) {
		t.Errorf("unexpected redirect target %q", loc)
	}

	rr = env.do(t, "GET", "/api/shorten/"+code+"/validate", "")
	assertHTTPStatus(t, http.StatusOK, rr.Code, "validate fresh code")
	assertJSONStatus(t, rr, "ok")

	*env.clock = env.clock.Add(2 * time.Hour)

	rr = env.do(t, "GET", "/api/shorten/"+code+"/validate", "")
	assertHTTPStatus(t, http.StatusGone, rr.Code, "validate expired code")
	if resp := assertJSONStatus(t, rr, "error"); resp.Message != "expired" {
		t.Errorf("expected expired message, got %q", resp.Message)
	}

	rr = env.do(t, "GET", "/s/"+code, "")
	assertHTTPStatus(t, http.StatusFound, rr.Code, "redirect expired")
	if loc := rr.Header().Get("Location"); loc != "https://shop.example/create-account?expired=1" {
		t.Errorf("unexpected expired redirect %q", loc)
	}
}

func TestShortenUnknownCode(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/api/shorten/nope123/validate", "")
	assertHTTPStatus(t, http.StatusNotFound, rr.Code, "validate unknown code")
	if resp := assertJSONStatus(t, rr, "error"); resp.Message != "not_found" {
		t.Errorf("expected not_found, got %q", resp.Message)
	}

	rr = env.do(t, "GET", "/s/nope123", "")
	if loc := rr.Header().Get("Location"); loc != "https://shop.example/create-account?expired=1" {
		t.Errorf("unexpected redirect %q", loc)
	}
}

func TestShortenValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing url", `{}`},
		{"not a url", `{"url":"hello"}`},
		{"negative expiry", `{"url":"https://shop.example","expiryMinutes":-5}`},
		{"bad json", `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rr := env.do(t, "POST", "/api/shorten", tt.body)
			assertHTTPStatus(t, http.StatusBadRequest, rr.Code, tt.name)
			assertJSONStatus(t, rr, "error")
		})
	}
}
