package openrouter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if c := NewClient(Config{APIKey: "  "}); c != nil {
		t.Fatal("NewClient() without key returned a client")
	}
}

func TestVerifyModel(t *testing.T) {
	t.Parallel()

	var gotAuth, gotReferer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReferer = r.Header.Get("HTTP-Referer")
		if !strings.HasSuffix(r.URL.Path, "/models/openai/gpt-4o-mini") {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"message":"model not found"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"openai/gpt-4o-mini","object":"model","created":0,"owned_by":"openai"}`)
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{BaseURL: server.URL + "/", APIKey: "key", SiteURL: "https://example.com"})
	if client == nil {
		t.Fatal("NewClient() = nil")
	}

	if err := VerifyModel(context.Background(), client, "openai/gpt-4o-mini"); err != nil {
		t.Fatalf("VerifyModel() error = %v", err)
	}
	if gotAuth != "Bearer key" {
		t.Fatalf("Authorization = %q, want Bearer key", gotAuth)
	}
	if gotReferer != "https://example.com" {
		t.Fatalf("HTTP-Referer = %q", gotReferer)
	}

	if err := VerifyModel(context.Background(), client, "missing/model"); err == nil {
		t.Fatal("VerifyModel() for missing model error = nil")
	}
	if err := VerifyModel(context.Background(), nil, "x"); err == nil {
		t.Fatal("VerifyModel(nil client) error = nil")
	}
}
