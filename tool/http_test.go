package tool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPToolGetRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	h := NewHTTPTool()
	result, err := h.Call(context.Background(), map[string]interface{}{"url": srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["status_code"] != http.StatusOK {
		t.Fatalf("expected 200, got %v", result["status_code"])
	}
	if result["body"] != "hello" {
		t.Fatalf("expected body hello, got %v", result["body"])
	}
}

func TestHTTPToolRequiresURL(t *testing.T) {
	h := NewHTTPTool()
	if _, err := h.Call(context.Background(), map[string]interface{}{}); err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestHTTPToolRejectsUnsupportedMethod(t *testing.T) {
	h := NewHTTPTool()
	_, err := h.Call(context.Background(), map[string]interface{}{"url": "http://example.com", "method": "DELETE"})
	if err == nil {
		t.Fatal("expected error for unsupported method")
	}
}
