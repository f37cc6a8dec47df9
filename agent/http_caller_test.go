package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPCaller_SuccessfulGET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"k": 5})
	}))
	defer srv.Close()

	h := NewHTTPCaller()
	result, err := h.Execute(context.Background(), nil, map[string]interface{}{"url": srv.URL})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Output["success"] != true {
		t.Fatalf("expected success=true, got %#v", result.Output)
	}
	data, ok := result.Output["data"].(map[string]interface{})
	if !ok || data["k"].(float64) != 5 {
		t.Fatalf("unexpected data: %#v", result.Output["data"])
	}
}

func TestHTTPCaller_4xxIsNonErrorResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("not found"))
	}))
	defer srv.Close()

	h := NewHTTPCaller()
	result, err := h.Execute(context.Background(), map[string]interface{}{"retries": 0.0}, map[string]interface{}{"url": srv.URL})
	if err != nil {
		t.Fatalf("expected 4xx to surface as a non-error result, got error: %v", err)
	}
	if result.Output["success"] != false {
		t.Fatalf("expected success=false, got %#v", result.Output)
	}
	if result.Output["status_code"] != 404 {
		t.Fatalf("expected status_code 404, got %v", result.Output["status_code"])
	}
}

func TestHTTPCaller_RequiresURL(t *testing.T) {
	h := NewHTTPCaller()
	_, err := h.Execute(context.Background(), nil, map[string]interface{}{})
	if err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestHTTPCaller_TransportErrorRetries(t *testing.T) {
	h := NewHTTPCaller()
	_, err := h.Execute(context.Background(), map[string]interface{}{"retries": 1.0, "retry_delay_seconds": 0.01}, map[string]interface{}{
		"url": "http://127.0.0.1:1/unreachable",
	})
	if err == nil {
		t.Fatal("expected transport error for unreachable host")
	}
	ae, ok := err.(*Error)
	if !ok || ae.Kind != KindTransportError {
		t.Fatalf("expected TransportError, got %v", err)
	}
}
