package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMetrics(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	devicesTotal, ok := body["devices_total"].(float64)
	if !ok || devicesTotal != 1 {
		t.Errorf("devices_total = %v, want 1 (the seeded lamp)", body["devices_total"])
	}
	if _, ok := body["ws_clients"]; !ok {
		t.Error("expected ws_clients in metrics snapshot")
	}
	if _, ok := body["db_open_connections"]; ok {
		t.Error("db_open_connections should be absent when no db is configured")
	}
}
