package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"votedesk.mini/vdk/internal/types"
)

func TestHandleHealth(t *testing.T) {
	svc, _, _ := setupTest(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()

	svc.HandleHealth(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status OK, got %v", resp.Status)
	}
}

func TestHandleVersion(t *testing.T) {
	svc, _, _ := setupTest(t)

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	w := httptest.NewRecorder()

	svc.HandleVersion(w, req)

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["version"] != types.Version {
		t.Errorf("Expected version %s, got %s", types.Version, body["version"])
	}
	if !strings.EqualFold(body["contract"], "0x0fee2908afda3d25e876c05ed5a6b9e40c37d909") {
		t.Errorf("Expected contract address, got %q", body["contract"])
	}
}
