package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"votedesk.mini/vdk/internal/history"
	"votedesk.mini/vdk/internal/results"
)

func TestHandleResults(t *testing.T) {
	svc, _, _ := setupTest(t)

	w := httptest.NewRecorder()
	svc.HandleResults(w, httptest.NewRequest(http.MethodGet, "/api/results", nil))

	var summary results.Summary
	if err := json.NewDecoder(w.Body).Decode(&summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(summary.Standings) != 2 || summary.Standings[0].Candidate.Name != "Bob" {
		t.Fatalf("Expected Bob first, got %+v", summary.Standings)
	}
	if summary.Standings[0].Share != 62.5 || summary.Standings[1].Share != 37.5 {
		t.Errorf("Unexpected shares %+v", summary.Standings)
	}
	if summary.Winner == nil || summary.Winner.ID != 2 {
		t.Errorf("Expected Bob to lead, got %+v", summary.Winner)
	}
}

func TestHandleHistory(t *testing.T) {
	svc, core, store := setupTest(t)
	if _, err := store.Record(core.snapshot); err != nil {
		t.Fatalf("Record: %v", err)
	}

	w := httptest.NewRecorder()
	svc.HandleHistory(w, httptest.NewRequest(http.MethodGet, "/api/history?limit=5", nil))

	var entries []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected one entry, got %d", len(entries))
	}
	if entries[0]["total_votes"] != float64(8) {
		t.Errorf("Expected 8 votes, got %v", entries[0]["total_votes"])
	}
	if entries[0]["ago"] != "2 minutes ago" {
		t.Errorf("Expected humanized age, got %v", entries[0]["ago"])
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history/candidates/2", nil)
	req.SetPathValue("id", "2")
	w = httptest.NewRecorder()
	svc.HandleCandidateHistory(w, req)

	var points []history.Point
	if err := json.NewDecoder(w.Body).Decode(&points); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(points) != 1 || points[0].Votes != 5 {
		t.Errorf("Unexpected series %+v", points)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/history/candidates/x", nil)
	req.SetPathValue("id", "x")
	w = httptest.NewRecorder()
	svc.HandleCandidateHistory(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad id, got %d", w.Code)
	}
}

func TestHandleNotifications(t *testing.T) {
	svc, _, _ := setupTest(t)
	svc.feed.Error("first")
	svc.feed.Success("second")

	w := httptest.NewRecorder()
	svc.HandleNotifications(w, httptest.NewRequest(http.MethodGet, "/api/notifications?limit=1", nil))

	var msgs []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != 1 || msgs[0]["text"] != "second" {
		t.Errorf("Expected newest message only, got %+v", msgs)
	}
}
