package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"votedesk.mini/vdk/internal/actions"
	"votedesk.mini/vdk/internal/connection"
	"votedesk.mini/vdk/internal/types"
)

func submitRequest(kind, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/actions/"+kind, strings.NewReader(body))
	req.SetPathValue("kind", kind)
	return req
}

func TestHandleSubmitVote(t *testing.T) {
	svc, core, _ := setupTest(t)

	w := httptest.NewRecorder()
	svc.HandleSubmit(w, submitRequest("vote", `{"candidate_id": 2}`))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %d: %s", w.Code, w.Body.String())
	}
	if len(core.submitted) != 1 {
		t.Fatalf("Expected one submission, got %d", len(core.submitted))
	}
	if p, ok := core.submitted[0].(types.VotePayload); !ok || p.CandidateID != 2 {
		t.Errorf("Unexpected payload %#v", core.submitted[0])
	}
}

func TestHandleSubmitValidation(t *testing.T) {
	tests := []struct {
		name, kind, body string
		status           int
	}{
		{"unknown kind", "delegate", `{}`, http.StatusNotFound},
		{"bad json", "vote", `{`, http.StatusBadRequest},
		{"zero candidate", "vote", `{"candidate_id": 0}`, http.StatusBadRequest},
		{"underage voter", "register_voter", `{"voter_id": 1, "name": "Dan", "age": 17, "address": "Main St"}`, http.StatusBadRequest},
		{"missing party", "register_candidate", `{"candidate_id": 3, "name": "Eve", "age": 40, "qualification": "MSc"}`, http.StatusBadRequest},
		{"valid voter", "register_voter", `{"voter_id": 1, "name": "Dan", "age": 18, "address": "Main St"}`, http.StatusOK},
		{"valid candidate", "register_candidate", `{"candidate_id": 3, "name": "Eve", "party": "Red", "age": 40, "qualification": "MSc"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, core, _ := setupTest(t)

			w := httptest.NewRecorder()
			svc.HandleSubmit(w, submitRequest(tt.kind, tt.body))

			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if tt.status != http.StatusOK && len(core.submitted) != 0 {
				t.Errorf("Invalid input must not be submitted")
			}
		})
	}
}

func TestHandleSubmitFailures(t *testing.T) {
	busy := types.PendingAction{ID: "busy", Kind: types.ActionVote, Status: types.StatusAwaitingConfirmation}
	tests := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{"already pending", actions.ErrAlreadyPending, http.StatusConflict, actions.ErrAlreadyPending.Error()},
		{"not connected", &actions.SubmissionError{Kind: types.ActionVote, Reason: "please connect your wallet first", Err: connection.ErrNotConnected}, http.StatusPreconditionRequired, "Please connect your wallet first"},
		{"reverted", &actions.SubmissionError{Kind: types.ActionVote, Reason: "Error casting vote", Err: errors.New("")}, http.StatusUnprocessableEntity, "Error casting vote"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, core, _ := setupTest(t)
			core.submitFn = func(types.ActionKind, types.Payload) (types.PendingAction, error) {
				return busy, tt.err
			}

			w := httptest.NewRecorder()
			svc.HandleSubmit(w, submitRequest("vote", `{"candidate_id": 1}`))

			if w.Code != tt.status {
				t.Fatalf("Expected status %d, got %d", tt.status, w.Code)
			}
			var body map[string]any
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tt.reason {
				t.Errorf("Expected error %q, got %v", tt.reason, body["error"])
			}
		})
	}
}

func TestHandleDismiss(t *testing.T) {
	svc, core, _ := setupTest(t)
	core.actions = []types.PendingAction{
		{Kind: types.ActionVote, Status: types.StatusFailed},
		{Kind: types.ActionRegisterVoter, Status: types.StatusSubmitting},
	}

	dismiss := func(kind string) int {
		req := httptest.NewRequest(http.MethodDelete, "/api/actions/"+kind, nil)
		req.SetPathValue("kind", kind)
		w := httptest.NewRecorder()
		svc.HandleDismiss(w, req)
		return w.Code
	}

	if code := dismiss("vote"); code != http.StatusNoContent {
		t.Errorf("Expected 204 for finished action, got %d", code)
	}
	if code := dismiss("register_voter"); code != http.StatusConflict {
		t.Errorf("Expected 409 for pending action, got %d", code)
	}
	if code := dismiss("nope"); code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown kind, got %d", code)
	}
}
