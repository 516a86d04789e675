package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"votedesk.mini/vdk/internal/actions"
	"votedesk.mini/vdk/internal/connection"
	"votedesk.mini/vdk/internal/types"
)

// DecodePayload reads the JSON body of a kind action.
func DecodePayload(kind types.ActionKind, data []byte) (types.Payload, error) {
	var (
		payload types.Payload
		err     error
	)
	switch kind {
	case types.ActionVote:
		var p types.VotePayload
		err = json.Unmarshal(data, &p)
		payload = p
	case types.ActionRegisterVoter:
		var p types.RegisterVoterPayload
		err = json.Unmarshal(data, &p)
		payload = p
	case types.ActionRegisterCandidate:
		var p types.RegisterCandidatePayload
		err = json.Unmarshal(data, &p)
		payload = p
	default:
		return nil, fmt.Errorf("unknown action kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidPayload, err)
	}
	return payload, nil
}

// @Title: List Actions
// @Route: GET /api/actions
// @Description: Returns the tracked action for each kind
// @Response: Array of PendingAction objects
func (s *Service) HandleActions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.core.Actions())
}

// @Title: Submit Action
// @Route: POST /api/actions/{kind}
// @Description: Casts a vote (vote), registers a voter (register_voter) or adds a candidate (register_candidate) and waits for confirmation
// @Response: PendingAction object; 409 with the busy action while one of the same kind is pending
func (s *Service) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	kind, err := types.ParseActionKind(r.PathValue("kind"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	payload, err := DecodePayload(kind, raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := payload.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// the transaction outlives the request once broadcast
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.submitTimeout)
	defer cancel()

	action, err := s.core.Submit(ctx, kind, payload)
	var subErr *actions.SubmissionError
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, action)
	case errors.Is(err, actions.ErrAlreadyPending):
		s.writeJSON(w, http.StatusConflict, map[string]any{
			"error":   err.Error(),
			"pending": action,
		})
	case errors.Is(err, connection.ErrNotConnected):
		s.writeError(w, http.StatusPreconditionRequired, "Please connect your wallet first")
	case errors.As(err, &subErr):
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  subErr.Reason,
			"action": action,
		})
	default:
		s.writeError(w, http.StatusBadRequest, err.Error())
	}
}

// @Title: Dismiss Action
// @Route: DELETE /api/actions/{kind}
// @Description: Discards a finished action so its outcome is no longer shown
// @Response: 204 No Content; 409 while the action is still pending
func (s *Service) HandleDismiss(w http.ResponseWriter, r *http.Request) {
	kind, err := types.ParseActionKind(r.PathValue("kind"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if !s.core.Dismiss(kind) {
		s.writeError(w, http.StatusConflict, "No finished action to dismiss")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
