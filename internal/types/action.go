// Package types - pending action and payload definitions
package types

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// MinimumAge is the youngest age accepted for voters and candidates.
const MinimumAge = 18

// ActionKind names a logical submission slot. At most one action per kind
// may be in flight at a time.
type ActionKind string

const (
	ActionVote              ActionKind = "vote"
	ActionRegisterVoter     ActionKind = "register_voter"
	ActionRegisterCandidate ActionKind = "register_candidate"
)

// ActionKinds lists every submission slot in display order.
var ActionKinds = []ActionKind{ActionVote, ActionRegisterVoter, ActionRegisterCandidate}

// ParseActionKind converts a string to an ActionKind.
func ParseActionKind(s string) (ActionKind, error) {
	for _, k := range ActionKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown action kind %q", s)
}

// ActionStatus is the lifecycle position of a PendingAction.
type ActionStatus string

const (
	StatusSubmitting           ActionStatus = "submitting"
	StatusAwaitingConfirmation ActionStatus = "awaiting_confirmation"
	StatusSucceeded            ActionStatus = "succeeded"
	StatusFailed               ActionStatus = "failed"
)

// Terminal reports whether the status is final.
func (s ActionStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// PendingAction tracks one state-changing request and its outcome.
type PendingAction struct {
	ID        string       `json:"id"`                // UUID assigned when the submission begins
	Kind      ActionKind   `json:"kind"`              // Submission slot
	Payload   Payload      `json:"payload"`           // Arguments as submitted
	Status    ActionStatus `json:"status"`            // Current lifecycle position
	Reason    string       `json:"reason,omitempty"`  // Failure reason when Status is failed
	TxHash    string       `json:"tx_hash,omitempty"` // Transaction hash once broadcast
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Payload is the argument set of a state-changing contract call.
type Payload interface {
	// Kind is the submission slot the payload belongs to.
	Kind() ActionKind
	// Call returns the contract method and its ABI-ready arguments.
	Call() (method string, args []any)
	// Validate enforces form-level constraints before submission.
	Validate() error
}

// ErrInvalidPayload wraps every payload validation failure.
var ErrInvalidPayload = errors.New("invalid payload")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}

// VotePayload casts a vote for CandidateID.
type VotePayload struct {
	CandidateID uint64 `json:"candidate_id"`
}

func (VotePayload) Kind() ActionKind { return ActionVote }

func (p VotePayload) Call() (string, []any) {
	return MethodVote, []any{new(big.Int).SetUint64(p.CandidateID)}
}

func (p VotePayload) Validate() error {
	if p.CandidateID < 1 {
		return invalid("candidate id must be at least 1")
	}
	return nil
}

// RegisterVoterPayload registers a voter.
type RegisterVoterPayload struct {
	VoterID uint64 `json:"voter_id"`
	Name    string `json:"name"`
	Age     uint64 `json:"age"`
	Address string `json:"address"`
}

func (RegisterVoterPayload) Kind() ActionKind { return ActionRegisterVoter }

func (p RegisterVoterPayload) Call() (string, []any) {
	return MethodRegisterVoter, []any{
		new(big.Int).SetUint64(p.VoterID),
		p.Name,
		new(big.Int).SetUint64(p.Age),
		p.Address,
	}
}

func (p RegisterVoterPayload) Validate() error {
	switch {
	case p.VoterID < 1:
		return invalid("voter id must be at least 1")
	case strings.TrimSpace(p.Name) == "":
		return invalid("name is required")
	case p.Age < MinimumAge:
		return invalid("age must be at least %d", MinimumAge)
	case strings.TrimSpace(p.Address) == "":
		return invalid("address is required")
	}
	return nil
}

// RegisterCandidatePayload adds a candidate to the ballot.
type RegisterCandidatePayload struct {
	CandidateID   uint64 `json:"candidate_id"`
	Name          string `json:"name"`
	Party         string `json:"party"`
	Age           uint64 `json:"age"`
	Qualification string `json:"qualification"`
}

func (RegisterCandidatePayload) Kind() ActionKind { return ActionRegisterCandidate }

func (p RegisterCandidatePayload) Call() (string, []any) {
	return MethodAddCandidate, []any{
		new(big.Int).SetUint64(p.CandidateID),
		p.Name,
		p.Party,
		new(big.Int).SetUint64(p.Age),
		p.Qualification,
	}
}

func (p RegisterCandidatePayload) Validate() error {
	switch {
	case p.CandidateID < 1:
		return invalid("candidate id must be at least 1")
	case strings.TrimSpace(p.Name) == "":
		return invalid("name is required")
	case strings.TrimSpace(p.Party) == "":
		return invalid("party is required")
	case p.Age < MinimumAge:
		return invalid("age must be at least %d", MinimumAge)
	case strings.TrimSpace(p.Qualification) == "":
		return invalid("qualification is required")
	}
	return nil
}
