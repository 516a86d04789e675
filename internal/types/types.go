// Package types defines the core domain models for votedesk (vdk).
// It contains the contract snapshot model (candidates, voters, tallies),
// the wallet connection state and the pending action records that the
// connection controller, the state poller and the action submitter publish
// to the presentation layer.
package types

import (
	"math"
	"math/bits"
	"time"
)

// Version is the current version of vdk
const Version = "0.3.0"

// BuildTime is set at build time via -ldflags
var BuildTime = "dev"

// Candidate is a single entry of the contract's candidate registry.
type Candidate struct {
	ID            uint64 `json:"id"`                // Candidate id assigned at registration
	Name          string `json:"name"`              // Display name
	Party         string `json:"party"`             // Party affiliation
	Age           uint64 `json:"age"`               // Age in years at registration
	Qualification string `json:"qualification"`     // Free-form qualification text
	Address       string `json:"address,omitempty"` // Candidate account address (hex)
	VoteCount     uint64 `json:"vote_count"`        // Votes received so far
}

// Voter is a registered voter as reported by the contract.
type Voter struct {
	ID      uint64 `json:"id"`
	Name    string `json:"name"`
	Age     uint64 `json:"age"`
	Address string `json:"address,omitempty"`
}

// Snapshot is an immutable view of the contract state at FetchedAt.
// Snapshots are replaced wholesale by the poller and must not be mutated
// by consumers. Build them with NewSnapshot so TotalVotes stays consistent.
type Snapshot struct {
	Candidates []Candidate `json:"candidates"`
	Voters     []Voter     `json:"voters"`
	TotalVotes uint64      `json:"total_votes"`
	FetchedAt  time.Time   `json:"fetched_at"`
	Partial    []string    `json:"partial,omitempty"` // Sources that failed and were published empty
}

// NewSnapshot assembles a snapshot and computes TotalVotes as the sum of the
// candidates' vote counts. The sum saturates at math.MaxUint64 instead of
// wrapping. Nil sequences are normalised to empty ones so the JSON form
// always carries arrays.
func NewSnapshot(candidates []Candidate, voters []Voter, fetchedAt time.Time, partial ...string) *Snapshot {
	if candidates == nil {
		candidates = []Candidate{}
	}
	if voters == nil {
		voters = []Voter{}
	}
	var total uint64
	for _, c := range candidates {
		sum, carry := bits.Add64(total, c.VoteCount, 0)
		if carry != 0 {
			total = math.MaxUint64
			break
		}
		total = sum
	}
	return &Snapshot{
		Candidates: candidates,
		Voters:     voters,
		TotalVotes: total,
		FetchedAt:  fetchedAt,
		Partial:    partial,
	}
}

// VotingOpen reports whether enough candidates are registered for a vote
// to be meaningful.
func (s *Snapshot) VotingOpen() bool {
	return s != nil && len(s.Candidates) >= 2
}

// Candidate looks up a candidate by id.
func (s *Snapshot) Candidate(id uint64) (Candidate, bool) {
	if s == nil {
		return Candidate{}, false
	}
	for _, c := range s.Candidates {
		if c.ID == id {
			return c, true
		}
	}
	return Candidate{}, false
}

// SameTally reports whether two snapshots carry identical vote counts for
// the same candidates and the same number of voters.
func (s *Snapshot) SameTally(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	if len(s.Candidates) != len(other.Candidates) || len(s.Voters) != len(other.Voters) {
		return false
	}
	for i := range s.Candidates {
		if s.Candidates[i].ID != other.Candidates[i].ID || s.Candidates[i].VoteCount != other.Candidates[i].VoteCount {
			return false
		}
	}
	return true
}
