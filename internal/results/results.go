// Package results derives the ranked results view from a contract
// snapshot: candidates ordered by votes with their share of the total and
// the current leader.
package results

import (
	"sort"

	"votedesk.mini/vdk/internal/types"
)

// Standing is one ranked row of the results view.
type Standing struct {
	Rank      int             `json:"rank"`
	Candidate types.Candidate `json:"candidate"`
	Share     float64         `json:"share"` // percent of TotalVotes, 0 when nothing is cast
}

// Summary is the full results view.
type Summary struct {
	Standings       []Standing       `json:"standings"`
	Winner          *types.Candidate `json:"winner,omitempty"`
	TotalVotes      uint64           `json:"total_votes"`
	TotalVoters     int              `json:"total_voters"`
	TotalCandidates int              `json:"total_candidates"`
	VotingOpen      bool             `json:"voting_open"`
}

// Rank orders the snapshot's candidates by vote count, highest first.
// Ties keep contract order. A nil snapshot yields an empty summary.
func Rank(snap *types.Snapshot) Summary {
	if snap == nil {
		return Summary{Standings: []Standing{}}
	}

	sorted := make([]types.Candidate, len(snap.Candidates))
	copy(sorted, snap.Candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].VoteCount > sorted[j].VoteCount
	})

	standings := make([]Standing, len(sorted))
	for i, c := range sorted {
		standings[i] = Standing{
			Rank:      i + 1,
			Candidate: c,
			Share:     Share(c.VoteCount, snap.TotalVotes),
		}
	}

	return Summary{
		Standings:       standings,
		Winner:          Winner(snap),
		TotalVotes:      snap.TotalVotes,
		TotalVoters:     len(snap.Voters),
		TotalCandidates: len(snap.Candidates),
		VotingOpen:      snap.VotingOpen(),
	}
}

// Share returns votes as a percentage of total, or 0 when total is 0.
func Share(votes, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(votes) / float64(total) * 100
}

// Winner returns the first candidate holding the strictly highest
// positive vote count, or nil when no votes have been cast.
func Winner(snap *types.Snapshot) *types.Candidate {
	if snap == nil {
		return nil
	}
	var best *types.Candidate
	var most uint64
	for i := range snap.Candidates {
		if c := snap.Candidates[i]; c.VoteCount > most {
			most = c.VoteCount
			best = &c
		}
	}
	return best
}
