package poller

import (
	"context"
	"fmt"
	"math/big"

	"votedesk.mini/vdk/internal/chain"
	"votedesk.mini/vdk/internal/types"
)

// CandidateSource selects how the candidate list is read.
type CandidateSource string

const (
	// SourceList reads every candidate with one list call.
	SourceList CandidateSource = "list"
	// SourceIndexed reads the candidate count, then each candidate by
	// 1-based index.
	SourceIndexed CandidateSource = "indexed"
)

// maxIndexedCandidates bounds the per-index enumeration.
const maxIndexedCandidates = 1000

// ParseCandidateSource converts a config value; empty selects SourceList.
func ParseCandidateSource(s string) (CandidateSource, error) {
	switch CandidateSource(s) {
	case "", SourceList:
		return SourceList, nil
	case SourceIndexed:
		return SourceIndexed, nil
	}
	return "", fmt.Errorf("unknown candidate source %q", s)
}

func (p *Poller) fetchCandidates(ctx context.Context, r chain.Reader) ([]types.Candidate, error) {
	if p.source == SourceIndexed {
		return fetchIndexedCandidates(ctx, r)
	}
	out, err := r.Call(ctx, types.MethodGetCandidates)
	if err != nil {
		return nil, err
	}
	return chain.DecodeCandidates(out)
}

func fetchIndexedCandidates(ctx context.Context, r chain.Reader) ([]types.Candidate, error) {
	out, err := r.Call(ctx, types.MethodCandidateCount)
	if err != nil {
		return nil, err
	}
	n, err := chain.DecodeCount(out)
	if err != nil {
		return nil, fmt.Errorf("candidate count: %w", err)
	}
	if n > maxIndexedCandidates {
		return nil, fmt.Errorf("candidate count %d exceeds limit %d", n, maxIndexedCandidates)
	}

	candidates := make([]types.Candidate, 0, n)
	for i := uint64(1); i <= n; i++ {
		out, err := r.Call(ctx, types.MethodCandidateByIndex, new(big.Int).SetUint64(i))
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		candidates = append(candidates, chain.DecodeCandidateAt(out))
	}
	return candidates, nil
}

func fetchVoters(ctx context.Context, r chain.Reader) ([]types.Voter, error) {
	out, err := r.Call(ctx, types.MethodGetVoters)
	if err != nil {
		return nil, err
	}
	return chain.DecodeVoters(out)
}
