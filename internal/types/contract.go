// Package types - contract method names
package types

// Contract methods consumed by the client. Read methods are called through
// eth_call; write methods are sent as transactions.
const (
	MethodGetCandidates    = "getCandidate"   // list of candidate tuples
	MethodGetVoters        = "getVoter"       // list of voter tuples
	MethodCandidateByIndex = "candidates"     // public mapping getter, 1-based
	MethodCandidateCount   = "candidateCount" // number of registered candidates
	MethodVote             = "vote"
	MethodRegisterVoter    = "registerVoter"
	MethodAddCandidate     = "addCandidate"
)
