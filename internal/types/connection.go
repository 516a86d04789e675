// Package types - wallet connection state definitions
package types

// ConnectionPhase is the coarse state of the wallet connection.
type ConnectionPhase string

const (
	// PhaseDisconnected - no account is bound
	// - initial state at process start
	// - entered on wallet disconnect, empty account list or chain change
	PhaseDisconnected ConnectionPhase = "disconnected"

	// PhaseConnecting - an account request is outstanding in the wallet
	PhaseConnecting ConnectionPhase = "connecting"

	// PhaseConnected - an account and chain are bound and a signer is held
	PhaseConnected ConnectionPhase = "connected"

	// PhaseError - the last connection attempt failed; Reason carries why
	PhaseError ConnectionPhase = "error"
)

// ConnectionState is the single process-wide connection value.
// Account and ChainID are only set while Connected, Reason only in Error.
type ConnectionState struct {
	Phase   ConnectionPhase `json:"phase"`
	Account string          `json:"account,omitempty"`
	ChainID string          `json:"chain_id,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

// Disconnected returns the zero connection state.
func Disconnected() ConnectionState {
	return ConnectionState{Phase: PhaseDisconnected}
}

// Connecting returns the in-flight connection state.
func Connecting() ConnectionState {
	return ConnectionState{Phase: PhaseConnecting}
}

// Connected returns a bound connection state.
func Connected(account, chainID string) ConnectionState {
	return ConnectionState{Phase: PhaseConnected, Account: account, ChainID: chainID}
}

// Failed returns an error connection state with the given reason.
func Failed(reason string) ConnectionState {
	return ConnectionState{Phase: PhaseError, Reason: reason}
}

// IsConnected reports whether an account is bound.
func (s ConnectionState) IsConnected() bool {
	return s.Phase == PhaseConnected
}
