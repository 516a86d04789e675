package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/dustin/go-humanize"

	"votedesk.mini/vdk/internal/connection"
	"votedesk.mini/vdk/internal/poller"
	"votedesk.mini/vdk/internal/types"
)

// Stats are the dashboard counters.
type Stats struct {
	TotalVoters     int    `json:"total_voters"`
	TotalCandidates int    `json:"total_candidates"`
	TotalVotes      uint64 `json:"total_votes"`
	VotingOpen      bool   `json:"voting_open"`
}

// StateView is everything the dashboard renders.
type StateView struct {
	Connection types.ConnectionState `json:"connection"`
	Contract   string                `json:"contract"`
	Snapshot   *types.Snapshot       `json:"snapshot"`
	FetchedAgo string                `json:"fetched_ago,omitempty"`
	Error      string                `json:"error,omitempty"`
	Stats      Stats                 `json:"stats"`
	Actions    []types.PendingAction `json:"actions"`
}

// BuildState collects the current view from core.
func BuildState(core Core) StateView {
	snap, err := core.Snapshot()
	view := StateView{
		Connection: core.State(),
		Contract:   core.ContractAddress().Hex(),
		Snapshot:   snap,
		Actions:    core.Actions(),
	}
	if err != nil {
		view.Error = err.Error()
	}
	if snap != nil {
		view.FetchedAgo = humanize.Time(snap.FetchedAt)
		view.Stats = Stats{
			TotalVoters:     len(snap.Voters),
			TotalCandidates: len(snap.Candidates),
			TotalVotes:      snap.TotalVotes,
			VotingOpen:      snap.VotingOpen(),
		}
	}
	return view
}

// @Title: Get State
// @Route: GET /api/state
// @Description: Returns the wallet connection, the cached contract snapshot and tracked actions
// @Response: StateView object
func (s *Service) HandleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, BuildState(s.core))
}

// @Title: Connect Wallet
// @Route: POST /api/connect
// @Description: Asks the wallet for account access
// @Response: ConnectionState object, or an error with 409/403/503/502
func (s *Service) HandleConnect(w http.ResponseWriter, r *http.Request) {
	err := s.core.Connect(r.Context())
	if err != nil {
		status := connectStatus(err)
		s.logger.Info("api: connect failed", "status", status, "error", err)
		s.writeError(w, status, connectMessage(err))
		return
	}
	s.writeJSON(w, http.StatusOK, s.core.State())
}

func connectStatus(err error) int {
	switch {
	case errors.Is(err, connection.ErrWalletUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, connection.ErrConnectionPending):
		return http.StatusConflict
	case errors.Is(err, connection.ErrConnectionRejected):
		return http.StatusForbidden
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func connectMessage(err error) string {
	switch {
	case errors.Is(err, connection.ErrWalletUnavailable):
		return "No wallet is available. Configure a wallet mode to connect."
	case errors.Is(err, connection.ErrConnectionPending):
		return "A connection request is already pending. Please check your wallet."
	}
	return err.Error()
}

// @Title: Refresh Contract State
// @Route: POST /api/refresh
// @Description: Re-reads the contract now; joins a read already in progress
// @Response: Snapshot object
func (s *Service) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.core.Refresh(r.Context())
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, snap)
	case errors.Is(err, poller.ErrNoTarget):
		s.writeError(w, http.StatusConflict, "No contract is being polled. Please connect your wallet first.")
	case errors.Is(err, poller.ErrContractNotDeployed):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "Refresh is still running")
	default:
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}
