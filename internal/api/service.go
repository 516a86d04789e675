package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"votedesk.mini/vdk/internal/history"
	"votedesk.mini/vdk/internal/notify"
	"votedesk.mini/vdk/internal/types"
)

// Core is the voting client the API drives.
type Core interface {
	State() types.ConnectionState
	Connect(ctx context.Context) error
	Snapshot() (*types.Snapshot, error)
	Refresh(ctx context.Context) (*types.Snapshot, error)
	Submit(ctx context.Context, kind types.ActionKind, payload types.Payload) (types.PendingAction, error)
	Actions() []types.PendingAction
	Dismiss(kind types.ActionKind) bool
	ContractAddress() common.Address
}

// History is the tally archive behind /api/history.
type History interface {
	Recent(limit int) ([]history.Entry, error)
	Series(candidateID uint64, limit int) ([]history.Point, error)
}

// DefaultSubmitTimeout bounds how long a submission may wait for its
// confirmation once the client has gone away.
const DefaultSubmitTimeout = 5 * time.Minute

// Service handles API requests
type Service struct {
	core          Core
	history       History
	feed          *notify.Feed
	logger        *slog.Logger
	submitTimeout time.Duration
}

// NewService creates a new API service
func NewService(core Core, hist History, feed *notify.Feed, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		core:          core,
		history:       hist,
		feed:          feed,
		logger:        logger,
		submitTimeout: DefaultSubmitTimeout,
	}
}

// writeJSON writes a JSON response
func (s *Service) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("api: write response", "error", err)
	}
}

// writeError writes a JSON error response
func (s *Service) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
