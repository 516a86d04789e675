package api

import (
	"fmt"
	"net/http"
	"os"
	"runtime"

	"votedesk.mini/vdk/internal/types"
)

// @Title: Get Health
// @Route: GET /api/health
// @Description: Returns server health status
// @Response: {"status": "ok"}
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// @Title: Get Version
// @Route: GET /api/version
// @Description: Returns the vdk version and the contract it is bound to
// @Response: {"version": "...", "status": "ok", "contract": "0x..."}
func (s *Service) HandleVersion(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()

	response := map[string]string{
		"version":  types.Version,
		"status":   "ok",
		"hostname": hostname,
		"go_ver":   runtime.Version(),
		"os_arch":  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		"contract": s.core.ContractAddress().Hex(),
	}
	if types.BuildTime != "" {
		response["build_time"] = types.BuildTime
	}

	s.writeJSON(w, http.StatusOK, response)
}
