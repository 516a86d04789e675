package api

import (
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"

	"votedesk.mini/vdk/internal/history"
	"votedesk.mini/vdk/internal/results"
)

// @Title: Get Results
// @Route: GET /api/results
// @Description: Returns candidates ranked by votes with their share and the current winner
// @Response: Summary object
func (s *Service) HandleResults(w http.ResponseWriter, r *http.Request) {
	snap, _ := s.core.Snapshot()
	s.writeJSON(w, http.StatusOK, results.Rank(snap))
}

// @Title: Get Tally History
// @Route: GET /api/history?limit=50
// @Description: Returns recorded tally changes, newest first
// @Response: Array of history entries
func (s *Service) HandleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := RecentHistory(s.history, queryInt(r, "limit", 0))
	if err != nil {
		s.logger.Error("api: read history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to read history")
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// EntryView is a recorded tally with its humanized age.
type EntryView struct {
	history.Entry
	Ago string `json:"ago"`
}

// RecentHistory reads up to limit entries, newest first.
func RecentHistory(hist History, limit int) ([]EntryView, error) {
	entries, err := hist.Recent(limit)
	if err != nil {
		return nil, err
	}
	out := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryView{Entry: e, Ago: humanize.Time(e.FetchedAt)})
	}
	return out, nil
}

// @Title: Get Candidate History
// @Route: GET /api/history/candidates/{id}?limit=50
// @Description: Returns one candidate's recorded vote counts, oldest first
// @Response: Array of {"fetched_at", "votes"}
func (s *Service) HandleCandidateHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		s.writeError(w, http.StatusBadRequest, "Invalid candidate id")
		return
	}
	points, err := s.history.Series(id, queryInt(r, "limit", 0))
	if err != nil {
		s.logger.Error("api: read candidate history", "candidate", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to read history")
		return
	}
	s.writeJSON(w, http.StatusOK, points)
}

// @Title: Get Notifications
// @Route: GET /api/notifications?limit=20
// @Description: Returns recent notifications, newest first
// @Response: Array of notification messages
func (s *Service) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.feed.GetRecent(queryInt(r, "limit", 20)))
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
