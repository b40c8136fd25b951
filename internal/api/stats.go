package api

import (
	"net/http"

	"github.com/seantiz/nutristat/internal/engine"
)

// statsResponse is the JSON response for GET /api/stats.
type statsResponse struct {
	NodeID string `json:"node_id"`
	engine.Stats
}

type taskInfo struct {
	Name       string `json:"name"`
	NeedsState bool   `json:"needs_state"`
}

type tasksResponse struct {
	Tasks []taskInfo `json:"tasks"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, statsResponse{
		NodeID: s.nodeID,
		Stats:  s.engine.Stats(),
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	kinds := s.registry.List()
	out := make([]taskInfo, len(kinds))
	for i, k := range kinds {
		out[i] = taskInfo{Name: string(k), NeedsState: k.NeedsState()}
	}
	s.writeJSON(w, http.StatusOK, tasksResponse{Tasks: out})
}
