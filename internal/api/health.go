package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type healthResponse struct {
	Status string `json:"status"`
	NodeID string `json:"node_id"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", NodeID: s.nodeID})
}

// handleIndex lists every registered route as plain text, with the task
// route expanded to one line per registered kind.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	var b strings.Builder
	b.WriteString("nutristat routes:\n")
	err := chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if !strings.Contains(route, "{kind}") {
			fmt.Fprintf(&b, "%-7s %s\n", method, route)
			return nil
		}
		for _, k := range s.registry.List() {
			fmt.Fprintf(&b, "%-7s %s\n", method, strings.Replace(route, "{kind}", string(k), 1))
		}
		return nil
	})
	if err != nil {
		s.logger.Error("walk routes", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list routes")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.String()))
}
