package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/seantiz/nutristat/internal/engine"
	"github.com/seantiz/nutristat/internal/model"
)

// handleJobEvents streams a job's status records as server-sent events and
// finishes with a "done" event once the job has completed.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobIDParam(w, r, http.StatusNotFound)
	if !ok {
		return
	}

	if _, err := s.engine.Status(id); errors.Is(err, engine.ErrInvalidJobID) {
		s.writeJSON(w, http.StatusNotFound, statusReply{Status: replyError, Reason: reasonInvalidJobID})
		return
	}

	// Subscribe before taking the snapshot so no transition falls between.
	ch, unsub := s.engine.Broker().Subscribe(id)
	defer unsub()

	job, err := s.engine.Status(id)
	if err != nil {
		s.logger.Error("get job status for events", "job_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("set write deadline for SSE", "error", err)
	}

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}

	if err := writeSSEJob(w, job); err != nil {
		return
	}
	flush()
	sent := model.StatusOrder(job.Status)

	if job.Status == model.StatusCompleted {
		_ = writeSSEEvent(w, "done", "stream complete")
		flush()
		return
	}

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", "stream complete")
				flush()
				return
			}
			// The snapshot may already cover this transition.
			if model.StatusOrder(rec.Status) <= sent {
				continue
			}
			if err := writeSSEJob(w, &rec); err != nil {
				return
			}
			sent = model.StatusOrder(rec.Status)
			flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSEJob(w http.ResponseWriter, j *model.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return writeSSEData(w, string(data))
}

// writeSSEData writes a data event. Multi-line strings are split so that
// each segment gets its own "data:" prefix.
func writeSSEData(w http.ResponseWriter, line string) error {
	for seg := range strings.SplitSeq(line, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", seg); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
