package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/nutristat/internal/engine"
	"github.com/seantiz/nutristat/internal/model"
	"github.com/seantiz/nutristat/internal/tasks"
)

const maxBodySize = 1 << 20 // 1 MB

// Values of the "status" field in job responses.
const (
	replyDone    = "done"
	replyRunning = "running"
	replyError   = "error"
)

const (
	reasonShuttingDown = "shutting down"
	reasonInvalidJobID = "Invalid job_id"
)

// submitRequest is the JSON body for POST /api/<task>.
type submitRequest struct {
	Question string `json:"question"`
	State    string `json:"state"`
}

type submitResponse struct {
	JobID int64 `json:"job_id"`
}

// statusReply is the envelope used by the polling endpoints.
type statusReply struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type numJobsResponse struct {
	Status        string `json:"status"`
	RemainingJobs int    `json:"remaining_jobs"`
}

// handleSubmit queues a job of the kind named by the {kind} URL parameter.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	kind, err := tasks.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	if s.engine.ShuttingDown() {
		s.writeJSON(w, http.StatusServiceUnavailable, statusReply{Status: replyError, Reason: reasonShuttingDown})
		return
	}

	var req submitRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	args := tasks.Args{State: req.State, Question: req.Question}
	if err := args.Validate(kind); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.engine.Submit(r.Context(), kind, args)
	if errors.Is(err, engine.ErrShuttingDown) {
		s.writeJSON(w, http.StatusServiceUnavailable, statusReply{Status: replyError, Reason: reasonShuttingDown})
		return
	}
	if err != nil {
		s.logger.Error("submit job", "task_type", kind, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}

	s.logger.Info("job accepted", "job_id", id, "task_type", kind)
	s.writeJSON(w, http.StatusOK, submitResponse{JobID: id})
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	// Invalid ids are answered with 200 and an error body, as polling
	// clients expect.
	id, ok := s.jobIDParam(w, r, http.StatusOK)
	if !ok {
		return
	}

	result, err := s.engine.Result(r.Context(), id)
	switch {
	case errors.Is(err, engine.ErrInvalidJobID):
		s.logger.Warn("invalid job id", "job_id", id)
		s.writeJSON(w, http.StatusOK, statusReply{Status: replyError, Reason: reasonInvalidJobID})
	case errors.Is(err, engine.ErrNotReady):
		s.writeJSON(w, http.StatusOK, statusReply{Status: replyRunning})
	case err != nil:
		s.logger.Error("get results", "job_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read result")
	default:
		s.writeJSON(w, http.StatusOK, statusReply{Status: replyDone, Data: result})
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := s.engine.List()
	data := make([]map[string]*model.Job, len(jobs))
	for i, j := range jobs {
		data[i] = map[string]*model.Job{strconv.FormatInt(j.ID, 10): j}
	}
	s.writeJSON(w, http.StatusOK, statusReply{Status: replyDone, Data: data})
}

func (s *Server) handleNumJobs(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, numJobsResponse{
		Status:        replyDone,
		RemainingJobs: s.engine.Remaining(),
	})
}

// handleGracefulShutdown stops accepting jobs and waits for the workers to
// drain the queue. The HTTP server keeps serving status queries afterwards.
func (s *Server) handleGracefulShutdown(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("graceful shutdown requested", "remaining_jobs", s.engine.Remaining())

	if err := s.engine.Shutdown(r.Context()); err != nil {
		s.logger.Warn("graceful shutdown interrupted", "error", err)
	}

	status := replyDone
	if s.engine.Remaining() > 0 {
		status = replyRunning
	}
	s.writeJSON(w, http.StatusOK, statusReply{Status: status})
}

// jobIDParam parses the {job_id} URL parameter. Unparsable ids are answered
// like ids that were never issued, with the given status code.
func (s *Server) jobIDParam(w http.ResponseWriter, r *http.Request, invalidStatus int) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "job_id"), 10, 64)
	if err != nil {
		s.writeJSON(w, invalidStatus, statusReply{Status: replyError, Reason: reasonInvalidJobID})
		return 0, false
	}
	return id, true
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
