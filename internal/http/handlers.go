package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repoqa/internal/answer"
	"github.com/fyrsmithlabs/repoqa/internal/fetch"
	"github.com/fyrsmithlabs/repoqa/internal/indexer"
	"github.com/fyrsmithlabs/repoqa/internal/retrieval"
	"github.com/fyrsmithlabs/repoqa/internal/session"
)

// IndexRequest is the request body for POST /api/v1/index.
type IndexRequest struct {
	RepoURL string `json:"repo_url"`
}

// IndexResponse is the response body for POST /api/v1/index.
type IndexResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// StatusResponse is the response body for GET /api/v1/status/:id.
type StatusResponse struct {
	SessionID string           `json:"session_id"`
	RepoURL   string           `json:"repo_url"`
	Status    string           `json:"status"`
	Message   string           `json:"message"`
	Progress  int              `json:"progress"`
	Stats     session.Stats    `json:"stats"`
	Error     *session.Failure `json:"error,omitempty"`
}

// QueryRequest is the request body for POST /api/v1/query.
type QueryRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	TopK      int    `json:"top_k,omitempty"`
}

// QueryResponse is the response body for POST /api/v1/query.
type QueryResponse struct {
	Answer     string          `json:"answer"`
	Confidence string          `json:"confidence"`
	Sources    []answer.Source `json:"sources"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleIndex validates the repository URL, creates a session, and kicks
// off indexing in the background. The client polls status afterwards.
func (s *Server) handleIndex(c echo.Context) error {
	var req IndexRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RepoURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "repo_url field is required")
	}
	if err := fetch.ValidateURL(req.RepoURL); err != nil {
		s.logger.Warn("rejected repository url",
			zap.String("repo_url", req.RepoURL),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sess := s.sessions.Create(req.RepoURL)
	s.metrics.sessionsCreated.Inc()
	s.indexer.Start(sess.ID, req.RepoURL)

	return c.JSON(http.StatusAccepted, IndexResponse{
		SessionID: sess.ID,
		Status:    sess.State.ExternalStatus(),
		Message:   sess.Message,
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	sess, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	return c.JSON(http.StatusOK, StatusResponse{
		SessionID: sess.ID,
		RepoURL:   sess.RepoURL,
		Status:    sess.State.ExternalStatus(),
		Message:   sess.Message,
		Progress:  sess.Progress,
		Stats:     sess.Stats,
		Error:     sess.Failure,
	})
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id field is required")
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}

	ctx := c.Request().Context()
	hits, err := s.engine.Retrieve(ctx, req.SessionID, req.Question, req.TopK)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		case errors.Is(err, session.ErrSessionNotReady):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, retrieval.ErrModelMismatch):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, retrieval.ErrEmptyQuery):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("retrieval failed",
				zap.String("session_id", req.SessionID),
				zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "retrieval failed")
		}
	}

	result, err := s.synthesizer.Synthesize(ctx, req.Question, hits)
	if err != nil {
		s.logger.Error("answer synthesis failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "answer synthesis failed")
	}

	s.metrics.queriesTotal.WithLabelValues(string(result.Confidence)).Inc()
	return c.JSON(http.StatusOK, QueryResponse{
		Answer:     result.Answer,
		Confidence: string(result.Confidence),
		Sources:    result.Sources,
	})
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	id := c.Param("id")
	if err := s.indexer.Evict(c.Request().Context(), id); err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		case errors.Is(err, indexer.ErrSessionRunning):
			return echo.NewHTTPError(http.StatusConflict, "session is still indexing")
		default:
			s.logger.Error("session eviction failed",
				zap.String("session_id", id),
				zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "eviction failed")
		}
	}
	return c.NoContent(http.StatusNoContent)
}
