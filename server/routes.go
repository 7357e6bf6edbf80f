package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/richinex/coursebot/llm"
	"github.com/richinex/coursebot/model"
	"github.com/richinex/coursebot/orchestration"
	"github.com/richinex/coursebot/vectorindex"
)

const maxBodyBytes = 64 << 10

// registerRoutes sets up all HTTP routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("GET /api/courses", s.handleCourses)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type queryResponse struct {
	Answer    string               `json:"answer"`
	Sources   []model.SourceRecord `json:"sources"`
	SessionID string               `json:"session_id"`
}

type coursesResponse struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}

type errorResponse struct {
	Error *orchestration.Error `json:"error"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, &orchestration.Error{
			Kind:      orchestration.KindInvalidQuery,
			Message:   "decoding request failed: " + err.Error(),
			Component: orchestration.ComponentOrchestrator,
		})
		return
	}

	res, err := s.answerer.Answer(r.Context(), req.SessionID, req.Query)
	if err != nil {
		var oe *orchestration.Error
		if !errors.As(err, &oe) {
			oe = &orchestration.Error{
				Kind:      orchestration.KindInternal,
				Message:   err.Error(),
				Component: orchestration.ComponentOrchestrator,
			}
		}
		writeError(w, statusFor(oe), oe)
		return
	}

	sources := res.Sources
	if sources == nil {
		sources = []model.SourceRecord{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Answer:    res.Answer,
		Sources:   sources,
		SessionID: res.SessionID,
	})
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	titles, err := s.catalog.CourseTitles(r.Context())
	if err != nil {
		var ie *vectorindex.Error
		if !errors.As(err, &ie) {
			kind := vectorindex.KindConnection
			if errors.Is(err, context.DeadlineExceeded) {
				kind = vectorindex.KindTimeout
			}
			err = &vectorindex.Error{Kind: kind, Op: "titles", Err: err}
		}
		oe := orchestration.Classify("listing courses", err)
		writeError(w, statusFor(oe), oe)
		return
	}
	if titles == nil {
		titles = []string{}
	}
	writeJSON(w, http.StatusOK, coursesResponse{TotalCourses: len(titles), CourseTitles: titles})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"ready": status == http.StatusOK, "checks": checks})
}

// statusFor maps an orchestration failure to an HTTP status.
func statusFor(e *orchestration.Error) int {
	switch {
	case e.Kind == orchestration.KindInvalidQuery || e.Kind == orchestration.KindInvalidParameters:
		return http.StatusBadRequest
	case e.Kind == string(llm.KindRateLimit):
		return http.StatusTooManyRequests
	case e.Kind == orchestration.KindTimeout:
		return http.StatusGatewayTimeout
	case e.Component == orchestration.ComponentLLMService:
		return http.StatusBadGateway
	case e.Component == orchestration.ComponentVectorIndex || e.Component == orchestration.ComponentSessionStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, e *orchestration.Error) {
	writeJSON(w, status, errorResponse{Error: e})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
