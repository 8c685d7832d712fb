// Package api serves persisted topic models over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cognicore/topicmill/pkg/topicmill"
	"github.com/cognicore/topicmill/pkg/topicmill/internalerr"
	"github.com/cognicore/topicmill/pkg/topicmill/store"
)

// Runner starts a pipeline run for a corpus.
type Runner interface {
	Run(ctx context.Context, corpusID string) (topicmill.Result, error)
}

// Server holds the handler dependencies. Runner is optional; without it
// the run endpoint is not mounted.
type Server struct {
	Store  store.Store
	Runner Runner
	Logger zerolog.Logger
}

// ModelView is a model together with its ranked topics.
type ModelView struct {
	Model  store.Model   `json:"model"`
	Topics []store.Topic `json:"topics"`
}

// RunView reports a finished run.
type RunView struct {
	Outcome    internalerr.Outcome          `json:"outcome"`
	Error      string                       `json:"error,omitempty"`
	Model      *store.Model                 `json:"model,omitempty"`
	Topics     []store.Topic                `json:"topics,omitempty"`
	Candidates []topicmill.CandidateSummary `json:"candidates,omitempty"`
	Warnings   []string                     `json:"warnings,omitempty"`
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/corpora/{corpusID}", func(r chi.Router) {
		r.Get("/models", s.listModels)
		r.Get("/models/latest", s.latestModel)
		if s.Runner != nil {
			r.Post("/runs", s.startRun)
		}
	})
	r.Route("/models/{modelID}", func(r chi.Router) {
		r.Get("/", s.getModel)
		r.Delete("/", s.deleteModel)
		r.Get("/topics", s.topics)
		r.Get("/weights", s.weights)
	})
	r.Get("/topics/{topicID}/snippets", s.snippets)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	models, err := s.Store.ListModels(r.Context(), chi.URLParam(r, "corpusID"), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	if models == nil {
		models = []store.Model{}
	}
	writeJSON(w, http.StatusOK, models)
}

func (s *Server) latestModel(w http.ResponseWriter, r *http.Request) {
	corpusID := chi.URLParam(r, "corpusID")
	m, ok, err := s.Store.LatestModel(r.Context(), corpusID)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no model for corpus "+corpusID))
		return
	}
	s.writeModel(w, r, m)
}

func (s *Server) getModel(w http.ResponseWriter, r *http.Request) {
	m, err := s.Store.GetModel(r.Context(), chi.URLParam(r, "modelID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeModel(w, r, m)
}

func (s *Server) writeModel(w http.ResponseWriter, r *http.Request, m store.Model) {
	topics, err := s.Store.TopicsByModel(r.Context(), m.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ModelView{Model: m, Topics: topics})
}

func (s *Server) deleteModel(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteModel(r.Context(), chi.URLParam(r, "modelID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) topics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "modelID")
	if _, err := s.Store.GetModel(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	topics, err := s.Store.TopicsByModel(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

func (s *Server) weights(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "modelID")
	if _, err := s.Store.GetModel(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	weights, err := s.Store.DocumentWeights(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, weights)
}

func (s *Server) snippets(w http.ResponseWriter, r *http.Request) {
	snippets, err := s.Store.SnippetsByTopic(r.Context(), chi.URLParam(r, "topicID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if snippets == nil {
		snippets = []store.Snippet{}
	}
	writeJSON(w, http.StatusOK, snippets)
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	res, err := s.Runner.Run(r.Context(), chi.URLParam(r, "corpusID"))
	view := RunView{Outcome: internalerr.OutcomeOf(err), Candidates: res.Candidates}
	for _, warn := range res.Warnings {
		view.Warnings = append(view.Warnings, warn.Error())
	}
	if err != nil {
		view.Error = err.Error()
		s.Logger.Warn().Err(err).Str("outcome", string(view.Outcome)).Msg("run failed")
		writeJSON(w, runStatus(view.Outcome, err), view)
		return
	}
	view.Model = &res.Model
	view.Topics = res.Topics
	writeJSON(w, http.StatusCreated, view)
}

func runStatus(o internalerr.Outcome, err error) int {
	switch o {
	case internalerr.OutcomeInsufficientCorpus, internalerr.OutcomeDegenerateVocabulary, internalerr.OutcomeModelFitFailure:
		return http.StatusUnprocessableEntity
	case internalerr.OutcomeCanceled:
		return http.StatusServiceUnavailable
	}
	return statusFor(err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, internalerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, internalerr.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.Logger.Error().Err(err).Msg("store query failed")
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
