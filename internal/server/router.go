package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"chequeo/internal/engine"
	"chequeo/internal/model"
	"chequeo/internal/record"
	"chequeo/internal/score"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ApiV1Router manages routes for API version 1: score computation, rule
// runs and the stored verdicts of an evaluation.
type ApiV1Router struct {
	// scores computes and summarizes capability/dimension scores.
	scores score.Service
	// rules runs rule bases and reads back verdicts.
	rules engine.Service
	// gatherer backs /metrics. Nil disables the endpoint.
	gatherer prometheus.Gatherer
}

// Mux returns a configured *http.ServeMux with registered handlers.
func (ar *ApiV1Router) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/evaluations/{evaluation}/scores/{capability}/{dimension}", ar.computeScoreHandler)
	mux.HandleFunc("POST /api/v1/evaluations/{evaluation}/scores", ar.computeAllHandler)
	mux.HandleFunc("GET /api/v1/evaluations/{evaluation}/scores/summary", ar.summaryHandler)
	mux.HandleFunc("DELETE /api/v1/evaluations/{evaluation}/scores", ar.clearScoresHandler)
	mux.HandleFunc("POST /api/v1/evaluations/{evaluation}/rules/run", ar.runRulesHandler)
	mux.HandleFunc("GET /api/v1/evaluations/{evaluation}/rules/results", ar.resultsHandler)
	mux.HandleFunc("DELETE /api/v1/evaluations/{evaluation}/rules/results", ar.clearResultsHandler)
	mux.HandleFunc("GET /api/v1/evaluations/{evaluation}/rules/runs", ar.runsHandler)
	mux.HandleFunc("GET /api/v1/evaluations/{evaluation}/insights", ar.insightsHandler)
	mux.HandleFunc("GET /health", ar.healthHandler)

	if ar.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(ar.gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

func (ar *ApiV1Router) computeScoreHandler(w http.ResponseWriter, r *http.Request) {
	ids, ok := pathIDs(w, r, "evaluation", "capability", "dimension")
	if !ok {
		return
	}
	result, err := ar.scores.ComputeScore(r.Context(), ids[0], ids[1], ids[2])
	respond(w, r, result, err)
}

func (ar *ApiV1Router) computeAllHandler(w http.ResponseWriter, r *http.Request) {
	evaluation(w, r, ar.scores.ComputeAll)
}

func (ar *ApiV1Router) summaryHandler(w http.ResponseWriter, r *http.Request) {
	evaluation(w, r, ar.scores.Summary)
}

func (ar *ApiV1Router) clearScoresHandler(w http.ResponseWriter, r *http.Request) {
	evaluation(w, r, ar.scores.Clear)
}

func (ar *ApiV1Router) runRulesHandler(w http.ResponseWriter, r *http.Request) {
	evaluation(w, r, ar.rules.Run)
}

func (ar *ApiV1Router) resultsHandler(w http.ResponseWriter, r *http.Request) {
	evaluation(w, r, ar.rules.Results)
}

func (ar *ApiV1Router) clearResultsHandler(w http.ResponseWriter, r *http.Request) {
	evaluation(w, r, ar.rules.Clear)
}

func (ar *ApiV1Router) insightsHandler(w http.ResponseWriter, r *http.Request) {
	evaluation(w, r, ar.rules.Insights)
}

func (ar *ApiV1Router) runsHandler(w http.ResponseWriter, r *http.Request) {
	evaluation(w, r, func(_ context.Context, id int64) ([]engine.RunSummary, error) {
		return ar.rules.History(id), nil
	})
}

func (ar *ApiV1Router) healthHandler(w http.ResponseWriter, r *http.Request) {
	respond(w, r, map[string]string{"status": "ok"}, nil)
}

// evaluation runs op for the {evaluation} path value and writes its result.
func evaluation[T any](w http.ResponseWriter, r *http.Request, op func(context.Context, int64) (T, error)) {
	ids, ok := pathIDs(w, r, "evaluation")
	if !ok {
		return
	}
	result, err := op(r.Context(), ids[0])
	respond(w, r, result, err)
}

// pathIDs parses positive integer path values. On failure it writes a 422
// and returns false.
func pathIDs(w http.ResponseWriter, r *http.Request, names ...string) ([]int64, bool) {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		raw := r.PathValue(name)
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			slog.Warn("Invalid path identifier", "name", name, "value", raw)
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "invalid " + name + " id '" + raw + "'"})
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

type errorBody struct {
	Error string `json:"error"`
}

// respond writes v as JSON, or the error with its mapped status.
func respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		status := statusOf(err)
		if status >= http.StatusInternalServerError {
			slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
		} else {
			slog.Warn("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
		}
		writeJSON(w, status, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// statusOf maps domain errors to HTTP statuses. A configuration error
// wrapping a NoDataError is still a configuration error.
func statusOf(err error) int {
	var storeErr *record.StoreError
	switch {
	case errors.Is(err, record.ErrNotFound):
		return http.StatusNotFound
	case model.IsConfiguration(err):
		return http.StatusBadRequest
	case model.IsNoData(err):
		return http.StatusUnprocessableEntity
	case errors.As(err, &storeErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Unable to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// NewApiV1Router creates a new API v1 router. gatherer may be nil.
func NewApiV1Router(scores score.Service, rules engine.Service, gatherer prometheus.Gatherer) *ApiV1Router {
	return &ApiV1Router{
		scores:   scores,
		rules:    rules,
		gatherer: gatherer,
	}
}
