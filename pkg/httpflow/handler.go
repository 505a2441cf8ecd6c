// Package httpflow exposes an api.Executor over HTTP.
//
// Routes:
//
//	GET|POST /flows/{flowId}       launch a flow; request parameters become flow input
//	GET|POST /executions/{key}     resume a paused execution; _eventId selects the event
//
// Rendered view output is written as the response body. A flow-execution
// redirect is answered with 303 See Other pointing at the execution URL.
// Results without view output are returned as JSON.
package httpflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/petrijr/flowexec/pkg/api"
)

// KeyHeader carries the execution key of a paused result.
const KeyHeader = "X-Flow-Execution-Key"

// Handler serves flow launches and resumes.
type Handler struct {
	router      *mux.Router
	executor    api.Executor
	prefix      string
	application *api.AttributeMap
	logger      *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithPrefix mounts the routes below prefix, e.g. "/app".
func WithPrefix(prefix string) Option {
	return func(h *Handler) { h.prefix = strings.TrimRight(prefix, "/") }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler returns an http.Handler driving executor.
func NewHandler(executor api.Executor, opts ...Option) *Handler {
	h := &Handler{
		executor:    executor,
		application: api.NewAttributeMap(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	router := mux.NewRouter()
	sub := router.PathPrefix(h.prefix + "/").Subrouter()
	sub.HandleFunc("/flows/{flowId}", h.HandleLaunch).Methods(http.MethodGet, http.MethodPost)
	sub.HandleFunc("/executions/{key}", h.HandleResume).Methods(http.MethodGet, http.MethodPost)
	router.Use(h.loggingMiddleware)
	h.router = router
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// HandleLaunch starts the flow named by the flowId route variable.
func (h *Handler) HandleLaunch(w http.ResponseWriter, r *http.Request) {
	flowID := mux.Vars(r)["flowId"]
	ext, err := newExternalContext(r, h.application)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.executor.LaunchExecution(r.Context(), flowID, ext.input(), ext)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "launch_failed",
			slog.String("flow_id", flowID),
			slog.Any("error", err),
		)
		respondWithError(w, statusOf(err), err.Error())
		return
	}
	h.respond(w, r, ext, res)
}

// HandleResume resumes the execution named by the key route variable.
func (h *Handler) HandleResume(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	ext, err := newExternalContext(r, h.application)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.executor.ResumeExecution(r.Context(), key, ext)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "resume_failed",
			slog.String("key", key),
			slog.Any("error", err),
		)
		respondWithError(w, statusOf(err), err.Error())
		return
	}
	h.respond(w, r, ext, res)
}

// ExecutionURL returns the resume URL of a paused execution.
func (h *Handler) ExecutionURL(key string) string {
	return h.prefix + "/executions/" + key
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, ext *externalContext, res *api.Result) {
	if res.IsPaused() {
		w.Header().Set(KeyHeader, res.Key)
	}
	switch res.Redirect.Kind {
	case api.RedirectFlowExecution:
		if res.IsPaused() {
			http.Redirect(w, r, h.ExecutionURL(res.Key), http.StatusSeeOther)
			return
		}
	case api.RedirectExternal:
		http.Redirect(w, r, res.Redirect.Location, http.StatusSeeOther)
		return
	}
	if ext.body.Len() > 0 {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(ext.body.Bytes())
		return
	}
	respondWithJSON(w, http.StatusOK, resultBody(res))
}

type resultJSON struct {
	Status  api.ResultStatus `json:"status"`
	FlowID  string           `json:"flowId"`
	Key     string           `json:"key,omitempty"`
	Outcome string           `json:"outcome,omitempty"`
	Output  map[string]any   `json:"output,omitempty"`
}

func resultBody(res *api.Result) resultJSON {
	out := resultJSON{Status: res.Status, FlowID: res.FlowID, Key: res.Key}
	if res.Outcome != nil {
		out.Outcome = res.Outcome.ID
		out.Output = res.Outcome.Output
	}
	return out
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, api.ErrFlowNotFound),
		errors.Is(err, api.ErrNoSuchFlowExecution):
		return http.StatusNotFound
	case errors.Is(err, api.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, api.ErrExecutionLocked):
		return http.StatusConflict
	case api.IsMappingError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.logger.DebugContext(r.Context(), "http_request",
			slog.String("method", r.Method),
			slog.String("uri", r.RequestURI),
		)
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		code = http.StatusInternalServerError
		response, _ = json.Marshal(map[string]string{"error": fmt.Sprintf("encode response: %v", err)})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
