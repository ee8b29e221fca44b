// Package httpapi exposes the dispatcher and result relay over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/runoshun/termux-tasker/internal/domain"
	"github.com/runoshun/termux-tasker/internal/usecase"
)

// maxBodyBytes limits request bodies; results carry truncated output only.
const maxBodyBytes = 4 << 20

// Dispatcher runs the dispatch use case.
type Dispatcher interface {
	Execute(ctx context.Context, in usecase.DispatchExecutionInput) (*usecase.DispatchExecutionOutput, error)
}

// Relayer runs the relay use case.
type Relayer interface {
	Execute(ctx context.Context, in usecase.RelayResultInput) (*usecase.RelayResultOutput, error)
}

// PendingLister runs the list-pending use case.
type PendingLister interface {
	Execute(ctx context.Context, in usecase.ListPendingInput) (*usecase.ListPendingOutput, error)
}

// Middleware wraps the router, e.g. for request metrics.
type Middleware interface {
	Middleware(next http.Handler) http.Handler
}

// FireRequest is the body of POST /v1/fire.
type FireRequest struct {
	Bundle domain.Bundle        `json:"bundle"`
	Caller domain.CallerContext `json:"caller"`
}

// PendingEntry is one element of the GET /v1/pending response.
type PendingEntry struct {
	domain.PendingCallback
	AgeSeconds float64 `json:"ageSeconds"`
	Expired    bool    `json:"expired"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server holds the HTTP handlers.
type Server struct {
	dispatch   Dispatcher
	relay      Relayer
	pending    PendingLister
	metrics    http.Handler
	middleware Middleware
	logger     domain.Logger
	pendingTTL time.Duration
}

// Options configures a Server. Nil handlers disable their routes.
type Options struct {
	Dispatch   Dispatcher
	Relay      Relayer
	Pending    PendingLister
	Metrics    http.Handler
	Middleware Middleware
	Logger     domain.Logger
	PendingTTL time.Duration
}

// New creates a new Server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = domain.NopLogger{}
	}
	return &Server{
		dispatch:   opts.Dispatch,
		relay:      opts.Relay,
		pending:    opts.Pending,
		metrics:    opts.Metrics,
		middleware: opts.Middleware,
		logger:     logger,
		pendingTTL: opts.PendingTTL,
	}
}

// Handler returns the router with all routes registered.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.RegisterRoutes(r)
	if s.middleware != nil {
		r.Use(s.middleware.Middleware)
	}
	return r
}

// RegisterRoutes registers the API routes on router.
func (s *Server) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if s.dispatch != nil {
		router.HandleFunc("/v1/fire", s.fire).Methods(http.MethodPost)
	}
	if s.relay != nil {
		router.HandleFunc("/v1/callbacks/{code:[0-9]+}", s.callback).Methods(http.MethodPost)
	}
	if s.pending != nil {
		router.HandleFunc("/v1/pending", s.listPending).Methods(http.MethodGet)
	}
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
}

// healthz handles GET /healthz
func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fire handles POST /v1/fire
func (s *Server) fire(w http.ResponseWriter, r *http.Request) {
	var req FireRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Caller.ID == "" {
		req.Caller.ID = uuid.NewString()
	}

	out, err := s.dispatch.Execute(r.Context(), usecase.DispatchExecutionInput{
		Bundle: domain.NormalizeNumbers(req.Bundle),
		Caller: req.Caller,
	})
	if out == nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	reply := out.Reply
	reply.CallerID = req.Caller.ID
	writeJSON(w, statusForResultCode(reply.ResultCode), reply)
}

// callback handles POST /v1/callbacks/{code}
func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(mux.Vars(r)["code"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request code: %w", err))
		return
	}

	var payload domain.CallbackPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payload.RequestCode = code

	out, err := s.relay.Execute(r.Context(), usecase.RelayResultInput{Payload: payload})
	switch {
	case errors.Is(err, domain.ErrCallbackNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrMissingResult):
		writeError(w, http.StatusBadRequest, err)
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
	default:
		writeJSON(w, http.StatusOK, out.Reply)
	}
}

// listPending handles GET /v1/pending
func (s *Server) listPending(w http.ResponseWriter, r *http.Request) {
	out, err := s.pending.Execute(r.Context(), usecase.ListPendingInput{TTL: s.pendingTTL})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	entries := make([]PendingEntry, 0, len(out.Callbacks))
	for _, cb := range out.Callbacks {
		entries = append(entries, PendingEntry{
			PendingCallback: cb.PendingCallback,
			AgeSeconds:      cb.Age.Seconds(),
			Expired:         cb.Expired,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": entries,
		"count":   len(entries),
	})
}

// statusForResultCode maps a host result code to an HTTP status.
func statusForResultCode(code int) int {
	switch code {
	case domain.ResultCodeOK, domain.ResultCodePending:
		return http.StatusOK
	case domain.ResultCodeMalformedRequest:
		return http.StatusBadRequest
	case domain.ResultCodePolicyViolation:
		return http.StatusForbidden
	case domain.ResultCodeFileState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
