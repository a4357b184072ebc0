package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aretw0/chequeflow"
	"github.com/aretw0/chequeflow/pkg/domain"
	"github.com/aretw0/chequeflow/pkg/ports"
	"github.com/aretw0/chequeflow/pkg/session"
	"github.com/go-chi/chi/v5"
)

// Server exposes live sessions over HTTP.
type Server struct {
	Sessions *session.Manager
	Streams  *StreamManager
	journal  ports.Journal
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithJournal serves the audit trail under /sessions/{id}/journal.
func WithJournal(j ports.Journal) Option {
	return func(s *Server) { s.journal = j }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a server over the session manager.
func NewServer(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		Sessions: sessions,
		Streams:  NewStreamManager(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHandler creates the HTTP handler for the session manager.
func NewHandler(sessions *session.Manager, opts ...Option) http.Handler {
	return NewServer(sessions, opts...).Routes()
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(enableCORS)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/transitions", s.ListTransitions)
	r.Get("/operations", s.ListOperations)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Post("/", s.CreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.AbandonSession)
			r.Get("/view", s.GetView)
			r.Post("/dispatch/{operation}", s.Dispatch)
			r.Post("/back", s.GoBack)
			r.Post("/complete", s.Complete)
			r.Get("/journal", s.GetJournal)
			r.Get("/events", s.SubscribeEvents)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Chequeflow API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

type viewResponse struct {
	SessionID string `json:"session_id"`
	domain.ViewDescriptor
}

type ticketResponse struct {
	Operation domain.Operation `json:"operation"`
	Seq       uint64           `json:"seq"`
}

type errorResponse struct {
	Error  string             `json:"error"`
	Code   string             `json:"code,omitempty"`
	Result *chequeflow.Result `json:"result,omitempty"`
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":         "chequeflow-http",
		"version":     strings.TrimSpace(chequeflow.Version),
		"api_version": apiVersion,
	})
}

// ListTransitions handles GET /transitions.
func (s *Server) ListTransitions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, chequeflow.Transitions())
}

// ListOperations handles GET /operations.
func (s *Server) ListOperations(w http.ResponseWriter, r *http.Request) {
	ops := domain.Operations()
	out := make([]domain.Descriptor, 0, len(ops))
	for _, op := range ops {
		d, _ := domain.Describe(op)
		out = append(out, d)
	}
	s.writeJSON(w, http.StatusOK, out)
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Sessions.List())
}

// CreateSession handles POST /sessions.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	flow, err := s.Sessions.Create(r.Context(), body.SessionID)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	view, err := flow.CurrentView(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.publish(flow)
	s.writeJSON(w, http.StatusCreated, viewResponse{SessionID: flow.ID(), ViewDescriptor: view})
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	flow, err := s.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, flow.Snapshot())
}

// GetView handles GET /sessions/{id}/view.
func (s *Server) GetView(w http.ResponseWriter, r *http.Request) {
	flow, err := s.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	view, err := flow.CurrentView(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewResponse{SessionID: flow.ID(), ViewDescriptor: view})
}

// Dispatch handles POST /sessions/{id}/dispatch/{operation}.
// With ?async=true the call returns 202 as soon as the operation is in flight.
func (s *Server) Dispatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	op, err := domain.ParseOperation(chi.URLParam(r, "operation"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	var payload map[string]any
	if err := decodeBody(r, &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))

	var (
		flow   *chequeflow.Flow
		ticket *chequeflow.Ticket
	)
	err = s.Sessions.WithFlow(r.Context(), id, func(ctx context.Context, f *chequeflow.Flow) error {
		flow = f
		var err error
		ticket, err = f.Dispatch(ctx, op, payload)
		return err
	})
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.publish(flow)

	if async {
		go func() {
			<-ticket.Done()
			s.publish(flow)
		}()
		s.writeJSON(w, http.StatusAccepted, ticketResponse{Operation: ticket.Operation(), Seq: ticket.Seq()})
		return
	}

	res, err := ticket.Wait(r.Context())
	s.publish(flow)
	s.writeResult(w, res, err)
}

// GoBack handles POST /sessions/{id}/back and waits for the server's answer.
func (s *Server) GoBack(w http.ResponseWriter, r *http.Request) {
	var (
		flow *chequeflow.Flow
		res  chequeflow.Result
	)
	err := s.Sessions.WithFlow(r.Context(), chi.URLParam(r, "id"), func(ctx context.Context, f *chequeflow.Flow) error {
		flow = f
		var err error
		res, err = f.GoBack(ctx)
		return err
	})
	if flow != nil {
		s.publish(flow)
	}
	s.writeResult(w, res, err)
}

// Complete handles POST /sessions/{id}/complete.
func (s *Server) Complete(w http.ResponseWriter, r *http.Request) {
	var view domain.ViewDescriptor
	id := chi.URLParam(r, "id")
	err := s.Sessions.WithFlow(r.Context(), id, func(ctx context.Context, f *chequeflow.Flow) error {
		if err := f.Complete(ctx); err != nil {
			return err
		}
		s.publish(f)
		var err error
		view, err = f.CurrentView(ctx)
		return err
	})
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewResponse{SessionID: id, ViewDescriptor: view})
}

// AbandonSession handles DELETE /sessions/{id}.
func (s *Server) AbandonSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	flow, err := s.Sessions.Get(id)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	if err := s.Sessions.Close(r.Context(), id); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.publish(flow)
	s.Streams.Forget(id)
	w.WriteHeader(http.StatusNoContent)
}

// GetJournal handles GET /sessions/{id}/journal.
func (s *Server) GetJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, http.StatusNotImplemented, errors.New("journal not configured"))
		return
	}
	entries, err := s.journal.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// SubscribeEvents handles GET /sessions/{id}/events (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: streaming not supported")
		return
	}
	sessionID := chi.URLParam(r, "id")
	flow, err := s.Sessions.Get(sessionID)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(sessionID)
	defer cancel()
	s.logger.Info("SSE: subscribing to session updates", "session_id", sessionID)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	if initial, err := json.Marshal(domain.Diff(nil, flow.Snapshot())); err == nil {
		fmt.Fprintf(w, "data: %s\n\n", initial)
	}
	flusher.Flush()

	var watch []string
	if v := r.URL.Query().Get("watch"); v != "" {
		watch = strings.Split(v, ",")
	}

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE client disconnected", "session_id", sessionID)
			return
		case diff, ok := <-ch:
			if !ok {
				return
			}
			if !matches(diff, watch) {
				continue
			}
			msg, err := json.Marshal(diff)
			if err != nil {
				s.logger.Error("SSE: encode diff failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// matches reports whether the diff touches one of the watched fields.
// An empty watch list matches everything.
func matches(diff *domain.SnapshotDiff, watch []string) bool {
	if len(watch) == 0 {
		return true
	}
	for _, field := range watch {
		switch strings.TrimSpace(field) {
		case "top":
			if diff.Top != nil {
				return true
			}
		case "phase":
			if diff.Phase != nil {
				return true
			}
		case "stack":
			if diff.Stack != nil {
				return true
			}
		case "request_id":
			if diff.RequestID != nil {
				return true
			}
		case "slices":
			if len(diff.Slices) > 0 {
				return true
			}
		}
	}
	return false
}

func (s *Server) publish(flow *chequeflow.Flow) {
	s.Streams.PublishFrom(flow.ID(), flow.Snapshot)
}

func (s *Server) writeResult(w http.ResponseWriter, res chequeflow.Result, err error) {
	if err == nil {
		s.writeJSON(w, http.StatusOK, res)
		return
	}
	var nr *domain.NoRouteError
	if errors.As(err, &nr) {
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "no_route", Result: &res})
		return
	}
	s.writeError(w, statusFor(err), err)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	} else {
		s.logger.Warn("request rejected", "status", status, "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Code: errorCode(err)})
}

var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{domain.ErrSessionNotFound, "session_not_found", http.StatusNotFound},
	{domain.ErrUnknownOperation, "unknown_operation", http.StatusNotFound},
	{session.ErrSessionExists, "session_exists", http.StatusConflict},
	{domain.ErrOperationNotAllowed, "operation_not_allowed", http.StatusConflict},
	{domain.ErrNoRequestID, "no_request_id", http.StatusConflict},
	{domain.ErrRollbackInFlight, "rollback_in_flight", http.StatusConflict},
	{domain.ErrRollbackExhausted, "rollback_exhausted", http.StatusConflict},
	{domain.ErrOperationBusy, "operation_busy", http.StatusConflict},
	{domain.ErrAtStart, "at_start", http.StatusConflict},
	{domain.ErrNotComplete, "not_complete", http.StatusConflict},
	{domain.ErrHalted, "halted", http.StatusGone},
	{domain.ErrSessionClosed, "session_closed", http.StatusGone},
	{context.DeadlineExceeded, "timeout", http.StatusGatewayTimeout},
}

func statusFor(err error) int {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func errorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return ""
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
