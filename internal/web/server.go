// Package web serves the chat widget backend: a small JSON API, a websocket
// chat channel and the metrics endpoint.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/felixgeelhaar/mnemo/internal/command"
	"github.com/felixgeelhaar/mnemo/internal/observe"
	"github.com/felixgeelhaar/mnemo/internal/session"
	"github.com/felixgeelhaar/mnemo/internal/store"
	"github.com/felixgeelhaar/mnemo/internal/transcript"
)

//go:embed static/index.html
var static embed.FS

// Runtime is what the web surface needs from runtime.Runtime.
type Runtime interface {
	command.Runtime
	History(ctx context.Context, sessionID string) ([]transcript.Turn, error)
}

type Options struct {
	// ExportDir receives /save exports.
	ExportDir string
	// Catalog, when set, records opened sessions.
	Catalog store.Storage
	Metrics *observe.Metrics
}

type Server struct {
	rt       Runtime
	dispatch *command.Dispatcher
	catalog  store.Storage
	metrics  *observe.Metrics
	observe  *observe.Observer
	upgrader websocket.Upgrader
	router   chi.Router
}

func New(rt Runtime, o *observe.Observer, opts Options) *Server {
	if o == nil {
		o = observe.Discard()
	}
	s := &Server{
		rt:       rt,
		dispatch: command.New(rt, opts.ExportDir),
		catalog:  opts.Catalog,
		metrics:  opts.Metrics,
		observe:  o,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.requestLogger, middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/ws", s.handleSocket)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleOpen)
		r.Get("/{name}/history", s.handleHistory)
		r.Post("/{name}/messages", s.handleMessage)
		r.Delete("/{name}", s.handleDelete)
	})
	return r
}

// Handler returns the root handler with all routes mounted.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.observe.Log().Info().Str("addr", addr).Msg("web server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down web server: %w", err)
		}
		return nil
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.observe.Log().Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("duration", time.Since(start).String()).
			Msg("request")
	})
}

// Opened describes a session after it was opened from the widget.
type Opened struct {
	Session  string            `json:"session"`
	Name     string            `json:"name"`
	Restored bool              `json:"restored"`
	History  []transcript.Turn `json:"history"`
	// Messages are shown before the history, e.g. greeting and help.
	Messages []string `json:"messages"`
}

// Open restores the named web session, or starts it with a greeting and the
// command list when it has no history yet.
func (s *Server) Open(ctx context.Context, name string) (*Opened, error) {
	key, err := session.WebKey(name)
	if err != nil {
		return nil, err
	}
	display := strings.TrimSpace(name)

	if s.catalog != nil {
		if _, _, err := s.catalog.EnsureSession(key, display); err != nil {
			return nil, fmt.Errorf("failed to record session: %w", err)
		}
	}

	history, err := s.rt.History(ctx, key)
	if err != nil {
		return nil, err
	}

	out := &Opened{Session: key, Name: display, History: history, Restored: len(history) > 0}
	if out.Restored {
		out.Messages = []string{fmt.Sprintf("Welcome back, %s! Here is your chat history:", display)}
	} else {
		out.Messages = []string{fmt.Sprintf("Hello, %s!", display), command.HelpText}
	}
	return out, nil
}

// Reply is the outcome of one chat line.
type Reply struct {
	Reply string `json:"reply"`
	Error bool   `json:"error,omitempty"`
	Exit  bool   `json:"exit,omitempty"`
}

// Send dispatches one chat line for the named web session. Turn failures
// come back as an error Reply; the returned error is only set for bad input.
func (s *Server) Send(ctx context.Context, name, message string) (Reply, error) {
	key, err := session.WebKey(name)
	if err != nil {
		return Reply{}, err
	}
	if strings.TrimSpace(message) == "" {
		return Reply{}, errEmptyMessage
	}

	res, err := s.dispatch.Dispatch(ctx, key, message)
	if err != nil {
		s.observe.Log().Warn().Str("session", key).Err(err).Msg("chat turn failed")
		return Reply{Reply: command.ErrorReply(err), Error: true}, nil
	}
	s.touch(key, strings.TrimSpace(name))
	return Reply{Reply: res.Reply, Exit: res.Exit}, nil
}

func (s *Server) touch(key, display string) {
	if s.catalog == nil {
		return
	}
	err := s.catalog.TouchSession(key)
	if errors.Is(err, store.ErrNotFound) {
		_, _, err = s.catalog.EnsureSession(key, display)
	}
	if err != nil {
		s.observe.Log().Warn().Str("session", key).Err(err).Msg("failed to update session catalog")
	}
}

var errEmptyMessage = errors.New("message is required")

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

type openRequest struct {
	Name string `json:"name"`
}

type messageRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var in openRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opened, err := s.Open(r.Context(), in.Name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, opened)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	key, err := session.WebKey(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	history, err := s.rt.History(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": key, "history": history})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var in messageRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reply, err := s.Send(r.Context(), chi.URLParam(r, "name"), in.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key, err := session.WebKey(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.rt.ClearSession(r.Context(), key); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if s.catalog != nil {
		if err := s.catalog.DeleteSession(key); err != nil && !errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	if errors.Is(err, session.ErrEmptyName) || errors.Is(err, errEmptyMessage) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
