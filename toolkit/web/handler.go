package web

import (
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aperturerobotics/go-jsdos/internal/logging"
	"github.com/aperturerobotics/go-jsdos/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

//go:embed static/index.html
var indexHTML []byte

// ErrLocatorDenied is returned by a LocatorPolicy to reject a bundle.
var ErrLocatorDenied = errors.New("bundle locator not allowed")

// LocatorPolicy vets bundle locators submitted by pages.
type LocatorPolicy func(locator string) error

type handler struct {
	toolkit  *Toolkit
	registry *session.Registry
	logger   *slog.Logger
	policy   LocatorPolicy
	upgrader websocket.Upgrader
}

// HandlerOption configures NewHandler.
type HandlerOption func(*handler)

// WithHandlerLogger configures a logger for request handling.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *handler) {
		h.logger = logger
	}
}

// WithLocatorPolicy restricts which locators pages may run.
func WithLocatorPolicy(policy LocatorPolicy) HandlerOption {
	return func(h *handler) {
		h.policy = policy
	}
}

// WithCheckOrigin sets the origin check for the websocket and the API.
func WithCheckOrigin(check func(r *http.Request) bool) HandlerOption {
	return func(h *handler) {
		h.upgrader.CheckOrigin = check
	}
}

type runRequest struct {
	Bundle string `json:"bundle"`
}

type statusResponse struct {
	Root    string `json:"root"`
	State   string `json:"state"`
	Clients int    `json:"clients"`
	Error   string `json:"error,omitempty"`
}

// NewHandler serves the page and session API for sessions in registry.
// The registry's controllers must be built on toolkit.
//
//	GET  /                          page
//	GET  /ws/{root}                 surface websocket
//	GET  /api/sessions/{root}       session state
//	POST /api/sessions/{root}/run   {"bundle": locator}
//	POST /api/sessions/{root}/stop
//
// API requests from another origin are refused and run requires an
// application/json body.
func NewHandler(toolkit *Toolkit, registry *session.Registry, opts ...HandlerOption) http.Handler {
	h := &handler{
		toolkit:  toolkit,
		registry: registry,
		logger:   logging.NewNop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
		},
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Get("/", h.index)
	r.Get("/ws/{root}", h.serveWS)

	api := r.With(h.requireOrigin)
	api.Get("/api/sessions/{root}", h.status)
	api.With(middleware.AllowContentType("application/json")).
		Post("/api/sessions/{root}/run", h.run)
	api.Post("/api/sessions/{root}/stop", h.stop)
	return r
}

// requireOrigin rejects API requests from other origins, using the same
// check as the websocket upgrade.
func (h *handler) requireOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		check := h.upgrader.CheckOrigin
		if check == nil {
			check = sameOrigin
		}
		if !check(r) {
			h.logger.Warn("cross-origin api request", "origin", r.Header.Get("Origin"), "path", r.URL.Path)
			http.Error(w, "Forbidden origin", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sameOrigin accepts requests without an Origin header or whose Origin
// host matches the request host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (h *handler) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (h *handler) controller(r *http.Request) *session.Controller {
	return h.registry.Get(chi.URLParam(r, "root"))
}

func (h *handler) serveWS(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(r)
	surf, ok := ctrl.Surface().(*Surface)
	if !ok {
		http.Error(w, "session surface is not a web surface", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	surf.serve(conn)
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w, http.StatusOK, h.controller(r), nil)
}

func (h *handler) run(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(r)

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Bundle == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if h.policy != nil {
		if err := h.policy(req.Bundle); err != nil {
			h.writeStatus(w, http.StatusForbidden, ctrl, err)
			return
		}
	}

	if _, err := ctrl.Run(r.Context(), req.Bundle); err != nil {
		h.logger.Warn("run failed", "root", ctrl.Root(), "bundle", req.Bundle, "err", err)
		h.writeStatus(w, http.StatusBadGateway, ctrl, err)
		return
	}
	h.writeStatus(w, http.StatusOK, ctrl, nil)
}

func (h *handler) stop(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(r)
	if err := ctrl.Stop(r.Context()); err != nil {
		h.logger.Warn("stop failed", "root", ctrl.Root(), "err", err)
		h.writeStatus(w, http.StatusBadGateway, ctrl, err)
		return
	}
	h.writeStatus(w, http.StatusOK, ctrl, nil)
}

func (h *handler) writeStatus(w http.ResponseWriter, code int, ctrl *session.Controller, err error) {
	resp := statusResponse{
		Root:  ctrl.Root(),
		State: ctrl.State().String(),
	}
	if surf, ok := ctrl.Surface().(*Surface); ok {
		resp.Clients = surf.ClientCount()
	}
	if err != nil {
		resp.Error = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Debug("encode status", "err", err)
	}
}
