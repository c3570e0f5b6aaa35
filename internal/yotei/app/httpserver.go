package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/akatsune/yotei/common/version"
	"github.com/akatsune/yotei/internal/yotei/conversation"
	"github.com/akatsune/yotei/internal/yotei/pending"
)

// HTTPServer exposes Yotei's web surface: a landing endpoint, health/status,
// the calendar authorization flow, and the action callback used by
// interactive chat clients to deliver Confirm/Cancel button clicks.
// It is optional; the bot runs without it when HTTPAddr is empty.
type HTTPServer struct {
	addr      string
	users     userStore
	auth      authService
	machine   actionHandler
	startedAt time.Time
	server    *http.Server
	mux       *http.ServeMux
}

// userStore is the slice of the document store the HTTP surface needs.
type userStore interface {
	UserCount(ctx context.Context) (int, error)
	SetGoogleTokens(ctx context.Context, mxid string, tok *oauth2.Token) error
}

// authService issues consent URLs and exchanges authorization codes.
// The production implementation is *oauth.Service.
type authService interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// actionHandler resolves confirm/cancel decisions.
// The production implementation is *conversation.Machine.
type actionHandler interface {
	HandleAction(ctx context.Context, act conversation.ConfirmAction) (string, error)
}

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// statusResponse is returned by GET /status.
type statusResponse struct {
	Status     string    `json:"status"`
	Version    string    `json:"version"`
	Commit     string    `json:"commit"`
	BuildTime  string    `json:"build_time"`
	StartedAt  time.Time `json:"started_at"`
	UptimeSecs float64   `json:"uptime_seconds"`
	UserCount  int       `json:"user_count"`
}

// NewHTTPServer creates and configures the HTTP server (does not start it).
// auth may be nil when no OAuth credentials are configured; the auth routes
// then answer 503.
func NewHTTPServer(addr string, users userStore, auth authService, machine actionHandler) *HTTPServer {
	mux := http.NewServeMux()
	hs := &HTTPServer{
		addr:      addr,
		users:     users,
		auth:      auth,
		machine:   machine,
		startedAt: time.Now(),
		mux:       mux,
	}
	mux.HandleFunc("/", hs.handleLanding)
	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/status", hs.handleStatus)
	mux.HandleFunc("/auth", hs.handleAuth)
	mux.HandleFunc("/connect/callback", hs.handleAuthCallback)
	mux.HandleFunc("/action", hs.handleAction)
	return hs
}

// ServeHTTP implements http.Handler so the server can be tested without a
// live network listener (e.g. with httptest.NewRecorder).
func (h *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Start begins listening in the background. Blocks until the listener is
// established so the caller knows the port is open before returning.
func (h *HTTPServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("http server: listen %s: %w", h.addr, err)
	}

	h.server = &http.Server{
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String())
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}
	}()

	return nil
}

// Stop shuts down the HTTP server.
func (h *HTTPServer) Stop() {
	if h.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}
}

// handleLanding answers the bare root path so deployment platforms can probe
// the service.
func (h *HTTPServer) handleLanding(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	fmt.Fprint(w, "Connected to Yotei scheduling assistant")
}

// handleHealth responds with a simple ok JSON payload.
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

// handleStatus responds with runtime statistics.
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	userCount := 0
	if h.users != nil {
		if n, err := h.users.UserCount(r.Context()); err == nil {
			userCount = n
		}
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:     "ok",
		Version:    version.Version,
		Commit:     version.GitCommit,
		BuildTime:  version.BuildTime,
		StartedAt:  h.startedAt,
		UptimeSecs: time.Since(h.startedAt).Seconds(),
		UserCount:  userCount,
	})
}

// handleAuth redirects the user to the Google consent screen. The auth_id
// query parameter carries the chat user ID and is threaded through as the
// OAuth state so the callback knows whose tokens arrived.
func (h *HTTPServer) handleAuth(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		http.Error(w, "calendar authorization is not configured", http.StatusServiceUnavailable)
		return
	}
	state := r.URL.Query().Get("auth_id")
	if state == "" {
		http.Error(w, "auth_id query parameter is required", http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusFound)
}

// handleAuthCallback exchanges the authorization code for a token bundle and
// attaches it to the user named by the state parameter.
func (h *HTTPServer) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		http.Error(w, "calendar authorization is not configured", http.StatusServiceUnavailable)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "No code found, try again.", http.StatusBadRequest)
		return
	}

	tok, err := h.auth.Exchange(r.Context(), code)
	if err != nil {
		slog.Error("oauth: code exchange failed", "err", err)
		http.Error(w, "authorization code exchange failed", http.StatusBadGateway)
		return
	}

	if state := r.URL.Query().Get("state"); state != "" && h.users != nil {
		if err := h.users.SetGoogleTokens(r.Context(), state, tok); err != nil {
			slog.Warn("oauth: could not attach tokens to user", "user", state, "err", err)
		}
	}

	writeJSON(w, http.StatusOK, tok)
}

// handleAction decodes a Confirm/Cancel button click delivered as a
// form-encoded JSON payload field, resolves the pending request, and answers
// with the confirmation summary.
func (h *HTTPServer) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	act, err := decodeActionPayload(r.PostFormValue("payload"))
	if err != nil {
		slog.Warn("action: rejected payload", "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	summary, err := h.machine.HandleAction(r.Context(), *act)
	if err != nil {
		if errors.Is(err, pending.ErrNoPending) {
			// A decision with nothing to decide is a client/transport bug.
			http.Error(w, "no pending request for this user", http.StatusConflict)
			return
		}
		slog.Error("action: resolve failed", "user", act.UserID, "err", err)
		http.Error(w, "could not resolve the request", http.StatusInternalServerError)
		return
	}

	fmt.Fprint(w, summary)
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("http: failed to encode JSON response", "err", err)
	}
}
