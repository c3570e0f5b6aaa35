// Package app wires the Yotei scheduling assistant together: the Matrix
// transport, the NLU provider, the conversation state machine, the SQLite
// document store, and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"maunium.net/go/mautrix/event"

	"github.com/akatsune/yotei/internal/yotei/conversation"
	"github.com/akatsune/yotei/internal/yotei/matrix"
	"github.com/akatsune/yotei/internal/yotei/nlu"
	"github.com/akatsune/yotei/internal/yotei/oauth"
	"github.com/akatsune/yotei/internal/yotei/pending"
	"github.com/akatsune/yotei/internal/yotei/store"
)

// MatrixConfig is the transport section of the application configuration.
type MatrixConfig struct {
	Homeserver  string   `yaml:"homeserver"`
	UserID      string   `yaml:"user_id"`
	AccessToken string   `yaml:"access_token"`
	Rooms       []string `yaml:"rooms"`
}

// NLUConfig is the classification-service section.
type NLUConfig struct {
	AccessToken string        `yaml:"access_token"`
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	// RateLimit is the maximum classification calls per user per minute.
	RateLimit int `yaml:"rate_limit"`
}

// OAuthConfig is the calendar-authorization section. All three fields must be
// set for the auth routes to be enabled.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// Config holds application configuration.
type Config struct {
	DatabasePath string       `yaml:"database_path"`
	HTTPAddr     string       `yaml:"http_addr"`
	Language     string       `yaml:"language"`
	Matrix       MatrixConfig `yaml:"matrix"`
	NLU          NLUConfig    `yaml:"nlu"`
	OAuth        OAuthConfig  `yaml:"oauth"`
}

// App is the assembled Yotei application.
type App struct {
	config     *Config
	store      *store.Store
	matrix     *matrix.Client
	machine    *conversation.Machine
	httpServer *HTTPServer
}

// New creates a Yotei application from configuration.
func New(config *Config) (*App, error) {
	slog.Info("opening database", "path", config.DatabasePath)
	st, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Inject the DB so the transport can persist the sync token and the
	// pending store can journal outstanding confirmations across restarts.
	matrixClient, err := matrix.New(&matrix.Config{
		Homeserver:  config.Matrix.Homeserver,
		UserID:      config.Matrix.UserID,
		AccessToken: config.Matrix.AccessToken,
		Rooms:       config.Matrix.Rooms,
		DB:          st.DB(),
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize Matrix client: %w", err)
	}

	pendingStore, err := pending.NewWithJournal(context.Background(), st.PendingJournal())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize pending store: %w", err)
	}

	provider := nlu.New(nlu.Config{
		AccessToken: config.NLU.AccessToken,
		BaseURL:     config.NLU.BaseURL,
		Timeout:     config.NLU.Timeout,
		Language:    config.Language,
	})

	machine := conversation.NewMachine(conversation.Config{
		Pending:  pendingStore,
		Provider: provider,
		Sender:   &matrixSender{client: matrixClient},
		Limiter:  nlu.NewRateLimiter(config.NLU.RateLimit, time.Minute),
		Language: config.Language,
	})

	// Calendar authorization is optional; without credentials the auth
	// routes answer 503 and the bot still proposes and confirms requests.
	var authSvc *oauth.Service
	if config.OAuth.ClientID != "" && config.OAuth.ClientSecret != "" {
		authSvc = oauth.New(oauth.Config{
			ClientID:     config.OAuth.ClientID,
			ClientSecret: config.OAuth.ClientSecret,
			RedirectURL:  config.OAuth.RedirectURL,
		})
		slog.Info("calendar authorization ready", "redirect", config.OAuth.RedirectURL)
	} else {
		slog.Info("calendar authorization not configured; auth routes disabled")
	}

	var httpServer *HTTPServer
	if config.HTTPAddr != "" {
		// A nil *oauth.Service must stay a nil interface inside the server.
		var auth authService
		if authSvc != nil {
			auth = authSvc
		}
		httpServer = NewHTTPServer(config.HTTPAddr, st, auth, machine)
		slog.Info("http server configured", "addr", config.HTTPAddr)
	}

	return &App{
		config:     config,
		store:      st,
		matrix:     matrixClient,
		machine:    machine,
		httpServer: httpServer,
	}, nil
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Start(ctx); err != nil {
			slog.Warn("http server failed to start; continuing without it", "err", err)
		}
	}

	slog.Info("starting Matrix sync")
	if err := a.matrix.Start(ctx, a.handleMessage); err != nil {
		return fmt.Errorf("failed to start Matrix client: %w", err)
	}

	for _, roomID := range a.config.Matrix.Rooms {
		a.matrix.SendNotice(roomID, "✅ Yotei is listening. Tell me about a meeting or a reminder.")
	}

	slog.Info("Yotei is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop stops the application.
func (a *App) Stop() {
	slog.Info("stopping Matrix client")
	a.matrix.Stop()

	if a.httpServer != nil {
		slog.Info("stopping http server")
		a.httpServer.Stop()
	}

	slog.Info("closing database")
	a.store.Close()
}

// handleMessage routes one incoming Matrix message. A user awaiting
// confirmation may answer with a bare decision word; everything else goes
// through the conversation state machine.
func (a *App) handleMessage(ctx context.Context, evt *event.Event) {
	msgContent := evt.Content.AsMessage()
	if msgContent == nil {
		return
	}

	userID := evt.Sender.String()
	roomID := evt.RoomID.String()
	text := msgContent.Body

	// Make sure a user record exists before the conversation advances; the
	// commit step and the auth flow both key off it.
	if _, err := a.store.FindOrCreateUser(ctx, userID); err != nil {
		slog.Warn("could not ensure user record", "user", userID, "err", err)
	}

	if a.machine.HasPending(userID) {
		if decision, err := conversation.ParseDecision(text); err == nil {
			a.handleDecision(ctx, userID, roomID, decision)
			return
		}
		// Not a decision word: fall through, which yields the block notice.
	}

	if err := a.machine.HandleMessage(ctx, conversation.InboundMessage{
		UserID:    userID,
		ChannelID: roomID,
		Text:      text,
	}); err != nil {
		slog.Error("failed to handle message", "user", userID, "room", roomID, "err", err)
	}
}

// handleDecision resolves a typed confirm/cancel reply and posts the summary.
func (a *App) handleDecision(ctx context.Context, userID, roomID string, decision conversation.Decision) {
	summary, err := a.machine.HandleAction(ctx, conversation.ConfirmAction{
		UserID:    userID,
		ChannelID: roomID,
		Decision:  decision,
	})
	if err != nil {
		if errors.Is(err, pending.ErrNoPending) {
			// Raced with the HTTP action callback; the request is already
			// resolved, so tell the user rather than staying silent.
			a.sendText(roomID, "That request was already resolved.")
			return
		}
		slog.Error("failed to resolve decision", "user", userID, "err", err)
		a.sendText(roomID, conversation.FailureMessage)
		return
	}
	a.sendText(roomID, summary)
}

func (a *App) sendText(roomID, text string) {
	if err := a.matrix.SendMessage(roomID, text); err != nil {
		slog.Error("failed to send message", "room", roomID, "err", err)
	}
}

// matrixSender adapts the Matrix client to the conversation.Sender interface.
// Matrix has no native button affordance, so the confirm/cancel choices are
// rendered as a formatted suffix naming the accepted reply words.
type matrixSender struct {
	client *matrix.Client
}

func (s *matrixSender) Send(ctx context.Context, r conversation.Reply) error {
	if len(r.Choices) == 0 {
		return s.client.SendMessage(r.ChannelID, r.Text)
	}

	labels := make([]string, 0, len(r.Choices))
	html := make([]string, 0, len(r.Choices))
	for _, c := range r.Choices {
		labels = append(labels, c.Label)
		html = append(html, "<strong>"+c.Label+"</strong>")
	}

	plain := fmt.Sprintf("%s\n\nReply %s.", r.Text, strings.Join(labels, " or "))
	formatted := fmt.Sprintf("%s<br/><br/>Reply %s.", r.Text, strings.Join(html, " or "))
	return s.client.SendFormattedMessage(r.ChannelID, formatted, plain)
}
