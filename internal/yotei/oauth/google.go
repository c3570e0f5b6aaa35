// Package oauth wraps the Google OAuth flow used to obtain calendar tokens.
//
// The conversation state machine never touches this package; it serves only
// the HTTP auth surface and the eventual calendar commit step.
package oauth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// calendarScope grants read/write access to the user's calendars.
const calendarScope = "https://www.googleapis.com/auth/calendar"

// Config identifies the Google OAuth application.
type Config struct {
	ClientID     string
	ClientSecret string
	// RedirectURL is the externally reachable callback, typically
	// "<domain>/connect/callback".
	RedirectURL string
}

// Service issues authorization URLs and exchanges authorization codes for
// token bundles.
type Service struct {
	cfg *oauth2.Config
}

// New creates a Service for the given application credentials.
func New(cfg Config) *Service {
	return &Service{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{calendarScope},
			Endpoint:     google.Endpoint,
		},
	}
}

// AuthURL returns the consent-screen URL for the given state value. The
// state carries the chat user ID so the callback can attach the tokens to
// the right user record.
func (s *Service) AuthURL(state string) string {
	// offline access is required to receive a refresh token.
	return s.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token bundle.
func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oauth: code exchange: %w", err)
	}
	return tok, nil
}
