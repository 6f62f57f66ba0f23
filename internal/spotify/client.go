// Package spotify talks to the Spotify accounts service and Web API on behalf of the relay.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/justestif/spotify-relay/internal/config"
)

var (
	// ErrMissingCode is returned when Exchange is called without an authorization code.
	ErrMissingCode = errors.New("authorization code missing")

	// ErrMissingAccessToken is returned when CurrentlyPlaying is called without a token.
	ErrMissingAccessToken = errors.New("access token missing")
)

// Client performs the provider calls the relay needs. It holds no per-user state.
type Client struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	apiBaseURL string
}

// New creates a Client from the Spotify section of cfg.
func New(cfg *config.Config) *Client {
	sc := cfg.Spotify
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     sc.ClientID,
			ClientSecret: sc.ClientSecret,
			RedirectURL:  sc.RedirectURI,
			Scopes:       sc.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  sc.AuthURL,
				TokenURL: sc.TokenURL,
				// Spotify expects the client credentials as HTTP Basic auth.
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: &http.Client{Timeout: sc.Timeout},
		apiBaseURL: sc.APIBaseURL,
	}
}

// AuthURL returns the provider consent page URL carrying response_type, client_id,
// scope and redirect_uri.
func (c *Client) AuthURL() string {
	return c.oauth.AuthCodeURL("")
}

// Exchange trades an authorization code for a token with a form-encoded POST to the
// token endpoint. A response without an access_token is an error.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, ErrMissingCode
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return token, nil
}

// bearerClient returns an HTTP client that authenticates every request with accessToken.
func (c *Client) bearerClient(accessToken string) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: accessToken,
				TokenType:   "Bearer",
			}),
			Base: c.httpClient.Transport,
		},
		Timeout: c.httpClient.Timeout,
	}
}
