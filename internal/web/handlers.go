package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/justestif/spotify-relay/internal/config"
	"github.com/justestif/spotify-relay/internal/spotify"
)

// Response bodies sent to the browser. The frontend matches on these strings.
const (
	msgCodeMissing    = "Authorization code missing"
	msgExchangeFailed = "Error exchanging token"
	msgTokenMissing   = "Access token missing"
	msgFetchFailed    = "Error fetching currently playing track"
)

// Provider is the upstream the relay fronts.
type Provider interface {
	AuthURL() string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	CurrentlyPlaying(ctx context.Context, accessToken string) (*spotify.Playback, error)
}

// Handlers contains the HTTP handlers for the relay.
type Handlers struct {
	provider    Provider
	frontendURL string
	log         *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg *config.Config, provider Provider, log *zap.Logger) *Handlers {
	return &Handlers{
		provider:    provider,
		frontendURL: cfg.Server.FrontendURL,
		log:         log,
	}
}

// Root sends the browser to the login flow (GET /).
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login", http.StatusFound)
}

// Login redirects to the Spotify consent page (GET /login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.provider.AuthURL(), http.StatusFound)
}

// Callback exchanges the authorization code and hands the access token to the
// frontend (GET /callback).
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r)
	query := r.URL.Query()

	code := query.Get("code")
	if code == "" {
		if errMsg := query.Get("error"); errMsg != "" {
			log.Warn("Spotify authorization denied", zap.String("error", errMsg))
		}
		writeText(w, http.StatusBadRequest, msgCodeMissing)
		return
	}

	token, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		log.Error("Error exchanging token", exchangeErrorFields(err)...)
		writeText(w, http.StatusInternalServerError, msgExchangeFailed)
		return
	}

	http.Redirect(w, r, h.frontendRedirect(token.AccessToken), http.StatusFound)
}

// CurrentlyPlaying relays the user's playback state (GET /currently-playing).
func (h *Handlers) CurrentlyPlaying(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r)

	accessToken := r.URL.Query().Get("access_token")
	if accessToken == "" {
		writeText(w, http.StatusBadRequest, msgTokenMissing)
		return
	}

	playback, err := h.provider.CurrentlyPlaying(r.Context(), accessToken)
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		var apiErr *spotify.APIError
		if errors.As(err, &apiErr) {
			fields = append(fields,
				zap.Int("upstream_status", apiErr.StatusCode),
				zap.String("upstream_message", apiErr.Message),
			)
		}
		log.Error("Error fetching currently playing track", fields...)
		writeText(w, http.StatusInternalServerError, msgFetchFailed)
		return
	}

	// 204 responses carry no body.
	if playback.NoContent {
		log.Debug("No track currently playing")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if s, ok := playback.Summary(); ok {
		log.Debug("Currently playing track",
			zap.String("track", s.Track),
			zap.String("artist", s.Artist),
			zap.Bool("is_playing", s.Playing),
		)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(playback.Body); err != nil {
		log.Warn("Writing playback response", zap.Error(err))
	}
}

// Health reports liveness (GET /health).
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, `{"status":"healthy","timestamp":"`+time.Now().UTC().Format(time.RFC3339)+`"}`)
}

// frontendRedirect builds <frontend>/?access_token=<token>.
func (h *Handlers) frontendRedirect(accessToken string) string {
	return h.frontendURL + "/?" + url.Values{"access_token": {accessToken}}.Encode()
}

func (h *Handlers) requestLogger(r *http.Request) *zap.Logger {
	return h.log.With(zap.String("request_id", middleware.GetReqID(r.Context())))
}

// exchangeErrorFields extracts the token endpoint's OAuth error, when there is one.
func exchangeErrorFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil {
			fields = append(fields, zap.Int("upstream_status", retrieveErr.Response.StatusCode))
		}
		fields = append(fields,
			zap.String("error_code", retrieveErr.ErrorCode),
			zap.String("error_description", retrieveErr.ErrorDescription),
		)
	}
	return fields
}

// writeText writes msg as the exact plain-text body. http.Error would append a newline.
func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	io.WriteString(w, msg)
}
