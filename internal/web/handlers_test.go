package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/oauth2"

	"github.com/justestif/spotify-relay/internal/config"
	"github.com/justestif/spotify-relay/internal/spotify"
)

const testFrontendURL = "https://frontend.example.com"

// fakeProvider records calls and returns canned results.
type fakeProvider struct {
	authURL     string
	token       *oauth2.Token
	exchangeErr error
	playback    *spotify.Playback
	playbackErr error

	gotCode  string
	gotToken string
}

func (f *fakeProvider) AuthURL() string {
	return f.authURL
}

func (f *fakeProvider) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	f.gotCode = code
	return f.token, f.exchangeErr
}

func (f *fakeProvider) CurrentlyPlaying(_ context.Context, accessToken string) (*spotify.Playback, error) {
	f.gotToken = accessToken
	return f.playback, f.playbackErr
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:        "127.0.0.1",
			Port:        0,
			FrontendURL: testFrontendURL,
		},
	}
}

// newTestHandler builds the full router around p and returns it with a log observer.
func newTestHandler(p Provider) (http.Handler, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	cfg := testConfig()
	return NewServer(cfg, NewHandlers(cfg, p, log), log).Handler(), logs
}

func serve(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRoot(t *testing.T) {
	h, _ := newTestHandler(&fakeProvider{})

	rec := serve(h, "/")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestLogin(t *testing.T) {
	authURL := "https://accounts.spotify.com/authorize?client_id=id&response_type=code"
	h, _ := newTestHandler(&fakeProvider{authURL: authURL})

	rec := serve(h, "/login")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, authURL, rec.Header().Get("Location"))
}

func TestCallback(t *testing.T) {
	tests := []struct {
		name         string
		target       string
		provider     *fakeProvider
		wantStatus   int
		wantBody     string
		wantLocation string
		wantCode     string
	}{
		{
			name:       "missing code",
			target:     "/callback",
			provider:   &fakeProvider{},
			wantStatus: http.StatusBadRequest,
			wantBody:   "Authorization code missing",
		},
		{
			name:       "authorization denied",
			target:     "/callback?error=access_denied",
			provider:   &fakeProvider{},
			wantStatus: http.StatusBadRequest,
			wantBody:   "Authorization code missing",
		},
		{
			name:         "token exchanged",
			target:       "/callback?code=abc",
			provider:     &fakeProvider{token: &oauth2.Token{AccessToken: "T"}},
			wantStatus:   http.StatusFound,
			wantLocation: testFrontendURL + "/?access_token=T",
			wantCode:     "abc",
		},
		{
			name:         "token is query escaped",
			target:       "/callback?code=abc",
			provider:     &fakeProvider{token: &oauth2.Token{AccessToken: "a+b/c="}},
			wantStatus:   http.StatusFound,
			wantLocation: testFrontendURL + "/?access_token=a%2Bb%2Fc%3D",
			wantCode:     "abc",
		},
		{
			name:       "exchange fails",
			target:     "/callback?code=abc",
			provider:   &fakeProvider{exchangeErr: errors.New("connection refused")},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "Error exchanging token",
			wantCode:   "abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(tt.provider)

			rec := serve(h, tt.target)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
				assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
			}
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			}
			assert.Equal(t, tt.wantCode, tt.provider.gotCode)
		})
	}
}

func TestCallback_LogsExchangeError(t *testing.T) {
	p := &fakeProvider{exchangeErr: &oauth2.RetrieveError{
		Response:         &http.Response{StatusCode: http.StatusBadRequest},
		ErrorCode:        "invalid_grant",
		ErrorDescription: "Invalid authorization code",
	}}
	h, logs := newTestHandler(p)

	serve(h, "/callback?code=abc")

	entries := logs.FilterMessage("Error exchanging token").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(http.StatusBadRequest), fields["upstream_status"])
	assert.Equal(t, "invalid_grant", fields["error_code"])
	assert.Equal(t, "Invalid authorization code", fields["error_description"])
}

func TestCurrentlyPlaying(t *testing.T) {
	body := `{"is_playing":true,"item":{"name":"Song","artists":[{"name":"Band"}]}}`

	tests := []struct {
		name       string
		target     string
		provider   *fakeProvider
		wantStatus int
		wantBody   string
		wantType   string
		wantToken  string
	}{
		{
			name:       "missing token",
			target:     "/currently-playing",
			provider:   &fakeProvider{},
			wantStatus: http.StatusBadRequest,
			wantBody:   "Access token missing",
			wantType:   "text/plain; charset=utf-8",
		},
		{
			name:       "nothing playing",
			target:     "/currently-playing?access_token=X",
			provider:   &fakeProvider{playback: &spotify.Playback{NoContent: true}},
			wantStatus: http.StatusNoContent,
			wantBody:   "",
			wantToken:  "X",
		},
		{
			name:       "track relayed",
			target:     "/currently-playing?access_token=X",
			provider:   &fakeProvider{playback: &spotify.Playback{Body: []byte(body)}},
			wantStatus: http.StatusOK,
			wantBody:   body,
			wantType:   "application/json; charset=utf-8",
			wantToken:  "X",
		},
		{
			name:       "upstream failure",
			target:     "/currently-playing?access_token=X",
			provider:   &fakeProvider{playbackErr: &spotify.APIError{StatusCode: 401, Message: "The access token expired"}},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "Error fetching currently playing track",
			wantType:   "text/plain; charset=utf-8",
			wantToken:  "X",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(tt.provider)

			rec := serve(h, tt.target)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
			if tt.wantType != "" {
				assert.Equal(t, tt.wantType, rec.Header().Get("Content-Type"))
			}
			assert.Equal(t, tt.wantToken, tt.provider.gotToken)
		})
	}
}

func TestCurrentlyPlaying_LogsUpstreamDetail(t *testing.T) {
	p := &fakeProvider{playbackErr: &spotify.APIError{StatusCode: 401, Message: "The access token expired"}}
	h, logs := newTestHandler(p)

	serve(h, "/currently-playing?access_token=secret-token")

	entries := logs.FilterMessage("Error fetching currently playing track").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(401), fields["upstream_status"])
	assert.Equal(t, "The access token expired", fields["upstream_message"])
}

func TestCurrentlyPlaying_LogsSummary(t *testing.T) {
	body := `{"is_playing":true,"item":{"name":"Song","artists":[{"name":"A"},{"name":"B"}]}}`
	h, logs := newTestHandler(&fakeProvider{playback: &spotify.Playback{Body: []byte(body)}})

	serve(h, "/currently-playing?access_token=X")

	entries := logs.FilterMessage("Currently playing track").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "Song", fields["track"])
	assert.Equal(t, "A, B", fields["artist"])
	assert.Equal(t, true, fields["is_playing"])
}

func TestAccessLog_OmitsQuery(t *testing.T) {
	h, logs := newTestHandler(&fakeProvider{playback: &spotify.Playback{NoContent: true}})

	serve(h, "/currently-playing?access_token=secret-token")

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/currently-playing", fields["path"])
	assert.Equal(t, int64(http.StatusNoContent), fields["status"])
	assert.NotEmpty(t, fields["request_id"])

	for _, e := range logs.All() {
		for k, v := range e.ContextMap() {
			if s, ok := v.(string); ok {
				assert.NotContains(t, s, "secret-token", "field %q leaks the access token", k)
			}
		}
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(&fakeProvider{})

	rec := serve(h, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestRequestID(t *testing.T) {
	h, _ := newTestHandler(&fakeProvider{})

	t.Run("generated", func(t *testing.T) {
		rec := serve(h, "/health")
		assert.Len(t, rec.Header().Get(requestIDHeader), 36)
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(requestIDHeader, "req-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
	})
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		origin     string
		wantOrigin string
	}{
		{"frontend origin allowed", testFrontendURL, testFrontendURL},
		{"other origin rejected", "https://evil.example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(&fakeProvider{playback: &spotify.Playback{NoContent: true}})

			preflight := httptest.NewRequest(http.MethodOptions, "/currently-playing", nil)
			preflight.Header.Set("Origin", tt.origin)
			preflight.Header.Set("Access-Control-Request-Method", http.MethodGet)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, preflight)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))

			get := httptest.NewRequest(http.MethodGet, "/currently-playing?access_token=X", nil)
			get.Header.Set("Origin", tt.origin)
			rec = httptest.NewRecorder()
			h.ServeHTTP(rec, get)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	h, _ := newTestHandler(&fakeProvider{})

	rec := serve(h, "/logout")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
