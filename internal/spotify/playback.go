package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zmb3/spotify/v2"
)

const (
	currentlyPlayingPath = "/me/player/currently-playing"

	// maxBodyBytes bounds how much of an upstream response is buffered.
	maxBodyBytes = 1 << 20
)

// Playback is the relayed result of a currently-playing query.
type Playback struct {
	// NoContent is set when nothing is playing.
	NoContent bool
	// Body is the upstream JSON, unmodified.
	Body []byte
}

// Summary is a short description of a playback snapshot, used for logging.
type Summary struct {
	Playing bool
	Track   string
	Artist  string // Comma-separated artist names
}

// CurrentlyPlaying fetches the user's playback state with a Bearer-authenticated GET.
// A 204, or a success with an empty body, yields a Playback with NoContent set.
// Any other non-2xx status is returned as *APIError.
func (c *Client) CurrentlyPlaying(ctx context.Context, accessToken string) (*Playback, error) {
	if accessToken == "" {
		return nil, ErrMissingAccessToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+currentlyPlayingPath, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.bearerClient(accessToken).Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return &Playback{NoContent: true}, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if len(bytes.TrimSpace(body)) == 0 {
			return &Playback{NoContent: true}, nil
		}
		return &Playback{Body: body}, nil
	default:
		return nil, newAPIError(resp.StatusCode, body)
	}
}

// Summary decodes the snapshot far enough to describe it.
// It returns false when there is nothing to summarize or the body does not parse.
func (p *Playback) Summary() (Summary, bool) {
	if p == nil || p.NoContent {
		return Summary{}, false
	}

	var cp spotify.CurrentlyPlaying
	if err := json.Unmarshal(p.Body, &cp); err != nil {
		return Summary{}, false
	}

	s := Summary{Playing: cp.Playing}
	if cp.Item != nil {
		artists := make([]string, len(cp.Item.Artists))
		for i, a := range cp.Item.Artists {
			artists[i] = a.Name
		}
		s.Track = cp.Item.Name
		s.Artist = strings.Join(artists, ", ")
	}
	return s, true
}
