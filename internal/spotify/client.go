package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/DerGorn/RapMich/internal/core"
)

// Client issues raw Web API requests. It never owns credentials; every call
// takes the bearer token it should act with.
type Client struct {
	config *core.SpotifyConfig
	logger *zap.Logger
	http   *http.Client
}

func NewClient(config *core.SpotifyConfig, logger *zap.Logger) *Client {
	return &Client{
		config: config,
		logger: logger,
		http:   &http.Client{},
	}
}

// trackJSON is the raw track shape shared by the search and playlist-tracks
// endpoints.
type trackJSON struct {
	URI     string `json:"uri"`
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name        string `json:"name"`
		ReleaseDate string `json:"release_date"`
	} `json:"album"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

// songFromTrack normalizes a raw upstream track into a Song. This is the only
// constructor for remote payloads; session-stored songs round-trip through
// plain JSON instead.
func songFromTrack(t *trackJSON) core.Song {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}
	return core.Song{
		URI:         t.URI,
		Name:        t.Name,
		Artists:     artists,
		Album:       t.Album.Name,
		ReleaseDate: t.Album.ReleaseDate,
		URL:         t.ExternalURLs.Spotify,
	}
}

// Search runs a track search and returns the page at the given offset.
func (c *Client) Search(ctx context.Context, cred Credential, query string, offset int) ([]core.Song, error) {
	params := url.Values{
		"q":      {query},
		"type":   {"track"},
		"offset": {strconv.Itoa(offset)},
	}

	body, err := c.get(ctx, cred, "/search?"+params.Encode(), "search failed")
	if err != nil {
		return nil, err
	}

	var result struct {
		Tracks struct {
			Items []trackJSON `json:"items"`
		} `json:"tracks"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("malformed search response: %w", err)
	}

	songs := make([]core.Song, 0, len(result.Tracks.Items))
	for i := range result.Tracks.Items {
		songs = append(songs, songFromTrack(&result.Tracks.Items[i]))
	}
	return songs, nil
}

// playlistTrackFields trims the playlist-tracks payload to what a Song needs.
const playlistTrackFields = "items.track(name,uri,artists.name,album(name,release_date),external_urls.spotify)"

// PlaylistTracks pages through the playlist's full track listing. Any failed
// page aborts the whole fetch so callers never cache a partial list.
func (c *Client) PlaylistTracks(ctx context.Context, cred Credential, playlistID string) ([]core.Song, error) {
	limit := c.config.PlaylistPageSize
	offset := 0

	var songs []core.Song
	for {
		params := url.Values{
			"fields": {playlistTrackFields},
			"limit":  {strconv.Itoa(limit)},
			"offset": {strconv.Itoa(offset)},
		}
		path := fmt.Sprintf("/playlists/%s/tracks?%s", url.PathEscape(playlistID), params.Encode())

		body, err := c.get(ctx, cred, path, "failed to read playlist")
		if err != nil {
			return nil, err
		}

		var page struct {
			Items []struct {
				Track trackJSON `json:"track"`
			} `json:"items"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("malformed playlist response: %w", err)
		}

		if len(page.Items) == 0 {
			break
		}
		for i := range page.Items {
			songs = append(songs, songFromTrack(&page.Items[i].Track))
		}
		offset += limit

		c.logger.Debug("Read playlist page",
			zap.String("playlistID", playlistID),
			zap.Int("total", len(songs)))
	}

	c.logger.Info("Populated playlist",
		zap.String("playlistID", playlistID),
		zap.Int("tracks", len(songs)))

	return songs, nil
}

// Devices lists the account's playback devices.
func (c *Client) Devices(ctx context.Context, cred Credential) ([]core.Device, error) {
	body, err := c.get(ctx, cred, "/me/player/devices", "failed to get devices")
	if err != nil {
		return nil, err
	}

	var result struct {
		Devices []core.Device `json:"devices"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("malformed devices response: %w", err)
	}
	return result.Devices, nil
}

// ResolveDevice picks the playback target: the active device, else the first
// listed, else none. A failing device listing is downgraded to "no device"
// so playback is still attempted against the account default.
func (c *Client) ResolveDevice(ctx context.Context, cred Credential) string {
	devices, err := c.Devices(ctx, cred)
	if err != nil {
		c.logger.Warn("Device listing failed, playing without device qualifier", zap.Error(err))
		return ""
	}

	for _, d := range devices {
		if d.IsActive {
			return d.ID
		}
	}
	if len(devices) > 0 {
		return devices[0].ID
	}
	return ""
}

// Play starts the given track at startMS, or resumes the current context when
// uri is empty. Success is 204; a resume may also answer 200.
func (c *Client) Play(ctx context.Context, cred Credential, uri string, startMS int) error {
	path := "/me/player/play"
	if device := c.ResolveDevice(ctx, cred); device != "" {
		path += "?device_id=" + url.QueryEscape(device)
	}

	var payload []byte
	resume := uri == ""
	if !resume {
		var err error
		payload, err = json.Marshal(map[string]any{
			"uris":        []string{uri},
			"position_ms": startMS,
		})
		if err != nil {
			return fmt.Errorf("failed to encode play request: %w", err)
		}
	}

	resp, body, err := c.do(ctx, cred, http.MethodPut, path, payload)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent || (resume && resp.StatusCode == http.StatusOK) {
		c.logger.Info("Playback started", zap.String("uri", uri), zap.Int("startMS", startMS))
		return nil
	}
	return remoteFailure("failed to start playback", resp.StatusCode, body)
}

// Pause pauses the user's playback. Success is 204.
func (c *Client) Pause(ctx context.Context, cred Credential) error {
	path := "/me/player/pause"
	if device := c.ResolveDevice(ctx, cred); device != "" {
		path += "?device_id=" + url.QueryEscape(device)
	}

	resp, body, err := c.do(ctx, cred, http.MethodPut, path, nil)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		c.logger.Info("Playback paused")
		return nil
	}
	return remoteFailure("failed to pause playback", resp.StatusCode, body)
}

// get issues an authorized GET and fails on any non-200 answer, passing the
// upstream error payload through verbatim.
func (c *Client) get(ctx context.Context, cred Credential, path, failMsg string) ([]byte, error) {
	resp, body, err := c.do(ctx, cred, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, remoteFailure(failMsg, resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, cred Credential, method, path string, payload []byte) (*http.Response, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.APIURL+path, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, body, nil
}

// remoteFailure wraps an unexpected upstream answer, extracting the `error`
// object Spotify nests in its failure payloads.
func remoteFailure(msg string, status int, body []byte) *core.RemoteError {
	return &core.RemoteError{
		Status:  status,
		Msg:     msg,
		Details: extractErrorPayload(body),
	}
}

func extractErrorPayload(body []byte) json.RawMessage {
	var wrapper struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && len(wrapper.Error) > 0 {
		return wrapper.Error
	}
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(string(body))
	return json.RawMessage(quoted)
}
