package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"go.uber.org/zap"

	"github.com/DerGorn/RapMich/internal/core"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	cfg := &core.SpotifyConfig{
		APIURL:           ts.URL,
		PlaylistPageSize: 2,
	}
	return NewClient(cfg, zap.NewNop())
}

func trackPayload(uri string) map[string]any {
	return map[string]any{
		"uri":  uri,
		"name": "Song " + uri,
		"artists": []map[string]any{
			{"name": "Artist A"},
			{"name": "Artist B"},
		},
		"album": map[string]any{
			"name":         "Album",
			"release_date": "1991-08-12",
		},
		"external_urls": map[string]any{
			"spotify": "https://open.spotify.com/track/" + uri,
		},
	}
}

func TestSearchNormalizesTracks(t *testing.T) {
	var gotQuery, gotOffset, gotAuth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("search path = %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("q")
		gotOffset = r.URL.Query().Get("offset")
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"tracks": map[string]any{
				"items": []map[string]any{trackPayload("t1")},
			},
		})
	}))

	songs, err := c.Search(context.Background(), Credential{Token: "tok"}, `%a% genre:"pop"`, 42)
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}

	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotQuery != `%a% genre:"pop"` || gotOffset != "42" {
		t.Errorf("query/offset = %q/%q", gotQuery, gotOffset)
	}

	if len(songs) != 1 {
		t.Fatalf("Search() returned %d songs, want 1", len(songs))
	}
	s := songs[0]
	if s.URI != "t1" || s.Name != "Song t1" || s.Album != "Album" ||
		s.ReleaseDate != "1991-08-12" || s.URL != "https://open.spotify.com/track/t1" {
		t.Errorf("Search() song = %+v", s)
	}
	if len(s.Artists) != 2 || s.Artists[0] != "Artist A" || s.Artists[1] != "Artist B" {
		t.Errorf("Search() artists = %v", s.Artists)
	}
}

func TestSearchPassesUpstreamErrorThrough(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"status":429,"message":"rate limited"}}`)
	}))

	_, err := c.Search(context.Background(), Credential{Token: "tok"}, "q", 0)
	var rerr *core.RemoteError
	if !errors.As(err, &rerr) {
		t.Fatalf("Search() error = %v, want RemoteError", err)
	}
	if rerr.Status != http.StatusTooManyRequests {
		t.Errorf("RemoteError status = %d, want 429", rerr.Status)
	}
	if string(rerr.Details) != `{"status":429,"message":"rate limited"}` {
		t.Errorf("RemoteError details = %s, want the upstream payload verbatim", rerr.Details)
	}
}

func TestPlaylistTracksPagesUntilEmpty(t *testing.T) {
	var offsets []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/playlists/pl-1/tracks" {
			t.Errorf("playlist path = %s", r.URL.Path)
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		offsets = append(offsets, r.URL.Query().Get("offset"))

		var items []map[string]any
		// Two full pages of two, then one of one, then empty.
		for i := offset; i < offset+2 && i < 5; i++ {
			items = append(items, map[string]any{"track": trackPayload(fmt.Sprintf("t%d", i))})
		}
		json.NewEncoder(w).Encode(map[string]any{"items": items})
	}))

	songs, err := c.PlaylistTracks(context.Background(), Credential{Token: "tok"}, "pl-1")
	if err != nil {
		t.Fatalf("PlaylistTracks() failed: %v", err)
	}

	if len(songs) != 5 {
		t.Fatalf("PlaylistTracks() returned %d songs, want 5", len(songs))
	}
	for i, s := range songs {
		if want := fmt.Sprintf("t%d", i); s.URI != want {
			t.Errorf("song[%d].URI = %q, want %q", i, s.URI, want)
		}
	}

	want := []string{"0", "2", "4", "6"}
	if len(offsets) != len(want) {
		t.Fatalf("paged with offsets %v, want %v", offsets, want)
	}
	for i := range want {
		if offsets[i] != want[i] {
			t.Errorf("offset[%d] = %s, want %s", i, offsets[i], want[i])
		}
	}
}

func TestPlaylistTracksFailedPageAborts(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{
				{"track": trackPayload("t0")}, {"track": trackPayload("t1")},
			}})
			return
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"status":404,"message":"not found"}}`)
	}))

	_, err := c.PlaylistTracks(context.Background(), Credential{Token: "tok"}, "pl-1")
	var rerr *core.RemoteError
	if !errors.As(err, &rerr) {
		t.Fatalf("PlaylistTracks() error = %v, want RemoteError", err)
	}
	if rerr.Status != http.StatusNotFound {
		t.Errorf("RemoteError status = %d, want 404", rerr.Status)
	}
}

func TestResolveDevice(t *testing.T) {
	tests := []struct {
		name    string
		devices []core.Device
		status  int
		want    string
	}{
		{
			name: "active device wins regardless of order",
			devices: []core.Device{
				{ID: "d1", IsActive: false},
				{ID: "d2", IsActive: true},
				{ID: "d3", IsActive: false},
			},
			want: "d2",
		},
		{
			name: "no active device falls back to first",
			devices: []core.Device{
				{ID: "d1"}, {ID: "d2"},
			},
			want: "d1",
		},
		{
			name:    "empty list means no device qualifier",
			devices: []core.Device{},
			want:    "",
		},
		{
			name:   "listing failure downgrades to no device",
			status: http.StatusInternalServerError,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.status != 0 {
					w.WriteHeader(tt.status)
					fmt.Fprint(w, `{"error":{"status":500,"message":"boom"}}`)
					return
				}
				json.NewEncoder(w).Encode(map[string]any{"devices": tt.devices})
			}))

			if got := c.ResolveDevice(context.Background(), Credential{Token: "tok"}); got != tt.want {
				t.Errorf("ResolveDevice() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlayStartsTrackOnResolvedDevice(t *testing.T) {
	var playQuery string
	var playBody map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me/player/devices":
			json.NewEncoder(w).Encode(map[string]any{"devices": []core.Device{
				{ID: "active-dev", IsActive: true},
			}})
		case "/me/player/play":
			if r.Method != http.MethodPut {
				t.Errorf("play method = %s, want PUT", r.Method)
			}
			playQuery = r.URL.Query().Get("device_id")
			if err := json.NewDecoder(r.Body).Decode(&playBody); err != nil {
				t.Errorf("play body undecodable: %v", err)
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	err := c.Play(context.Background(), Credential{Token: "tok"}, "spotify:track:x", 1500)
	if err != nil {
		t.Fatalf("Play() failed: %v", err)
	}

	if playQuery != "active-dev" {
		t.Errorf("device_id = %q, want %q", playQuery, "active-dev")
	}
	uris, _ := playBody["uris"].([]any)
	if len(uris) != 1 || uris[0] != "spotify:track:x" {
		t.Errorf("play body uris = %v", playBody["uris"])
	}
	if playBody["position_ms"] != float64(1500) {
		t.Errorf("play body position_ms = %v, want 1500", playBody["position_ms"])
	}
}

func TestPlayResumeAcceptsOK(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me/player/devices":
			json.NewEncoder(w).Encode(map[string]any{"devices": []core.Device{}})
		case "/me/player/play":
			if r.ContentLength > 0 {
				t.Error("resume request carried a body")
			}
			if r.URL.RawQuery != "" {
				t.Errorf("resume with empty device list carried query %q", r.URL.RawQuery)
			}
			w.WriteHeader(http.StatusOK)
		}
	}))

	if err := c.Play(context.Background(), Credential{Token: "tok"}, "", 0); err != nil {
		t.Fatalf("Play() resume failed: %v", err)
	}
}

func TestPlayUnexpectedStatusIsRemoteError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me/player/devices":
			json.NewEncoder(w).Encode(map[string]any{"devices": []core.Device{}})
		case "/me/player/play":
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":{"status":403,"message":"premium required"}}`)
		}
	}))

	err := c.Play(context.Background(), Credential{Token: "tok"}, "spotify:track:x", 0)
	var rerr *core.RemoteError
	if !errors.As(err, &rerr) {
		t.Fatalf("Play() error = %v, want RemoteError", err)
	}
	if rerr.Status != http.StatusForbidden {
		t.Errorf("RemoteError status = %d, want 403", rerr.Status)
	}
}

func TestPauseRequiresNoContent(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me/player/devices":
			json.NewEncoder(w).Encode(map[string]any{"devices": []core.Device{{ID: "d1"}}})
		case "/me/player/pause":
			if got := r.URL.Query().Get("device_id"); got != "d1" {
				t.Errorf("pause device_id = %q, want %q", got, "d1")
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	if err := c.Pause(context.Background(), Credential{Token: "tok"}); err != nil {
		t.Fatalf("Pause() failed: %v", err)
	}
}
