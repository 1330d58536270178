// Package playlist implements the per-session shuffled song rotation for a
// playlist.
package playlist

import (
	"math/rand"

	"github.com/DerGorn/RapMich/internal/core"
)

// Rotation is one playlist's shuffled track order plus a wrapping cursor.
// The shuffle happens exactly once, at construction; draws cycle through the
// same fixed permutation indefinitely. The struct round-trips through JSON
// so it can live in a session store.
type Rotation struct {
	PlaylistID string      `json:"playlist_id"`
	Songs      []core.Song `json:"songs"`
	Cursor     int         `json:"cursor"`
}

// NewRotation shuffles the songs once and places the cursor at a random
// starting index so two sessions over the same playlist do not open with the
// same run of songs. The top-level math/rand functions are locked, so this is
// safe from concurrent request handlers.
func NewRotation(playlistID string, songs []core.Song) *Rotation {
	shuffled := make([]core.Song, len(songs))
	copy(shuffled, songs)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	cursor := 0
	if len(shuffled) > 0 {
		cursor = rand.Intn(len(shuffled))
	}

	return &Rotation{
		PlaylistID: playlistID,
		Songs:      shuffled,
		Cursor:     cursor,
	}
}

// Next returns the song at the cursor and advances it by one, wrapping to 0
// before the read. The second return is false only for an empty playlist.
func (r *Rotation) Next() (core.Song, bool) {
	if len(r.Songs) == 0 {
		return core.Song{}, false
	}
	if r.Cursor >= len(r.Songs) {
		r.Cursor = 0
	}
	song := r.Songs[r.Cursor]
	r.Cursor++
	return song, true
}
