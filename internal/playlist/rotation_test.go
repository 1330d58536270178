package playlist

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/DerGorn/RapMich/internal/core"
)

func makeSongs(n int) []core.Song {
	songs := make([]core.Song, n)
	for i := range songs {
		songs[i] = core.Song{
			URI:  fmt.Sprintf("spotify:track:%04d", i),
			Name: fmt.Sprintf("song %d", i),
		}
	}
	return songs
}

func TestNextCyclesThroughPermutationWithoutRepeats(t *testing.T) {
	const n = 25
	r := NewRotation("pl", makeSongs(n))

	seen := make(map[string]bool, n)
	var order []string
	for i := 0; i < n; i++ {
		song, ok := r.Next()
		if !ok {
			t.Fatalf("Next() call %d reported no song", i)
		}
		if seen[song.URI] {
			t.Fatalf("Next() repeated %s within the first %d draws", song.URI, n)
		}
		seen[song.URI] = true
		order = append(order, song.URI)
	}
	if len(seen) != n {
		t.Fatalf("first %d draws covered %d distinct songs", n, len(seen))
	}

	// The following draws must replay the same fixed permutation, not a new
	// shuffle.
	for i := 0; i < n; i++ {
		song, ok := r.Next()
		if !ok {
			t.Fatalf("Next() wrap call %d reported no song", i)
		}
		if song.URI != order[i] {
			t.Fatalf("draw %d after wrap = %s, want %s (same permutation)", i, song.URI, order[i])
		}
	}
}

func TestNewRotationDoesNotMutateInput(t *testing.T) {
	songs := makeSongs(10)
	var uris []string
	for _, s := range songs {
		uris = append(uris, s.URI)
	}

	NewRotation("pl", songs)

	for i, s := range songs {
		if s.URI != uris[i] {
			t.Fatalf("NewRotation() reordered the caller's slice at index %d", i)
		}
	}
}

func TestNextOnEmptyRotation(t *testing.T) {
	r := NewRotation("pl", nil)

	if _, ok := r.Next(); ok {
		t.Error("Next() on an empty rotation reported a song")
	}
	if r.Cursor != 0 {
		t.Errorf("empty rotation cursor = %d, want 0", r.Cursor)
	}
}

func TestRotationSurvivesSessionRoundTrip(t *testing.T) {
	r := NewRotation("pl", makeSongs(5))
	first, _ := r.Next()
	_ = first

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	var restored Rotation
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}

	if restored.Cursor != r.Cursor {
		t.Errorf("restored cursor = %d, want %d", restored.Cursor, r.Cursor)
	}
	want, _ := r.Next()
	got, ok := restored.Next()
	if !ok || got.URI != want.URI {
		t.Errorf("restored Next() = %s, want %s", got.URI, want.URI)
	}
}

// Rotations are built from concurrent request handlers; the race detector
// flags any unsynchronized randomness in the shuffle.
func TestNewRotationConcurrentBuilds(t *testing.T) {
	songs := makeSongs(10)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				r := NewRotation("pl", songs)
				if len(r.Songs) != len(songs) {
					t.Errorf("concurrent NewRotation() holds %d songs, want %d", len(r.Songs), len(songs))
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestCursorStartsInsideBounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		r := NewRotation("pl", makeSongs(3))
		if r.Cursor < 0 || r.Cursor >= 3 {
			t.Fatalf("NewRotation() cursor = %d, want within [0,3)", r.Cursor)
		}
	}
}
