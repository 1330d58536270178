package spotify

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"

	"go.uber.org/zap"

	"github.com/DerGorn/RapMich/internal/core"
)

// searchWildcards are the lexical patterns used to fake a "random track"
// primitive: the catalog search has none, so a random vowel wildcard in
// prefix, suffix or infix position plus a random page offset plus a random
// pick from the page approximates one.
var searchWildcards = []string{
	"%a%", "a%", "%a",
	"%e%", "e%", "%e",
	"%i%", "i%", "%i",
	"%o%", "o%", "%o",
	"%u%", "u%", "%u",
}

// Picker finds pseudo-random songs scoped to a genre pool. Randomness comes
// from the locked top-level math/rand functions, so one Picker serves
// concurrent requests.
type Picker struct {
	client *Client
	config *core.SpotifyConfig
	logger *zap.Logger
}

func NewPicker(client *Client, config *core.SpotifyConfig, logger *zap.Logger) *Picker {
	return &Picker{
		client: client,
		config: config,
		logger: logger,
	}
}

// PickRandom selects one genre uniformly from the candidate pool, then
// searches with freshly randomized wildcard and offset until a non-empty
// page turns up, bounded by the retry ceiling. One track is picked uniformly
// from the winning page.
func (p *Picker) PickRandom(ctx context.Context, cred Credential, genres []string) (core.Song, error) {
	if len(genres) == 0 {
		return core.Song{}, core.NewValidationError("empty genre list")
	}

	genre := genres[rand.Intn(len(genres))]

	for attempt := 0; attempt <= p.config.SearchRetryLimit; attempt++ {
		wildcard := searchWildcards[rand.Intn(len(searchWildcards))]
		offset := rand.Intn(p.config.SearchMaxOffset + 1)
		query := fmt.Sprintf("%s genre:%q", wildcard, genre)

		songs, err := p.client.Search(ctx, cred, query, offset)
		if err != nil {
			return core.Song{}, err
		}
		if len(songs) == 0 {
			continue
		}

		song := songs[rand.Intn(len(songs))]
		p.logger.Debug("Picked random song",
			zap.String("genre", genre),
			zap.String("wildcard", wildcard),
			zap.Int("offset", offset),
			zap.Int("attempts", attempt+1),
			zap.String("uri", song.URI))
		return song, nil
	}

	return core.Song{}, core.NewRemoteError(http.StatusBadGateway,
		"no track found for genre %q after %d search attempts", genre, p.config.SearchRetryLimit+1)
}
