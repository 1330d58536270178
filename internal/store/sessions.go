// Package store provides the cookie-backed session store: an in-memory TTL
// cache mapping opaque session ids to serialized session state. Nothing here
// is durable; a restart forgets all sessions by design.
package store

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/DerGorn/RapMich/internal/core"
	"github.com/DerGorn/RapMich/internal/playlist"
	"github.com/DerGorn/RapMich/internal/spotify"
)

// Session is the per-client state: the auth-flow nonce, the user credential
// once authorized, and the playlist rotations this client has opened.
type Session struct {
	ID string `json:"-"`

	AuthState  string             `json:"auth_state,omitempty"`
	Authorized bool               `json:"authorized,omitempty"`
	User       spotify.Credential `json:"user,omitempty"`

	Rotations map[string]*playlist.Rotation `json:"rotations,omitempty"`
}

// Rotation returns the session's rotation for a playlist, if one exists.
func (s *Session) Rotation(playlistID string) (*playlist.Rotation, bool) {
	r, ok := s.Rotations[playlistID]
	return r, ok
}

// SetRotation stores a freshly built rotation on the session.
func (s *Session) SetRotation(r *playlist.Rotation) {
	if s.Rotations == nil {
		s.Rotations = make(map[string]*playlist.Rotation)
	}
	s.Rotations[r.PlaylistID] = r
}

// SessionStore maps opaque cookie ids to encoded sessions with a rolling
// TTL: every Save re-arms the entry's expiry, so a session dies only after
// sitting idle for the full TTL.
type SessionStore struct {
	config *core.SessionConfig
	logger *zap.Logger
	cache  *expirable.LRU[string, []byte]
}

func NewSessionStore(config *core.SessionConfig, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		config: config,
		logger: logger,
		cache:  expirable.NewLRU[string, []byte](config.MaxSessions, nil, config.TTL),
	}
}

// Load resolves the request's session cookie into a Session. A missing,
// expired or undecodable session yields a fresh one under a new id; the
// caller decides whether to persist it with Save.
func (s *SessionStore) Load(r *http.Request) *Session {
	cookie, err := r.Cookie(s.config.CookieName)
	if err != nil {
		return &Session{ID: newSessionID()}
	}

	data, ok := s.cache.Get(cookie.Value)
	if !ok {
		return &Session{ID: newSessionID()}
	}

	sess, err := decodeSession(data)
	if err != nil {
		s.logger.Warn("Dropping undecodable session", zap.Error(err))
		s.cache.Remove(cookie.Value)
		return &Session{ID: newSessionID()}
	}
	sess.ID = cookie.Value
	return sess
}

// Save writes the session back to the store and refreshes the client's
// cookie. This is the single write-back point of the read-modify-write cycle;
// two concurrent requests on one session race here and the last write wins.
func (s *SessionStore) Save(w http.ResponseWriter, sess *Session) {
	data, err := encodeSession(sess)
	if err != nil {
		s.logger.Error("Failed to encode session", zap.Error(err))
		return
	}
	s.cache.Add(sess.ID, data)

	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(s.config.TTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Regenerate swaps the session onto a fresh id, dropping the old entry.
// Called after a successful authorization to defeat session fixation.
func (s *SessionStore) Regenerate(sess *Session) {
	s.cache.Remove(sess.ID)
	sess.ID = newSessionID()
}

// Len reports the number of live sessions, for the metrics gauge.
func (s *SessionStore) Len() int {
	return s.cache.Len()
}

// The codec is deliberately separate from the handlers so the backing store
// can be swapped for any key-value backend that holds bytes.

func encodeSession(sess *Session) ([]byte, error) {
	return json.Marshal(sess)
}

func decodeSession(data []byte) (*Session, error) {
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func newSessionID() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("session id entropy unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
