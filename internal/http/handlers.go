package http

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/DerGorn/RapMich/internal/core"
	"github.com/DerGorn/RapMich/internal/playlist"
)

type errorBody struct {
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details,omitempty"`
}

const loginRequiredMsg = "No token found. Please login first."

// handleLogin opens the authorization flow: it parks a fresh state nonce in
// the session and hands the client the consent URL to follow. The 401 is
// deliberate, the client is not authorized yet.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)
	sess.AuthState = newStateNonce()
	s.sessions.Save(w, sess)

	authURL := s.tokens.AuthCodeURL(sess.AuthState, s.callbackURL(r))
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"error": loginRequiredMsg,
		"url":   authURL,
	})
}

// handleCallback is the OAuth2 redirect target. Any state mismatch fails
// closed, including the empty-vs-empty case of a callback that never went
// through login.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sess := s.sessions.Load(r)

	stored := sess.AuthState
	sess.AuthState = ""

	if stored == "" || q.Get("state") != stored {
		s.countError("auth", "state_mismatch")
		s.sessions.Save(w, sess)
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "state mismatch"})
		return
	}

	if errParam := q.Get("error"); errParam != "" {
		s.countError("auth", "consent_denied")
		s.sessions.Save(w, sess)
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: errParam})
		return
	}

	code := q.Get("code")
	if code == "" {
		// The authorization server answered with neither error nor code;
		// that is its fault, not the client's.
		s.countError("auth", "missing_code")
		s.sessions.Save(w, sess)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "authorization server returned neither code nor error"})
		return
	}

	cred, err := s.tokens.Exchange(r.Context(), code, s.callbackURL(r))
	if err != nil {
		s.sessions.Save(w, sess)
		s.writeError(w, "auth", err)
		return
	}

	// A new session id after privilege escalation blocks session fixation.
	s.sessions.Regenerate(sess)
	sess.Authorized = true
	sess.User = cred
	s.sessions.Save(w, sess)

	s.logger.Info("User authorized", zap.Time("token_expiry", cred.Expiry))

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<body>
    <p>Logged in. This window closes itself.</p>
    <script>window.close();</script>
</body>
</html>`))
}

// handleSongByGenre serves a pseudo-random song from the requested genres,
// or from the whole allow-list when none are requested.
func (s *Server) handleSongByGenre(w http.ResponseWriter, r *http.Request) {
	requested := r.URL.Query()["genres"]

	var pool []string
	if len(requested) == 0 {
		pool = s.genres.Names()
	} else {
		var err error
		pool, err = s.genres.Resolve(requested)
		if err != nil {
			s.writeError(w, "genres", err)
			return
		}
	}

	cred, err := s.tokens.AppCredential(r.Context())
	if err != nil {
		s.writeError(w, "token", err)
		return
	}

	song, err := s.picker.PickRandom(r.Context(), cred, pool)
	if err != nil {
		s.writeError(w, "picker", err)
		return
	}

	s.metrics.SongsServedTotal.WithLabelValues("genre").Inc()
	writeJSON(w, http.StatusOK, song)
}

// handleSongFromPlaylist serves the next song of the session's shuffled
// rotation for the playlist, building the rotation on first reference.
func (s *Server) handleSongFromPlaylist(w http.ResponseWriter, r *http.Request) {
	playlistID := r.PathValue("id")
	sess := s.sessions.Load(r)

	rot, ok := sess.Rotation(playlistID)
	if !ok {
		cred, err := s.tokens.AppCredential(r.Context())
		if err != nil {
			s.writeError(w, "token", err)
			return
		}

		songs, err := s.client.PlaylistTracks(r.Context(), cred, playlistID)
		if err != nil {
			// Nothing is cached on a failed fetch; the next request starts
			// from scratch.
			s.writeError(w, "playlist", err)
			return
		}

		rot = playlist.NewRotation(playlistID, songs)
		sess.SetRotation(rot)
	}

	song, hasSong := rot.Next()
	s.sessions.Save(w, sess)

	if !hasSong {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.metrics.SongsServedTotal.WithLabelValues("playlist").Inc()
	writeJSON(w, http.StatusOK, song)
}

// handlePlay starts the given track (or resumes the current context when no
// uri is passed) on the user's resolved device.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)

	cred, err := s.tokens.UserCredential(r.Context(), sess.User)
	if errors.Is(err, core.ErrAuthRequired) {
		http.Redirect(w, r, "/auth/login", http.StatusFound)
		return
	}
	if err != nil {
		s.writeError(w, "token", err)
		return
	}
	sess.User = cred
	s.sessions.Save(w, sess)

	startMS := 0
	if raw := r.URL.Query().Get("start_ms"); raw != "" {
		startMS, err = strconv.Atoi(raw)
		if err != nil || startMS < 0 {
			s.writeError(w, "play", core.NewValidationError("invalid start_ms: %s", raw))
			return
		}
	}

	if err := s.client.Play(r.Context(), cred, r.URL.Query().Get("uri"), startMS); err != nil {
		s.writeError(w, "play", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)

	cred, err := s.tokens.UserCredential(r.Context(), sess.User)
	if errors.Is(err, core.ErrAuthRequired) {
		http.Redirect(w, r, "/auth/login", http.StatusFound)
		return
	}
	if err != nil {
		s.writeError(w, "token", err)
		return
	}
	sess.User = cred
	s.sessions.Save(w, sess)

	if err := s.client.Pause(r.Context(), cred); err != nil {
		s.writeError(w, "pause", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// callbackURL rebuilds the OAuth2 redirect target from the inbound Host; the
// scheme comes from configuration since the service may sit behind TLS
// termination.
func (s *Server) callbackURL(r *http.Request) string {
	return s.config.Spotify.CallbackScheme + "://" + r.Host + "/auth/callback"
}

// writeError maps the error taxonomy onto the HTTP surface: validation 400,
// missing authorization 401, remote failures pass the upstream status and
// payload through, anything else 500.
func (s *Server) writeError(w http.ResponseWriter, component string, err error) {
	var verr *core.ValidationError
	var rerr *core.RemoteError

	switch {
	case errors.As(err, &verr):
		s.countError(component, "validation")
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Msg})
	case errors.As(err, &rerr):
		s.countError(component, "remote")
		writeJSON(w, rerr.Status, errorBody{Error: rerr.Msg, Details: rerr.Details})
	case errors.Is(err, core.ErrAuthRequired):
		s.countError(component, "auth")
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: loginRequiredMsg})
	default:
		s.countError(component, "internal")
		s.logger.Error("Request failed", zap.String("component", component), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

func (s *Server) countError(component, errType string) {
	s.metrics.ErrorsTotal.WithLabelValues(component, errType).Inc()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newStateNonce() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		panic("nonce entropy unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
