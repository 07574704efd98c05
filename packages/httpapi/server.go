package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"repochat/packages/aggregate"
	"repochat/packages/ai"
	"repochat/packages/config"
	"repochat/packages/fetcher"
	"repochat/packages/session"
	"repochat/types"
)

// Loader fetches repository contents.
type Loader interface {
	Fetch(ctx context.Context, source types.RepoSource) (*fetcher.RepoContents, error)
}

// Asker answers questions about the aggregated context.
type Asker interface {
	Ask(ctx context.Context, contextText, contextLabel string, history []types.ChatTurn, question string) (string, error)
}

// Server serves the JSON API and the embedded web UI.
type Server struct {
	cfg      config.ServerConfig
	loader   Loader
	asker    Asker
	sessions *session.Store
}

// NewServer constructs an HTTP server. asker may be nil when the LLM API
// key is absent; repository browsing still works, chat returns an error.
func NewServer(cfg config.ServerConfig, loader Loader, asker Asker) *Server {
	ttl := time.Duration(cfg.SessionTTLHours) * time.Hour
	return &Server{
		cfg:      cfg,
		loader:   loader,
		asker:    asker,
		sessions: session.NewStore(ttl),
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)

	mux.HandleFunc("/api/load", s.withSession(s.handleLoad))
	mux.HandleFunc("/api/select", s.withSession(s.handleSelect))
	mux.HandleFunc("/api/ask", s.withSession(s.handleAsk))
	mux.HandleFunc("/api/history", s.withSession(s.handleHistory))
	mux.HandleFunc("/api/session", s.withSession(s.handleSession))
	mux.HandleFunc("/api/reset", s.withSession(s.handleReset))

	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data, err := fs.ReadFile(assetsFS, "index.html")
	if err != nil {
		http.Error(w, "index not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		URL   string `json:"url"`
		Token string `json:"token"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.URL) == "" {
		writeError(w, http.StatusBadRequest, errors.New("repository URL is required"))
		return
	}

	source := types.RepoSource{URL: strings.TrimSpace(payload.URL), Token: strings.TrimSpace(payload.Token)}
	contents, err := s.loader.Fetch(r.Context(), source)
	if err != nil {
		slog.Error("Repository load failed", "url", source.URL, "error", err)
		writeUserError(w, err)
		return
	}
	if err := sess.SetRepository(source, contents); err != nil {
		writeUserError(w, err)
		return
	}
	slog.Info("Repository loaded", "url", source.URL, "files", len(contents.Files))
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Path string `json:"path"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := sess.Select(strings.TrimSpace(payload.Path)); err != nil {
		writeUserError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.asker == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("chat is disabled: GEMINI_API_KEY is not set"))
		return
	}
	var payload struct {
		Question string `json:"question"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	question := strings.TrimSpace(payload.Question)
	if question == "" {
		writeError(w, http.StatusBadRequest, errors.New("question is required"))
		return
	}

	contextText, contextLabel, err := sess.Context()
	if err != nil {
		writeUserError(w, err)
		return
	}
	history := sess.History()

	answer, err := s.asker.Ask(r.Context(), contextText, contextLabel, history, question)
	if err != nil {
		slog.Error("Chat request failed", "error", err)
		writeUserError(w, err)
		return
	}

	sess.AppendTurn(types.ChatTurn{Role: types.RoleUser, Text: question})
	sess.AppendTurn(types.ChatTurn{Role: types.RoleModel, Text: answer})
	writeJSON(w, http.StatusOK, map[string]any{"answer": answer})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": sess.History()})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// withSession looks up the session for the request cookie, creating a
// fresh session and cookie on first contact. There is no login; one
// cookie is one browser session.
func (s *Server) withSession(next func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sess *session.Session
		if cookie, err := r.Cookie(s.cfg.SessionCookie); err == nil {
			sess, _ = s.sessions.Get(cookie.Value)
		}
		if sess == nil {
			token, created := s.sessions.Create()
			sess = created
			http.SetCookie(w, &http.Cookie{
				Name:     s.cfg.SessionCookie,
				Value:    token,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next(w, r, sess)
	}
}

// writeUserError renders a taxonomy error as a distinct status and a
// human-readable message. Context-too-large gets explicit guidance so the
// user knows to select a single file instead of the whole repository.
func writeUserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fetcher.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, errors.New("invalid GitHub URL; expected https://github.com/owner/repo"))
	case errors.Is(err, fetcher.ErrNotFound):
		writeError(w, http.StatusNotFound, errors.New("repository not found or inaccessible; check the URL and access token"))
	case errors.Is(err, fetcher.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, errors.New("GitHub API rate limit exceeded; supply a personal access token or wait"))
	case errors.Is(err, aggregate.ErrFileNotFound):
		writeError(w, http.StatusNotFound, errors.New("selected file is not part of the loaded repository"))
	case errors.Is(err, session.ErrNoRepository):
		writeError(w, http.StatusBadRequest, errors.New("no repository loaded; load one from the sidebar first"))
	case errors.Is(err, ai.ErrContextTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, errors.New("the loaded code is too large for the model's context window; select a single file instead of the whole repository"))
	case errors.Is(err, ai.ErrQuota):
		writeError(w, http.StatusTooManyRequests, errors.New("LLM API quota exhausted; try again later"))
	case errors.Is(err, ai.ErrUnauthorized), errors.Is(err, ai.ErrMissingAPIKey):
		writeError(w, http.StatusServiceUnavailable, errors.New("LLM API key is missing or rejected; check server configuration"))
	default:
		writeError(w, http.StatusBadGateway, err)
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
