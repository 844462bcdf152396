// Package web serves the owner's password-gated browser chat
package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/hession/shreya/internal/agent"
	"github.com/hession/shreya/internal/commands"
	"github.com/hession/shreya/internal/logger"
	"github.com/hession/shreya/internal/metrics"
)

// Source is the front-end name reported to the agent
const Source = "web"

const (
	cookieName   = "shreya_session"
	maxBodyBytes = 64 << 10
)

//go:embed pages/*.html
var pageFS embed.FS

var pages = template.Must(template.ParseFS(pageFS, "pages/*.html"))

// Options configures the web server
type Options struct {
	Addr       string
	Password   string
	SessionTTL time.Duration
}

// Server is the web front-end
type Server struct {
	opts     Options
	agent    *agent.Agent
	commands *commands.Service
	metrics  *metrics.Metrics
	sessions *sessions
	upgrader websocket.Upgrader
}

type loginRequest struct {
	Password string `json:"password"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply   string `json:"reply"`
	Mood    string `json:"mood,omitempty"`
	Blocked bool   `json:"blocked,omitempty"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New creates the web server. m may be nil, which disables /metrics.
func New(opts Options, a *agent.Agent, svc *commands.Service, m *metrics.Metrics) *Server {
	return &Server{
		opts:     opts,
		agent:    a,
		commands: svc,
		metrics:  m,
		sessions: newSessions(opts.SessionTTL),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
	}
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHome)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)
	r.Post("/chat", s.handleChat)
	r.Get("/chat/ws", s.handleChatWS)
	r.Get("/status", s.handleStatus)
	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if l := logger.GetDefault(); l != nil {
		srv.ErrorLog = l.StdLogger(logger.ERROR)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Web server listening on %s", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	page := "login.html"
	if s.authenticated(r) {
		page = "chat.html"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct{ BotName string }{BotName: s.agent.Persona().BotName}
	if err := pages.ExecuteTemplate(w, page, data); err != nil {
		logger.Error("Failed to render %s: %v", page, err)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondJSON(w, http.StatusBadRequest, statusResponse{Error: "Invalid request"})
		return
	}
	if req.Password == "" {
		respondJSON(w, http.StatusBadRequest, statusResponse{Error: "Password required"})
		return
	}
	if s.opts.Password == "" ||
		subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.opts.Password)) != 1 {
		logger.Warn("Web login failed from %s", r.RemoteAddr)
		respondJSON(w, http.StatusUnauthorized, statusResponse{Error: "Invalid password"})
		return
	}

	token := s.sessions.create()
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.sessions.ttl.Seconds()),
	})
	respondJSON(w, http.StatusOK, statusResponse{Success: true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(cookieName); err == nil {
		s.sessions.revoke(c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	respondJSON(w, http.StatusOK, statusResponse{Success: true})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	resp, err := s.chat(r.Context(), req.Message)
	if errors.Is(err, agent.ErrEmptyMessage) {
		respondError(w, http.StatusBadRequest, "No message provided")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxBodyBytes)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var out any
		var req chatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			out = errorResponse{Error: "Invalid request"}
		} else if resp, err := s.chat(r.Context(), req.Message); errors.Is(err, agent.ErrEmptyMessage) {
			out = errorResponse{Error: "No message provided"}
		} else {
			out = resp
		}

		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(out); err != nil {
			logger.Debug("Websocket write failed: %v", err)
			return
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s.commands.Status()))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// chat runs one owner message. Only agent.ErrEmptyMessage is returned; other
// failures still produce a reply.
func (s *Server) chat(ctx context.Context, message string) (chatResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return chatResponse{}, agent.ErrEmptyMessage
	}
	ownerID := s.agent.OwnerID()

	if s.commands.IsCommand(message) {
		reply, err := s.commands.Handle(ctx, message, commands.Caller{
			UserID:      ownerID,
			DisplayName: s.agent.Owner().Name,
			Privileged:  true,
		})
		if err != nil {
			reply = s.agent.Persona().Fallback
		}
		return chatResponse{Reply: reply}, nil
	}

	resp, err := s.agent.HandleMessage(ctx, agent.Request{
		UserID:     ownerID,
		Text:       message,
		Privileged: true,
		Source:     Source,
	})
	if err != nil {
		if errors.Is(err, agent.ErrEmptyMessage) {
			return chatResponse{}, err
		}
		logger.Error("Web chat: %v", err)
		if resp.Reply == "" {
			resp.Reply = s.agent.Persona().Fallback
		}
	}
	return chatResponse{Reply: resp.Reply, Mood: resp.Mood, Blocked: resp.Blocked}, nil
}

func (s *Server) authenticated(r *http.Request) bool {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return false
	}
	return s.sessions.valid(c.Value)
}

// sameOrigin accepts non-browser clients and same-host browser origins
func sameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
