// Package server hosts guarded sessions: it keeps sessions alive on client
// activity, answers pings and pushes guard config changes over a websocket.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stigoleg/session-guard/internal/wire"
)

const (
	// SessionCookie carries the session id.
	SessionCookie = "SESSIONGUARD"

	maxMessageSize = 4096
	writeTimeout   = 10 * time.Second
)

// Options configure a Server.
type Options struct {
	Defaults       Defaults
	AllowedOrigins []string
	Logger         *zerolog.Logger
}

// Server serves the guard websocket and its small HTTP API.
type Server struct {
	store          *Store
	upgrader       websocket.Upgrader
	allowedOrigins []string
	logger         zerolog.Logger

	mu       sync.Mutex
	defaults Defaults
	conns    map[*conn]struct{}
}

// conn is one guarded websocket.
type conn struct {
	ws        *websocket.Conn
	sessionID string
	guard     *Guard

	writeMu sync.Mutex
	seq     uint64
}

// New creates a server on top of store.
func New(store *Store, opts Options) (*Server, error) {
	if err := opts.Defaults.Validate(); err != nil {
		return nil, fmt.Errorf("invalid guard defaults: %w", err)
	}
	logger := log.Logger.With().Str("component", "server").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	s := &Server{
		store:          store,
		allowedOrigins: opts.AllowedOrigins,
		logger:         logger,
		defaults:       opts.Defaults,
		conns:          make(map[*conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// Handler returns the routes wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/guard", s.handleGuard)
	mux.HandleFunc("/health", s.handleHealth)

	origins := s.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: len(s.allowedOrigins) > 0,
	})
	return c.Handler(mux)
}

// Defaults returns the values new guards start with.
func (s *Server) Defaults() Defaults {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaults
}

// Connections returns the number of open guard connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close closes every open guard connection.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(s.allowedOrigins, origin)
}

// session resumes the session named by the request cookie or starts a new one.
func (s *Server) session(r *http.Request) (Session, bool) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		sess, err := s.store.Touch(cookie.Value)
		if err == nil {
			return sess, false
		}
		s.logger.Debug().Err(err).Str("session", cookie.Value).Msg("starting a new session")
	}
	return s.store.Create(), true
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sess, created := s.session(r)

	header := http.Header{}
	if created {
		cookie := &http.Cookie{
			Name:     SessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		}
		header.Add("Set-Cookie", cookie.String())
	}

	ws, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		s.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	ws.SetReadLimit(maxMessageSize)

	c := &conn{ws: ws, sessionID: sess.ID, guard: NewGuard(s.Defaults())}
	if err := c.guard.Attach(sess); err != nil {
		s.logger.Error().Err(err).Msg("attaching guard failed")
		_ = c.write(wire.MsgError, wire.ErrorPayload{Message: err.Error()})
		c.close(websocket.CloseInternalServerErr, "guard unavailable")
		return
	}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	logger := s.logger.With().Str("session", sess.ID).Str("remote", r.RemoteAddr).Logger()
	logger.Info().Bool("new_session", created).Msg("guard connected")

	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = ws.Close()
		if sess, err := s.store.Get(c.sessionID); err == nil {
			logger.Info().Time("expires", sess.LastAccess.Add(sess.MaxInactive)).Msg("guard disconnected")
			return
		}
		logger.Info().Msg("guard disconnected")
	}()

	if err := c.pushState(); err != nil {
		logger.Warn().Err(err).Msg("initial state push failed")
		return
	}

	for {
		var msg wire.Message
		if err := ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("read failed")
			}
			return
		}
		if !s.handleMessage(c, msg, logger) {
			return
		}
	}
}

// handleMessage processes one client frame and reports whether the
// connection should stay open.
func (s *Server) handleMessage(c *conn, msg wire.Message, logger zerolog.Logger) bool {
	if msg.Type != wire.MsgBatch {
		return c.write(wire.MsgError, wire.ErrorPayload{
			Message: fmt.Sprintf("unsupported message type %q", msg.Type),
		}) == nil
	}

	var batch wire.BatchPayload
	if err := msg.Decode(&batch); err != nil {
		return c.write(wire.MsgError, wire.ErrorPayload{Message: err.Error()}) == nil
	}

	// Any traffic counts as activity on the session.
	if _, err := s.store.Touch(c.sessionID); err != nil {
		if errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrSessionNotFound) {
			logger.Info().Err(err).Msg("closing guard of ended session")
			_ = c.write(wire.MsgExpired, nil)
			c.close(websocket.CloseNormalClosure, "session expired")
			return false
		}
		logger.Error().Err(err).Msg("touching session failed")
		return false
	}

	for _, inv := range batch.Invocations {
		switch inv.Method {
		case wire.MethodPing:
		case wire.MethodAction:
			s.handleAction(c, inv.Name, logger)
			if err := c.write(wire.MsgAck, wire.AckPayload{Name: inv.Name}); err != nil {
				return false
			}
		default:
			if err := c.write(wire.MsgError, wire.ErrorPayload{
				Message: fmt.Sprintf("unknown method %q", inv.Method),
			}); err != nil {
				return false
			}
		}
	}

	if err := c.pushState(); err != nil {
		return false
	}
	if batch.HasPing() {
		logger.Debug().Msg("ping")
		if err := c.write(wire.MsgPong, nil); err != nil {
			return false
		}
	}
	return true
}

func (s *Server) handleAction(c *conn, name string, logger zerolog.Logger) {
	switch name {
	case wire.ActionToggleKeepAlive:
		on := c.guard.ToggleKeepAlive()
		logger.Info().Bool("keep_alive", on).Msg("keep-alive toggled")
	default:
		logger.Debug().Str("action", name).Msg("action")
	}
}

// guardSettings is the body of PUT /api/guard. Nil fields are left alone.
type guardSettings struct {
	WarningPeriodMinutes   *int    `json:"warningPeriodMinutes"`
	TimeoutWarningTemplate *string `json:"timeoutWarningTemplate"`
	KeepAlive              *bool   `json:"keepAlive"`
}

type guardStatus struct {
	Defaults    Defaults `json:"defaults"`
	Connections int      `json:"connections"`
}

func (s *Server) handleGuard(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var in guardSettings
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize)).Decode(&in); err != nil {
			http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
			return
		}
		if err := s.UpdateGuards(in.WarningPeriodMinutes, in.TimeoutWarningTemplate, in.KeepAlive); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, guardStatus{Defaults: s.Defaults(), Connections: s.Connections()})
}

// UpdateGuards changes the defaults and every live guard, then pushes the
// change to the connected clients. Nothing changes when a value is invalid.
func (s *Server) UpdateGuards(warningMinutes *int, template *string, keepAlive *bool) error {
	if warningMinutes != nil && *warningMinutes <= 0 {
		return fmt.Errorf("warning period %d: %w", *warningMinutes, ErrNonPositiveTimeSpan)
	}
	if template != nil && !validTemplate(*template) {
		return ErrInvalidTemplate
	}

	s.mu.Lock()
	if warningMinutes != nil {
		s.defaults.WarningPeriodMinutes = *warningMinutes
	}
	if template != nil {
		s.defaults.WarningTemplate = *template
	}
	if keepAlive != nil {
		s.defaults.KeepAlive = *keepAlive
	}
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if warningMinutes != nil {
			_ = c.guard.SetTimeoutWarningPeriod(*warningMinutes)
		}
		if template != nil {
			_ = c.guard.SetTimeoutWarningTemplate(*template)
		}
		if keepAlive != nil {
			c.guard.SetKeepAlive(*keepAlive)
		}
		if err := c.pushState(); err != nil {
			s.logger.Warn().Err(err).Str("session", c.sessionID).Msg("pushing guard update failed")
		}
	}
	s.logger.Info().Int("connections", len(conns)).Msg("guard settings updated")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{
		"status":      "ok",
		"sessions":    s.store.Len(),
		"connections": s.Connections(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("writing response failed")
	}
}

// pushState sends the guard fields that changed, if any. Draining under the
// write lock keeps pushes in the order the changes were made.
func (c *conn) pushState() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	u := c.guard.Drain()
	if u.Empty() {
		return nil
	}
	return c.writeLocked(wire.MsgState, u)
}

func (c *conn) write(t wire.MessageType, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeLocked(t, payload)
}

func (c *conn) writeLocked(t wire.MessageType, payload any) error {
	msg, err := wire.New(t, payload)
	if err != nil {
		return err
	}
	c.seq++
	msg.Seq = c.seq
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(msg)
}

func (c *conn) close(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second))
	_ = c.ws.Close()
}
