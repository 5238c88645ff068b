package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/auth"
	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/hub"
)

// Feed is the gateway side a new websocket is handed to.
type Feed interface {
	HandleConnection(client hub.ClientInterface) error
	State() gateway.State
}

type ctxKey struct{}

// Server exposes login, profile, the HTTP snapshot and the /ws/tickers channel.
type Server struct {
	addr      string
	authority *auth.Authority
	hub       *hub.Hub
	source    hub.SnapshotSource
	feed      Feed
	logger    *zap.Logger
}

func NewServer(addr string, authority *auth.Authority, h *hub.Hub, source hub.SnapshotSource, feed Feed, logger *zap.Logger) *Server {
	return &Server{
		addr:      addr,
		authority: authority,
		hub:       h,
		source:    source,
		feed:      feed,
		logger:    logger,
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server Started", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.With(s.requireBearer).Get("/profile", s.handleProfile)
	})
	r.With(s.requireBearer).Get("/tickers", s.handleSnapshot)
	r.Get("/ws/tickers", s.handleTickerSocket)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"feed":    s.feed.State().String(),
		"clients": s.hub.Count(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	session, err := s.authority.Issue(creds)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(ctxKey{}).(*auth.Claims)
	writeJSON(w, http.StatusOK, map[string]any{"user": claims.User()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.source.Instruments())
}

// handleTickerSocket authenticates before upgrading: a rejected client never gets tickers:init.
func (s *Server) handleTickerSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.verifyRequest(r)
	if err != nil {
		s.logger.Info("Handshake rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Debug("Upgrade failed", zap.Error(err))
		return
	}

	client := gateway.NewClient(conn, s.hub, s.logger)
	if err := s.feed.HandleConnection(client); err != nil {
		s.logger.Warn("Initial snapshot failed", zap.String("client", client.ID()), zap.Error(err))
	}
	client.Start()

	s.logger.Info("Client connected", zap.String("client", client.ID()), zap.String("sub", claims.Subject))
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("%w: missing bearer token", auth.ErrUnauthorized))
			return
		}
		claims, err := s.authority.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
	})
}

// verifyRequest accepts the token from the Authorization header or the token query param.
func (s *Server) verifyRequest(r *http.Request) (*auth.Claims, error) {
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", auth.ErrUnauthorized)
	}
	return s.authority.Verify(token)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
