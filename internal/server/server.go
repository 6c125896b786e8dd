package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/lukasschreiber/wimc/internal/email"
	"github.com/lukasschreiber/wimc/internal/handler"
	"github.com/lukasschreiber/wimc/internal/middleware"
	"github.com/lukasschreiber/wimc/internal/store"
	ws "github.com/lukasschreiber/wimc/internal/websocket"
)

// Config holds the server's runtime settings.
type Config struct {
	TokenSecret []byte
	TokenTTL    time.Duration
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	authH       *handler.AuthHandler
	carH        *handler.CarHandler
	keyH        *handler.KeyHandler
	userStore   *store.UserStore
	rateLimiter *middleware.RateLimiter
	cfg         Config
	logger      *slog.Logger
}

func New(db *sql.DB, emailClient *email.Client, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	carStore := store.NewCarStore(db)
	keyStore := store.NewKeyStore(db)
	positionStore := store.NewPositionStore(db)

	return &Server{
		db:          db,
		hub:         hub,
		authH:       handler.NewAuthHandler(userStore, emailClient, cfg.TokenSecret, cfg.TokenTTL, logger.With("component", "auth")),
		carH:        handler.NewCarHandler(carStore, keyStore, positionStore, userStore, emailClient, hub, logger.With("component", "car")),
		keyH:        handler.NewKeyHandler(keyStore, carStore, hub, logger.With("component", "key")),
		userStore:   userStore,
		rateLimiter: middleware.NewRateLimiter(),
		cfg:         cfg,
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /users/signup", s.rateLimitedHandler(s.authH.Signup))
	outerMux.HandleFunc("PATCH /users/activate", s.rateLimitedHandler(s.authH.Activate))
	outerMux.HandleFunc("POST /users/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("PATCH /users/forgot", s.rateLimitedHandler(s.authH.Forgot))
	outerMux.HandleFunc("PATCH /users/reset", s.rateLimitedHandler(s.authH.Reset))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes — wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.userStore, s.cfg.TokenSecret)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /users/user", s.authH.Me)

	// Car routes
	mux.HandleFunc("POST /cars", s.carH.Create)
	mux.HandleFunc("GET /cars", s.carH.List)
	mux.HandleFunc("GET /cars/{license}", s.carH.Get)
	mux.HandleFunc("PATCH /cars/{license}", s.carH.Update)
	mux.HandleFunc("DELETE /cars/{license}", s.carH.Delete)
	mux.HandleFunc("POST /cars/{license}/invitations", s.carH.Invite)
	mux.HandleFunc("POST /cars/{license}/invitations/accept", s.carH.Accept)
	mux.HandleFunc("POST /cars/{license}/positions", s.carH.StorePosition)

	// Key routes
	mux.HandleFunc("POST /keys", s.keyH.Create)
	mux.HandleFunc("GET /keys/{uuid}", s.keyH.Get)
	mux.HandleFunc("PATCH /keys/{uuid}", s.keyH.Update)
	mux.HandleFunc("DELETE /keys/{uuid}", s.keyH.Delete)

	// Live change feed
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
}
