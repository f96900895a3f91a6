package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HealthCheck reports whether a backing dependency is reachable
type HealthCheck func(ctx context.Context) error

// Dependencies carries everything the HTTP layer needs, built once in main
type Dependencies struct {
	Registrar    Registrar
	Sessions     SessionManager
	Users        UserReader
	Logins       LoginReader
	HealthChecks map[string]HealthCheck

	RegisterRateLimit rate.Limit
	RegisterRateBurst int
}

// Server represents the API server
type Server struct {
	registerHandler *RegisterHandler
	sessionHandler  *SessionHandler
	registerLimiter *ipRateLimiter
	healthChecks    map[string]HealthCheck
	logger          *zap.Logger
	server          *http.Server
}

// NewServer creates a new API server
func NewServer(port int, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.Registrar == nil || deps.Sessions == nil {
		return nil, errors.New("registrar and session manager are required")
	}
	if deps.Users == nil || deps.Logins == nil {
		return nil, errors.New("user and login readers are required")
	}

	return &Server{
		registerHandler: NewRegisterHandler(deps.Registrar, deps.Sessions, logger),
		sessionHandler:  NewSessionHandler(deps.Sessions, deps.Users, deps.Logins, logger),
		registerLimiter: newIPRateLimiter(deps.RegisterRateLimit, deps.RegisterRateBurst, logger),
		healthChecks:    deps.HealthChecks,
		logger:          logger,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}, nil
}

// Start starts the API server
func (s *Server) Start() error {
	s.server.Handler = s.setupRoutes()

	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop stops the API server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	return s.server.Shutdown(ctx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Add middleware
	router.Use(s.loggingMiddleware)
	router.Use(s.corsMiddleware)

	// Wallet registration endpoints
	register := router.PathPrefix("/register-wallet").Subrouter()
	register.Use(s.registerLimiter.middleware)
	register.HandleFunc("/", s.registerHandler.Index).Methods("GET", "POST")
	register.HandleFunc("/address={wallet_address}", s.registerHandler.RegisterWallet).Methods("GET", "POST")

	// API routes
	api := router.PathPrefix("/api").Subrouter()

	// Session endpoints
	api.HandleFunc("/session", s.sessionHandler.GetSession).Methods("GET")
	api.HandleFunc("/session/logout", s.sessionHandler.Logout).Methods("POST")
	api.HandleFunc("/session/logins", s.sessionHandler.GetLogins).Methods("GET")

	// Health check endpoint
	api.HandleFunc("/health", s.healthCheck).Methods("GET")

	return router
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		// Call the next handler
		next.ServeHTTP(recorder, r)

		// Log the request
		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.status),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// corsMiddleware handles CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// healthCheck handles the health check endpoint
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status: "healthy",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK

	for name, check := range s.healthChecks {
		if err := check(ctx); err != nil {
			s.logger.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
			if response.Checks == nil {
				response.Checks = make(map[string]string)
			}
			response.Checks[name] = err.Error()
			response.Status = "unhealthy"
			statusCode = http.StatusServiceUnavailable
		}
	}

	writeJSONResponse(w, s.logger, statusCode, response)
}
