package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/config"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/security"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/service"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/ws"
)

// Services groups the wired application services the router exposes.
type Services struct {
	Rooms    *service.RoomService
	Messages *service.MessageService
	Calls    *service.CallService
}

// NewRouter constructs the main HTTP router and wires routes and middleware.
func NewRouter(cfg *config.Config, svcs Services, tokenSvc *security.TokenService, hub *ws.Hub) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// API routes, all authenticated.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(tokenSvc))

		r.Route("/chat", func(r chi.Router) {
			r.Route("/rooms", func(r chi.Router) {
				r.Post("/", handleCreateRoom(svcs.Rooms))
				r.Get("/", handleListRooms(svcs.Rooms))
				r.Get("/{roomID}", handleGetRoom(svcs.Rooms))
				r.Patch("/{roomID}/identity-settings", handleUpdateIdentitySettings(svcs.Rooms))
				r.Post("/{roomID}/read", handleMarkRoomRead(svcs.Rooms))
				r.Get("/{roomID}/messages", handleListMessages(svcs.Messages))
			})
			r.Post("/messages", handleCreateMessage(svcs.Messages))
			r.Post("/messages/{messageID}/moderate", handleModerateMessage(svcs.Messages))
		})

		r.Route("/calling", func(r chi.Router) {
			r.Post("/initiate", handleInitiateCall(svcs.Calls))
			r.Route("/sessions/{sessionID}", func(r chi.Router) {
				r.Post("/join", handleJoinCall(svcs.Calls))
				r.Post("/end", handleEndCall(svcs.Calls))
				r.Get("/status", handleCallStatus(svcs.Calls))
				r.Post("/transports", handleCreateTransport(svcs.Calls))
				r.Post("/produce", handleProduce(svcs.Calls))
				r.Post("/consume", handleConsume(svcs.Calls))
			})
		})
	})

	// WebSocket endpoint
	r.Get("/ws", ws.MakeHandler(hub, tokenSvc, svcs.Messages, cfg.CORSOrigins))

	return r
}
