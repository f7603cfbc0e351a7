package handlers

import (
	"github.com/gorilla/mux"
	"github.com/mapleleafu/typearena/typearena-backend/middleware"
)

func NewRouter(s *Server) *mux.Router {
	r := mux.NewRouter()

	// Public routes
	r.HandleFunc("/healthz", s.Healthz).Methods("GET")
	r.HandleFunc("/ws", s.WsHandler)
	r.HandleFunc("/ws/{token}", s.WsHandler)

	// Secured routes
	secured := r.PathPrefix("/api").Subrouter()
	secured.Use(middleware.JWTValidationMiddleware(s.JWTSecret))
	secured.HandleFunc("/rooms", s.ListRooms).Methods("GET")
	secured.HandleFunc("/sessions", s.FetchPlayerSessions).Methods("GET")
	secured.HandleFunc("/sessions/{sessionID}", s.FetchSession).Methods("GET")
	secured.HandleFunc("/rating/{gameType}", s.FetchRating).Methods("GET")
	return r
}
