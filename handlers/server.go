package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mapleleafu/typearena/typearena-backend/arena"
	"github.com/mapleleafu/typearena/typearena-backend/logger"
	"github.com/mapleleafu/typearena/typearena-backend/matchmaking"
	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/room"
	"github.com/rs/zerolog"
)

// SessionHistory lists a player's completed sessions.
type SessionHistory interface {
	PlayerSessions(ctx context.Context, playerID string, limit int) ([]models.SessionSummary, error)
}

// SessionArchive returns one archived session with its final state.
type SessionArchive interface {
	GetSession(ctx context.Context, sessionID string) (*models.CompletedSession, error)
}

type Rater interface {
	Rate(ctx context.Context, playerID string, gameType models.GameType) (models.Rating, error)
}

type Deps struct {
	Hub       *Hub
	Rooms     *room.Manager
	Match     *matchmaking.Service
	Arena     *arena.Arena
	Rater     Rater
	History   SessionHistory
	Archive   SessionArchive
	JWTSecret string
	// InputRate and InputBurst bound inbound websocket messages per
	// connection.
	InputRate  float64
	InputBurst int
}

// Server owns the realtime and REST surface.
type Server struct {
	Deps
	handlers       map[string]eventHandler
	upgrader       websocket.Upgrader
	requestTimeout time.Duration
	log            zerolog.Logger
}

func NewServer(deps Deps) *Server {
	if deps.InputRate <= 0 {
		deps.InputRate = 40
	}
	if deps.InputBurst <= 0 {
		deps.InputBurst = 80
	}
	s := &Server{
		Deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		requestTimeout: 5 * time.Second,
		log:            logger.Component("handlers"),
	}
	s.handlers = s.eventHandlers()
	return s
}

// broadcastRoom sends an event to every member of a room except skip.
func (s *Server) broadcastRoom(r *models.Room, event string, payload any, skip string) {
	for _, p := range r.Players {
		if p.PlayerID != skip {
			s.Hub.SendTo(p.PlayerID, event, payload)
		}
	}
}

func (s *Server) roomUpdated(r *models.Room) {
	s.broadcastRoom(r, models.EventRoomUpdated, r.Public(), "")
}
