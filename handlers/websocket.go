package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/mapleleafu/typearena/typearena-backend/middleware"
	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/responses"
	"github.com/mapleleafu/typearena/typearena-backend/utils"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

func (s *Server) WsHandler(w http.ResponseWriter, r *http.Request) {
	tokenStr := mux.Vars(r)["token"]
	if tokenStr == "" {
		tokenStr = r.URL.Query().Get("token")
	}

	claims, err := middleware.ValidateToken(tokenStr, s.JWTSecret)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket token rejected")
		utils.HandleError(w, responses.UnauthorizedError{Msg: "Error validating token."})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	connection := &Connection{
		ws:          conn,
		send:        make(chan []byte, sendBufferSize),
		id:          uuid.NewString(),
		playerID:    claims.ID,
		displayName: claims.DisplayName(),
		limiter:     rate.NewLimiter(rate.Limit(s.InputRate), s.InputBurst),
	}
	if old := s.Hub.Register(connection); old != nil {
		s.log.Info().Str("playerId", claims.ID).Msg("replacing older connection")
	}
	s.log.Info().Str("playerId", claims.ID).Str("connId", connection.id).Msg("player connected")

	go s.writePump(connection)
	s.readPump(connection)
}

func (s *Server) readPump(c *Connection) {
	defer func() {
		if s.Hub.Unregister(c) {
			s.disconnected(c)
		}
		c.ws.Close()
		s.log.Info().Str("playerId", c.playerID).Str("connId", c.id).Msg("player disconnected")
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Str("playerId", c.playerID).Msg("read failed")
			}
			return
		}
		s.processMessage(c, message)
	}
}

func (s *Server) writePump(c *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				s.log.Debug().Err(err).Str("playerId", c.playerID).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// disconnected cleans up after a player's last connection closes. A game
// in progress carries on without them; a waiting room drops them.
func (s *Server) disconnected(c *Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()

	s.Arena.PlayerDisconnected(c.playerID)
	if _, err := s.Match.Cancel(ctx, c.playerID); err != nil {
		s.log.Warn().Err(err).Str("playerId", c.playerID).Msg("failed to dequeue on disconnect")
	}

	roomID, err := s.Rooms.RoomOf(ctx, c.playerID)
	if err != nil || roomID == "" {
		return
	}
	current, err := s.Rooms.Get(ctx, roomID)
	if err != nil {
		return
	}
	if current.Status == models.RoomStatusWaiting {
		s.leaveRoom(ctx, roomID, c.playerID)
		return
	}
	updated, err := s.Rooms.SetConnected(ctx, roomID, c.playerID, false)
	if err != nil {
		s.log.Warn().Err(err).Str("playerId", c.playerID).Msg("failed to mark player offline")
		return
	}
	s.roomUpdated(updated)
}
