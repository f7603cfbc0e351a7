package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mapleleafu/typearena/typearena-backend/middleware"
	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/repository"
	"github.com/mapleleafu/typearena/typearena-backend/responses"
	"github.com/mapleleafu/typearena/typearena-backend/utils"
)

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 100
)

func (s *Server) ListRooms(w http.ResponseWriter, r *http.Request) {
	gameType := models.GameType(r.URL.Query().Get("gameType"))
	if gameType != "" && !gameType.Valid() {
		utils.HandleError(w, responses.BadRequestError{Msg: "Unknown game type.", ErrCode: "invalid_game_type"})
		return
	}
	rooms, err := s.Rooms.List(r.Context(), gameType)
	if err != nil {
		utils.HandleError(w, apiError(err))
		return
	}
	utils.HandleSuccess(w, models.SuccessResponse(rooms))
}

func (s *Server) FetchPlayerSessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		utils.HandleError(w, responses.UnauthorizedError{Msg: "You are not authorized to access this resource."})
		return
	}

	limit := defaultSessionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxSessionLimit {
			utils.HandleError(w, responses.BadRequestError{Msg: "limit must be between 1 and 100."})
			return
		}
		limit = n
	}

	sessions, err := s.History.PlayerSessions(r.Context(), claims.ID, limit)
	if err != nil {
		s.log.Error().Err(err).Str("playerId", claims.ID).Msg("loading sessions failed")
		utils.HandleError(w, responses.InternalServerError{Msg: "Failed to load sessions."})
		return
	}
	if sessions == nil {
		sessions = []models.SessionSummary{}
	}
	utils.HandleSuccess(w, models.SuccessResponse(sessions))
}

// FetchSession returns one archived session. Only players who took part
// may read it.
func (s *Server) FetchSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		utils.HandleError(w, responses.UnauthorizedError{Msg: "You are not authorized to access this resource."})
		return
	}

	sessionID := mux.Vars(r)["sessionID"]
	session, err := s.Archive.GetSession(r.Context(), sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		utils.HandleError(w, responses.NotFoundError{Msg: "Session not found.", ErrCode: "session_not_found"})
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("sessionId", sessionID).Msg("loading session failed")
		utils.HandleError(w, responses.InternalServerError{Msg: "Failed to load session."})
		return
	}
	if !session.HasPlayer(claims.ID) {
		utils.HandleError(w, responses.BadRequestError{Msg: "You did not play in this session.", ErrCode: "not_a_participant"})
		return
	}
	utils.HandleSuccess(w, models.SuccessResponse(session))
}

func (s *Server) FetchRating(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		utils.HandleError(w, responses.UnauthorizedError{Msg: "You are not authorized to access this resource."})
		return
	}
	gameType := models.GameType(mux.Vars(r)["gameType"])
	if !gameType.Valid() {
		utils.HandleError(w, responses.BadRequestError{Msg: "Unknown game type.", ErrCode: "invalid_game_type"})
		return
	}

	rating, err := s.Rater.Rate(r.Context(), claims.ID, gameType)
	if err != nil {
		s.log.Error().Err(err).Str("playerId", claims.ID).Msg("rating failed")
		utils.HandleError(w, responses.InternalServerError{Msg: "Failed to compute rating."})
		return
	}
	utils.HandleSuccess(w, models.SuccessResponse(rating))
}

func (s *Server) Healthz(w http.ResponseWriter, _ *http.Request) {
	utils.HandleSuccess(w, models.SuccessResponse(map[string]int{"activeGames": s.Arena.Active()}))
}
