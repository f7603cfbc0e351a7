package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"github.com/mapleleafu/typearena/typearena-backend/anticheat"
	"github.com/mapleleafu/typearena/typearena-backend/arena"
	"github.com/mapleleafu/typearena/typearena-backend/matchmaking"
	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/repository"
	"github.com/mapleleafu/typearena/typearena-backend/room"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type memStore struct {
	mu    sync.Mutex
	rooms map[string]models.Room
}

func (s *memStore) SaveRoom(_ context.Context, r *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	cp.Players = append([]models.RoomPlayer(nil), r.Players...)
	s.rooms[r.RoomID] = cp
	return nil
}

func (s *memStore) GetRoom(_ context.Context, id string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	r.Players = append([]models.RoomPlayer(nil), r.Players...)
	return &r, nil
}

func (s *memStore) DeleteRoom(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
	return nil
}

func (s *memStore) ListRooms(_ context.Context, gameType models.GameType, status models.RoomStatus) ([]models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Room
	for _, r := range s.rooms {
		if r.Status == status && (gameType == "" || r.GameType == gameType) {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockRater struct{ mock.Mock }

func (m *mockRater) Rate(ctx context.Context, playerID string, gameType models.GameType) (models.Rating, error) {
	args := m.Called(ctx, playerID, gameType)
	return args.Get(0).(models.Rating), args.Error(1)
}

type mockHistory struct{ mock.Mock }

func (m *mockHistory) PlayerSessions(ctx context.Context, playerID string, limit int) ([]models.SessionSummary, error) {
	args := m.Called(ctx, playerID, limit)
	sessions, _ := args.Get(0).([]models.SessionSummary)
	return sessions, args.Error(1)
}

type mockArchive struct{ mock.Mock }

func (m *mockArchive) GetSession(ctx context.Context, sessionID string) (*models.CompletedSession, error) {
	args := m.Called(ctx, sessionID)
	session, _ := args.Get(0).(*models.CompletedSession)
	return session, args.Error(1)
}

type testEnv struct {
	server  *Server
	http    *httptest.Server
	rooms   *room.Manager
	match   *matchmaking.Service
	arena   *arena.Arena
	rater   *mockRater
	history *mockHistory
	archive *mockArchive
}

func newTestEnv(t *testing.T, tweak ...func(*Deps)) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	env := &testEnv{
		rater:   &mockRater{},
		history: &mockHistory{},
		archive: &mockArchive{},
	}
	env.rooms = room.NewManager(&memStore{rooms: map[string]models.Room{}}, repository.NewRedisCache(client))

	hub := NewHub()
	cfg := arena.DefaultConfig()
	cfg.CountdownSeconds = -1
	cfg.ResultsHold = 10 * time.Millisecond
	env.arena = arena.New(cfg, env.rooms, hub, anticheat.NewValidator(anticheat.DefaultThresholds))
	env.match = matchmaking.NewService(matchmaking.DefaultConfig(), repository.NewRedisQueue(client), env.rooms, env.rater,
		NewMatchNotifier(hub, env.rooms, env.arena))

	deps := Deps{
		Hub:       hub,
		Rooms:     env.rooms,
		Match:     env.match,
		Arena:     env.arena,
		Rater:     env.rater,
		History:   env.history,
		Archive:   env.archive,
		JWTSecret: testSecret,
	}
	for _, fn := range tweak {
		fn(&deps)
	}
	env.server = NewServer(deps)
	env.http = httptest.NewServer(NewRouter(env.server))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = env.arena.Shutdown(ctx)
		env.http.Close()
	})
	return env
}

func token(t *testing.T, playerID, username string) string {
	t.Helper()
	claims := models.CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		ID:               playerID,
		Username:         username,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	seq  int64
}

func (env *testEnv) connect(t *testing.T, playerID string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/" + token(t, playerID, strings.ToUpper(playerID))
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) emit(event string, data any) int64 {
	c.t.Helper()
	c.seq++
	ack := c.seq
	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(models.Envelope{Event: event, Ack: &ack, Data: raw}))
	return ack
}

// waitFor reads frames until one matches event and accept.
func (c *wsClient) waitFor(event string, accept func(models.Envelope) bool) models.Envelope {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		var env models.Envelope
		require.NoError(c.t, c.conn.ReadJSON(&env), "waiting for %s", event)
		if env.Event == event && (accept == nil || accept(env)) {
			return env
		}
	}
}

func (c *wsClient) request(event string, data any) models.AckResponse {
	c.t.Helper()
	id := c.emit(event, data)
	env := c.waitFor(models.EventAck, func(e models.Envelope) bool { return e.Ack != nil && *e.Ack == id })
	var resp models.AckResponse
	require.NoError(c.t, json.Unmarshal(env.Data, &resp))
	return resp
}

func TestRoomFlowOverWebsocket(t *testing.T) {
	env := newTestEnv(t)
	alice := env.connect(t, "alice")
	bob := env.connect(t, "bob")

	created := alice.request(models.EventRoomCreate, models.CreateRoomMessage{GameType: models.GameTypeBlink, RoomName: "lunch"})
	require.True(t, created.Success, created.Error)
	require.NotNil(t, created.Room)
	roomID := created.Room.RoomID
	assert.Equal(t, "lunch", created.Room.RoomName)
	alice.waitFor(models.EventRoomCreated, nil)

	wrong := bob.request(models.EventRoomJoin, models.JoinRoomMessage{RoomID: "nope"})
	assert.False(t, wrong.Success)
	assert.Equal(t, "room_not_found", wrong.Error)

	joined := bob.request(models.EventRoomJoin, models.JoinRoomMessage{RoomID: roomID})
	require.True(t, joined.Success, joined.Error)
	assert.Len(t, joined.Room.Players, 2)
	alice.waitFor(models.EventPlayerJoined, nil)

	early := alice.request(models.EventRoomStart, models.RoomMessage{RoomID: roomID})
	assert.Equal(t, "players_not_ready", early.Error)

	notHost := bob.request(models.EventRoomStart, models.RoomMessage{RoomID: roomID})
	assert.Equal(t, "not_host", notHost.Error)

	ready := bob.request(models.EventRoomReady, models.RoomMessage{RoomID: roomID})
	require.True(t, ready.Success, ready.Error)
	alice.waitFor(models.EventPlayerReady, nil)

	started := alice.request(models.EventRoomStart, models.RoomMessage{RoomID: roomID})
	require.True(t, started.Success, started.Error)
	assert.Equal(t, roomID, started.RoomID)

	alice.waitFor(models.EventGameStarted, nil)
	bob.waitFor(models.EventGameStarted, nil)

	alice.emit(models.EventGameInput, models.GameInputMessage{RoomID: roomID, Input: models.InputEvent{
		InputType: models.InputTypeKeystroke, Timestamp: 1000, Data: models.InputData{Key: "ab"},
	}})
	rejected := alice.waitFor(models.EventGameInputRejected, nil)
	var payload models.InputRejectedPayload
	require.NoError(t, json.Unmarshal(rejected.Data, &payload))
	assert.Equal(t, anticheat.ReasonInvalidInput, payload.Reason)

	ok := alice.request(models.EventGameInput, models.GameInputMessage{RoomID: roomID, Input: models.InputEvent{
		InputType: models.InputTypeKeystroke, Timestamp: 1200, Data: models.InputData{Key: "a"},
	}})
	assert.True(t, ok.Success, ok.Error)
	bob.waitFor(models.EventGamePlayerUpdate, nil)
	bob.waitFor(models.EventGameState, nil)
}

func TestMatchmakingOverWebsocket(t *testing.T) {
	env := newTestEnv(t)
	env.rater.On("Rate", mock.Anything, "ann", models.GameTypeSpeedRace).Return(models.Rating{Rating: 10, Tier: models.TierBeginner}, nil)
	env.rater.On("Rate", mock.Anything, "ben", models.GameTypeSpeedRace).Return(models.Rating{Rating: 15, Tier: models.TierBeginner}, nil)

	ann := env.connect(t, "ann")
	ben := env.connect(t, "ben")

	require.True(t, ann.request(models.EventMatchQueue, models.QueueMessage{GameType: models.GameTypeSpeedRace}).Success)
	require.True(t, ben.request(models.EventMatchQueue, models.QueueMessage{GameType: models.GameTypeSpeedRace}).Success)
	again := ben.request(models.EventMatchQueue, models.QueueMessage{GameType: models.GameTypeSpeedRace})
	assert.Equal(t, "already_queued", again.Error)

	rooms, err := env.match.MatchOnce(context.Background(), models.GameTypeSpeedRace)
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	found := ann.waitFor(models.EventMatchFound, nil)
	var payload models.MatchFoundPayload
	require.NoError(t, json.Unmarshal(found.Data, &payload))
	assert.Equal(t, rooms[0].RoomID, payload.RoomID)

	ann.waitFor(models.EventGameStarted, nil)
	ben.waitFor(models.EventGameStarted, nil)
	env.rater.AssertExpectations(t)
}

func TestMatchCancel(t *testing.T) {
	env := newTestEnv(t)
	env.rater.On("Rate", mock.Anything, "ann", models.GameTypeBlink).Return(models.Rating{Tier: models.TierBeginner}, nil)
	ann := env.connect(t, "ann")

	require.True(t, ann.request(models.EventMatchQueue, models.QueueMessage{GameType: models.GameTypeBlink}).Success)
	require.True(t, ann.request(models.EventMatchCancel, struct{}{}).Success)
	ann.waitFor(models.EventMatchCancelled, nil)

	bad := ann.request(models.EventMatchQueue, models.QueueMessage{GameType: "chess"})
	assert.Equal(t, "invalid_game_type", bad.Error)
}

func TestDisconnectLeavesWaitingRoom(t *testing.T) {
	env := newTestEnv(t)
	host := env.connect(t, "host")
	guest := env.connect(t, "guest")

	created := host.request(models.EventRoomCreate, models.CreateRoomMessage{GameType: models.GameTypeFallingWords})
	require.True(t, created.Success)
	require.True(t, guest.request(models.EventRoomJoin, models.JoinRoomMessage{RoomID: created.Room.RoomID}).Success)

	host.conn.Close()
	left := guest.waitFor(models.EventPlayerLeft, nil)
	var payload models.PlayerEventPayload
	require.NoError(t, json.Unmarshal(left.Data, &payload))
	assert.Equal(t, "host", payload.PlayerID)

	updated := guest.waitFor(models.EventRoomUpdated, func(e models.Envelope) bool {
		var r models.PublicRoom
		return json.Unmarshal(e.Data, &r) == nil && len(r.Players) == 1
	})
	var r models.PublicRoom
	require.NoError(t, json.Unmarshal(updated.Data, &r))
	assert.True(t, r.Players[0].IsHost, "guest inherits the room")
}

func TestKickOverWebsocket(t *testing.T) {
	env := newTestEnv(t)
	host := env.connect(t, "host")
	guest := env.connect(t, "guest")

	created := host.request(models.EventRoomCreate, models.CreateRoomMessage{GameType: models.GameTypeBlink})
	require.True(t, created.Success)
	require.True(t, guest.request(models.EventRoomJoin, models.JoinRoomMessage{RoomID: created.Room.RoomID}).Success)

	self := host.request(models.EventRoomKick, models.KickMessage{RoomID: created.Room.RoomID, PlayerID: "host"})
	assert.Equal(t, "cannot_kick_self", self.Error)

	kicked := host.request(models.EventRoomKick, models.KickMessage{RoomID: created.Room.RoomID, PlayerID: "guest"})
	require.True(t, kicked.Success, kicked.Error)
	guest.waitFor(models.EventPlayerKicked, nil)

	left := host.request(models.EventRoomLeave, models.RoomMessage{RoomID: created.Room.RoomID})
	require.True(t, left.Success)
	host.waitFor(models.EventRoomDeleted, nil)
}

func TestMalformedAndUnknownEvents(t *testing.T) {
	env := newTestEnv(t)
	c := env.connect(t, "p1")

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	c.waitFor(models.EventError, nil)

	unknown := c.request("room:explode", struct{}{})
	assert.Equal(t, "unknown_event", unknown.Error)

	bad := c.request(models.EventRoomJoin, "just a string")
	assert.Equal(t, "bad_request", bad.Error)
}

func TestInboundRateLimit(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.InputRate = 0.001
		d.InputBurst = 1
	})
	c := env.connect(t, "p1")

	first := c.request(models.EventRoomLeave, models.RoomMessage{RoomID: "x"})
	assert.Equal(t, "room_not_found", first.Error)
	second := c.request(models.EventRoomLeave, models.RoomMessage{RoomID: "x"})
	assert.Equal(t, reasonRateLimited, second.Error)
}

func TestWebsocketRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNewConnectionReplacesOld(t *testing.T) {
	env := newTestEnv(t)
	first := env.connect(t, "p1")
	second := env.connect(t, "p1")

	require.NoError(t, first.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := first.conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.True(t, env.server.Hub.Online("p1"))
	assert.True(t, second.request(models.EventMatchCancel, struct{}{}).Success)
}

func (env *testEnv) get(t *testing.T, path, playerID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if playerID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, playerID, playerID))
	}
	rec := httptest.NewRecorder()
	NewRouter(env.server).ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.ApiResponse {
	t.Helper()
	var resp models.ApiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRESTRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get(t, "/api/rooms", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, decodeResponse(t, rec).Success)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get(t, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResponse(t, rec).Success)
}

func TestListRooms(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.rooms.Create(context.Background(), room.CreateParams{HostID: "h", HostName: "H", GameType: models.GameTypeBlink, Password: "pw"})
	require.NoError(t, err)

	rec := env.get(t, "/api/rooms?gameType=blink", "p1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "passwordHash")
	assert.Contains(t, rec.Body.String(), `"hasPassword":true`)

	rec = env.get(t, "/api/rooms?gameType=chess", "p1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchPlayerSessions(t *testing.T) {
	env := newTestEnv(t)
	env.history.On("PlayerSessions", mock.Anything, "p1", 20).Return([]models.SessionSummary{{SessionID: "s1", Score: 120}}, nil).Once()
	env.history.On("PlayerSessions", mock.Anything, "p1", 5).Return(nil, nil).Once()

	rec := env.get(t, "/api/sessions", "p1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sessionId":"s1"`)

	rec = env.get(t, "/api/sessions?limit=5", "p1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)

	rec = env.get(t, "/api/sessions?limit=500", "p1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env.history.AssertExpectations(t)
}

func TestFetchSession(t *testing.T) {
	env := newTestEnv(t)
	session := &models.CompletedSession{
		SessionID: "s1",
		GameType:  models.GameTypeBlink,
		Players:   []models.SessionPlayer{{PlayerID: "p1", Score: 300, Rank: 1}},
	}
	env.archive.On("GetSession", mock.Anything, "s1").Return(session, nil)
	env.archive.On("GetSession", mock.Anything, "missing").Return(nil, repository.ErrNotFound)

	rec := env.get(t, "/api/sessions/s1", "p1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"score":300`)

	rec = env.get(t, "/api/sessions/s1", "stranger")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.get(t, "/api/sessions/missing", "p1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFetchRating(t *testing.T) {
	env := newTestEnv(t)
	env.rater.On("Rate", mock.Anything, "p1", models.GameTypeBlink).
		Return(models.Rating{PlayerID: "p1", GameType: models.GameTypeBlink, Rating: 55, Tier: models.TierAdvanced}, nil)

	rec := env.get(t, "/api/rating/blink", "p1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tier":"advanced"`)

	rec = env.get(t, "/api/rating/chess", "p1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
