package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mapleleafu/typearena/typearena-backend/models"
	"github.com/mapleleafu/typearena/typearena-backend/responses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"api error", responses.NotFoundError{Msg: "Room not found."}, http.StatusNotFound, "Room not found."},
		{"wrapped api error", fmt.Errorf("join: %w", responses.ForbiddenError{Msg: "Nope."}), http.StatusForbidden, "Nope."},
		{"plain error is hidden", errors.New("pq: connection refused"), http.StatusInternalServerError, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleError(rec, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp models.ApiResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.msg, resp.Error)
		})
	}
}

func TestHandleSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleSuccess(rec, models.SuccessResponse(map[string]int{"activeGames": 2}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"activeGames":2},"error":null}`, rec.Body.String())
}

func TestAck(t *testing.T) {
	id := int64(9)
	ok := Ack(&id, models.AckResponse{RoomID: "r1"}, nil)
	assert.Equal(t, models.EventAck, ok.Event)
	assert.Equal(t, &id, ok.Ack)
	assert.Equal(t, models.AckResponse{Success: true, RoomID: "r1"}, ok.Data)

	failed := Ack(&id, models.AckResponse{RoomID: "r1"}, responses.ConflictError{Msg: "Room is full.", ErrCode: "room_full"})
	assert.Equal(t, models.AckResponse{Error: "room_full"}, failed.Data)
}
