package responses

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"conflict with code", ConflictError{Msg: "room is full", ErrCode: "room_full"}, "room_full"},
		{"conflict default", ConflictError{Msg: "nope"}, "conflict"},
		{"not found", NotFoundError{Msg: "missing", ErrCode: "room_not_found"}, "room_not_found"},
		{"wrapped", fmt.Errorf("join: %w", ForbiddenError{Msg: "host only", ErrCode: "not_host"}), "not_host"},
		{"plain error", errors.New("db exploded"), "internal_error"},
		{"internal", InternalServerError{Msg: "x"}, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestStatusCodes(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, BadRequestError{}.StatusCode())
	assert.Equal(t, http.StatusUnauthorized, UnauthorizedError{}.StatusCode())
	assert.Equal(t, http.StatusForbidden, ForbiddenError{}.StatusCode())
	assert.Equal(t, http.StatusNotFound, NotFoundError{}.StatusCode())
	assert.Equal(t, http.StatusConflict, ConflictError{}.StatusCode())
	assert.Equal(t, http.StatusInternalServerError, InternalServerError{}.StatusCode())
}
