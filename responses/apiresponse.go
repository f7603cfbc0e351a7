package responses

import (
	"errors"
	"net/http"
)

// APIError is an error that can be shown to a client as-is. Code is a short
// stable identifier; the message never carries internals.
type APIError interface {
	Error() string
	StatusCode() int
	Code() string
}

type BadRequestError struct {
	Msg     string
	ErrCode string
}

func (e BadRequestError) Error() string {
	return e.Msg
}

func (BadRequestError) StatusCode() int {
	return http.StatusBadRequest
}

func (e BadRequestError) Code() string {
	return codeOr(e.ErrCode, "bad_request")
}

type UnauthorizedError struct {
	Msg string
}

func (e UnauthorizedError) Error() string {
	return e.Msg
}

func (UnauthorizedError) StatusCode() int {
	return http.StatusUnauthorized
}

func (UnauthorizedError) Code() string {
	return "unauthorized"
}

type ForbiddenError struct {
	Msg     string
	ErrCode string
}

func (e ForbiddenError) Error() string {
	return e.Msg
}

func (ForbiddenError) StatusCode() int {
	return http.StatusForbidden
}

func (e ForbiddenError) Code() string {
	return codeOr(e.ErrCode, "forbidden")
}

type NotFoundError struct {
	Msg     string
	ErrCode string
}

func (e NotFoundError) Error() string {
	return e.Msg
}

func (NotFoundError) StatusCode() int {
	return http.StatusNotFound
}

func (e NotFoundError) Code() string {
	return codeOr(e.ErrCode, "not_found")
}

// ConflictError covers state conflicts: joining a full room, starting
// before everyone is ready, and so on.
type ConflictError struct {
	Msg     string
	ErrCode string
}

func (e ConflictError) Error() string {
	return e.Msg
}

func (ConflictError) StatusCode() int {
	return http.StatusConflict
}

func (e ConflictError) Code() string {
	return codeOr(e.ErrCode, "conflict")
}

type InternalServerError struct {
	Msg string
}

func (e InternalServerError) Error() string {
	return e.Msg
}

func (InternalServerError) StatusCode() int {
	return http.StatusInternalServerError
}

func (InternalServerError) Code() string {
	return "internal_error"
}

// ErrorCode extracts the client-facing code from any error. Errors that are
// not APIErrors collapse to internal_error.
func ErrorCode(err error) string {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code()
	}
	return "internal_error"
}

func codeOr(code, fallback string) string {
	if code == "" {
		return fallback
	}
	return code
}
