package models

type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Error   interface{} `json:"error"`
}

func SuccessResponse(data interface{}) ApiResponse {
	return ApiResponse{Success: true, Data: data, Error: nil}
}

func ErrorResponse(errorMessage string) ApiResponse {
	return ApiResponse{Success: false, Data: nil, Error: errorMessage}
}

// AckResponse acknowledges a websocket request. Only the fields relevant to
// the request are set.
type AckResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Room    *PublicRoom `json:"room,omitempty"`
	RoomID  string      `json:"roomId,omitempty"`
}
