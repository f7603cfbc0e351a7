package models

// InputTypeKeystroke is currently the only input clients may send.
const InputTypeKeystroke = "keystroke"

type InputData struct {
	Key string `json:"key"`
}

// InputEvent is a single player input. Timestamp is the client clock in
// milliseconds and is only trusted for anti-cheat interval checks.
type InputEvent struct {
	InputType string    `json:"inputType"`
	Timestamp int64     `json:"timestamp"`
	Data      InputData `json:"data"`
}

// GameInputMessage is the payload of game:input.
type GameInputMessage struct {
	RoomID string     `json:"roomId"`
	Input  InputEvent `json:"input"`
}
