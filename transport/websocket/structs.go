package websocket

import (
	"encoding/json"

	"github.com/rocketscienceinc/reversi-backend/internal/entity"
)

const (
	ResultSuccess = "success"
	ResultFail    = "fail"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FailPayload is the uniform failure response for every action.
type FailPayload struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}

type JoinRoomPayload struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

type JoinRoomResponse struct {
	Result   string `json:"result"`
	Room     string `json:"room"`
	Username string `json:"username"`
	Count    int    `json:"count"`
	SocketID string `json:"socket_id"`
}

type InvitePayload struct {
	RequestedUser string `json:"requested_user"`
}

type InviteResponse struct {
	Result   string `json:"result"`
	SocketID string `json:"socket_id"`
}

type GameStartResponse struct {
	Result   string `json:"result"`
	GameID   string `json:"game_id"`
	SocketID string `json:"socket_id"`
}

type PlayTokenPayload struct {
	Row    *int   `json:"row"`
	Column *int   `json:"column"`
	Color  string `json:"color"`
}

type PlayTokenResponse struct {
	Result string `json:"result"`
}

type ChatPayload struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type ChatResponse struct {
	Result   string `json:"result"`
	Room     string `json:"room"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type ConnectedPayload struct {
	SocketID string `json:"socket_id"`
}

type DisconnectedPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
	Count    int    `json:"count"`
	SocketID string `json:"socket_id"`
}

type GameUpdatePayload struct {
	Result  string       `json:"result"`
	GameID  string       `json:"game_id"`
	Game    *entity.Game `json:"game"`
	Message string       `json:"message,omitempty"`
}

type GameOverPayload struct {
	Result   string       `json:"result"`
	GameID   string       `json:"game_id"`
	Game     *entity.Game `json:"game"`
	WhoWon   string       `json:"who_won"`
	WinToken string       `json:"win_token"`
}
