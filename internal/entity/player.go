package entity

// Player is the session record for one live connection. An empty Room means
// the connection is not in any room or game.
type Player struct {
	SocketID string `json:"socket_id"`
	Username string `json:"username"`
	Room     string `json:"room,omitempty"`
}
