package entity

import (
	"time"

	"github.com/rocketscienceinc/reversi-backend/internal/reversi"
)

const (
	StatusFinished = "finished"
	StatusOngoing  = "ongoing"
	StatusWaiting  = "waiting"

	ColorBlack = reversi.TokenBlack
	ColorWhite = reversi.TokenWhite

	WinnerTie = "tie"
)

// Seat binds one side of the board to a connection.
type Seat struct {
	SocketID string `json:"socket_id"`
	Username string `json:"username"`
}

// IsOpen - reports whether no connection holds the seat.
func (that *Seat) IsOpen() bool {
	return that.SocketID == ""
}

// Game is the authoritative state of one match, keyed by the room name that
// spawned it. Only the game manager mutates it, and board changes go through
// the reversi package.
type Game struct {
	ID          string        `json:"id"`
	Board       reversi.Board `json:"board"`
	LegalMoves  reversi.Board `json:"legal_moves"`
	WhoseTurn   string        `json:"whose_turn"`
	PlayerBlack Seat          `json:"player_black"`
	PlayerWhite Seat          `json:"player_white"`
	Status      string        `json:"status"`
	Winner      string        `json:"winner,omitempty"`
	LastMoveAt  int64         `json:"last_move_time"`
}

// NewGame - returns a fresh match on the standard starting position with
// black to move and its legal moves precomputed.
func NewGame(id string) *Game {
	board := reversi.StartingBoard()

	return &Game{
		ID:         id,
		Board:      board,
		LegalMoves: reversi.CalculateLegalMoves(reversi.TokenBlack, &board),
		WhoseTurn:  ColorBlack,
		Status:     StatusWaiting,
		LastMoveAt: time.Now().UnixMilli(),
	}
}

// SeatOf - returns the color held by the connection, or "" if unseated.
func (that *Game) SeatOf(socketID string) string {
	switch socketID {
	case "":
		return ""
	case that.PlayerWhite.SocketID:
		return ColorWhite
	case that.PlayerBlack.SocketID:
		return ColorBlack
	default:
		return ""
	}
}

// IsSeated - reports whether the connection holds either seat.
func (that *Game) IsSeated(socketID string) bool {
	return that.SeatOf(socketID) != ""
}

// TakeSeat - assigns the connection to the first open seat, white before
// black. Returns false when both seats are already held by other
// connections. Re-seating an already seated connection is a no-op.
func (that *Game) TakeSeat(socketID, username string) bool {
	if that.IsSeated(socketID) {
		return true
	}

	switch {
	case that.PlayerWhite.IsOpen():
		that.PlayerWhite = Seat{SocketID: socketID, Username: username}
	case that.PlayerBlack.IsOpen():
		that.PlayerBlack = Seat{SocketID: socketID, Username: username}
	default:
		return false
	}

	if !that.PlayerWhite.IsOpen() && !that.PlayerBlack.IsOpen() && that.IsWaiting() {
		that.Status = StatusOngoing
	}

	return true
}

// SeatHolder - returns the seat for a color.
func (that *Game) SeatHolder(color string) *Seat {
	if color == ColorWhite {
		return &that.PlayerWhite
	}

	return &that.PlayerBlack
}

// Finish - marks the game finished and records the winner by token count.
func (that *Game) Finish() {
	black, white := reversi.CountTokens(&that.Board)

	switch {
	case black > white:
		that.Winner = ColorBlack
	case white > black:
		that.Winner = ColorWhite
	default:
		that.Winner = WinnerTie
	}

	that.Status = StatusFinished
}

func (that *Game) IsFinished() bool {
	return that.Status == StatusFinished
}

func (that *Game) IsOngoing() bool {
	return that.Status == StatusOngoing
}

func (that *Game) IsWaiting() bool {
	return that.Status == StatusWaiting
}
