package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/reversi-backend/internal/apperror"
	"github.com/rocketscienceinc/reversi-backend/internal/entity"
	"github.com/rocketscienceinc/reversi-backend/internal/usecase"
)

func (that *Server) handleJoinRoom(ctx context.Context, client *Client, raw json.RawMessage) error {
	log := that.logger.With("method", "handleJoinRoom", "socketID", client.ID)

	if raw == nil {
		that.sendFail(client, "join_room_response", "client did not send a payload")
		return nil
	}

	var payload JoinRoomPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payload.Room == "" {
		that.sendFail(client, "join_room_response", "client did not send a valid room to join")
		return nil
	}

	if payload.Username == "" {
		that.sendFail(client, "join_room_response", "client did not send a valid username to join the chat room")
		return nil
	}

	that.hub.Join(payload.Room, client.ID)

	// Post-join membership check; membership lives in the hub, the player
	// record in the registry, and both must agree before announcing.
	members := that.hub.Members(payload.Room)
	joined := false
	for _, member := range members {
		if member == client.ID {
			joined = true
			break
		}
	}

	if !joined {
		that.sendFail(client, "join_room_response", apperror.ErrRoomJoinInternal.Error())
		return nil
	}

	if _, err := that.uGame.JoinRoom(ctx, client.ID, payload.Username, payload.Room); err != nil {
		log.Error("failed to register player", "error", err)

		// Undo the membership so a record-less connection cannot linger in
		// the room.
		that.hub.Leave(payload.Room, client.ID)
		that.sendFail(client, "join_room_response", apperror.ErrRoomJoinInternal.Error())

		return nil
	}

	// Announce every current member to the whole room, one response per
	// member, so late joiners learn who was already there.
	for _, member := range members {
		player, err := that.uGame.GetPlayer(ctx, member)
		if err != nil {
			log.Warn("room member has no player record", "member", member)
			continue
		}

		that.hub.Broadcast(payload.Room, "join_room_response", JoinRoomResponse{
			Result:   ResultSuccess,
			Room:     player.Room,
			Username: player.Username,
			Count:    len(members),
			SocketID: member,
		})
	}

	log.Info("player joined room", "room", payload.Room, "count", len(members))

	if payload.Room != usecase.LobbyRoom {
		return that.sendGameUpdate(ctx, payload.Room, "initial update")
	}

	return nil
}

func (that *Server) handleInvite(ctx context.Context, client *Client, raw json.RawMessage) error {
	return that.handleHandshake(ctx, client, raw, handshake{
		kind:            "invite",
		requesterAction: "invite_response",
		targetAction:    "invited",
		failAction:      "invite_response",
	})
}

func (that *Server) handleUninvite(ctx context.Context, client *Client, raw json.RawMessage) error {
	return that.handleHandshake(ctx, client, raw, handshake{
		kind:            "uninvite",
		requesterAction: "uninvited",
		targetAction:    "uninvited",
		failAction:      "uninvited",
	})
}

// handshake describes one of the stateless two-message invitation flows; the
// invite and uninvite paths differ only in event names.
type handshake struct {
	kind            string
	requesterAction string
	targetAction    string
	failAction      string
}

func (that *Server) handleHandshake(ctx context.Context, client *Client, raw json.RawMessage, hs handshake) error {
	log := that.logger.With("method", "handleHandshake", "kind", hs.kind, "socketID", client.ID)

	if raw == nil {
		that.sendFail(client, hs.failAction, "client did not send a payload")
		return nil
	}

	var payload InvitePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payload.RequestedUser == "" {
		that.sendFail(client, hs.failAction, "client did not request a valid user")
		return nil
	}

	if _, err := that.uGame.ConfirmRoommates(ctx, client.ID, payload.RequestedUser); err != nil {
		that.sendFail(client, hs.failAction, handshakeFailMessage(err))
		return nil
	}

	// Both parties learn each other's socket id; nothing is persisted.
	that.hub.SendTo(client.ID, hs.requesterAction, InviteResponse{
		Result:   ResultSuccess,
		SocketID: payload.RequestedUser,
	})
	that.hub.SendTo(payload.RequestedUser, hs.targetAction, InviteResponse{
		Result:   ResultSuccess,
		SocketID: client.ID,
	})

	log.Info("handshake succeeded", "target", payload.RequestedUser)

	return nil
}

func (that *Server) handleGameStart(ctx context.Context, client *Client, raw json.RawMessage) error {
	log := that.logger.With("method", "handleGameStart", "socketID", client.ID)

	if raw == nil {
		that.sendFail(client, "game_start_response", "client did not send a payload")
		return nil
	}

	var payload InvitePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payload.RequestedUser == "" {
		that.sendFail(client, "game_start_response", "client did not request a valid user to engage in play")
		return nil
	}

	if _, err := that.uGame.ConfirmRoommates(ctx, client.ID, payload.RequestedUser); err != nil {
		that.sendFail(client, "game_start_response", handshakeFailMessage(err))
		return nil
	}

	response := GameStartResponse{
		Result:   ResultSuccess,
		GameID:   that.uGame.NewGameID(),
		SocketID: payload.RequestedUser,
	}

	that.hub.SendTo(client.ID, "game_start_response", response)
	that.hub.SendTo(payload.RequestedUser, "game_start_response", response)

	log.Info("game start agreed", "gameID", response.GameID, "target", payload.RequestedUser)

	return nil
}

func (that *Server) handlePlayToken(ctx context.Context, client *Client, raw json.RawMessage) error {
	log := that.logger.With("method", "handlePlayToken", "socketID", client.ID)

	if raw == nil {
		that.sendFail(client, "play_token_response", "client did not send a payload")
		return nil
	}

	var payload PlayTokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	switch {
	case payload.Row == nil:
		that.sendFail(client, "play_token_response", "no valid row associated with play_token")
		return nil
	case payload.Column == nil:
		that.sendFail(client, "play_token_response", "no valid column associated with play_token")
		return nil
	case payload.Color == "":
		that.sendFail(client, "play_token_response", "no valid color associated with play_token")
		return nil
	}

	game, err := that.uGame.PlayToken(ctx, client.ID, *payload.Row, *payload.Column, payload.Color)
	if err != nil {
		that.sendFail(client, "play_token_response", playTokenFailMessage(err))
		return nil
	}

	that.hub.SendTo(client.ID, "play_token_response", PlayTokenResponse{Result: ResultSuccess})

	log.Info("token played", "gameID", game.ID, "color", payload.Color)

	return that.sendGameUpdate(ctx, game.ID, "played a token")
}

func (that *Server) handleChatMessage(_ context.Context, client *Client, raw json.RawMessage) error {
	if raw == nil {
		that.sendFail(client, "send_chat_message_response", "client did not send a payload")
		return nil
	}

	var payload ChatPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	switch {
	case payload.Room == "":
		that.sendFail(client, "send_chat_message_response", "client did not send a valid room to message")
		return nil
	case payload.Username == "":
		that.sendFail(client, "send_chat_message_response", "client did not send a valid username as a message source")
		return nil
	case payload.Message == "":
		that.sendFail(client, "send_chat_message_response", "client did not send a valid message")
		return nil
	}

	that.hub.Broadcast(payload.Room, "send_chat_message_response", ChatResponse{
		Result:   ResultSuccess,
		Room:     payload.Room,
		Username: payload.Username,
		Message:  payload.Message,
	})

	return nil
}

// sendGameUpdate - refreshes (and lazily creates) the match for a room, then
// broadcasts the authoritative snapshot; seating always completes inside
// RefreshGame before anything is emitted. A finished match additionally
// produces a game_over broadcast.
func (that *Server) sendGameUpdate(ctx context.Context, gameID, message string) error {
	game, gameOver, err := that.uGame.RefreshGame(ctx, gameID)
	if err != nil {
		return fmt.Errorf("failed to refresh game: %w", err)
	}

	that.hub.Broadcast(gameID, "game_update", GameUpdatePayload{
		Result:  ResultSuccess,
		GameID:  gameID,
		Game:    game,
		Message: message,
	})

	if !gameOver {
		return nil
	}

	outcome := winnerLabel(game.Winner)
	that.hub.Broadcast(gameID, "game_over", GameOverPayload{
		Result:   ResultSuccess,
		GameID:   gameID,
		Game:     game,
		WhoWon:   outcome,
		WinToken: outcome,
	})

	return nil
}

// winnerLabel - presentation name for a stored winner value.
func winnerLabel(winner string) string {
	switch winner {
	case entity.ColorBlack:
		return "black"
	case entity.ColorWhite:
		return "white"
	default:
		return "tie"
	}
}

func handshakeFailMessage(err error) string {
	switch {
	case errors.Is(err, apperror.ErrNotRegistered):
		return "request came from an unregistered player"
	case errors.Is(err, apperror.ErrNotInRoom):
		return "requesting user is not in a room"
	case errors.Is(err, apperror.ErrTargetNotInRoom):
		return "user that was requested is no longer in room"
	default:
		return "server internal error handling request"
	}
}

func playTokenFailMessage(err error) string {
	switch {
	case errors.Is(err, apperror.ErrNotRegistered):
		return "play_token came from an unregistered player"
	case errors.Is(err, apperror.ErrGameNotFound):
		return "no valid game associated with play_token"
	case errors.Is(err, apperror.ErrGameFinished):
		return "game is already finished"
	case errors.Is(err, apperror.ErrNotYourTurn):
		return "play_token played the wrong color, it's not their turn"
	case errors.Is(err, apperror.ErrWrongPlayer):
		return "play_token played the right color, but by the wrong player"
	case errors.Is(err, usecase.ErrInvalidCell):
		return "no valid cell associated with play_token"
	default:
		return "server internal error handling play_token"
	}
}
