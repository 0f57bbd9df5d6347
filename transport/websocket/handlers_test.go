package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/reversi-backend/internal/entity"
	"github.com/rocketscienceinc/reversi-backend/internal/repository"
	"github.com/rocketscienceinc/reversi-backend/internal/reversi"
	"github.com/rocketscienceinc/reversi-backend/internal/usecase"
)

type serverFixture struct {
	server  *Server
	hub     *Hub
	clients map[string]*Client
	games   repository.GameRepository
	mini    *miniredis.Miniredis
}

// newServerFixture wires the real game manager over miniredis-backed
// repositories and the real hub, so handler tests run the full request path
// short of the socket itself.
func newServerFixture(t *testing.T, socketIDs ...string) (context.Context, *serverFixture) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	playerRepo := repository.NewPlayerRepository(client)
	gameRepo := repository.NewGameRepository(client)

	hub, clients := newTestHub(t, socketIDs...)
	manager := usecase.NewGameManager(logger, playerRepo, gameRepo, hub, time.Hour)

	return context.Background(), &serverFixture{
		server:  New(logger, manager, hub),
		hub:     hub,
		clients: clients,
		games:   gameRepo,
		mini:    mini,
	}
}

func rawPayload(t *testing.T, payload any) json.RawMessage {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	return raw
}

// drain empties every queued message so a later assertion only sees new ones.
func drain(clients map[string]*Client) {
	for _, client := range clients {
		for len(client.send) > 0 {
			<-client.send
		}
	}
}

func received(t *testing.T, client *Client) []Message {
	t.Helper()

	var messages []Message
	for {
		select {
		case message := <-client.send:
			messages = append(messages, message)
		default:
			return messages
		}
	}
}

func joinRoom(ctx context.Context, t *testing.T, f *serverFixture, socketID, username, room string) {
	t.Helper()

	err := f.server.handleJoinRoom(ctx, f.clients[socketID], rawPayload(t, JoinRoomPayload{
		Room:     room,
		Username: username,
	}))
	require.NoError(t, err)
}

func TestHandleJoinRoom(t *testing.T) {
	t.Run("second joiner triggers a room-wide announcement with count 2", func(t *testing.T) {
		ctx, f := newServerFixture(t, "sock-1", "sock-2")

		joinRoom(ctx, t, f, "sock-1", "alice", "abc123")
		drain(f.clients)

		// When: the second connection joins the same room
		joinRoom(ctx, t, f, "sock-2", "bob", "abc123")

		// Then: both members get one join_room_response per member with
		// count 2, followed by the match snapshot
		for _, socketID := range []string{"sock-1", "sock-2"} {
			messages := received(t, f.clients[socketID])
			require.Len(t, messages, 3, "socket %s", socketID)

			usernames := make([]string, 0, 2)
			for _, message := range messages[:2] {
				require.Equal(t, "join_room_response", message.Action)

				var response JoinRoomResponse
				require.NoError(t, json.Unmarshal(message.Payload, &response))
				assert.Equal(t, ResultSuccess, response.Result)
				assert.Equal(t, "abc123", response.Room)
				assert.Equal(t, 2, response.Count)
				usernames = append(usernames, response.Username)
			}
			assert.ElementsMatch(t, []string{"alice", "bob"}, usernames)

			require.Equal(t, "game_update", messages[2].Action)
		}
	})

	t.Run("both members are seated in arrival order", func(t *testing.T) {
		ctx, f := newServerFixture(t, "sock-1", "sock-2")

		joinRoom(ctx, t, f, "sock-1", "alice", "abc123")
		joinRoom(ctx, t, f, "sock-2", "bob", "abc123")

		game, err := f.games.GetByID(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, "sock-1", game.PlayerWhite.SocketID)
		assert.Equal(t, "sock-2", game.PlayerBlack.SocketID)
	})

	t.Run("joining the lobby never spawns a match", func(t *testing.T) {
		ctx, f := newServerFixture(t, "sock-1")

		joinRoom(ctx, t, f, "sock-1", "alice", usecase.LobbyRoom)

		messages := received(t, f.clients["sock-1"])
		require.Len(t, messages, 1)
		require.Equal(t, "join_room_response", messages[0].Action)

		_, err := f.games.GetByID(ctx, usecase.LobbyRoom)
		require.ErrorIs(t, err, repository.ErrGameNotFound)
	})

	t.Run("failed registration leaves no partial membership", func(t *testing.T) {
		ctx, f := newServerFixture(t, "sock-1")

		// Given: the player store is unreachable
		f.mini.Close()

		// When: a join is attempted
		require.NoError(t, f.server.handleJoinRoom(ctx, f.clients["sock-1"],
			rawPayload(t, JoinRoomPayload{Room: "abc123", Username: "alice"})))

		// Then: the failure is reported and the hub room stays empty
		messages := received(t, f.clients["sock-1"])
		require.Len(t, messages, 1)

		var fail FailPayload
		require.NoError(t, json.Unmarshal(messages[0].Payload, &fail))
		require.Equal(t, ResultFail, fail.Result)
		assert.Empty(t, f.hub.Members("abc123"))
	})

	t.Run("missing room or username fails without side effects", func(t *testing.T) {
		ctx, f := newServerFixture(t, "sock-1")

		require.NoError(t, f.server.handleJoinRoom(ctx, f.clients["sock-1"],
			rawPayload(t, JoinRoomPayload{Username: "alice"})))
		require.NoError(t, f.server.handleJoinRoom(ctx, f.clients["sock-1"],
			rawPayload(t, JoinRoomPayload{Room: "abc123"})))

		messages := received(t, f.clients["sock-1"])
		require.Len(t, messages, 2)
		for _, message := range messages {
			var fail FailPayload
			require.NoError(t, json.Unmarshal(message.Payload, &fail))
			assert.Equal(t, ResultFail, fail.Result)
		}
		assert.Empty(t, f.hub.Members("abc123"))
	})
}

func TestHandleInvite(t *testing.T) {
	t.Run("both parties receive the acknowledgment", func(t *testing.T) {
		ctx, f := newServerFixture(t, "sock-1", "sock-2")

		joinRoom(ctx, t, f, "sock-1", "alice", usecase.LobbyRoom)
		joinRoom(ctx, t, f, "sock-2", "bob", usecase.LobbyRoom)
		drain(f.clients)

		// When: alice invites bob
		require.NoError(t, f.server.handleInvite(ctx, f.clients["sock-1"],
			rawPayload(t, InvitePayload{RequestedUser: "sock-2"})))

		// Then: each side learns the other's socket id
		inviter := received(t, f.clients["sock-1"])
		require.Len(t, inviter, 1)
		require.Equal(t, "invite_response", inviter[0].Action)

		var response InviteResponse
		require.NoError(t, json.Unmarshal(inviter[0].Payload, &response))
		assert.Equal(t, "sock-2", response.SocketID)

		invitee := received(t, f.clients["sock-2"])
		require.Len(t, invitee, 1)
		require.Equal(t, "invited", invitee[0].Action)

		require.NoError(t, json.Unmarshal(invitee[0].Payload, &response))
		assert.Equal(t, "sock-1", response.SocketID)
	})

	t.Run("target outside the room fails only to the inviter", func(t *testing.T) {
		ctx, f := newServerFixture(t, "sock-1", "sock-2")

		joinRoom(ctx, t, f, "sock-1", "alice", usecase.LobbyRoom)
		drain(f.clients)

		// When: alice invites a connection that never joined her room
		require.NoError(t, f.server.handleInvite(ctx, f.clients["sock-1"],
			rawPayload(t, InvitePayload{RequestedUser: "sock-2"})))

		// Then: only the inviter hears about it
		inviter := received(t, f.clients["sock-1"])
		require.Len(t, inviter, 1)

		var fail FailPayload
		require.NoError(t, json.Unmarshal(inviter[0].Payload, &fail))
		assert.Equal(t, ResultFail, fail.Result)
		assert.Equal(t, "user that was requested is no longer in room", fail.Message)

		assert.Empty(t, received(t, f.clients["sock-2"]))
	})
}

func TestHandleUninvite(t *testing.T) {
	ctx, f := newServerFixture(t, "sock-1", "sock-2")

	joinRoom(ctx, t, f, "sock-1", "alice", usecase.LobbyRoom)
	joinRoom(ctx, t, f, "sock-2", "bob", usecase.LobbyRoom)
	drain(f.clients)

	// When: alice withdraws the invitation
	require.NoError(t, f.server.handleUninvite(ctx, f.clients["sock-1"],
		rawPayload(t, InvitePayload{RequestedUser: "sock-2"})))

	// Then: both parties receive the uninvited event
	for _, socketID := range []string{"sock-1", "sock-2"} {
		messages := received(t, f.clients[socketID])
		require.Len(t, messages, 1, "socket %s", socketID)
		require.Equal(t, "uninvited", messages[0].Action)
	}
}

func TestHandleGameStart(t *testing.T) {
	ctx, f := newServerFixture(t, "sock-1", "sock-2")

	joinRoom(ctx, t, f, "sock-1", "alice", usecase.LobbyRoom)
	joinRoom(ctx, t, f, "sock-2", "bob", usecase.LobbyRoom)
	drain(f.clients)

	// When: alice starts a game with bob
	require.NoError(t, f.server.handleGameStart(ctx, f.clients["sock-1"],
		rawPayload(t, InvitePayload{RequestedUser: "sock-2"})))

	// Then: both parties receive the same fresh game id
	var gameIDs []string
	for _, socketID := range []string{"sock-1", "sock-2"} {
		messages := received(t, f.clients[socketID])
		require.Len(t, messages, 1, "socket %s", socketID)
		require.Equal(t, "game_start_response", messages[0].Action)

		var response GameStartResponse
		require.NoError(t, json.Unmarshal(messages[0].Payload, &response))
		require.Equal(t, ResultSuccess, response.Result)
		require.NotEmpty(t, response.GameID)
		gameIDs = append(gameIDs, response.GameID)
	}
	require.Equal(t, gameIDs[0], gameIDs[1])
}

func playTokenRaw(t *testing.T, row, col int, color string) json.RawMessage {
	t.Helper()

	return rawPayload(t, map[string]any{"row": row, "column": col, "color": color})
}

func TestHandlePlayToken(t *testing.T) {
	t.Run("accepted move answers the mover and updates the room", func(t *testing.T) {
		ctx, f := newServerFixture(t, "sock-1", "sock-2")

		joinRoom(ctx, t, f, "sock-1", "alice", "abc123")
		joinRoom(ctx, t, f, "sock-2", "bob", "abc123")
		drain(f.clients)

		// When: black (the second joiner) plays next to the cluster
		require.NoError(t, f.server.handlePlayToken(ctx, f.clients["sock-2"],
			playTokenRaw(t, 2, 3, entity.ColorBlack)))

		// Then: the mover gets a success response before the broadcast
		mover := received(t, f.clients["sock-2"])
		require.Len(t, mover, 2)
		require.Equal(t, "play_token_response", mover[0].Action)
		require.Equal(t, "game_update", mover[1].Action)

		var update GameUpdatePayload
		require.NoError(t, json.Unmarshal(mover[1].Payload, &update))
		require.Equal(t, entity.ColorWhite, update.Game.WhoseTurn)

		black, white := reversi.CountTokens(&update.Game.Board)
		assert.Equal(t, 4, black)
		assert.Equal(t, 1, white)

		// And: the opponent sees the same snapshot
		other := received(t, f.clients["sock-1"])
		require.Len(t, other, 1)
		require.Equal(t, "game_update", other[0].Action)
	})

	t.Run("wrong turn is rejected and nothing is broadcast", func(t *testing.T) {
		ctx, f := newServerFixture(t, "sock-1", "sock-2")

		joinRoom(ctx, t, f, "sock-1", "alice", "abc123")
		joinRoom(ctx, t, f, "sock-2", "bob", "abc123")
		drain(f.clients)

		// When: white tries to move on black's turn
		require.NoError(t, f.server.handlePlayToken(ctx, f.clients["sock-1"],
			playTokenRaw(t, 2, 4, entity.ColorWhite)))

		// Then: only the mover hears the rejection
		mover := received(t, f.clients["sock-1"])
		require.Len(t, mover, 1)

		var fail FailPayload
		require.NoError(t, json.Unmarshal(mover[0].Payload, &fail))
		require.Equal(t, ResultFail, fail.Result)
		require.Equal(t, "play_token played the wrong color, it's not their turn", fail.Message)

		assert.Empty(t, received(t, f.clients["sock-2"]))

		game, err := f.games.GetByID(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, reversi.StartingBoard(), game.Board)
	})

	t.Run("missing coordinates fail fast", func(t *testing.T) {
		ctx, f := newServerFixture(t, "sock-1")

		require.NoError(t, f.server.handlePlayToken(ctx, f.clients["sock-1"],
			rawPayload(t, map[string]any{"color": entity.ColorBlack})))

		messages := received(t, f.clients["sock-1"])
		require.Len(t, messages, 1)

		var fail FailPayload
		require.NoError(t, json.Unmarshal(messages[0].Payload, &fail))
		require.Equal(t, "no valid row associated with play_token", fail.Message)
	})
}

func TestSendGameUpdate_GameOver(t *testing.T) {
	ctx, f := newServerFixture(t, "sock-1", "sock-2")

	joinRoom(ctx, t, f, "sock-1", "alice", "abc123")
	joinRoom(ctx, t, f, "sock-2", "bob", "abc123")
	drain(f.clients)

	// Given: a stored position where the side to move has no legal cell
	game, err := f.games.GetByID(ctx, "abc123")
	require.NoError(t, err)
	game.Board = reversi.Board{}
	game.Board[0][0] = entity.ColorBlack
	game.Board[0][1] = entity.ColorBlack
	game.LegalMoves = reversi.CalculateLegalMoves(game.WhoseTurn, &game.Board)
	require.NoError(t, f.games.CreateOrUpdate(ctx, game))

	// When: the room is refreshed
	require.NoError(t, f.server.sendGameUpdate(ctx, "abc123", "played a token"))

	// Then: both members receive the update and the game_over outcome
	for _, socketID := range []string{"sock-1", "sock-2"} {
		messages := received(t, f.clients[socketID])
		require.Len(t, messages, 2, "socket %s", socketID)
		require.Equal(t, "game_update", messages[0].Action)
		require.Equal(t, "game_over", messages[1].Action)

		var over GameOverPayload
		require.NoError(t, json.Unmarshal(messages[1].Payload, &over))
		assert.Equal(t, "black", over.WhoWon)
		assert.Equal(t, "black", over.WinToken)
		assert.Equal(t, entity.StatusFinished, over.Game.Status)
	}
}

func TestHandleDisconnect(t *testing.T) {
	t.Run("departure is announced with the remaining count", func(t *testing.T) {
		ctx, f := newServerFixture(t, "sock-1", "sock-2")

		joinRoom(ctx, t, f, "sock-1", "alice", "abc123")
		joinRoom(ctx, t, f, "sock-2", "bob", "abc123")
		drain(f.clients)

		// When: the second member's connection goes away
		f.server.handleDisconnect(ctx, f.clients["sock-2"])

		// Then: the survivor learns who left and how many remain
		messages := received(t, f.clients["sock-1"])
		require.Len(t, messages, 1)
		require.Equal(t, "player_disconnected", messages[0].Action)

		var payload DisconnectedPayload
		require.NoError(t, json.Unmarshal(messages[0].Payload, &payload))
		assert.Equal(t, "bob", payload.Username)
		assert.Equal(t, "abc123", payload.Room)
		assert.Equal(t, 1, payload.Count)
		assert.Equal(t, "sock-2", payload.SocketID)

		// And: the hub no longer tracks the departed connection
		assert.Equal(t, []string{"sock-1"}, f.hub.Members("abc123"))
	})

	t.Run("a connection that never joined departs silently", func(t *testing.T) {
		ctx, f := newServerFixture(t, "sock-1", "sock-2")

		joinRoom(ctx, t, f, "sock-1", "alice", "abc123")
		drain(f.clients)

		// When: a record-less connection disconnects
		f.server.handleDisconnect(ctx, f.clients["sock-2"])

		// Then: nothing is broadcast
		assert.Empty(t, received(t, f.clients["sock-1"]))
	})
}

func TestHandleChatMessage(t *testing.T) {
	ctx, f := newServerFixture(t, "sock-1", "sock-2")

	joinRoom(ctx, t, f, "sock-1", "alice", usecase.LobbyRoom)
	joinRoom(ctx, t, f, "sock-2", "bob", usecase.LobbyRoom)
	drain(f.clients)

	// When: a chat message is sent to the room
	require.NoError(t, f.server.handleChatMessage(ctx, f.clients["sock-1"],
		rawPayload(t, ChatPayload{Room: usecase.LobbyRoom, Username: "alice", Message: "hi"})))

	// Then: every member receives the relay
	for _, socketID := range []string{"sock-1", "sock-2"} {
		messages := received(t, f.clients[socketID])
		require.Len(t, messages, 1, "socket %s", socketID)

		var chat ChatResponse
		require.NoError(t, json.Unmarshal(messages[0].Payload, &chat))
		assert.Equal(t, "hi", chat.Message)
		assert.Equal(t, "alice", chat.Username)
	}
}
