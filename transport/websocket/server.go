package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/reversi-backend/internal/entity"
	"github.com/rocketscienceinc/reversi-backend/internal/pkg"
)

type gameUseCase interface {
	JoinRoom(ctx context.Context, socketID, username, room string) (*entity.Player, error)
	GetPlayer(ctx context.Context, socketID string) (*entity.Player, error)
	Disconnect(ctx context.Context, socketID string) (*entity.Player, error)

	ConfirmRoommates(ctx context.Context, socketID, targetID string) (string, error)
	NewGameID() string

	PlayToken(ctx context.Context, socketID string, row, col int, color string) (*entity.Game, error)
	RefreshGame(ctx context.Context, gameID string) (*entity.Game, bool, error)
}

type Server struct {
	logger *slog.Logger
	uGame  gameUseCase
	hub    *Hub

	upgrader websocket.Upgrader
	handlers map[string]func(ctx context.Context, client *Client, payload json.RawMessage) error
}

func New(logger *slog.Logger, uGame gameUseCase, hub *Hub) *Server {
	server := &Server{
		logger: logger,
		uGame:  uGame,
		hub:    hub,

		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
		handlers: make(map[string]func(context.Context, *Client, json.RawMessage) error),
	}

	server.handlers["join_room"] = server.handleJoinRoom
	server.handlers["invite"] = server.handleInvite
	server.handlers["uninvite"] = server.handleUninvite
	server.handlers["game_start"] = server.handleGameStart
	server.handlers["play_token"] = server.handlePlayToken
	server.handlers["send_chat_message"] = server.handleChatMessage

	return server
}

// Start - starts WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	router := mux.NewRouter()
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.serveConnection(ctx, w, r)
	})

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     router,
		ReadTimeout: 0, // connections are long-lived
		IdleTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// serveConnection - upgrades the connection and runs its read loop until the
// peer goes away.
func (that *Server) serveConnection(ctx context.Context, writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "serveConnection")

	conn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	client := newClient(pkg.GenerateNewSocketID(), conn)
	that.hub.Add(client)

	log = log.With("socketID", client.ID)
	log.Info("WebSocket connection established")

	that.hub.SendTo(client.ID, "connected", ConnectedPayload{SocketID: client.ID})

	that.readMessages(ctx, client)
	that.handleDisconnect(ctx, client)
}

// readMessages - processes messages from the client.
func (that *Server) readMessages(ctx context.Context, client *Client) {
	log := that.logger.With("method", "readMessages", "socketID", client.ID)

	for {
		_, reqBody, err := client.conn.ReadMessage()
		if err != nil {
			log.Info("connection closed", "error", err)
			return
		}

		var message Message
		if err = json.Unmarshal(reqBody, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Error("unknown action", "action", message.Action)
			continue
		}

		if err = handler(ctx, client, message.Payload); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

// handleDisconnect - forgets the connection and announces the departure to
// whatever room it was in.
func (that *Server) handleDisconnect(ctx context.Context, client *Client) {
	log := that.logger.With("method", "handleDisconnect", "socketID", client.ID)

	that.hub.Remove(client.ID)

	player, err := that.uGame.Disconnect(ctx, client.ID)
	if err != nil {
		log.Info("no player record on disconnect", "error", err)
		return
	}

	if player.Room == "" {
		return
	}

	that.hub.Broadcast(player.Room, "player_disconnected", DisconnectedPayload{
		Username: player.Username,
		Room:     player.Room,
		Count:    that.hub.Count(player.Room),
		SocketID: client.ID,
	})

	log.Info("player disconnected", "room", player.Room)
}

// sendFail - answers one request with the uniform failure payload.
func (that *Server) sendFail(client *Client, action, message string) {
	that.hub.SendTo(client.ID, action, FailPayload{
		Result:  ResultFail,
		Message: message,
	})
}
