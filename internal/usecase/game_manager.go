package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/reversi-backend/internal/apperror"
	"github.com/rocketscienceinc/reversi-backend/internal/entity"
	"github.com/rocketscienceinc/reversi-backend/internal/pkg"
	"github.com/rocketscienceinc/reversi-backend/internal/repository"
	"github.com/rocketscienceinc/reversi-backend/internal/reversi"
)

// LobbyRoom is the reserved room that never spawns a match.
const LobbyRoom = "Lobby"

var ErrInvalidCell = errors.New("no valid cell associated with the move")

type playerRepo interface {
	CreateOrUpdate(ctx context.Context, player *entity.Player) error
	GetBySocketID(ctx context.Context, socketID string) (*entity.Player, error)
	DeleteBySocketID(ctx context.Context, socketID string) error
}

type gameRepo interface {
	CreateOrUpdate(ctx context.Context, game *entity.Game) error
	GetByID(ctx context.Context, id string) (*entity.Game, error)
	ExpireByID(ctx context.Context, id string, ttl time.Duration) error
}

// roomHub is the transport-owned room registry. Members returns a snapshot
// in arrival order; the snapshot may already be stale when used, which is
// fine because seating is idempotent and re-run on every update.
type roomHub interface {
	Members(room string) []string
	Leave(room, socketID string)
}

type GameManager struct {
	logger *slog.Logger

	playerRepo playerRepo
	gameRepo   gameRepo
	rooms      roomHub

	matchExpiry time.Duration

	mu    sync.Mutex
	locks map[string]*gameLock
}

// gameLock serializes all state changes for one match id. Holders are
// counted so the registry entry can be dropped once the last one releases.
type gameLock struct {
	sync.Mutex
	holders int
}

func NewGameManager(logger *slog.Logger, playerRepo playerRepo, gameRepo gameRepo, rooms roomHub, matchExpiry time.Duration) *GameManager {
	return &GameManager{
		logger: logger,

		playerRepo: playerRepo,
		gameRepo:   gameRepo,
		rooms:      rooms,

		matchExpiry: matchExpiry,

		locks: make(map[string]*gameLock),
	}
}

// lockGame - acquires the mutex for a match id, so concurrent moves never
// apply against the same board snapshot. The returned release function must
// be called exactly once; the registry only holds ids with an operation in
// flight.
func (that *GameManager) lockGame(gameID string) func() {
	that.mu.Lock()
	lock, ok := that.locks[gameID]
	if !ok {
		lock = &gameLock{}
		that.locks[gameID] = lock
	}
	lock.holders++
	that.mu.Unlock()

	lock.Lock()

	return func() {
		lock.Unlock()

		that.mu.Lock()
		lock.holders--
		if lock.holders == 0 {
			delete(that.locks, gameID)
		}
		that.mu.Unlock()
	}
}

// JoinRoom - registers (or re-registers) the connection's player record with
// its display name and room. Name uniqueness is not enforced.
func (that *GameManager) JoinRoom(ctx context.Context, socketID, username, room string) (*entity.Player, error) {
	player := &entity.Player{
		SocketID: socketID,
		Username: username,
		Room:     room,
	}

	if err := that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
		return nil, fmt.Errorf("failed to update player: %w", err)
	}

	return player, nil
}

// GetPlayer - looks up the player record for a connection.
func (that *GameManager) GetPlayer(ctx context.Context, socketID string) (*entity.Player, error) {
	player, err := that.playerRepo.GetBySocketID(ctx, socketID)
	if err != nil {
		if errors.Is(err, repository.ErrPlayerNotFound) {
			return nil, apperror.ErrNotRegistered
		}

		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	return player, nil
}

// Disconnect - removes the player record and returns it so the caller can
// announce the departure with room context.
func (that *GameManager) Disconnect(ctx context.Context, socketID string) (*entity.Player, error) {
	player, err := that.GetPlayer(ctx, socketID)
	if err != nil {
		return nil, err
	}

	if err = that.playerRepo.DeleteBySocketID(ctx, socketID); err != nil {
		return nil, fmt.Errorf("failed to delete player: %w", err)
	}

	return player, nil
}

// ConfirmRoommates - the invitation handshake check: the requester must be a
// registered, named player in a room, and the target must currently share
// that room. Returns the shared room name.
func (that *GameManager) ConfirmRoommates(ctx context.Context, socketID, targetID string) (string, error) {
	player, err := that.GetPlayer(ctx, socketID)
	if err != nil {
		return "", err
	}

	if player.Room == "" {
		return "", apperror.ErrNotInRoom
	}

	if player.Username == "" {
		return "", apperror.ErrNotRegistered
	}

	for _, member := range that.rooms.Members(player.Room) {
		if member == targetID {
			return player.Room, nil
		}
	}

	return "", apperror.ErrTargetNotInRoom
}

// NewGameID - generates a match id, which doubles as the room name the two
// players move to.
func (that *GameManager) NewGameID() string {
	return pkg.GenerateGameID()
}

// PlayToken - validates and applies one move. A move is accepted iff the
// match exists, color is the side to move and the submitting connection
// holds that side's seat. On success the turn flips, the legal-move grid is
// recomputed for the new side and the match is persisted.
func (that *GameManager) PlayToken(ctx context.Context, socketID string, row, col int, color string) (*entity.Game, error) {
	player, err := that.GetPlayer(ctx, socketID)
	if err != nil {
		return nil, err
	}

	if player.Room == "" || player.Room == LobbyRoom {
		return nil, apperror.ErrGameNotFound
	}

	if row < 0 || row >= reversi.BoardSize || col < 0 || col >= reversi.BoardSize {
		return nil, ErrInvalidCell
	}

	release := that.lockGame(player.Room)
	defer release()

	game, err := that.gameRepo.GetByID(ctx, player.Room)
	if err != nil {
		if errors.Is(err, repository.ErrGameNotFound) {
			return nil, apperror.ErrGameNotFound
		}

		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	if game.IsFinished() {
		return nil, apperror.ErrGameFinished
	}

	if color != game.WhoseTurn {
		return nil, apperror.ErrNotYourTurn
	}

	// An open seat never matches a real socket id, so moves in a forming
	// match fall through to the same rejection.
	if game.SeatHolder(color).SocketID != socketID {
		return nil, apperror.ErrWrongPlayer
	}

	reversi.FlipTokens(color, row, col, &game.Board)
	game.WhoseTurn = reversi.Opponent(color)
	game.LegalMoves = reversi.CalculateLegalMoves(game.WhoseTurn, &game.Board)
	game.LastMoveAt = time.Now().UnixMilli()

	if err = that.gameRepo.CreateOrUpdate(ctx, game); err != nil {
		return nil, fmt.Errorf("failed to update game: %w", err)
	}

	return game, nil
}

// RefreshGame - brings the match for a room up to date before a broadcast:
// creates it lazily, re-runs the seating pass over the current membership
// snapshot, evicts members beyond the two seats and detects game end. The
// returned flag reports whether the match is over; a finished match is
// scheduled for removal after the configured expiry.
func (that *GameManager) RefreshGame(ctx context.Context, gameID string) (*entity.Game, bool, error) {
	log := that.logger.With("method", "RefreshGame", "gameID", gameID)

	release := that.lockGame(gameID)
	defer release()

	game, err := that.gameRepo.GetByID(ctx, gameID)
	if err != nil {
		if !errors.Is(err, repository.ErrGameNotFound) {
			return nil, false, fmt.Errorf("failed to get game: %w", err)
		}

		// An expired or unknown id silently becomes a fresh match.
		game = entity.NewGame(gameID)
		log.Info("created new game")
	}

	that.seatMembers(ctx, game)

	gameOver := reversi.CountLegalMoves(&game.LegalMoves) == 0
	if gameOver && !game.IsFinished() {
		game.Finish()
		log.Info("game over", "winner", game.Winner)
	}

	if err = that.gameRepo.CreateOrUpdate(ctx, game); err != nil {
		return nil, false, fmt.Errorf("failed to update game: %w", err)
	}

	// CreateOrUpdate clears any TTL, so a finished match is re-armed on
	// every broadcast; a recreated match simply never reaches this branch.
	if game.IsFinished() {
		if err = that.gameRepo.ExpireByID(ctx, gameID, that.matchExpiry); err != nil {
			return nil, false, fmt.Errorf("failed to schedule game removal: %w", err)
		}
	}

	return game, gameOver, nil
}

// seatMembers - walks the membership snapshot in arrival order, seating the
// first two unseated members and evicting everyone else. Connections already
// holding a seat are never reseated or evicted.
func (that *GameManager) seatMembers(ctx context.Context, game *entity.Game) {
	log := that.logger.With("method", "seatMembers", "gameID", game.ID)

	for _, member := range that.rooms.Members(game.ID) {
		if game.IsSeated(member) {
			continue
		}

		username := ""
		if player, err := that.GetPlayer(ctx, member); err == nil {
			username = player.Username
		}

		if !game.TakeSeat(member, username) {
			log.Info("evicting extra member", "socketID", member)
			that.rooms.Leave(game.ID, member)
		}
	}
}
