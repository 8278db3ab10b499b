package server

import (
	"context"
	"sync"

	"tetris-versus/internal/game"
	"tetris-versus/internal/network"
	"tetris-versus/internal/storage"
)

// Peer is a player connection as seen by the matchmaker and a match
type Peer interface {
	ID() int
	Key() string
	Username() string
	Status() network.PlayerStatus
	SetStatus(status network.PlayerStatus)
	Pieces() *PieceQueue
	Send(msg *network.Message) error
}

// Spectator receives board snapshots of a match it watches
type Spectator interface {
	Key() string
	Send(msg *network.Message) error
}

// HighScoreStore is the persistence collaborator used at match start and end
type HighScoreStore interface {
	GetHighScore(ctx context.Context, username string) (int, error)
	SetHighScore(ctx context.Context, username string, score int) error
}

// Leaderboard lists the best stored scores
type Leaderboard interface {
	Top(n int) []storage.ScoreRecord
}

// PieceQueue is a FIFO of pieces waiting to be handed to one player
type PieceQueue struct {
	mu    sync.Mutex
	items []game.Mino
}

// Push appends pieces in order
func (q *PieceQueue) Push(minos ...game.Mino) {
	q.mu.Lock()
	q.items = append(q.items, minos...)
	q.mu.Unlock()
}

// Pop removes the oldest piece
func (q *PieceQueue) Pop() (game.Mino, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return game.NoMino, false
	}
	m := q.items[0]
	q.items = q.items[1:]
	return m, true
}

// Len returns the number of queued pieces
func (q *PieceQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
