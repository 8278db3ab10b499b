package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"tetris-versus/internal/game"
	"tetris-versus/internal/network"
	"tetris-versus/internal/storage"
)

const waitTimeout = 2 * time.Second

type fakePeer struct {
	key    string
	name   string
	pieces PieceQueue

	mu     sync.Mutex
	status network.PlayerStatus
	msgs   []*network.Message
}

func newFakePeer(name string) *fakePeer {
	return &fakePeer{key: "key-" + name, name: name, status: network.StatusConnecting}
}

func (p *fakePeer) ID() int { return 0 }
func (p *fakePeer) Key() string { return p.key }
func (p *fakePeer) Username() string { return p.name }
func (p *fakePeer) Pieces() *PieceQueue { return &p.pieces }

func (p *fakePeer) Status() network.PlayerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *fakePeer) SetStatus(status network.PlayerStatus) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
}

func (p *fakePeer) Send(msg *network.Message) error {
	p.mu.Lock()
	p.msgs = append(p.msgs, msg)
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) ofType(typ network.MessageType) []*network.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*network.Message
	for _, m := range p.msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

// waitCount polls until at least n messages of typ arrived
func (p *fakePeer) waitCount(t *testing.T, typ network.MessageType, n int) []*network.Message {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for {
		got := p.ofType(typ)
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s: got %d %s messages, want %d", p.name, len(got), typ, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func pieceOf(t *testing.T, msg *network.Message) game.Mino {
	t.Helper()
	var p network.PiecePayload
	if err := msg.Decode(&p); err != nil {
		t.Fatalf("decode piece: %v", err)
	}
	return p.Mino
}

type fakeStore struct {
	mu     sync.Mutex
	scores map[string]int
	sets   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{scores: make(map[string]int)}
}

func (s *fakeStore) GetHighScore(ctx context.Context, username string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.scores[username]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return score, nil
}

func (s *fakeStore) SetHighScore(ctx context.Context, username string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if score > s.scores[username] {
		s.scores[username] = score
	}
	return nil
}

func (s *fakeStore) setCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

func (s *fakeStore) Top(n int) []storage.ScoreRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.ScoreRecord
	for name, score := range s.scores {
		out = append(out, storage.ScoreRecord{Username: name, Score: score})
	}
	return out
}

// testMatchConfig never fires engine timers on its own
func testMatchConfig() MatchConfig {
	return MatchConfig{
		Engine: game.Options{
			Level:        game.DefaultLevel,
			LockDelay:    time.Hour,
			TickInterval: time.Hour,
		},
		RefillBelow: game.BagSize,
		Bags:        func() *game.BagGenerator { return game.NewSeededBagGenerator(1) },
	}
}

func startTestMatch(t *testing.T, a, b *fakePeer, store HighScoreStore) *Match {
	t.Helper()
	m := NewMatch(context.Background(), 1, a, b, store, testMatchConfig(), nil)
	go m.Run()
	t.Cleanup(func() {
		m.Stop()
		<-m.Done()
	})

	// both engines seeded: two assignments each
	a.waitCount(t, network.MsgSendPiece, 2)
	b.waitCount(t, network.MsgSendPiece, 2)
	a.waitCount(t, network.MsgNextPieceOther, 2)
	b.waitCount(t, network.MsgNextPieceOther, 2)
	return m
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
