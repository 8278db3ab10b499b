package server

import (
	"context"
	"errors"
	"sort"
	"sync"

	"tetris-versus/internal/network"
	"tetris-versus/pkg/logger"
)

// ErrMatchNotFound is returned when a match id has no active match
var ErrMatchNotFound = errors.New("match not found")

// Matchmaker pairs waiting players in arrival order and tracks active
// matches. All of its state is owned by a single goroutine; every public
// method is a command sent to it.
type Matchmaker struct {
	NopHooks

	store  HighScoreStore
	cfg    MatchConfig
	logger *logger.Logger

	cmds     chan func()
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	// owned by run
	queue     []Peer
	matches   map[int]*Match
	lastID    int
	slots     []bool
	waiting   map[int][]Spectator
	sessionOf map[string]int
}

// NewMatchmaker creates a matchmaker and starts its loop
func NewMatchmaker(store HighScoreStore, cfg MatchConfig) *Matchmaker {
	ctx, cancel := context.WithCancel(context.Background())
	mm := &Matchmaker{
		store:     store,
		cfg:       cfg,
		logger:    logger.Server,
		cmds:      make(chan func()),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		matches:   make(map[int]*Match),
		waiting:   make(map[int][]Spectator),
		sessionOf: make(map[string]int),
	}
	go mm.run()
	return mm
}

func (mm *Matchmaker) run() {
	defer close(mm.done)
	for {
		select {
		case <-mm.ctx.Done():
			return
		case cmd := <-mm.cmds:
			cmd()
		}
	}
}

// do runs fn on the matchmaker goroutine and waits for it. It reports
// false when the matchmaker is stopped.
func (mm *Matchmaker) do(fn func()) bool {
	finished := make(chan struct{})
	select {
	case mm.cmds <- func() { fn(); close(finished) }:
	case <-mm.ctx.Done():
		return false
	}
	<-finished
	return true
}

// Stop cancels every active match and ends the loop
func (mm *Matchmaker) Stop() {
	mm.stopOnce.Do(func() {
		mm.do(func() {
			for _, m := range mm.matches {
				m.Stop()
			}
		})
		mm.cancel()
		<-mm.done
	})
}

// AddPlayer appends p to the waiting queue and pairs the two oldest
// entries whenever the queue length becomes even.
func (mm *Matchmaker) AddPlayer(p Peer) {
	mm.do(func() {
		for _, q := range mm.queue {
			if q.Key() == p.Key() {
				return
			}
		}
		mm.queue = append(mm.queue, p)
		mm.logger.Info("%s joined the queue (%d waiting)", p.Username(), len(mm.queue))

		if len(mm.queue)%2 != 0 {
			return
		}
		p1, p2 := mm.queue[0], mm.queue[1]
		mm.queue = mm.queue[2:]
		mm.createMatch(p1, p2)
	})
}

func (mm *Matchmaker) createMatch(p1, p2 Peer) {
	id := mm.lastID + 1
	mm.lastID = id

	m := NewMatch(mm.ctx, id, p1, p2, mm.store, mm.cfg, mm.matchEnded)
	mm.matches[id] = m
	for _, p := range []Peer{p1, p2} {
		if s, ok := p.(*Session); ok {
			s.attachMatch(m)
		}
	}
	go m.Run()

	for _, sp := range mm.waiting[id] {
		m.AddSpectator(sp)
	}
	delete(mm.waiting, id)

	mm.logger.Info("Match %d created: %s vs %s", id, p1.Username(), p2.Username())
}

// matchEnded frees the id of a torn down match. The counter only steps back
// when the highest id ends, so a live match id is never handed out again.
func (mm *Matchmaker) matchEnded(id int) {
	mm.do(func() {
		if _, ok := mm.matches[id]; !ok {
			return
		}
		delete(mm.matches, id)
		if id == mm.lastID {
			mm.lastID--
		}
		mm.logger.Info("Match %d removed (%d active)", id, len(mm.matches))
	})
}

// AddSpectator attaches sp to match id. Unknown ids answer NOT_FOUND and
// park the spectator until a match with that id starts. A spectator is
// parked on at most one id; a new request replaces the previous one.
func (mm *Matchmaker) AddSpectator(sp Spectator, matchID int) error {
	found := false
	ok := mm.do(func() {
		mm.unparkLocked(sp.Key())
		if m, live := mm.matches[matchID]; live {
			m.AddSpectator(sp)
			found = true
			return
		}
		mm.waiting[matchID] = append(mm.waiting[matchID], sp)
	})
	if !ok {
		return context.Canceled
	}
	if found {
		return nil
	}

	// replied outside the matchmaker loop, the write may block on a slow peer
	if err := sp.Send(network.CreateStatusMessage("", network.StatusNotFound)); err != nil {
		mm.logger.Debug("Failed to notify spectator %s: %v", sp.Key(), err)
	}
	return ErrMatchNotFound
}

// RemoveSpectator detaches a spectator from wherever it is attached or parked
func (mm *Matchmaker) RemoveSpectator(key string) {
	mm.do(func() {
		mm.removeSpectatorLocked(key)
	})
}

func (mm *Matchmaker) removeSpectatorLocked(key string) {
	mm.unparkLocked(key)
	for _, m := range mm.matches {
		m.RemoveSpectator(key)
	}
}

func (mm *Matchmaker) unparkLocked(key string) {
	for id, list := range mm.waiting {
		kept := list[:0]
		for _, sp := range list {
			if sp.Key() != key {
				kept = append(kept, sp)
			}
		}
		if len(kept) == 0 {
			delete(mm.waiting, id)
		} else {
			mm.waiting[id] = kept
		}
	}
}

// ActiveMatches lists the running matches ordered by id
func (mm *Matchmaker) ActiveMatches() []MatchInfo {
	var matches []*Match
	mm.do(func() {
		for _, m := range mm.matches {
			matches = append(matches, m)
		}
	})
	infos := make([]MatchInfo, 0, len(matches))
	for _, m := range matches {
		infos = append(infos, m.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Waiting returns the number of queued players
func (mm *Matchmaker) Waiting() int {
	n := 0
	mm.do(func() { n = len(mm.queue) })
	return n
}

// allocSlot returns the lowest free session id
func (mm *Matchmaker) allocSlot() int {
	for i, used := range mm.slots {
		if !used {
			mm.slots[i] = true
			return i
		}
	}
	mm.slots = append(mm.slots, true)
	return len(mm.slots) - 1
}

// Hooks

// ClientConnected assigns the session its id slot
func (mm *Matchmaker) ClientConnected(s *Session) {
	mm.do(func() {
		id := mm.allocSlot()
		mm.sessionOf[s.Key()] = id
		s.setID(id)
	})
}

// ClientDisconnected drops the session from the queue, releases its id and
// tells its match, if any.
func (mm *Matchmaker) ClientDisconnected(s *Session) {
	mm.do(func() {
		for i, q := range mm.queue {
			if q.Key() == s.Key() {
				mm.queue = append(mm.queue[:i], mm.queue[i+1:]...)
				break
			}
		}
		if id, ok := mm.sessionOf[s.Key()]; ok {
			mm.slots[id] = false
			delete(mm.sessionOf, s.Key())
		}
		mm.removeSpectatorLocked(s.Key())
	})
	if m := s.Match(); m != nil {
		m.PlayerDisconnected(s)
	}
}

// ClientException logs transport and decode failures
func (mm *Matchmaker) ClientException(s *Session, err error) {
	mm.logger.Warn("Client %s (%s): %v", s.Key(), s.Username(), err)
}

// ListeningException logs accept failures
func (mm *Matchmaker) ListeningException(err error) {
	mm.logger.Error("Listener failed: %v", err)
}

// ServerStarted logs listener start
func (mm *Matchmaker) ServerStarted() {
	mm.logger.Info("Matchmaker ready")
}

// ServerStopped logs listener stop
func (mm *Matchmaker) ServerStopped() {
	mm.logger.Info("Matchmaker no longer accepting players")
}

// ClientMessage handles session level messages and routes game messages to
// the session's match.
func (mm *Matchmaker) ClientMessage(s *Session, msg *network.Message) {
	switch msg.Type {
	case network.MsgPing:
		if err := s.Send(network.NewMessage(network.MsgPong)); err != nil {
			s.logger.Debug("Failed to send pong: %v", err)
		}
		return
	case network.MsgName:
		var p network.NamePayload
		if err := msg.Decode(&p); err != nil {
			s.SendError("INVALID_PAYLOAD", err.Error())
			return
		}
		if s.Match() != nil {
			s.SendError("ALREADY_IN_MATCH", "name cannot change during a match")
			return
		}
		s.setUsername(p.Username)
		s.logger.Info("Session named %s", p.Username)
		return
	case network.MsgJoin:
		if s.Username() == "" {
			s.SendError("NAME_REQUIRED", "send a name before joining")
			return
		}
		if s.Match() != nil {
			s.SendError("ALREADY_IN_MATCH", "already playing")
			return
		}
		s.SetStatus(network.StatusNotStarted)
		mm.AddPlayer(s)
		return
	case network.MsgSpectate:
		var p network.SpectatePayload
		if err := msg.Decode(&p); err != nil {
			s.SendError("INVALID_PAYLOAD", err.Error())
			return
		}
		if err := mm.AddSpectator(s, p.MatchID); err != nil {
			s.logger.Info("Spectate %d: %v", p.MatchID, err)
		}
		return
	}

	if m := s.Match(); m != nil {
		m.Deliver(s, msg)
		return
	}
	s.SendError("NOT_IN_MATCH", "join a match first")
}
