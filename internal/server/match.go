package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"tetris-versus/internal/game"
	"tetris-versus/internal/network"
	"tetris-versus/internal/storage"
	"tetris-versus/pkg/logger"
)

const persistTimeout = 5 * time.Second

// MatchConfig tunes every match a Matchmaker creates
type MatchConfig struct {
	Engine game.Options
	// RefillBelow refills both queues when a player's queue drops under it
	RefillBelow int
	// Bags builds the generator of each new match; nil uses a random one
	Bags func() *game.BagGenerator
}

// DefaultMatchConfig returns the standard match tuning
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		Engine:      game.DefaultOptions(),
		RefillBelow: game.BagSize,
	}
}

// MatchInfo describes an active match
type MatchInfo struct {
	ID         int      `json:"id"`
	Players    []string `json:"players"`
	Scores     []int    `json:"scores"`
	Spectators int      `json:"spectators"`
}

// client -> server kinds a match relays to the opponent after applying them
var relayed = map[network.MessageType]bool{
	network.MsgAction:       true,
	network.MsgHold:         true,
	network.MsgScore:        true,
	network.MsgLines:        true,
	network.MsgRemoveLine:   true,
	network.MsgPlayerStatus: true,
}

type matchCmd interface{}

type playerMessage struct {
	from Peer
	msg  *network.Message
}

type playerLeft struct {
	p Peer
}

type spectatorJoined struct {
	sp Spectator
}

type spectatorLeft struct {
	key string
}

// Match owns one active game between two players
type Match struct {
	id      int
	players [2]Peer
	engines [2]*game.GameEngine
	left    [2]bool
	bag     *game.BagGenerator
	store   HighScoreStore
	cfg     MatchConfig
	onEnd   func(id int)
	logger  *logger.Logger

	inbox      chan matchCmd
	spectators map[string]Spectator
	spectating atomic.Int32
	gone       int

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewMatch creates the match for two paired players. onEnd is called from
// its own goroutine once both players have disconnected.
func NewMatch(parent context.Context, id int, p1, p2 Peer, store HighScoreStore, cfg MatchConfig, onEnd func(int)) *Match {
	ctx, cancel := context.WithCancel(parent)
	if cfg.RefillBelow <= 0 {
		cfg.RefillBelow = game.BagSize
	}
	bag := game.NewBagGenerator()
	if cfg.Bags != nil {
		bag = cfg.Bags()
	}

	m := &Match{
		id:         id,
		players:    [2]Peer{p1, p2},
		bag:        bag,
		store:      store,
		cfg:        cfg,
		onEnd:      onEnd,
		logger:     logger.Match.With("match", id),
		inbox:      make(chan matchCmd, 64),
		spectators: make(map[string]Spectator),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	for i, p := range m.players {
		m.engines[i] = game.NewGameEngine(p.Username(), cfg.Engine)
	}
	return m
}

// ID returns the match id
func (m *Match) ID() int {
	return m.id
}

// Done is closed when the match loop has exited
func (m *Match) Done() <-chan struct{} {
	return m.done
}

// Info returns a summary of the match
func (m *Match) Info() MatchInfo {
	info := MatchInfo{ID: m.id, Spectators: int(m.spectating.Load())}
	for i, p := range m.players {
		info.Players = append(info.Players, p.Username())
		info.Scores = append(info.Scores, m.engines[i].Score())
	}
	return info
}

// Deliver hands a message from one of the players to the match loop
func (m *Match) Deliver(from Peer, msg *network.Message) {
	m.post(playerMessage{from: from, msg: msg})
}

// PlayerDisconnected reports that a player's connection is gone
func (m *Match) PlayerDisconnected(p Peer) {
	m.post(playerLeft{p: p})
}

// AddSpectator attaches a spectator, which first receives both boards
func (m *Match) AddSpectator(sp Spectator) {
	m.post(spectatorJoined{sp: sp})
}

// RemoveSpectator detaches a spectator
func (m *Match) RemoveSpectator(key string) {
	m.post(spectatorLeft{key: key})
}

// Stop cancels the match without persisting scores
func (m *Match) Stop() {
	m.cancel()
}

func (m *Match) post(cmd matchCmd) {
	select {
	case m.inbox <- cmd:
	case <-m.ctx.Done():
	}
}

// Run drives the match until teardown or cancellation
func (m *Match) Run() {
	defer close(m.done)
	defer m.stopEngines()

	m.start()

	for {
		select {
		case <-m.ctx.Done():
			return
		case cmd := <-m.inbox:
			if m.handle(cmd) {
				return
			}
		case ev := <-m.engines[0].GetEventChannel():
			m.handleEvent(0, ev)
		case ev := <-m.engines[1].GetEventChannel():
			m.handleEvent(1, ev)
		}
	}
}

func (m *Match) start() {
	for i, p := range m.players {
		opp := m.players[1-i]
		m.send(p, network.CreateMatchFoundMessage(m.id, opp.Username()))
		m.send(p, network.CreateNameMessage(opp.Username()))

		score, err := m.store.GetHighScore(m.ctx, p.Username())
		found := err == nil
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn("Failed to load high score for %s: %v", p.Username(), err)
		}
		m.send(p, network.CreateHighScoreMessage(score, found))
	}

	m.refill()

	for _, p := range m.players {
		p.SetStatus(network.StatusReady)
	}
	for _, p := range m.players {
		m.broadcast(network.CreateStatusMessage(p.Username(), network.StatusReady))
	}

	for i := range m.engines {
		m.assignPiece(i)
		m.assignPiece(i)
		m.engines[i].Start()
	}

	m.logger.Info("Match started: %s vs %s", m.players[0].Username(), m.players[1].Username())
}

// handle processes one inbox command and reports whether the match is over
func (m *Match) handle(cmd matchCmd) bool {
	switch c := cmd.(type) {
	case playerMessage:
		m.handleMessage(c.from, c.msg)
	case playerLeft:
		return m.handleLeft(c.p)
	case spectatorJoined:
		m.spectators[c.sp.Key()] = c.sp
		m.spectating.Store(int32(len(m.spectators)))
		for _, ge := range m.engines {
			m.send(c.sp, network.CreateBoardMessage(m.id, ge.Snapshot()))
		}
		m.logger.Info("Spectator %s joined", c.sp.Key())
	case spectatorLeft:
		if _, ok := m.spectators[c.key]; ok {
			delete(m.spectators, c.key)
			m.spectating.Store(int32(len(m.spectators)))
			m.logger.Info("Spectator %s left", c.key)
		}
	}
	return false
}

func (m *Match) indexOf(p Peer) int {
	for i, pl := range m.players {
		if pl.Key() == p.Key() {
			return i
		}
	}
	return -1
}

// handleMessage applies a player's message to its own engine, then relays it
func (m *Match) handleMessage(from Peer, msg *network.Message) {
	i := m.indexOf(from)
	if i < 0 {
		return
	}
	if status := from.Status(); status != network.StatusReady {
		m.logger.Warn("Dropped %s from %s in status %s", msg.Type, from.Username(), status)
		return
	}

	ge := m.engines[i]
	var err error
	switch msg.Type {
	case network.MsgAskPiece:
		m.assignPiece(i)
		return
	case network.MsgAction:
		var p network.ActionPayload
		if err = msg.Decode(&p); err == nil {
			ge.Apply(p.Action)
		}
	case network.MsgHold:
		ge.Hold()
	case network.MsgScore:
		var p network.ScorePayload
		if err = msg.Decode(&p); err == nil {
			ge.SetScore(p.Score)
		}
	case network.MsgLines:
		var p network.LinesPayload
		if err = msg.Decode(&p); err == nil {
			ge.SetLines(p.Lines)
		}
	case network.MsgRemoveLine:
		var p network.RemoveLinePayload
		if err = msg.Decode(&p); err == nil {
			ge.RemoveLine(p.Row)
		}
	case network.MsgPlayerStatus:
		var p network.StatusPayload
		err = msg.Decode(&p)
	}
	if err != nil {
		m.logger.Warn("Invalid %s from %s: %v", msg.Type, from.Username(), err)
		m.send(from, network.CreateErrorMessage("INVALID_PAYLOAD", err.Error()))
		return
	}
	if !relayed[msg.Type] {
		m.send(from, network.CreateErrorMessage("UNEXPECTED_MESSAGE", string(msg.Type)))
		return
	}

	if opp := m.players[1-i]; !m.left[1-i] {
		m.send(opp, msg)
	}
}

// assignPiece hands player i its next queued piece and shows it to the opponent
func (m *Match) assignPiece(i int) {
	p := m.players[i]
	mino, ok := p.Pieces().Pop()
	if !ok {
		m.refill()
		if mino, ok = p.Pieces().Pop(); !ok {
			return
		}
	}
	if p.Pieces().Len() < m.cfg.RefillBelow {
		m.refill()
	}

	m.engines[i].SetNext(mino)
	m.send(p, network.CreatePieceMessage(network.MsgSendPiece, mino))
	if !m.left[1-i] {
		m.send(m.players[1-i], network.CreatePieceMessage(network.MsgNextPieceOther, mino))
	}
}

// refill appends one new bag to both players' queues
func (m *Match) refill() {
	bag := m.bag.RegenBag()
	for _, p := range m.players {
		p.Pieces().Push(bag...)
	}
	m.logger.Debug("Refilled bag %v", bag)
}

func (m *Match) handleEvent(i int, ev game.Event) {
	p := m.players[i]
	switch ev.Type {
	case game.EventPieceLocked:
		if !m.left[1-i] {
			m.send(m.players[1-i], network.CreateAddTetriminoMessage(p.Username(), ev.Tetrimino))
		}
	case game.EventPieceRequested:
		m.assignPiece(i)
	case game.EventLockOut:
		p.SetStatus(network.StatusLockOut)
		m.logger.Info("%s locked out", p.Username())
		m.broadcast(network.CreateStatusMessage(p.Username(), network.StatusLockOut))
		m.broadcastBoard(i)
	case game.EventBoardChanged, game.EventScoreChanged, game.EventLinesChanged, game.EventHoldChanged:
		m.broadcastBoard(i)
	}
}

func (m *Match) handleLeft(p Peer) bool {
	i := m.indexOf(p)
	if i < 0 || m.left[i] {
		return false
	}
	m.left[i] = true
	m.gone++
	m.engines[i].SetStatus(game.StatusNotStarted)
	m.logger.Info("%s disconnected (%d/2)", p.Username(), m.gone)

	m.broadcast(network.CreateStatusMessage(p.Username(), network.StatusDisconnected))

	if m.gone < len(m.players) {
		return false
	}
	m.teardown()
	return true
}

func (m *Match) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	for i, p := range m.players {
		score := m.engines[i].Score()
		if err := m.store.SetHighScore(ctx, p.Username(), score); err != nil {
			m.logger.Error("Failed to save score %d for %s: %v", score, p.Username(), err)
		}
	}

	m.logger.Info("Match ended")
	if m.onEnd != nil {
		go m.onEnd(m.id)
	}
	m.cancel()
}

func (m *Match) stopEngines() {
	m.stopOnce.Do(func() {
		for _, ge := range m.engines {
			ge.Stop()
		}
	})
}

// broadcast sends msg to every connected player and every spectator
func (m *Match) broadcast(msg *network.Message) {
	for i, p := range m.players {
		if !m.left[i] {
			m.send(p, msg)
		}
	}
	for _, sp := range m.spectators {
		m.send(sp, msg)
	}
}

func (m *Match) broadcastBoard(i int) {
	if len(m.spectators) == 0 {
		return
	}
	msg := network.CreateBoardMessage(m.id, m.engines[i].Snapshot())
	for _, sp := range m.spectators {
		m.send(sp, msg)
	}
}

type sender interface {
	Send(msg *network.Message) error
}

func (m *Match) send(to sender, msg *network.Message) {
	if err := to.Send(msg); err != nil {
		m.logger.Debug("Send %s failed: %v", msg.Type, err)
	}
}
