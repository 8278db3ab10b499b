// Package game implements the per-player falling block simulation
package game

import (
	"math"
	"sync"
	"time"
)

// Options tunes an engine
type Options struct {
	Level        int
	LockDelay    time.Duration
	TickInterval time.Duration // zero derives the interval from Level
	EventBuffer  int
}

// DefaultOptions returns the standard tuning
func DefaultOptions() Options {
	return Options{
		Level:       DefaultLevel,
		LockDelay:   DefaultLockDelay,
		EventBuffer: 256,
	}
}

// TickDelay is the gravity interval for a level
func TickDelay(level int) time.Duration {
	if level < 1 {
		level = 1
	}
	base := 0.8 - float64(level-1)*0.007
	secs := math.Pow(base, float64(level-1))
	return time.Duration(secs * float64(time.Second))
}

// GameEngine owns one player's authoritative board and falling piece
type GameEngine struct {
	mu sync.Mutex

	username  string
	opts      Options
	board     *Board
	current   *Tetrimino
	next      *Tetrimino
	hold      Mino
	hasHeld   bool
	score     int
	lines     int
	status    GameStatus
	lockedOut bool

	// gameTimer is replaced on every status change; gen invalidates
	// callbacks of timers that were already firing when replaced.
	gameTimer *time.Timer
	gen       uint64

	pending   []Event
	eventChan chan Event
	done      chan struct{}
	stopOnce  sync.Once
	isRunning bool
}

// NewGameEngine creates an engine for a player
func NewGameEngine(username string, opts Options) *GameEngine {
	if opts.Level <= 0 {
		opts.Level = DefaultLevel
	}
	if opts.LockDelay <= 0 {
		opts.LockDelay = DefaultLockDelay
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	return &GameEngine{
		username:  username,
		opts:      opts,
		board:     NewBoard(),
		status:    StatusNotStarted,
		eventChan: make(chan Event, opts.EventBuffer),
		done:      make(chan struct{}),
	}
}

// Start makes the current piece fall
func (ge *GameEngine) Start() {
	ge.mu.Lock()
	if ge.status == StatusNotStarted && !ge.lockedOut && !ge.stopped() {
		ge.isRunning = true
		ge.setStatusLocked(StatusTetriminoFalling)
	}
	ge.unlockAndPublish()
}

// Stop cancels the timer and closes the event stream for good
func (ge *GameEngine) Stop() {
	ge.stopOnce.Do(func() {
		ge.mu.Lock()
		ge.cancelTimerLocked()
		ge.isRunning = false
		close(ge.done)
		ge.mu.Unlock()
	})
}

// SetStatus cancels any pending tick and arms the one matching status
func (ge *GameEngine) SetStatus(status GameStatus) {
	ge.mu.Lock()
	ge.setStatusLocked(status)
	ge.unlockAndPublish()
}

// Move shifts the current piece, reporting whether it moved
func (ge *GameEngine) Move(d Direction) bool {
	ge.mu.Lock()
	moved := ge.moveLocked(d)
	ge.unlockAndPublish()
	return moved
}

// SoftDrop moves the current piece down one row
func (ge *GameEngine) SoftDrop() bool {
	return ge.Move(Down)
}

// HardDrop moves the piece down until blocked and returns the rows travelled.
// Every intermediate row fires its own board event.
func (ge *GameEngine) HardDrop() int {
	ge.mu.Lock()
	rows := 0
	for ge.moveLocked(Down) {
		rows++
	}
	ge.unlockAndPublish()
	return rows
}

// Rotate turns the current piece. Rotations blocked by a wall or a locked
// cell are ignored: the piece keeps its orientation and no event fires.
func (ge *GameEngine) Rotate(clockwise bool) bool {
	ge.mu.Lock()
	defer ge.unlockAndPublish()

	t := ge.current
	if t == nil {
		return false
	}
	shape := t.Rotated(clockwise)
	mask := ge.board.FreeMask(rotateMaskSize, rotateMaskSize, t.X, t.Y, 0, 0)
	for i, row := range shape {
		for j, m := range row {
			if m != NoMino && !mask[i][j] {
				return false
			}
		}
	}
	t.Shape = shape
	ge.emit(Event{Type: EventBoardChanged})
	return true
}

// Hold swaps the current piece into the hold slot, once per piece
func (ge *GameEngine) Hold() bool {
	ge.mu.Lock()
	defer ge.unlockAndPublish()

	if ge.hasHeld || ge.current == nil || ge.lockedOut {
		return false
	}

	held := ge.hold
	ge.hold = ge.current.Type
	if held == NoMino {
		ge.promoteNextLocked()
	} else {
		ge.current = NewTetrimino(held)
	}
	ge.hasHeld = true
	ge.emit(Event{Type: EventHoldChanged, Mino: ge.hold})
	ge.emit(Event{Type: EventBoardChanged})
	ge.checkLockOutLocked()
	return true
}

// Lock commits the current piece to the board and brings in the next one
func (ge *GameEngine) Lock() {
	ge.mu.Lock()
	ge.lockLocked()
	ge.unlockAndPublish()
}

// SetNext feeds a piece from upstream. With no current piece it goes
// straight into play, otherwise it replaces the next slot.
func (ge *GameEngine) SetNext(m Mino) {
	ge.mu.Lock()
	defer ge.unlockAndPublish()

	t := NewTetrimino(m)
	if t == nil || ge.lockedOut {
		return
	}
	if ge.current == nil {
		ge.current = t
		ge.emit(Event{Type: EventBoardChanged})
		ge.checkLockOutLocked()
		return
	}
	ge.next = t
	ge.emit(Event{Type: EventNextChanged, Mino: m})
}

// SetScore updates the score counter
func (ge *GameEngine) SetScore(score int) {
	ge.mu.Lock()
	old := ge.score
	ge.score = score
	if old != score {
		ge.emit(Event{Type: EventScoreChanged, Old: old, New: score})
	}
	ge.unlockAndPublish()
}

// SetLines updates the cleared line counter
func (ge *GameEngine) SetLines(lines int) {
	ge.mu.Lock()
	old := ge.lines
	ge.lines = lines
	if old != lines {
		ge.emit(Event{Type: EventLinesChanged, Old: old, New: lines})
	}
	ge.unlockAndPublish()
}

// RemoveLine clears a row of locked cells
func (ge *GameEngine) RemoveLine(row int) bool {
	ge.mu.Lock()
	defer ge.unlockAndPublish()

	if !ge.board.RemoveLine(row) {
		return false
	}
	ge.emit(Event{Type: EventBoardChanged})
	return true
}

// Apply dispatches a player action
func (ge *GameEngine) Apply(action Action) bool {
	switch action {
	case ActionMoveLeft:
		return ge.Move(Left)
	case ActionMoveRight:
		return ge.Move(Right)
	case ActionSoftDrop:
		return ge.SoftDrop()
	case ActionHardDrop:
		return ge.HardDrop() > 0
	case ActionRotateCW:
		return ge.Rotate(true)
	case ActionRotateCCW:
		return ge.Rotate(false)
	case ActionHold:
		return ge.Hold()
	}
	return false
}

// Tick advances the simulation by one gravity step
func (ge *GameEngine) Tick() {
	ge.mu.Lock()
	ge.tickLocked()
	ge.unlockAndPublish()
}

func (ge *GameEngine) onTimer(gen uint64) {
	ge.mu.Lock()
	if gen != ge.gen || ge.stopped() {
		ge.mu.Unlock()
		return
	}
	ge.tickLocked()
	if gen == ge.gen && ge.status == StatusTetriminoFalling {
		ge.gameTimer = time.AfterFunc(ge.tickInterval(), func() { ge.onTimer(gen) })
	}
	ge.unlockAndPublish()
}

func (ge *GameEngine) tickLocked() {
	if ge.current == nil {
		return
	}
	switch ge.status {
	case StatusTetriminoFalling:
		if !ge.moveLocked(Down) {
			ge.setStatusLocked(StatusLockDown)
		}
	case StatusLockDown:
		if ge.canMoveLocked(Down) {
			ge.setStatusLocked(StatusTetriminoFalling)
		} else {
			ge.lockLocked()
		}
	}
}

func (ge *GameEngine) setStatusLocked(status GameStatus) {
	ge.cancelTimerLocked()
	old := ge.status
	ge.status = status

	if !ge.stopped() {
		gen := ge.gen
		switch status {
		case StatusTetriminoFalling:
			ge.gameTimer = time.AfterFunc(ge.tickInterval(), func() { ge.onTimer(gen) })
		case StatusLockDown:
			ge.gameTimer = time.AfterFunc(ge.opts.LockDelay, func() { ge.onTimer(gen) })
		}
	}

	if old != status {
		ge.emit(Event{Type: EventStatusChanged, Status: status})
	}
}

func (ge *GameEngine) cancelTimerLocked() {
	ge.gen++
	if ge.gameTimer != nil {
		ge.gameTimer.Stop()
		ge.gameTimer = nil
	}
}

func (ge *GameEngine) tickInterval() time.Duration {
	if ge.opts.TickInterval > 0 {
		return ge.opts.TickInterval
	}
	return TickDelay(ge.opts.Level)
}

func (ge *GameEngine) canMoveLocked(d Direction) bool {
	t := ge.current
	if t == nil {
		return false
	}
	dx, dy := d.Delta()
	mask := ge.board.FreeMask(moveMaskSize, moveMaskSize, t.X, t.Y, 1, 1)
	for i, row := range t.Shape {
		for j, m := range row {
			if m != NoMino && !mask[i+1+dy][j+1+dx] {
				return false
			}
		}
	}
	return true
}

func (ge *GameEngine) moveLocked(d Direction) bool {
	if !ge.canMoveLocked(d) {
		return false
	}
	ge.current.Move(d)
	ge.emit(Event{Type: EventBoardChanged})
	return true
}

func (ge *GameEngine) lockLocked() {
	if ge.current == nil {
		return
	}
	locked := ge.current.Clone()
	ge.board.Place(locked)
	ge.hasHeld = false
	ge.emit(Event{Type: EventPieceLocked, Tetrimino: locked, Mino: locked.Type})

	ge.promoteNextLocked()
	ge.emit(Event{Type: EventBoardChanged})
	if ge.checkLockOutLocked() {
		return
	}
	if ge.status != StatusNotStarted {
		ge.setStatusLocked(StatusTetriminoFalling)
	}
}

// promoteNextLocked moves next into play and asks upstream for a new one
func (ge *GameEngine) promoteNextLocked() {
	ge.current = ge.next
	ge.next = nil
	ge.emit(Event{Type: EventPieceRequested})
}

func (ge *GameEngine) checkLockOutLocked() bool {
	if ge.current == nil || ge.board.Fits(ge.current) {
		return false
	}
	ge.lockedOut = true
	ge.setStatusLocked(StatusNotStarted)
	ge.emit(Event{Type: EventLockOut, Mino: ge.current.Type})
	return true
}

func (ge *GameEngine) emit(ev Event) {
	ev.Username = ge.username
	ge.pending = append(ge.pending, ev)
}

// unlockAndPublish releases the mutex then delivers queued events, so a
// slow consumer never blocks while the engine is locked.
func (ge *GameEngine) unlockAndPublish() {
	events := ge.pending
	ge.pending = nil
	ge.mu.Unlock()

	for _, ev := range events {
		select {
		case ge.eventChan <- ev:
		case <-ge.done:
			return
		}
	}
}

func (ge *GameEngine) stopped() bool {
	select {
	case <-ge.done:
		return true
	default:
		return false
	}
}

// GetEventChannel returns the engine's outbound event stream
func (ge *GameEngine) GetEventChannel() <-chan Event {
	return ge.eventChan
}

// IsRunning reports whether Start was called and Stop was not
func (ge *GameEngine) IsRunning() bool {
	ge.mu.Lock()
	defer ge.mu.Unlock()
	return ge.isRunning
}

// Username returns the owning player's name
func (ge *GameEngine) Username() string {
	return ge.username
}

// Status returns the current game status
func (ge *GameEngine) Status() GameStatus {
	ge.mu.Lock()
	defer ge.mu.Unlock()
	return ge.status
}

// LockedOut reports whether a new piece could not enter the board
func (ge *GameEngine) LockedOut() bool {
	ge.mu.Lock()
	defer ge.mu.Unlock()
	return ge.lockedOut
}

// Score returns the current score
func (ge *GameEngine) Score() int {
	ge.mu.Lock()
	defer ge.mu.Unlock()
	return ge.score
}

// Lines returns the cleared line count
func (ge *GameEngine) Lines() int {
	ge.mu.Lock()
	defer ge.mu.Unlock()
	return ge.lines
}

// Current returns a copy of the falling piece
func (ge *GameEngine) Current() *Tetrimino {
	ge.mu.Lock()
	defer ge.mu.Unlock()
	return ge.current.Clone()
}

// Next returns a copy of the next piece
func (ge *GameEngine) Next() *Tetrimino {
	ge.mu.Lock()
	defer ge.mu.Unlock()
	return ge.next.Clone()
}

// Held returns the type in the hold slot
func (ge *GameEngine) Held() Mino {
	ge.mu.Lock()
	defer ge.mu.Unlock()
	return ge.hold
}

// Snapshot returns a copy of the observable state
func (ge *GameEngine) Snapshot() Snapshot {
	ge.mu.Lock()
	defer ge.mu.Unlock()

	s := Snapshot{
		Username: ge.username,
		Cells:    ge.board.Cells(),
		Current:  ge.current.Clone(),
		Hold:     ge.hold,
		Score:    ge.score,
		Lines:    ge.lines,
		Status:   ge.status,
	}
	if ge.next != nil {
		s.Next = ge.next.Type
	}
	return s
}
