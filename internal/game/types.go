package game

import "time"

// Mino is a piece type. The empty Mino marks a free board cell.
type Mino string

const (
	NoMino Mino = ""
	MinoI  Mino = "I"
	MinoJ  Mino = "J"
	MinoL  Mino = "L"
	MinoO  Mino = "O"
	MinoS  Mino = "S"
	MinoT  Mino = "T"
	MinoZ  Mino = "Z"
)

// AllMinos lists every piece type in canonical order
var AllMinos = []Mino{MinoI, MinoJ, MinoL, MinoO, MinoS, MinoT, MinoZ}

// Valid reports whether m is one of the seven piece types
func (m Mino) Valid() bool {
	for _, t := range AllMinos {
		if m == t {
			return true
		}
	}
	return false
}

// Direction a tetrimino can be moved in
type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
	Down  Direction = "down"
)

// Delta returns the column and row offsets of the direction
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case Left:
		return -1, 0
	case Right:
		return 1, 0
	case Down:
		return 0, 1
	}
	return 0, 0
}

// GameStatus drives whether the tick timer is armed
type GameStatus string

const (
	StatusNotStarted       GameStatus = "NOT_STARTED"
	StatusTetriminoFalling GameStatus = "TETRIMINO_FALLING"
	StatusLockDown         GameStatus = "LOCK_DOWN"
)

// Action is a player input applied to the engine
type Action string

const (
	ActionMoveLeft  Action = "move_left"
	ActionMoveRight Action = "move_right"
	ActionSoftDrop  Action = "soft_drop"
	ActionHardDrop  Action = "hard_drop"
	ActionRotateCW  Action = "rotate_cw"
	ActionRotateCCW Action = "rotate_ccw"
	ActionHold      Action = "hold"
)

// Board dimensions
const (
	BoardWidth  = 10
	BoardHeight = 22
)

// Game constants
const (
	DefaultLevel     = 3
	DefaultLockDelay = 500 * time.Millisecond
	BagSize          = 7

	// moveMaskSize is the free-mask window used for move checks, one cell
	// larger than the biggest shape on every side.
	moveMaskSize = 6
	// rotateMaskSize covers the shape's bounding box for rotation checks.
	rotateMaskSize = 4
)
