package game

// EventType identifies what changed inside an engine
type EventType string

const (
	EventBoardChanged   EventType = "board"
	EventScoreChanged   EventType = "score"
	EventLinesChanged   EventType = "lines"
	EventHoldChanged    EventType = "hold"
	EventNextChanged    EventType = "next"
	EventStatusChanged  EventType = "status"
	EventPieceLocked    EventType = "piece_locked"
	EventPieceRequested EventType = "piece_requested"
	EventLockOut        EventType = "lock_out"
)

// Event is pushed on the engine's outbound channel after every state change
type Event struct {
	Type     EventType
	Username string

	// Old and New carry score / line counter values
	Old int
	New int

	Mino      Mino
	Tetrimino *Tetrimino
	Status    GameStatus
}

// Snapshot is a copy of an engine's observable state
type Snapshot struct {
	Username string     `json:"username"`
	Cells    [][]Mino   `json:"cells"`
	Current  *Tetrimino `json:"current,omitempty"`
	Next     Mino       `json:"next,omitempty"`
	Hold     Mino       `json:"hold,omitempty"`
	Score    int        `json:"score"`
	Lines    int        `json:"lines"`
	Status   GameStatus `json:"status"`
}
