// Package network handles all network communication protocols
package network

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"tetris-versus/internal/game"
)

// MessageType represents different types of messages
type MessageType string

const (
	// Session messages
	MsgName     MessageType = "name"
	MsgJoin     MessageType = "join"
	MsgSpectate MessageType = "spectate"

	// Match setup messages
	MsgMatchFound MessageType = "match_found"
	MsgHighScore  MessageType = "high_score"

	// Piece distribution messages
	MsgAskPiece       MessageType = "ask_piece"
	MsgSendPiece      MessageType = "send_piece"
	MsgNextPieceOther MessageType = "next_piece_other"

	// Game state messages
	MsgScore        MessageType = "score"
	MsgLines        MessageType = "lines"
	MsgRemoveLine   MessageType = "remove_line"
	MsgPlayerStatus MessageType = "player_status"
	MsgAddTetrimino MessageType = "add_tetrimino"
	MsgHold         MessageType = "hold"
	MsgAction       MessageType = "action"
	MsgBoard        MessageType = "board"

	// System messages
	MsgError MessageType = "error"
	MsgPing  MessageType = "ping"
	MsgPong  MessageType = "pong"
)

var knownTypes = map[MessageType]bool{
	MsgName: true, MsgJoin: true, MsgSpectate: true,
	MsgMatchFound: true, MsgHighScore: true,
	MsgAskPiece: true, MsgSendPiece: true, MsgNextPieceOther: true,
	MsgScore: true, MsgLines: true, MsgRemoveLine: true, MsgPlayerStatus: true,
	MsgAddTetrimino: true, MsgHold: true, MsgAction: true, MsgBoard: true,
	MsgError: true, MsgPing: true, MsgPong: true,
}

// ErrUnknownType is returned when a message carries an unrecognised type
var ErrUnknownType = errors.New("unknown message type")

// PlayerStatus is the lifecycle status of a connected player
type PlayerStatus string

const (
	StatusConnecting   PlayerStatus = "CONNECTING"
	StatusReady        PlayerStatus = "READY"
	StatusNotStarted   PlayerStatus = "NOT_STARTED"
	StatusLockOut      PlayerStatus = "LOCK_OUT"
	StatusDisconnected PlayerStatus = "DISCONNECTED"
	StatusNotFound     PlayerStatus = "NOT_FOUND"
)

// Message represents a network message between client and server
type Message struct {
	Type      MessageType     `json:"type" validate:"required"`
	MatchID   int             `json:"match_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NamePayload announces a username
type NamePayload struct {
	Username string `json:"username" validate:"required,max=32,printascii"`
}

// SpectatePayload asks to observe a match
type SpectatePayload struct {
	MatchID int `json:"match_id" validate:"min=1"`
}

// PiecePayload carries a single piece type
type PiecePayload struct {
	Mino game.Mino `json:"mino" validate:"required,oneof=I J L O S T Z"`
}

// ScorePayload carries a score
type ScorePayload struct {
	Score int `json:"score" validate:"min=0"`
}

// LinesPayload carries the number of cleared lines
type LinesPayload struct {
	Lines int `json:"lines" validate:"min=0"`
}

// RemoveLinePayload names a board row to clear
type RemoveLinePayload struct {
	Row int `json:"row" validate:"min=0,max=21"`
}

// StatusPayload carries a player status update
type StatusPayload struct {
	Username string       `json:"username,omitempty"`
	Status   PlayerStatus `json:"status" validate:"required,oneof=CONNECTING READY NOT_STARTED LOCK_OUT DISCONNECTED NOT_FOUND"`
}

// TetriminoPayload carries a locked piece for the opponent's board
type TetriminoPayload struct {
	Username  string          `json:"username,omitempty"`
	Tetrimino *game.Tetrimino `json:"tetrimino" validate:"required"`
}

// ActionPayload carries a player input
type ActionPayload struct {
	Action game.Action `json:"action" validate:"required,oneof=move_left move_right soft_drop hard_drop rotate_cw rotate_ccw hold"`
}

// BoardPayload is a board snapshot sent to spectators
type BoardPayload struct {
	Board game.Snapshot `json:"board"`
}

// HighScorePayload carries a stored high score
type HighScorePayload struct {
	Score int  `json:"score"`
	Found bool `json:"found"`
}

// MatchFoundPayload tells a player it has been paired
type MatchFoundPayload struct {
	MatchID  int    `json:"match_id"`
	Opponent string `json:"opponent"`
}

// ErrorResponse represents an error message
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Helper functions for creating messages

// NewMessage creates a new message with timestamp
func NewMessage(msgType MessageType) *Message {
	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
	}
}

// SetData encodes payload into the message
func (m *Message) SetData(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", m.Type, err)
	}
	m.Data = data
	return nil
}

// Decode unmarshals and validates the payload into v
func (m *Message) Decode(v interface{}) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s message has no data", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return Validate(v)
}

// ToJSON converts message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates message from JSON bytes
func FromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if err := Validate(&msg); err != nil {
		return nil, err
	}
	if !knownTypes[msg.Type] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, msg.Type)
	}
	return &msg, nil
}

func withData(msgType MessageType, payload interface{}) *Message {
	msg := NewMessage(msgType)
	// payloads are plain structs and always encode
	_ = msg.SetData(payload)
	return msg
}

// CreateNameMessage creates a username announcement
func CreateNameMessage(username string) *Message {
	return withData(MsgName, NamePayload{Username: username})
}

// CreateSpectateMessage creates a request to observe a match
func CreateSpectateMessage(matchID int) *Message {
	return withData(MsgSpectate, SpectatePayload{MatchID: matchID})
}

// CreatePieceMessage creates a send_piece, next_piece_other or hold message
func CreatePieceMessage(msgType MessageType, m game.Mino) *Message {
	return withData(msgType, PiecePayload{Mino: m})
}

// CreateScoreMessage creates a score update
func CreateScoreMessage(score int) *Message {
	return withData(MsgScore, ScorePayload{Score: score})
}

// CreateLinesMessage creates a line count update
func CreateLinesMessage(lines int) *Message {
	return withData(MsgLines, LinesPayload{Lines: lines})
}

// CreateRemoveLineMessage creates a line removal
func CreateRemoveLineMessage(row int) *Message {
	return withData(MsgRemoveLine, RemoveLinePayload{Row: row})
}

// CreateStatusMessage creates a player status update
func CreateStatusMessage(username string, status PlayerStatus) *Message {
	return withData(MsgPlayerStatus, StatusPayload{Username: username, Status: status})
}

// CreateAddTetriminoMessage creates an opponent board update
func CreateAddTetriminoMessage(username string, t *game.Tetrimino) *Message {
	return withData(MsgAddTetrimino, TetriminoPayload{Username: username, Tetrimino: t})
}

// CreateActionMessage creates a player input message
func CreateActionMessage(action game.Action) *Message {
	return withData(MsgAction, ActionPayload{Action: action})
}

// CreateBoardMessage creates a spectator snapshot
func CreateBoardMessage(matchID int, snap game.Snapshot) *Message {
	msg := withData(MsgBoard, BoardPayload{Board: snap})
	msg.MatchID = matchID
	return msg
}

// CreateHighScoreMessage creates a high score notification
func CreateHighScoreMessage(score int, found bool) *Message {
	return withData(MsgHighScore, HighScorePayload{Score: score, Found: found})
}

// CreateMatchFoundMessage creates a pairing notification
func CreateMatchFoundMessage(matchID int, opponent string) *Message {
	msg := withData(MsgMatchFound, MatchFoundPayload{MatchID: matchID, Opponent: opponent})
	msg.MatchID = matchID
	return msg
}

// CreateErrorMessage creates error message
func CreateErrorMessage(code, message string) *Message {
	return withData(MsgError, ErrorResponse{Code: code, Message: message})
}
