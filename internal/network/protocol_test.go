package network

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"tetris-versus/internal/game"
)

func TestFromJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    MessageType
		wantErr error
	}{
		{name: "join", input: `{"type":"join"}`, want: MsgJoin},
		{name: "piece", input: `{"type":"ask_piece","timestamp":"2024-01-01T00:00:00Z"}`, want: MsgAskPiece},
		{name: "unknown", input: `{"type":"teleport"}`, wantErr: ErrUnknownType},
		{name: "missing type", input: `{"data":{}}`, wantErr: ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := FromJSON([]byte(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.Type != tt.want {
				t.Errorf("type = %s, want %s", msg.Type, tt.want)
			}
		})
	}

	if _, err := FromJSON([]byte(`{not json`)); err == nil {
		t.Error("expected parse error")
	}
}

func TestDecodeValidatesPayload(t *testing.T) {
	tests := []struct {
		name  string
		msg   *Message
		into  interface{}
		valid bool
	}{
		{"piece ok", CreatePieceMessage(MsgSendPiece, game.MinoT), &PiecePayload{}, true},
		{"piece bad mino", CreatePieceMessage(MsgSendPiece, game.Mino("X")), &PiecePayload{}, false},
		{"action ok", CreateActionMessage(game.ActionHardDrop), &ActionPayload{}, true},
		{"action bad", CreateActionMessage(game.Action("fly")), &ActionPayload{}, false},
		{"name empty", CreateNameMessage(""), &NamePayload{}, false},
		{"row out of board", CreateRemoveLineMessage(game.BoardHeight), &RemoveLinePayload{}, false},
		{"spectate zero", CreateSpectateMessage(0), &SpectatePayload{}, false},
		{"status ok", CreateStatusMessage("bob", StatusLockOut), &StatusPayload{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Decode(tt.into)
			if tt.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestDecodeWithoutData(t *testing.T) {
	var p PiecePayload
	if err := NewMessage(MsgSendPiece).Decode(&p); err == nil {
		t.Error("expected error for empty data")
	}
}

func TestReaderSkipsBlankLinesAndSurvivesGarbage(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, CreateScoreMessage(1200)); err != nil {
		t.Fatal(err)
	}
	buf.WriteString("\n")
	buf.WriteString("garbage\n")
	if err := WriteMessage(&buf, NewMessage(MsgPing)); err != nil {
		t.Fatal(err)
	}

	r := NewReader(strings.NewReader(buf.String()))

	msg, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	var score ScorePayload
	if err := msg.Decode(&score); err != nil || score.Score != 1200 {
		t.Errorf("score = %d, err = %v", score.Score, err)
	}

	if _, err := r.ReadMessage(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}

	msg, err = r.ReadMessage()
	if err != nil || msg.Type != MsgPing {
		t.Fatalf("expected ping after garbage, got %v %v", msg, err)
	}

	if _, err := r.ReadMessage(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestReaderDiscardsOversizedLine(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(`{"type":"score","data":"`)
	buf.WriteString(strings.Repeat("x", MaxMessageSize))
	buf.WriteString("\"}\n")
	if err := WriteMessage(&buf, NewMessage(MsgPing)); err != nil {
		t.Fatal(err)
	}
	buf.WriteString(strings.Repeat("y", 2*MaxMessageSize))

	r := NewReader(&buf)

	_, err := r.ReadMessage()
	if !errors.Is(err, ErrMalformed) || !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected oversized line to be malformed, got %v", err)
	}

	msg, err := r.ReadMessage()
	if err != nil || msg.Type != MsgPing {
		t.Fatalf("expected ping after oversized line, got %v %v", msg, err)
	}

	if _, err := r.ReadMessage(); !errors.Is(err, ErrTooLong) {
		t.Fatalf("unterminated oversized tail: got %v", err)
	}
	if _, err := r.ReadMessage(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestBoardMessageCarriesMatchID(t *testing.T) {
	ge := game.NewGameEngine("carol", game.DefaultOptions())
	defer ge.Stop()
	ge.SetNext(game.MinoL)

	msg := CreateBoardMessage(7, ge.Snapshot())
	if msg.MatchID != 7 {
		t.Errorf("match id = %d", msg.MatchID)
	}
	var p BoardPayload
	if err := msg.Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.Board.Username != "carol" || p.Board.Current == nil || p.Board.Current.Type != game.MinoL {
		t.Errorf("unexpected snapshot %+v", p.Board)
	}
}
