// Package client handles user input validation and processing
package client

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"tetris-versus/internal/game"
)

// Command is one parsed line of in-game input
type Command struct {
	Action game.Action
	// Score and Lines are set by "score N" / "lines N"
	Score int
	Lines int
	Kind  string
}

const (
	cmdAction = "action"
	cmdScore  = "score"
	cmdLines  = "lines"
	cmdBoard  = "board"
	cmdQuit   = "quit"
)

var actionKeys = map[string]game.Action{
	"a": game.ActionMoveLeft,
	"d": game.ActionMoveRight,
	"s": game.ActionSoftDrop,
	" ": game.ActionHardDrop,
	"x": game.ActionHardDrop,
	"w": game.ActionRotateCW,
	"q": game.ActionRotateCCW,
	"h": game.ActionHold,
}

// InputHandler manages user input for the game
type InputHandler struct {
	scanner *bufio.Scanner
	display *Display
}

// NewInputHandler creates a new input handler
func NewInputHandler(in io.Reader, display *Display) *InputHandler {
	return &InputHandler{
		scanner: bufio.NewScanner(in),
		display: display,
	}
}

func (ih *InputHandler) readLine(prompt string) (string, bool) {
	fmt.Fprint(ih.display.out, prompt)
	if !ih.scanner.Scan() {
		return "", false
	}
	return ih.scanner.Text(), true
}

func (ih *InputHandler) waitEnter() {
	ih.scanner.Scan()
}

// GetMenuChoice gets and validates menu choices. It returns max when input ends.
func (ih *InputHandler) GetMenuChoice(min, max int) int {
	for {
		line, ok := ih.readLine(fmt.Sprintf("Enter your choice (%d-%d): ", min, max))
		if !ok {
			return max
		}

		choice, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			ih.display.PrintWarning("Please enter a valid number")
			continue
		}
		if choice < min || choice > max {
			ih.display.PrintWarning(fmt.Sprintf("Please enter a number between %d and %d", min, max))
			continue
		}
		return choice
	}
}

// GetUsername prompts for and validates username input
func (ih *InputHandler) GetUsername() (string, bool) {
	for {
		line, ok := ih.readLine("Enter your username (3-20 characters): ")
		if !ok {
			return "", false
		}
		username := strings.TrimSpace(line)

		if len(username) < 3 || len(username) > 20 {
			ih.display.PrintWarning("Username must be 3 to 20 characters long")
			continue
		}
		if !isValidUsername(username) {
			ih.display.PrintWarning("Username can only contain letters, numbers, and underscores")
			continue
		}
		return username, true
	}
}

// GetIntegerInput prompts until a number in [min, max] is entered
func (ih *InputHandler) GetIntegerInput(prompt string, min, max int) (int, bool) {
	for {
		line, ok := ih.readLine(prompt)
		if !ok {
			return 0, false
		}
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || n < min || n > max {
			ih.display.PrintWarning(fmt.Sprintf("Please enter a number between %d and %d", min, max))
			continue
		}
		return n, true
	}
}

// GetGameCommand reads one in-game command, reporting false when input ends
func (ih *InputHandler) GetGameCommand() (Command, bool) {
	for {
		line, ok := ih.readLine("> ")
		if !ok {
			return Command{Kind: cmdQuit}, false
		}
		cmd, err := ParseCommand(line)
		if err != nil {
			ih.display.PrintWarning(err.Error())
			ih.display.PrintInfo("keys: a/d move, s soft drop, x hard drop, w/q rotate, h hold, board, score N, lines N, quit")
			continue
		}
		return cmd, true
	}
}

// ParseCommand turns a line of input into a Command
func ParseCommand(line string) (Command, error) {
	if line == " " {
		return Command{Kind: cmdAction, Action: game.ActionHardDrop}, nil
	}
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}

	switch fields[0] {
	case cmdQuit, cmdBoard:
		return Command{Kind: fields[0]}, nil
	case cmdScore, cmdLines:
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("usage: %s N", fields[0])
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 {
			return Command{}, fmt.Errorf("%s must be a non-negative number", fields[0])
		}
		if fields[0] == cmdScore {
			return Command{Kind: cmdScore, Score: n}, nil
		}
		return Command{Kind: cmdLines, Lines: n}, nil
	}

	if action, ok := actionKeys[fields[0]]; ok {
		return Command{Kind: cmdAction, Action: action}, nil
	}
	return Command{}, fmt.Errorf("unknown command %q", fields[0])
}

// Helper functions

// isValidUsername checks if username contains only valid characters
func isValidUsername(username string) bool {
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_') {
			return false
		}
	}
	return true
}
