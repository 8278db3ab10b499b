// Package client handles client-side display and user interface
package client

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"tetris-versus/internal/game"
	"tetris-versus/internal/network"
)

type Display struct {
	out          io.Writer
	serverColor  *color.Color
	connectColor *color.Color
	gameColor    *color.Color
	winColor     *color.Color
	loseColor    *color.Color
	warningColor *color.Color
	errorColor   *color.Color
	infoColor    *color.Color
	playerColor  *color.Color
	enemyColor   *color.Color
	minoColors   map[game.Mino]*color.Color
}

// NewDisplay creates a display writing to stdout
func NewDisplay() *Display {
	return NewDisplayTo(os.Stdout)
}

// NewDisplayTo creates a display with configured colors writing to out
func NewDisplayTo(out io.Writer) *Display {
	return &Display{
		out:          out,
		serverColor:  color.New(color.FgCyan, color.Bold),
		connectColor: color.New(color.FgGreen, color.Bold),
		gameColor:    color.New(color.FgYellow, color.Bold),
		winColor:     color.New(color.FgGreen, color.Bold, color.BgBlack),
		loseColor:    color.New(color.FgRed, color.Bold, color.BgBlack),
		warningColor: color.New(color.FgYellow),
		errorColor:   color.New(color.FgRed, color.Bold),
		infoColor:    color.New(color.FgWhite),
		playerColor:  color.New(color.FgCyan),
		enemyColor:   color.New(color.FgMagenta),
		minoColors: map[game.Mino]*color.Color{
			game.MinoI: color.New(color.BgCyan),
			game.MinoJ: color.New(color.BgBlue),
			game.MinoL: color.New(color.BgHiYellow),
			game.MinoO: color.New(color.BgYellow),
			game.MinoS: color.New(color.BgGreen),
			game.MinoT: color.New(color.BgMagenta),
			game.MinoZ: color.New(color.BgRed),
		},
	}
}

func stamp() string {
	return time.Now().Format("15:04:05")
}

// PrintBanner displays the game banner
func (d *Display) PrintBanner() {
	banner := `
╔═══════════════════════════════════════╗
║          TETRIS VERSUS CLIENT         ║
║         two players, one bag          ║
╚═══════════════════════════════════════╝
`
	d.gameColor.Fprintln(d.out, banner)
}

// PrintServerStatus displays server connection status
func (d *Display) PrintServerStatus(message string) {
	d.serverColor.Fprintf(d.out, "[%s] [SERVER] %s\n", stamp(), message)
}

// PrintMatchFound displays the pairing
func (d *Display) PrintMatchFound(matchID int, me, opponent string) {
	d.connectColor.Fprintf(d.out, "[%s] [MATCH %d] %s vs %s\n", stamp(), matchID, me, opponent)
}

// PrintHighScore displays the stored best score
func (d *Display) PrintHighScore(score int, found bool) {
	if !found {
		d.infoColor.Fprintf(d.out, "[%s] No high score yet\n", stamp())
		return
	}
	d.gameColor.Fprintf(d.out, "[%s] Your high score: %d\n", stamp(), score)
}

// PrintPiece displays an assigned piece or the opponent's preview
func (d *Display) PrintPiece(m game.Mino, mine bool) {
	if mine {
		d.playerColor.Fprintf(d.out, "[%s] Next piece: ", stamp())
	} else {
		d.enemyColor.Fprintf(d.out, "[%s] Opponent gets: ", stamp())
	}
	d.cell(m)
	fmt.Fprintln(d.out)
}

// PrintStatus displays a player status change
func (d *Display) PrintStatus(username string, status network.PlayerStatus, isMe bool) {
	c := d.enemyColor
	if isMe {
		c = d.playerColor
	}
	switch status {
	case network.StatusLockOut:
		if isMe {
			c = d.loseColor
		} else {
			c = d.winColor
		}
	case network.StatusNotFound:
		c = d.warningColor
		username = "match"
	}
	c.Fprintf(d.out, "[%s] [STATUS] %s: %s\n", stamp(), username, status)
}

// PrintScore displays an opponent counter update
func (d *Display) PrintScore(label string, value int) {
	d.enemyColor.Fprintf(d.out, "[%s] Opponent %s: %d\n", stamp(), label, value)
}

// PrintBoard renders a board with an optional falling piece
func (d *Display) PrintBoard(title string, cells [][]game.Mino, current *game.Tetrimino) {
	overlay := make(map[[2]int]game.Mino)
	if current != nil {
		for _, c := range current.Cells() {
			overlay[c] = current.Type
		}
	}

	d.gameColor.Fprintf(d.out, "┌%s┐ %s\n", strings.Repeat("──", game.BoardWidth), title)
	for row := range cells {
		fmt.Fprint(d.out, "│")
		for col := range cells[row] {
			m := cells[row][col]
			if o, ok := overlay[[2]int{row, col}]; ok {
				m = o
			}
			d.cell(m)
		}
		fmt.Fprintln(d.out, "│")
	}
	d.gameColor.Fprintf(d.out, "└%s┘\n", strings.Repeat("──", game.BoardWidth))
}

// PrintSnapshot renders a spectator snapshot
func (d *Display) PrintSnapshot(matchID int, s game.Snapshot) {
	title := fmt.Sprintf("match %d  %s  score %d  lines %d  %s", matchID, s.Username, s.Score, s.Lines, s.Status)
	d.PrintBoard(title, s.Cells, s.Current)
}

func (d *Display) cell(m game.Mino) {
	if c, ok := d.minoColors[m]; ok {
		c.Fprint(d.out, "  ")
		return
	}
	fmt.Fprint(d.out, " .")
}

// PrintError displays error messages
func (d *Display) PrintError(message string) {
	d.errorColor.Fprintf(d.out, "❌ %s\n", message)
}

// PrintWarning displays warning messages
func (d *Display) PrintWarning(message string) {
	d.warningColor.Fprintf(d.out, "⚠️  %s\n", message)
}

// PrintInfo displays general information
func (d *Display) PrintInfo(message string) {
	d.infoColor.Fprintln(d.out, message)
}

// PrintSeparator prints a visual separator
func (d *Display) PrintSeparator() {
	d.infoColor.Fprintln(d.out, strings.Repeat("═", 45))
}
