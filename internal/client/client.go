// Package client handles the TCP client and game interaction
package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"tetris-versus/internal/game"
	"tetris-versus/internal/network"
	"tetris-versus/pkg/logger"
)

// Client represents the game client
type Client struct {
	conn       net.Conn
	display    *Display
	input      *InputHandler
	logger     *logger.Logger
	writer     *bufio.Writer
	reader     *network.Reader
	serverAddr string

	mu            sync.Mutex
	username      string
	opponent      string
	matchID       int
	opponentBoard *game.Board
	done          chan struct{}
}

// NewClient creates a new client instance using the terminal
func NewClient(serverAddr string) *Client {
	return NewClientWithIO(serverAddr, os.Stdin, os.Stdout)
}

// NewClientWithIO creates a client reading commands from in and rendering to out
func NewClientWithIO(serverAddr string, in io.Reader, out io.Writer) *Client {
	display := NewDisplayTo(out)
	return &Client{
		display:       display,
		input:         NewInputHandler(in, display),
		logger:        logger.Client,
		serverAddr:    serverAddr,
		opponentBoard: game.NewBoard(),
		done:          make(chan struct{}),
	}
}

// Start connects, announces the username and runs the menu
func (c *Client) Start() error {
	c.display.PrintBanner()
	c.logger.Info("Client starting...")

	if err := c.connectToServer(); err != nil {
		c.display.PrintError(fmt.Sprintf("Failed to connect to server: %v", err))
		return err
	}
	defer c.Close()

	go c.messageHandler()

	username, ok := c.input.GetUsername()
	if !ok {
		return errors.New("no username entered")
	}
	c.mu.Lock()
	c.username = username
	c.mu.Unlock()
	if err := c.sendMessage(network.CreateNameMessage(username)); err != nil {
		return err
	}

	return c.runMainLoop()
}

// Spectate connects and follows matchID without announcing a username
func (c *Client) Spectate(matchID int) error {
	c.display.PrintBanner()
	if err := c.connectToServer(); err != nil {
		c.display.PrintError(fmt.Sprintf("Failed to connect to server: %v", err))
		return err
	}
	defer c.Close()

	if err := c.requestSpectate(matchID); err != nil {
		return err
	}
	go c.messageHandler()
	c.waitToLeave()
	return nil
}

func (c *Client) requestSpectate(matchID int) error {
	if err := c.sendMessage(network.CreateSpectateMessage(matchID)); err != nil {
		return err
	}
	c.display.PrintInfo(fmt.Sprintf("Spectating match %d, press enter to leave", matchID))
	return nil
}

// waitToLeave blocks until enter is pressed or the server closes the connection
func (c *Client) waitToLeave() {
	left := make(chan struct{})
	go func() {
		c.input.waitEnter()
		close(left)
	}()
	select {
	case <-left:
	case <-c.done:
	}
}

// connectToServer establishes TCP connection
func (c *Client) connectToServer() error {
	c.display.PrintInfo("Connecting to server...")

	conn, err := net.Dial("tcp", c.serverAddr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.writer = bufio.NewWriter(conn)
	c.reader = network.NewReader(conn)

	c.display.PrintServerStatus("Connected to server")
	c.logger.Info("Connected to server at %s", c.serverAddr)
	return nil
}

func (c *Client) runMainLoop() error {
	for {
		c.display.PrintSeparator()
		c.display.PrintInfo("1. Join a match")
		c.display.PrintInfo("2. Spectate a match")
		c.display.PrintInfo("3. Quit")

		switch c.input.GetMenuChoice(1, 3) {
		case 1:
			if err := c.sendMessage(network.NewMessage(network.MsgJoin)); err != nil {
				return err
			}
			c.display.PrintInfo("Waiting for opponent...")
			return c.playLoop()
		case 2:
			id, ok := c.input.GetIntegerInput("Match id: ", 1, 1<<20)
			if !ok {
				return nil
			}
			if err := c.requestSpectate(id); err != nil {
				return err
			}
			c.waitToLeave()
			return nil
		case 3:
			c.display.PrintInfo("Thanks for playing!")
			return nil
		}
	}
}

// playLoop forwards commands until the user quits or the connection drops
func (c *Client) playLoop() error {
	for {
		cmd, ok := c.input.GetGameCommand()
		if !ok || cmd.Kind == cmdQuit {
			return nil
		}
		select {
		case <-c.done:
			return errors.New("connection closed")
		default:
		}

		var msg *network.Message
		switch cmd.Kind {
		case cmdAction:
			msg = network.CreateActionMessage(cmd.Action)
		case cmdScore:
			msg = network.CreateScoreMessage(cmd.Score)
		case cmdLines:
			msg = network.CreateLinesMessage(cmd.Lines)
		case cmdBoard:
			c.mu.Lock()
			c.display.PrintBoard("opponent "+c.opponent, c.opponentBoard.Cells(), nil)
			c.mu.Unlock()
			continue
		}
		if err := c.sendMessage(msg); err != nil {
			return err
		}
	}
}

// messageHandler reads server messages until the connection closes
func (c *Client) messageHandler() {
	defer close(c.done)
	for {
		msg, err := c.reader.ReadMessage()
		if err != nil {
			if errors.Is(err, network.ErrMalformed) {
				c.logger.Warn("Ignoring server message: %v", err)
				continue
			}
			if !errors.Is(err, io.EOF) {
				c.logger.Error("Lost connection to server: %v", err)
			}
			c.display.PrintError("Disconnected from server")
			return
		}
		if err := c.processServerMessage(msg); err != nil {
			c.logger.Error("Error processing server message: %v", err)
		}
	}
}

// processServerMessage handles incoming server messages
func (c *Client) processServerMessage(msg *network.Message) error {
	c.logger.Debug("Received message type: %s", msg.Type)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Type {
	case network.MsgMatchFound:
		var p network.MatchFoundPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		c.matchID, c.opponent = p.MatchID, p.Opponent
		c.opponentBoard = game.NewBoard()
		c.display.PrintMatchFound(p.MatchID, c.username, p.Opponent)
	case network.MsgHighScore:
		var p network.HighScorePayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		c.display.PrintHighScore(p.Score, p.Found)
	case network.MsgSendPiece, network.MsgNextPieceOther:
		var p network.PiecePayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		c.display.PrintPiece(p.Mino, msg.Type == network.MsgSendPiece)
	case network.MsgAddTetrimino:
		var p network.TetriminoPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		c.opponentBoard.Place(p.Tetrimino)
	case network.MsgRemoveLine:
		var p network.RemoveLinePayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		c.opponentBoard.RemoveLine(p.Row)
	case network.MsgScore:
		var p network.ScorePayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		c.display.PrintScore("score", p.Score)
	case network.MsgLines:
		var p network.LinesPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		c.display.PrintScore("lines", p.Lines)
	case network.MsgPlayerStatus:
		var p network.StatusPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		c.display.PrintStatus(p.Username, p.Status, p.Username == c.username)
	case network.MsgBoard:
		var p network.BoardPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		c.display.PrintSnapshot(msg.MatchID, p.Board)
	case network.MsgError:
		var p network.ErrorResponse
		if err := msg.Decode(&p); err != nil {
			return err
		}
		c.display.PrintError(fmt.Sprintf("%s: %s", p.Code, p.Message))
	case network.MsgName, network.MsgAction, network.MsgHold, network.MsgPong:
		// opponent activity is reflected through add_tetrimino and counters
	default:
		c.logger.Debug("Unhandled message type: %s", msg.Type)
	}
	return nil
}

// sendMessage sends a message to server
func (c *Client) sendMessage(msg *network.Message) error {
	if err := network.WriteMessage(c.writer, msg); err != nil {
		return err
	}
	return c.writer.Flush()
}

// MatchID returns the current match id, 0 before pairing
func (c *Client) MatchID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matchID
}

// OpponentCells returns a copy of the opponent's locked cells
func (c *Client) OpponentCells() [][]game.Mino {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opponentBoard.Cells()
}

// Close closes the connection
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
