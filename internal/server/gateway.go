package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"tetris-versus/internal/network"
	"tetris-versus/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxWSMessage   = 512
	spectatorQueue = 256
	topScores      = 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway serves the match list, the leaderboard and WebSocket spectators
type Gateway struct {
	mm     *Matchmaker
	scores Leaderboard
	srv    *http.Server
	logger *logger.Logger
}

// NewGateway creates the HTTP gateway. scores may be nil.
func NewGateway(addr string, mm *Matchmaker, scores Leaderboard) *Gateway {
	g := &Gateway{
		mm:     mm,
		scores: scores,
		logger: logger.Server.With("gateway", addr),
	}
	g.srv = &http.Server{
		Addr:              addr,
		Handler:           g.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return g
}

// Router builds the route table
func (g *Gateway) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/matches", g.listMatchesHandler).Methods("GET")
	r.HandleFunc("/scores", g.topScoresHandler).Methods("GET")
	r.HandleFunc("/ws/matches/{matchID:[0-9]+}", g.spectateHandler)
	return r
}

// ListenAndServe blocks until the gateway is shut down
func (g *Gateway) ListenAndServe() error {
	g.logger.Info("Spectator gateway listening on %s", g.srv.Addr)
	if err := g.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for handlers to return
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.srv.Shutdown(ctx)
}

func (g *Gateway) listMatchesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.mm.ActiveMatches())
}

func (g *Gateway) topScoresHandler(w http.ResponseWriter, r *http.Request) {
	if g.scores == nil {
		http.Error(w, "scores unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, g.scores.Top(topScores))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Server.Warn("Failed to encode response: %v", err)
	}
}

func (g *Gateway) spectateHandler(w http.ResponseWriter, r *http.Request) {
	matchID, err := strconv.Atoi(mux.Vars(r)["matchID"])
	if err != nil || matchID < 1 {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("WebSocket upgrade error for match %d: %v", matchID, err)
		return
	}

	sp := newWSSpectator(conn)
	go sp.writePump()

	if err := g.mm.AddSpectator(sp, matchID); err != nil {
		g.logger.Info("Spectator %s waiting for match %d", sp.Key(), matchID)
	}

	sp.readPump()
	g.mm.RemoveSpectator(sp.Key())
	sp.close()
	g.logger.Info("Spectator %s left match %d", sp.Key(), matchID)
}

// wsSpectator forwards match messages to a WebSocket
type wsSpectator struct {
	key    string
	conn   *websocket.Conn
	sendCh chan []byte

	mu     sync.Mutex
	closed bool
}

func newWSSpectator(conn *websocket.Conn) *wsSpectator {
	return &wsSpectator{
		key:    uuid.NewString(),
		conn:   conn,
		sendCh: make(chan []byte, spectatorQueue),
	}
}

func (sp *wsSpectator) Key() string {
	return sp.key
}

// Send queues msg without blocking; a full queue drops the message
func (sp *wsSpectator) Send(msg *network.Message) error {
	data, err := msg.ToJSON()
	if err != nil {
		return err
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.closed {
		return errors.New("spectator closed")
	}
	select {
	case sp.sendCh <- data:
		return nil
	default:
		return errors.New("spectator queue full")
	}
}

func (sp *wsSpectator) close() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if !sp.closed {
		sp.closed = true
		close(sp.sendCh)
	}
}

// writePump sends queued messages and keeps the connection alive
func (sp *wsSpectator) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		sp.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sp.sendCh:
			sp.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				sp.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sp.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			sp.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sp.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames until the connection closes
func (sp *wsSpectator) readPump() {
	sp.conn.SetReadLimit(maxWSMessage)
	sp.conn.SetReadDeadline(time.Now().Add(pongWait))
	sp.conn.SetPongHandler(func(string) error {
		sp.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := sp.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Server.Debug("Spectator %s read error: %v", sp.key, err)
			}
			return
		}
	}
}
