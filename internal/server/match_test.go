package server

import (
	"context"
	"net"
	"testing"
	"time"

	"tetris-versus/internal/game"
	"tetris-versus/internal/network"
)

func TestMatchStartAnnouncesOpponentAndHighScore(t *testing.T) {
	store := newFakeStore()
	store.scores["alice"] = 1500
	a, b := newFakePeer("alice"), newFakePeer("bob")
	startTestMatch(t, a, b, store)

	names := a.waitCount(t, network.MsgName, 1)
	var np network.NamePayload
	if err := names[0].Decode(&np); err != nil || np.Username != "bob" {
		t.Errorf("alice was told opponent %q (%v)", np.Username, err)
	}

	var hs network.HighScorePayload
	if err := a.waitCount(t, network.MsgHighScore, 1)[0].Decode(&hs); err != nil {
		t.Fatal(err)
	}
	if !hs.Found || hs.Score != 1500 {
		t.Errorf("alice high score = %+v", hs)
	}
	if err := b.waitCount(t, network.MsgHighScore, 1)[0].Decode(&hs); err != nil {
		t.Fatal(err)
	}
	if hs.Found {
		t.Errorf("bob should have no stored score, got %+v", hs)
	}

	if a.Status() != network.StatusReady || b.Status() != network.StatusReady {
		t.Errorf("statuses %s %s, want READY", a.Status(), b.Status())
	}
}

func TestAskPieceAssignsToRequesterAndPreviewsOpponent(t *testing.T) {
	a, b := newFakePeer("alice"), newFakePeer("bob")
	m := startTestMatch(t, a, b, newFakeStore())

	firstBag := game.NewSeededBagGenerator(1).RegenBag()

	m.Deliver(a, network.NewMessage(network.MsgAskPiece))

	assigned := a.waitCount(t, network.MsgSendPiece, 3)
	previewed := b.waitCount(t, network.MsgNextPieceOther, 3)

	got := pieceOf(t, assigned[2])
	if got != firstBag[2] {
		t.Errorf("alice got %s, want third piece of the bag %s", got, firstBag[2])
	}
	if preview := pieceOf(t, previewed[2]); preview != got {
		t.Errorf("bob previewed %s, alice was assigned %s", preview, got)
	}

	if n := len(b.ofType(network.MsgSendPiece)); n != 2 {
		t.Errorf("bob received %d assignments, want 2", n)
	}
	if n := len(a.ofType(network.MsgNextPieceOther)); n != 2 {
		t.Errorf("alice received %d previews, want 2", n)
	}
}

func TestBagFairnessAcrossRefills(t *testing.T) {
	a, b := newFakePeer("alice"), newFakePeer("bob")
	m := startTestMatch(t, a, b, newFakeStore())

	for i := 0; i < 19; i++ {
		m.Deliver(a, network.NewMessage(network.MsgAskPiece))
	}
	for i := 0; i < 5; i++ {
		m.Deliver(b, network.NewMessage(network.MsgAskPiece))
	}

	aMsgs := a.waitCount(t, network.MsgSendPiece, 21)
	bMsgs := b.waitCount(t, network.MsgSendPiece, 7)

	seqA := make([]game.Mino, len(aMsgs))
	for i, msg := range aMsgs {
		seqA[i] = pieceOf(t, msg)
	}
	for i, msg := range bMsgs {
		if got := pieceOf(t, msg); got != seqA[i] {
			t.Fatalf("piece %d: bob got %s, alice got %s", i, got, seqA[i])
		}
	}

	for start := 0; start+game.BagSize <= len(seqA); start += game.BagSize {
		seen := make(map[game.Mino]bool)
		for _, mino := range seqA[start : start+game.BagSize] {
			if seen[mino] {
				t.Fatalf("bag at %d repeats %s: %v", start, mino, seqA[start:start+game.BagSize])
			}
			seen[mino] = true
		}
	}
}

func TestRelayAppliesBeforeForwarding(t *testing.T) {
	a, b := newFakePeer("alice"), newFakePeer("bob")
	m := startTestMatch(t, a, b, newFakeStore())

	m.Deliver(a, network.CreateScoreMessage(500))

	var sp network.ScorePayload
	if err := b.waitCount(t, network.MsgScore, 1)[0].Decode(&sp); err != nil {
		t.Fatal(err)
	}
	if sp.Score != 500 {
		t.Errorf("bob saw score %d", sp.Score)
	}
	if got := m.engines[0].Score(); got != 500 {
		t.Errorf("alice's engine score = %d when relayed", got)
	}
	if got := m.engines[1].Score(); got != 0 {
		t.Errorf("bob's engine touched: %d", got)
	}
	if n := len(a.ofType(network.MsgScore)); n != 0 {
		t.Errorf("sender received its own score %d times", n)
	}
}

func TestMessagesFromNonReadyPlayerAreDropped(t *testing.T) {
	a, b := newFakePeer("alice"), newFakePeer("bob")
	m := startTestMatch(t, a, b, newFakeStore())

	a.SetStatus(network.StatusLockOut)
	m.Deliver(a, network.CreateScoreMessage(100))
	// processed in order, so once alice sees this the drop has happened
	m.Deliver(b, network.CreateScoreMessage(7))
	a.waitCount(t, network.MsgScore, 1)

	if n := len(b.ofType(network.MsgScore)); n != 0 {
		t.Errorf("message from non-READY sender was relayed %d times", n)
	}
	if got := m.engines[0].Score(); got != 0 {
		t.Errorf("message from non-READY sender was applied, score %d", got)
	}
}

func TestInvalidPayloadIsReportedNotRelayed(t *testing.T) {
	a, b := newFakePeer("alice"), newFakePeer("bob")
	m := startTestMatch(t, a, b, newFakeStore())

	m.Deliver(a, network.CreateActionMessage(game.Action("teleport")))
	m.Deliver(a, network.CreateActionMessage(game.ActionMoveLeft))

	errs := a.waitCount(t, network.MsgError, 1)
	var er network.ErrorResponse
	if err := errs[0].Decode(&er); err != nil || er.Code != "INVALID_PAYLOAD" {
		t.Errorf("unexpected error reply %+v (%v)", er, err)
	}

	actions := b.waitCount(t, network.MsgAction, 1)
	var ap network.ActionPayload
	if err := actions[0].Decode(&ap); err != nil || ap.Action != game.ActionMoveLeft {
		t.Errorf("bob received %+v (%v)", ap, err)
	}
	if n := len(b.ofType(network.MsgAction)); n != 1 {
		t.Errorf("bob received %d actions, want 1", n)
	}
}

func TestSpectatorReceivesSnapshots(t *testing.T) {
	a, b := newFakePeer("alice"), newFakePeer("bob")
	m := startTestMatch(t, a, b, newFakeStore())

	sp := newFakePeer("watcher")
	m.AddSpectator(sp)

	boards := sp.waitCount(t, network.MsgBoard, 2)
	users := map[string]bool{}
	for _, msg := range boards[:2] {
		var bp network.BoardPayload
		if err := msg.Decode(&bp); err != nil {
			t.Fatal(err)
		}
		users[bp.Board.Username] = true
		if msg.MatchID != 1 {
			t.Errorf("board for match %d", msg.MatchID)
		}
	}
	if !users["alice"] || !users["bob"] {
		t.Errorf("join snapshot covered %v", users)
	}

	m.Deliver(a, network.CreateActionMessage(game.ActionMoveRight))
	sp.waitCount(t, network.MsgBoard, 3)
	eventually(t, "spectator count", func() bool { return m.Info().Spectators == 1 })

	m.RemoveSpectator(sp.Key())
	eventually(t, "spectator removal", func() bool { return m.Info().Spectators == 0 })
}

func TestSingleDisconnectKeepsMatchOpen(t *testing.T) {
	store := newFakeStore()
	a, b := newFakePeer("alice"), newFakePeer("bob")
	m := startTestMatch(t, a, b, store)

	m.PlayerDisconnected(a)
	statuses := b.waitCount(t, network.MsgPlayerStatus, 3)

	var st network.StatusPayload
	if err := statuses[len(statuses)-1].Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Status != network.StatusDisconnected || st.Username != "alice" {
		t.Errorf("bob told %+v", st)
	}
	if store.setCount() != 0 {
		t.Error("single disconnect persisted scores")
	}

	// bob keeps playing alone
	m.Deliver(b, network.CreateScoreMessage(900))
	eventually(t, "bob's score", func() bool { return m.engines[1].Score() == 900 })

	select {
	case <-m.Done():
		t.Fatal("match ended after one disconnect")
	default:
	}

	m.PlayerDisconnected(b)
	<-m.Done()
	if store.setCount() != 2 {
		t.Errorf("expected both scores persisted, got %d writes", store.setCount())
	}
	if got, _ := store.GetHighScore(context.Background(), "bob"); got != 900 {
		t.Errorf("bob's stored score %d", got)
	}
}

func TestUnreadPlayerIsDroppedAndOpponentKeepsPlaying(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	stalled := newSession(serverConn)
	stalled.setUsername("alice")
	stalled.writeTimeout = 20 * time.Millisecond

	b := newFakePeer("bob")
	m := NewMatch(context.Background(), 1, stalled, b, newFakeStore(), testMatchConfig(), nil)
	go m.Run()
	t.Cleanup(func() {
		m.Stop()
		<-m.Done()
	})

	b.waitCount(t, network.MsgSendPiece, 2)
	m.Deliver(b, network.NewMessage(network.MsgAskPiece))
	b.waitCount(t, network.MsgSendPiece, 3)

	if !stalled.isClosed() {
		t.Error("session that never reads should be closed after its write timeout")
	}
}
