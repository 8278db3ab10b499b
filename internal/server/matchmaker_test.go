package server

import (
	"errors"
	"net"
	"testing"
	"time"

	"tetris-versus/internal/network"
)

func newTestMatchmaker(t *testing.T, store HighScoreStore) *Matchmaker {
	t.Helper()
	mm := NewMatchmaker(store, testMatchConfig())
	t.Cleanup(mm.Stop)
	return mm
}

func (mm *Matchmaker) matchByID(id int) *Match {
	var m *Match
	mm.do(func() { m = mm.matches[id] })
	return m
}

func TestMatchmakerPairsInFIFOOrder(t *testing.T) {
	mm := newTestMatchmaker(t, newFakeStore())

	peers := []*fakePeer{newFakePeer("A"), newFakePeer("B"), newFakePeer("C"), newFakePeer("D")}
	for _, p := range peers {
		mm.AddPlayer(p)
	}

	matches := mm.ActiveMatches()
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %+v", matches)
	}
	want := [][]string{{"A", "B"}, {"C", "D"}}
	for i, info := range matches {
		if info.ID != i+1 {
			t.Errorf("match %d has id %d", i, info.ID)
		}
		if info.Players[0] != want[i][0] || info.Players[1] != want[i][1] {
			t.Errorf("match %d paired %v, want %v", info.ID, info.Players, want[i])
		}
	}

	var mf network.MatchFoundPayload
	if err := peers[2].waitCount(t, network.MsgMatchFound, 1)[0].Decode(&mf); err != nil {
		t.Fatal(err)
	}
	if mf.MatchID != 2 || mf.Opponent != "D" {
		t.Errorf("C was told %+v", mf)
	}
	if mm.Waiting() != 0 {
		t.Errorf("%d players left waiting", mm.Waiting())
	}
}

func TestMatchmakerOddPlayerWaits(t *testing.T) {
	mm := newTestMatchmaker(t, newFakeStore())

	a := newFakePeer("A")
	mm.AddPlayer(a)
	mm.AddPlayer(a)
	if mm.Waiting() != 1 || len(mm.ActiveMatches()) != 0 {
		t.Fatalf("waiting %d, matches %d", mm.Waiting(), len(mm.ActiveMatches()))
	}
}

func TestTeardownOnlyWhenBothDisconnect(t *testing.T) {
	store := newFakeStore()
	mm := newTestMatchmaker(t, store)

	a, b := newFakePeer("A"), newFakePeer("B")
	mm.AddPlayer(a)
	mm.AddPlayer(b)
	m := mm.matchByID(1)
	if m == nil {
		t.Fatal("match 1 not registered")
	}
	b.waitCount(t, network.MsgSendPiece, 2)

	m.PlayerDisconnected(a)
	b.waitCount(t, network.MsgPlayerStatus, 3)
	if len(mm.ActiveMatches()) != 1 || store.setCount() != 0 {
		t.Fatal("single disconnect tore the match down")
	}

	m.PlayerDisconnected(b)
	<-m.Done()
	eventually(t, "match removal", func() bool { return len(mm.ActiveMatches()) == 0 })
	if store.setCount() != 2 {
		t.Errorf("expected 2 score writes, got %d", store.setCount())
	}

	// the freed id is handed out again
	c, d := newFakePeer("C"), newFakePeer("D")
	mm.AddPlayer(c)
	mm.AddPlayer(d)
	if mm.matchByID(1) == nil {
		t.Error("expected recycled id 1")
	}
}

func TestMatchIDsNeverCollideWithLiveMatch(t *testing.T) {
	mm := newTestMatchmaker(t, newFakeStore())

	var peers []*fakePeer
	for _, name := range []string{"A", "B", "C", "D", "E", "F"} {
		p := newFakePeer(name)
		peers = append(peers, p)
		mm.AddPlayer(p)
	}

	// end match 2 while 1 and 3 stay live
	m2 := mm.matchByID(2)
	m2.PlayerDisconnected(peers[2])
	m2.PlayerDisconnected(peers[3])
	<-m2.Done()
	eventually(t, "match 2 removal", func() bool { return mm.matchByID(2) == nil })

	mm.AddPlayer(newFakePeer("G"))
	mm.AddPlayer(newFakePeer("H"))

	ids := map[int]bool{}
	for _, info := range mm.ActiveMatches() {
		if ids[info.ID] {
			t.Fatalf("duplicate id %d", info.ID)
		}
		ids[info.ID] = true
	}
	if len(ids) != 3 || !ids[4] {
		t.Errorf("expected ids 1,3,4, got %v", ids)
	}
}

func TestSpectatorWaitsForUnknownMatch(t *testing.T) {
	mm := newTestMatchmaker(t, newFakeStore())

	sp := newFakePeer("watcher")
	if err := mm.AddSpectator(sp, 1); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}

	var st network.StatusPayload
	if err := sp.waitCount(t, network.MsgPlayerStatus, 1)[0].Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Status != network.StatusNotFound {
		t.Errorf("spectator told %s", st.Status)
	}

	mm.AddPlayer(newFakePeer("A"))
	mm.AddPlayer(newFakePeer("B"))

	sp.waitCount(t, network.MsgBoard, 2)
	eventually(t, "spectator attached", func() bool {
		matches := mm.ActiveMatches()
		return len(matches) == 1 && matches[0].Spectators == 1
	})
}

func TestSessionSlotsReuseLowestFree(t *testing.T) {
	mm := newTestMatchmaker(t, newFakeStore())

	var got []int
	mm.do(func() {
		a, b, c := mm.allocSlot(), mm.allocSlot(), mm.allocSlot()
		mm.slots[b] = false
		d := mm.allocSlot()
		got = []int{a, b, c, d}
	})
	want := []int{0, 1, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slots %v, want %v", got, want)
		}
	}
}

func (mm *Matchmaker) parkedCount() int {
	n := 0
	mm.do(func() {
		for _, list := range mm.waiting {
			n += len(list)
		}
	})
	return n
}

func TestUnreadSpectatorDoesNotBlockMatchmaking(t *testing.T) {
	mm := newTestMatchmaker(t, newFakeStore())

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	s := newSession(serverConn)
	s.writeTimeout = time.Hour

	replied := make(chan struct{})
	go func() {
		mm.ClientMessage(s, network.CreateSpectateMessage(42))
		close(replied)
	}()
	eventually(t, "spectator parked", func() bool { return mm.parkedCount() == 1 })

	paired := make(chan struct{})
	go func() {
		mm.AddPlayer(newFakePeer("A"))
		mm.AddPlayer(newFakePeer("B"))
		close(paired)
	}()
	select {
	case <-paired:
	case <-time.After(waitTimeout):
		t.Fatal("pairing blocked behind a spectator that never reads")
	}
	if n := len(mm.ActiveMatches()); n != 1 {
		t.Errorf("%d active matches, want 1", n)
	}

	clientConn.Close()
	select {
	case <-replied:
	case <-time.After(waitTimeout):
		t.Fatal("spectate request still blocked after the peer closed")
	}
}

func TestRepeatedSpectateParksOnce(t *testing.T) {
	mm := newTestMatchmaker(t, newFakeStore())
	sp := newFakePeer("watcher")

	for _, id := range []int{7, 7, 7, 8} {
		if err := mm.AddSpectator(sp, id); !errors.Is(err, ErrMatchNotFound) {
			t.Fatalf("spectate %d: %v", id, err)
		}
	}
	if n := mm.parkedCount(); n != 1 {
		t.Errorf("spectator parked %d times, want 1", n)
	}

	var parkedOn []int
	mm.do(func() {
		for id := range mm.waiting {
			parkedOn = append(parkedOn, id)
		}
	})
	if len(parkedOn) != 1 || parkedOn[0] != 8 {
		t.Errorf("parked on %v, want [8]", parkedOn)
	}
}

func TestJoinMarksSessionNotStarted(t *testing.T) {
	mm := newTestMatchmaker(t, newFakeStore())

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	s := newSession(serverConn)
	defer s.Close()

	mm.ClientMessage(s, network.CreateNameMessage("alice"))
	if s.Status() != network.StatusConnecting {
		t.Errorf("status after name = %s", s.Status())
	}
	mm.ClientMessage(s, network.NewMessage(network.MsgJoin))
	if s.Status() != network.StatusNotStarted {
		t.Errorf("status after join = %s, want NOT_STARTED", s.Status())
	}
	if mm.Waiting() != 1 {
		t.Errorf("waiting = %d, want 1", mm.Waiting())
	}
}
