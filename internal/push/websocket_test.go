package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-arena-client/pkg/arenadto"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func collect(ws *WebSocket) chan Event {
	ch := make(chan Event, 16)
	ws.OnEvent(func(ev Event) { ch <- ev })
	return ch
}

func waitEvent(t *testing.T, ch chan Event, name string) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Name == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", name)
			return Event{}
		}
	}
}

func TestWebSocketHandshakeEmitAndReceive(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()
		var in arenadto.Envelope
		if err := wsjson.Read(ctx, c, &in); err != nil {
			return
		}
		var join arenadto.JoinCompetition
		_ = json.Unmarshal(in.Data, &join)
		data, _ := json.Marshal(map[string]any{
			"competitionId": join.CompetitionID,
			"leaderboard":   []map[string]any{{"rank": 1, "username": join.Username, "score": 10}},
		})
		_ = wsjson.Write(ctx, c, arenadto.Envelope{Event: arenadto.EventLeaderboardUpdate, Data: data})
		_, _, _ = c.Read(ctx)
	}))
	defer srv.Close()

	ws, err := NewWebSocket(wsURL(srv), WithToken("tok"), WithReconnect(0))
	if err != nil {
		t.Fatalf("NewWebSocket: %v", err)
	}
	defer ws.Close(context.Background())
	events := collect(ws)

	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitEvent(t, events, arenadto.EventConnect)
	if got, _ := gotAuth.Load().(string); got != "Bearer tok" {
		t.Fatalf("handshake should carry the token, got %q", got)
	}

	if err := ws.Emit(context.Background(), arenadto.EventJoinCompetition, arenadto.JoinCompetition{CompetitionID: "c1", Username: "ann"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	ev := waitEvent(t, events, arenadto.EventLeaderboardUpdate)
	var lb arenadto.LeaderboardUpdate
	if err := ev.Decode(&lb); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if lb.CompetitionID != "c1" || len(lb.Leaderboard) != 1 || lb.Leaderboard[0].Username != "ann" {
		t.Fatalf("unexpected payload %+v", lb)
	}
}

func TestWebSocketReconnectsAfterDrop(t *testing.T) {
	var conns int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		if atomic.AddInt32(&conns, 1) == 1 {
			_ = c.Close(websocket.StatusGoingAway, "restart")
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		_, _, _ = c.Read(r.Context())
	}))
	defer srv.Close()

	ws, _ := NewWebSocket(wsURL(srv), WithReconnect(3))
	defer ws.Close(context.Background())
	events := collect(ws)

	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitEvent(t, events, arenadto.EventConnect)
	waitEvent(t, events, arenadto.EventDisconnect)
	waitEvent(t, events, arenadto.EventConnect)
	if n := atomic.LoadInt32(&conns); n < 2 {
		t.Fatalf("expected a second handshake, got %d", n)
	}
}

func TestEmitWithoutConnection(t *testing.T) {
	ws, _ := NewWebSocket("ws://127.0.0.1:1/ws", WithReconnect(0))
	if err := ws.Emit(context.Background(), "x", nil); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := ws.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if ws.State() != StateClosed {
		t.Fatalf("expected closed state, got %s", ws.State())
	}
}
