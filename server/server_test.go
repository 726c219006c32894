package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wfunc/storyserver/config"
	"github.com/wfunc/storyserver/narrative"
	"github.com/wfunc/storyserver/network"
	"github.com/wfunc/storyserver/persistence"
	"github.com/wfunc/storyserver/room"
)

func newTestServer(t *testing.T, tweaks ...func(*config.Config)) (*StoryServer, *httptest.Server) {
	t.Helper()
	cfg, err := config.LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	cfg.Market.Interval = 0 // prices stay put unless ticked
	cfg.Session.OpeningStory = "S"
	for _, tweak := range tweaks {
		tweak(cfg)
	}

	s, err := NewStoryServer(cfg, narrative.Echo{}, persistence.Nop{}, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewStoryServer failed: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Shutdown(context.Background())
		ts.Close()
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			t.Fatal(err)
		}
	}
	frame, err := network.Encode(event, data)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
}

// readUntil skips frames until event arrives and returns its payload.
func readUntil(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Waiting for %s: %v", event, err)
		}
		packet, err := network.Decode(data)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if packet.Event == event {
			return packet.Data
		}
	}
}

func httpGet(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d: %s", url, resp.StatusCode, body)
	}
	return string(body)
}

func TestStoryServer_PlaysATurn(t *testing.T) {
	_, ts := newTestServer(t)
	alice := dial(t, ts)

	send(t, alice, network.EventJoin, network.JoinPayload{Name: "Alice"})
	var roster room.PlayersPayload
	json.Unmarshal(readUntil(t, alice, network.EventPlayersUpdate), &roster)
	if len(roster.Players) != 1 || roster.Players[0].Name != "Alice" {
		t.Fatalf("Unexpected roster %+v", roster)
	}
	var portfolio room.PortfolioPayload
	json.Unmarshal(readUntil(t, alice, network.EventPortfolioUpdate), &portfolio)
	if portfolio.Money != 1000 || portfolio.Inventory != 0 {
		t.Errorf("Unexpected starting portfolio %+v", portfolio)
	}

	send(t, alice, network.EventStartGame, nil)
	readUntil(t, alice, network.EventGameStart)
	readUntil(t, alice, network.EventYourTurn)

	send(t, alice, network.EventAction, network.ActionPayload{Text: "look around"})
	var update room.WorldPayload
	json.Unmarshal(readUntil(t, alice, network.EventStateUpdate), &update)
	if update.WorldState.Story != "S\n> Alice: look around\nYou look around. The world holds its breath." {
		t.Errorf("Unexpected story %q", update.WorldState.Story)
	}
	readUntil(t, alice, network.EventYourTurn)

	send(t, alice, network.EventBuyStock, network.TradePayload{Qty: 2})
	json.Unmarshal(readUntil(t, alice, network.EventPortfolioUpdate), &portfolio)
	if portfolio.Money != 800 || portfolio.Inventory != 2 {
		t.Errorf("Expected 800 cash and 2 shares, got %+v", portfolio)
	}
}

func TestStoryServer_DisconnectPassesTurn(t *testing.T) {
	s, ts := newTestServer(t)
	alice := dial(t, ts)
	bob := dial(t, ts)

	send(t, alice, network.EventJoin, network.JoinPayload{Name: "Alice"})
	readUntil(t, alice, network.EventPortfolioUpdate)
	send(t, bob, network.EventJoin, network.JoinPayload{Name: "Bob"})
	readUntil(t, bob, network.EventPortfolioUpdate)
	send(t, bob, network.EventStartGame, nil)
	readUntil(t, alice, network.EventYourTurn)

	alice.Close()
	readUntil(t, bob, network.EventYourTurn)

	snap, err := s.Room().Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap.Players) != 1 || snap.CurrentTurn != snap.Players[0].ID {
		t.Errorf("Expected Bob alone with the turn, got %+v", snap)
	}
}

func TestStoryServer_HTTPRoutes(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)
	send(t, conn, network.EventJoin, network.JoinPayload{Name: "  "})
	readUntil(t, conn, network.EventPortfolioUpdate)

	if body := httpGet(t, ts.URL+"/healthz"); !strings.Contains(body, `"ok":true`) || !strings.Contains(body, `"sessions":1`) {
		t.Errorf("Unexpected /healthz body %s", body)
	}

	var snap room.Snapshot
	if err := json.Unmarshal([]byte(httpGet(t, ts.URL+"/api/session")), &snap); err != nil {
		t.Fatalf("Decode snapshot: %v", err)
	}
	if snap.Phase != "lobby" || len(snap.Players) != 1 || snap.Players[0].Name != defaultName {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
	if snap.StockValue != 100 {
		t.Errorf("Expected the initial price 100, got %v", snap.StockValue)
	}
	var view sessionView
	json.Unmarshal([]byte(httpGet(t, ts.URL+"/api/session")), &view)
	if len(view.Connections) != 1 || view.Connections[0].ID != snap.Players[0].ID || view.Connections[0].LastActive.IsZero() {
		t.Errorf("Unexpected connections %+v", view.Connections)
	}

	metrics := httpGet(t, ts.URL+"/metrics")
	for _, want := range []string{"storyserver_connected_sessions 1", "storyserver_online_players 1"} {
		if !strings.Contains(metrics, want) {
			t.Errorf("Expected %q in metrics", want)
		}
	}
	if body := httpGet(t, ts.URL+"/debug/vars"); !strings.Contains(body, "uptime") {
		t.Error("Expected uptime in /debug/vars")
	}
}

func TestStoryServer_IdleReaderKeepsSeat(t *testing.T) {
	const heartbeat = 100 * time.Millisecond
	s, ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.Heartbeat = heartbeat
	})
	bob := dial(t, ts)
	send(t, bob, network.EventJoin, network.JoinPayload{Name: "Bob"})
	readUntil(t, bob, network.EventPortfolioUpdate)

	// Bob only reads; his client answers the server's pings.
	bob.SetReadDeadline(time.Time{})
	go func() {
		for {
			if _, _, err := bob.ReadMessage(); err != nil {
				return
			}
		}
	}()
	time.Sleep(6 * heartbeat)

	snap, err := s.Room().Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap.Players) != 1 || snap.Players[0].Name != "Bob" {
		t.Errorf("Expected Bob to keep his seat after idling, got %+v", snap.Players)
	}
}

func TestStoryServer_MalformedFrameKeepsSession(t *testing.T) {
	s, ts := newTestServer(t)
	alice := dial(t, ts)
	send(t, alice, network.EventJoin, network.JoinPayload{Name: "Alice"})
	readUntil(t, alice, network.EventPortfolioUpdate)

	if err := alice.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	send(t, alice, network.EventBuyStock, network.TradePayload{Qty: 1})
	var portfolio room.PortfolioPayload
	json.Unmarshal(readUntil(t, alice, network.EventPortfolioUpdate), &portfolio)
	if portfolio.Money != 900 || portfolio.Inventory != 1 {
		t.Errorf("Expected 900 cash and 1 share, got %+v", portfolio)
	}

	snap, err := s.Room().Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap.Players) != 1 {
		t.Errorf("Expected Alice to stay joined, got %+v", snap.Players)
	}
}

func TestStoryServer_UndecodableTradeStillReportsPortfolio(t *testing.T) {
	_, ts := newTestServer(t)
	alice := dial(t, ts)
	send(t, alice, network.EventJoin, network.JoinPayload{Name: "Alice"})
	readUntil(t, alice, network.EventPortfolioUpdate)

	if err := alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"buyStock","payload":{"qty":1.5}}`)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	var portfolio room.PortfolioPayload
	json.Unmarshal(readUntil(t, alice, network.EventPortfolioUpdate), &portfolio)
	if portfolio.Money != 1000 || portfolio.Inventory != 0 {
		t.Errorf("Expected the unchanged portfolio, got %+v", portfolio)
	}
}
