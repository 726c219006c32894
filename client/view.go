package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/wfunc/storyserver/network"
	"github.com/wfunc/storyserver/world"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)
)

type player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// view renders server events. It remembers the story already shown so only
// new lines are printed.
type view struct {
	out       io.Writer
	ticker    bool
	mutex     sync.Mutex
	storySeen int
	price     float64
	lastPrice float64
}

func newView(out io.Writer, ticker bool) *view {
	return &view{out: out, ticker: ticker}
}

func (v *view) Render(p *network.Packet) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	switch p.Event {
	case network.EventGameStart, network.EventStateUpdate:
		var msg struct {
			WorldState world.Snapshot `json:"worldState"`
		}
		if json.Unmarshal(p.Data, &msg) != nil {
			return
		}
		if p.Event == network.EventGameStart {
			accent.Fprintln(v.out, "== The adventure begins ==")
		}
		v.story(msg.WorldState)
	case network.EventPlayersUpdate:
		var msg struct {
			Players     []player `json:"players"`
			CurrentTurn string   `json:"currentTurn"`
		}
		if json.Unmarshal(p.Data, &msg) != nil {
			return
		}
		names := make([]string, 0, len(msg.Players))
		for _, pl := range msg.Players {
			if pl.ID == msg.CurrentTurn {
				names = append(names, "*"+pl.Name)
				continue
			}
			names = append(names, pl.Name)
		}
		neutral.Fprintf(v.out, "players: %s\n", strings.Join(names, ", "))
	case network.EventYourTurn:
		success.Fprintln(v.out, "It's your turn. Type an action.")
	case network.EventStockUpdate:
		var msg struct {
			StockValue float64 `json:"stockValue"`
		}
		if json.Unmarshal(p.Data, &msg) != nil {
			return
		}
		v.lastPrice, v.price = v.price, msg.StockValue
		if v.ticker {
			v.printPrice()
		}
	case network.EventPortfolioUpdate:
		var msg struct {
			Money     float64 `json:"money"`
			Inventory int64   `json:"inventory"`
		}
		if json.Unmarshal(p.Data, &msg) != nil {
			return
		}
		accent.Fprintf(v.out, "cash $%.2f  shares %d\n", msg.Money, msg.Inventory)
	case network.EventActionRejected, network.EventTradeRejected:
		var msg struct {
			Reason string `json:"reason"`
		}
		json.Unmarshal(p.Data, &msg)
		warn.Fprintf(v.out, "rejected: %s\n", msg.Reason)
	}
}

func (v *view) story(ws world.Snapshot) {
	if v.storySeen > len(ws.Story) {
		v.storySeen = 0
	}
	if fresh := strings.TrimLeft(ws.Story[v.storySeen:], "\n"); fresh != "" {
		fmt.Fprintln(v.out, fresh)
	}
	v.storySeen = len(ws.Story)
	neutral.Fprintf(v.out, "STR %g  DEF %g  HP %g  money %.0f", ws.Stats.STR, ws.Stats.DEF, ws.Stats.HP, ws.Money)
	if len(ws.Inventory) > 0 {
		neutral.Fprintf(v.out, "  items: %s", strings.Join(ws.Inventory, ", "))
	}
	fmt.Fprintln(v.out)
}

func (v *view) Price() {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.printPrice()
}

func (v *view) printPrice() {
	switch {
	case v.price > v.lastPrice:
		success.Fprintf(v.out, "STOCK %.2f ▲\n", v.price)
	case v.price < v.lastPrice:
		danger.Fprintf(v.out, "STOCK %.2f ▼\n", v.price)
	default:
		neutral.Fprintf(v.out, "STOCK %.2f\n", v.price)
	}
}

func (v *view) Error(err error) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	danger.Fprintln(v.out, err)
}

func (v *view) Help() {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	neutral.Fprintln(v.out, "/start  /buy N  /sell N  /price  /name NAME  /quit  - anything else is your action")
}
