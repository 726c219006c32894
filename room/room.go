// room/room.go
package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wfunc/storyserver/ledger"
	"github.com/wfunc/storyserver/logger"
	"github.com/wfunc/storyserver/market"
	"github.com/wfunc/storyserver/models"
	"github.com/wfunc/storyserver/monitor"
	"github.com/wfunc/storyserver/narrative"
	"github.com/wfunc/storyserver/network"
	"github.com/wfunc/storyserver/state"
	"github.com/wfunc/storyserver/turn"
	"github.com/wfunc/storyserver/world"
)

// ErrClosed is returned by every method once the room has been closed.
var ErrClosed = errors.New("room closed")

// Rejection reasons sent when explicit rejections are enabled.
const (
	ReasonNotStarted    = "session not started"
	ReasonNotYourTurn   = "not your turn"
	ReasonActionPending = "an action is already being resolved"
	ReasonNotJoined     = "join the session first"
)

// Options configures a Room. Zero values fall back to working defaults.
type Options struct {
	ID                 string
	OpeningStory       string
	StartingCash       decimal.Decimal
	Market             market.Params
	TickInterval       time.Duration // 0 disables the ticker; Tick drives the price
	ExplicitRejections bool
	Source             market.NormalSource
	Journal            Journal
	Monitor            *monitor.Monitor
}

// Participant 参与者 is a joined session.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p *Participant) GetID() string   { return p.ID }
func (p *Participant) GetName() string { return p.Name }

// pendingAction is the single action awaiting a narrative result.
type pendingAction struct {
	actor   string
	speaker string
	text    string
	started time.Time
}

// Room 是会话的核心结构. It owns the turn queue, world, ledger and price
// simulator; all of them are touched only from loop.
type Room struct {
	ID           string
	StateMachine state.StateMachine
	CreatedAt    time.Time

	lobby   *state.LobbyState
	active  *state.ActiveState
	options Options

	broadcaster Broadcaster
	narrator    narrative.Generator
	journal     Journal
	monitor     *monitor.Monitor

	participants map[string]*Participant
	queue        *turn.Queue
	world        *world.State
	ledger       *ledger.Ledger
	market       *market.Simulator
	inFlight     *pendingAction

	ctx       context.Context
	cancel    context.CancelFunc
	commands  chan func()
	ticker    *time.Ticker
	closeChan chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// NewRoom 创建会话房间 and starts its loop.
func NewRoom(opts Options, broadcaster Broadcaster, narrator narrative.Generator) *Room {
	if opts.ID == "" {
		opts.ID = "main"
	}
	if opts.OpeningStory == "" {
		opts.OpeningStory = "You wake up."
	}
	if opts.Market == (market.Params{}) {
		opts.Market = market.DefaultParams()
	}
	journal := opts.Journal
	if journal == nil {
		journal = nopJournal{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		ID:           opts.ID,
		CreatedAt:    time.Now(),
		options:      opts,
		broadcaster:  broadcaster,
		narrator:     narrator,
		journal:      journal,
		monitor:      opts.Monitor,
		participants: make(map[string]*Participant),
		queue:        turn.NewQueue(),
		world:        world.New(opts.OpeningStory),
		ledger:       ledger.New(opts.StartingCash),
		market:       market.NewSimulator(opts.Market, opts.Source),
		ctx:          ctx,
		cancel:       cancel,
		commands:     make(chan func(), 64),
		closeChan:    make(chan struct{}),
		done:         make(chan struct{}),
	}

	// 初始化状态机，将房间自身(room)作为上下文传入
	r.lobby = state.NewLobbyState(r)
	r.active = state.NewActiveState(r)
	sm := state.NewBaseStateMachine(r.lobby)
	sm.AddTransition(r.lobby, r.active, nil)
	r.StateMachine = sm

	r.monitor.SetStockPrice(r.market.Current())
	if opts.TickInterval > 0 {
		r.ticker = time.NewTicker(opts.TickInterval)
	}
	go r.loop()

	return r
}

// --- 实现 state.RoomContext 接口 (loop only) ---

func (r *Room) GetID() string {
	return r.ID
}

func (r *Room) ChangeState(newState state.State) error {
	return r.StateMachine.ChangeState(newState)
}

// BroadcastWorld sends the world snapshot to everyone under event.
func (r *Room) BroadcastWorld(event string) {
	r.broadcast(event, WorldPayload{WorldState: r.world.Snapshot()})
}

// BroadcastPlayers sends the roster in turn order and the current head.
func (r *Room) BroadcastPlayers() {
	r.broadcast(network.EventPlayersUpdate, r.playersPayload())
}

// NotifyTurn tells the head of the queue, if any, that it may act.
func (r *Room) NotifyTurn() {
	head, ok := r.queue.Current()
	if !ok {
		return
	}
	r.sendTo(head, network.EventYourTurn, nil)
}

// BeginAction starts resolving text for player if it holds the turn and no
// other action is in flight.
func (r *Room) BeginAction(player state.Player, text string) bool {
	id := player.GetID()
	if head, ok := r.queue.Current(); !ok || head != id {
		r.rejectAction(id, ReasonNotYourTurn)
		return false
	}
	if r.inFlight != nil {
		r.rejectAction(id, ReasonActionPending)
		return false
	}

	pending := &pendingAction{
		actor:   id,
		speaker: player.GetName(),
		text:    text,
		started: time.Now(),
	}
	r.inFlight = pending
	req := narrative.Request{StorySoFar: r.world.Story(), Action: text}

	go func() {
		res, err := r.narrator.Generate(r.ctx, req)
		r.monitor.ObserveNarrativeLatency(time.Since(pending.started))
		r.post(func() { r.completeAction(pending, res, err) })
	}()
	return true
}

// --- 房间核心逻辑 ---

// Join registers id under name. Joining again from the same session renames it.
func (r *Room) Join(id, name string) error {
	return r.do(func() {
		if p, exists := r.participants[id]; exists {
			p.Name = name
			r.BroadcastPlayers()
			return
		}

		r.participants[id] = &Participant{ID: id, Name: name}
		r.queue.Join(id)
		pos := r.ledger.Open(id)
		r.monitor.SetOnlinePlayers(len(r.participants))
		logger.Log.Infof("participant %s joined as %q", id, name)

		r.BroadcastPlayers()
		r.sendPortfolio(id, pos)
		if r.phase() == state.PhaseActive {
			if head, _ := r.queue.Current(); head == id {
				r.sendTo(id, network.EventYourTurn, nil)
			}
		}
	})
}

// Leave removes id from the roster, the queue and the ledger. An action it
// has in flight still lands in the world when it resolves.
func (r *Room) Leave(id string) error {
	return r.do(func() {
		if _, exists := r.participants[id]; !exists {
			return
		}
		delete(r.participants, id)
		wasHead := r.queue.Leave(id)
		r.ledger.Close(id)
		if r.inFlight != nil && r.inFlight.actor == id {
			r.inFlight = nil
		}
		r.monitor.SetOnlinePlayers(len(r.participants))
		logger.Log.Infof("participant %s left", id)

		r.BroadcastPlayers()
		if wasHead && r.phase() == state.PhaseActive {
			r.NotifyTurn()
		}
	})
}

// Start moves the room from lobby to active. Only the first call from a
// joined participant has any effect.
func (r *Room) Start(id string) error {
	return r.do(func() {
		if _, exists := r.participants[id]; !exists {
			logger.Log.Debugf("start from non participant %s ignored", id)
			r.rejectAction(id, ReasonNotJoined)
			return
		}
		if err := r.ChangeState(r.active); err != nil {
			logger.Log.Debugf("start from %s ignored: %v", id, err)
			return
		}
		logger.Log.Infof("session %s started by %s", r.ID, id)
	})
}

// SubmitAction hands text to the current state. Out of turn, duplicate and
// lobby actions are ignored.
func (r *Room) SubmitAction(id, text string) error {
	return r.do(func() {
		p, exists := r.participants[id]
		if !exists {
			r.rejectAction(id, ReasonNotJoined)
			return
		}
		current := r.StateMachine.GetCurrentState()
		if current.GetID() == state.PhaseLobby {
			r.rejectAction(id, ReasonNotStarted)
			return
		}
		if current.HandleAction(p, text) {
			logger.Log.Debugf("action from %s accepted", id)
		}
	})
}

func (r *Room) completeAction(pending *pendingAction, res world.Result, err error) {
	outcome := models.OutcomeApplied
	if r.world.ApplyActionResult(pending.speaker, pending.text, res, err) {
		r.monitor.IncActions(models.OutcomeApplied)
	} else {
		outcome = models.OutcomeFailed
		logger.Log.Warnf("narrative for %s failed: %v", pending.actor, err)
		r.monitor.IncActions(models.OutcomeFailed)
	}
	if r.inFlight == pending {
		r.inFlight = nil
	}
	// If the actor left, Leave already advanced the head.
	if head, ok := r.queue.Current(); ok && head == pending.actor {
		r.queue.Rotate()
	}

	record := models.ActionRecord{
		SessionID:     r.ID,
		ParticipantID: pending.actor,
		Speaker:       pending.speaker,
		Action:        pending.text,
		Outcome:       outcome,
		CreatedAt:     time.Now(),
	}
	if err != nil {
		record.Error = err.Error()
	} else {
		record.Story = res.Story
	}
	if jerr := r.journal.RecordAction(r.ctx, record); jerr != nil {
		logger.Log.Warnf("journal action: %v", jerr)
	}

	r.BroadcastWorld(network.EventStateUpdate)
	r.BroadcastPlayers()
	r.NotifyTurn()
}

// Buy purchases qty shares at the current price. The caller always gets a
// portfolioUpdate; the returned error explains a rejection.
func (r *Room) Buy(id string, qty int64) (ledger.Position, error) {
	return r.trade(id, models.SideBuy, qty)
}

// Sell is the mirror of Buy.
func (r *Room) Sell(id string, qty int64) (ledger.Position, error) {
	return r.trade(id, models.SideSell, qty)
}

// RejectTrade answers a trade request that never reached the ledger, such as
// an undecodable quantity. A participant still gets its unchanged portfolio.
func (r *Room) RejectTrade(id, side, reason string) error {
	return r.do(func() {
		pos, ok := r.ledger.Position(id)
		if !ok {
			r.rejectTrade(id, ReasonNotJoined)
			return
		}
		r.monitor.IncTrades(side, models.OutcomeRejected)
		r.rejectTrade(id, reason)
		r.sendPortfolio(id, pos)
	})
}

func (r *Room) trade(id, side string, qty int64) (pos ledger.Position, err error) {
	if derr := r.do(func() {
		price := r.market.Current()
		if side == models.SideBuy {
			pos, err = r.ledger.Buy(id, qty, price)
		} else {
			pos, err = r.ledger.Sell(id, qty, price)
		}
		if errors.Is(err, ledger.ErrUnknownAccount) {
			logger.Log.Debugf("%s from non participant %s ignored", side, id)
			r.rejectTrade(id, ReasonNotJoined)
			return
		}

		outcome := models.OutcomeApplied
		if err != nil {
			outcome = models.OutcomeRejected
			logger.Log.Debugf("%s %d from %s rejected: %v", side, qty, id, err)
			r.rejectTrade(id, err.Error())
		}
		r.monitor.IncTrades(side, outcome)
		if jerr := r.journal.RecordTrade(r.ctx, models.TradeRecord{
			SessionID:     r.ID,
			ParticipantID: id,
			Side:          side,
			Qty:           qty,
			Price:         price,
			Cash:          pos.Cash.String(),
			Shares:        pos.Shares,
			Outcome:       outcome,
			CreatedAt:     time.Now(),
		}); jerr != nil {
			logger.Log.Warnf("journal trade: %v", jerr)
		}
		r.sendPortfolio(id, pos)
	}); derr != nil {
		return ledger.Position{}, derr
	}
	return pos, err
}

// Tick advances the price once and broadcasts it.
func (r *Room) Tick() error {
	return r.do(r.tick)
}

func (r *Room) tick() {
	price := r.market.Tick()
	r.monitor.SetStockPrice(price)
	r.broadcast(network.EventStockUpdate, StockPayload{StockValue: price})
}

// Snapshot returns a consistent copy of the room for admin surfaces.
func (r *Room) Snapshot() (snap Snapshot, err error) {
	err = r.do(func() {
		head, _ := r.queue.Current()
		snap = Snapshot{
			ID:             r.ID,
			Phase:          r.phase(),
			Players:        r.players(),
			CurrentTurn:    head,
			World:          r.world.Snapshot(),
			StockValue:     r.market.Current(),
			PriceChange:    r.market.Change(),
			History:        r.market.History(),
			ActionInFlight: r.inFlight != nil,
			CreatedAt:      r.CreatedAt,
		}
	})
	return snap, err
}

// Close 关闭房间，停止主循环. Pending narrative calls are cancelled and their
// results dropped.
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		r.cancel()
		close(r.closeChan)
	})
	<-r.done
}

// loop 是房间的主循环
func (r *Room) loop() {
	defer close(r.done)

	var tick <-chan time.Time
	if r.ticker != nil {
		tick = r.ticker.C
		defer r.ticker.Stop()
	}
	for {
		select {
		case fn := <-r.commands:
			fn()
		case <-tick:
			r.tick()
		case <-r.closeChan:
			return
		}
	}
}

// do runs fn on the loop and waits for it.
func (r *Room) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case r.commands <- func() { fn(); close(finished) }:
	case <-r.closeChan:
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-r.done:
		return ErrClosed
	}
}

// post queues fn without waiting; used by async completions.
func (r *Room) post(fn func()) {
	select {
	case r.commands <- fn:
	case <-r.closeChan:
	}
}

func (r *Room) phase() string {
	return r.StateMachine.GetCurrentState().GetID()
}

func (r *Room) players() []Participant {
	ids := r.queue.IDs()
	players := make([]Participant, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.participants[id]; ok {
			players = append(players, *p)
		}
	}
	return players
}

func (r *Room) playersPayload() PlayersPayload {
	head, _ := r.queue.Current()
	return PlayersPayload{Players: r.players(), CurrentTurn: head}
}

func (r *Room) sendPortfolio(id string, pos ledger.Position) {
	r.sendTo(id, network.EventPortfolioUpdate, PortfolioPayload{
		Money:     pos.Cash.InexactFloat64(),
		Inventory: pos.Shares,
	})
}

func (r *Room) rejectAction(id, reason string) {
	r.monitor.IncActions(models.OutcomeRejected)
	if r.options.ExplicitRejections {
		r.sendTo(id, network.EventActionRejected, RejectionPayload{Reason: reason})
	}
}

func (r *Room) rejectTrade(id, reason string) {
	if r.options.ExplicitRejections {
		r.sendTo(id, network.EventTradeRejected, RejectionPayload{Reason: reason})
	}
}

func (r *Room) broadcast(event string, payload any) {
	if err := r.broadcaster.BroadcastToAll(event, payload); err != nil {
		logger.Log.Warnf("broadcast %s: %v", event, err)
	}
}

func (r *Room) sendTo(id, event string, payload any) {
	if err := r.broadcaster.SendTo(id, event, payload); err != nil {
		logger.Log.Debugf("send %s to %s: %v", event, id, err)
	}
}

type nopJournal struct{}

func (nopJournal) RecordAction(context.Context, models.ActionRecord) error { return nil }
func (nopJournal) RecordTrade(context.Context, models.TradeRecord) error   { return nil }
