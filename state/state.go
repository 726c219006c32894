package state

import (
	"errors"
	"sync"

	"github.com/wfunc/storyserver/network"
)

// Phase identifiers.
const (
	PhaseLobby  = "lobby"
	PhaseActive = "active"
)

// 状态机接口
type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(from State, to State, condition func() bool) error
}

// 状态接口
type State interface {
	OnEnter()
	OnExit()
	GetID() string
	// HandleAction reports whether the action was accepted.
	HandleAction(player Player, text string) bool
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// BaseStateMachine only follows registered transitions.
type BaseStateMachine struct {
	currentState State
	transitions  map[string]map[string]func() bool // fromState -> toState -> condition
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[string]map[string]func() bool),
	}
	initialState.OnEnter()
	return machine
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	currentID := sm.currentState.GetID()
	newID := newState.GetID()

	conditions, exists := sm.transitions[currentID]
	if !exists {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}
	condition, exists := conditions[newID]
	if !exists || (condition != nil && !condition()) {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}

	old := sm.currentState
	sm.currentState = newState
	sm.mutex.Unlock()

	// Hooks run unlocked so they may read the current state.
	old.OnExit()
	newState.OnEnter()
	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from State, to State, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	fromID := from.GetID()
	toID := to.GetID()

	if _, exists := sm.transitions[fromID]; !exists {
		sm.transitions[fromID] = make(map[string]func() bool)
	}

	sm.transitions[fromID][toID] = condition
	return nil
}

// 房间状态基础结构
type RoomStateBase struct {
	ID   string
	Room RoomContext
}

func (s *RoomStateBase) GetID() string {
	return s.ID
}

func (s *RoomStateBase) OnEnter() {}

func (s *RoomStateBase) OnExit() {}

func (s *RoomStateBase) HandleAction(player Player, text string) bool {
	return false
}

// LobbyState 等待状态: participants gather, actions are ignored.
type LobbyState struct {
	RoomStateBase
}

func NewLobbyState(room RoomContext) *LobbyState {
	return &LobbyState{
		RoomStateBase: RoomStateBase{
			ID:   PhaseLobby,
			Room: room,
		},
	}
}

// ActiveState 游戏状态: the head of the turn queue may act. Terminal.
type ActiveState struct {
	RoomStateBase
}

func NewActiveState(room RoomContext) *ActiveState {
	return &ActiveState{
		RoomStateBase: RoomStateBase{
			ID:   PhaseActive,
			Room: room,
		},
	}
}

func (s *ActiveState) OnEnter() {
	s.Room.BroadcastWorld(network.EventGameStart)
	s.Room.BroadcastPlayers()
	s.Room.NotifyTurn()
}

func (s *ActiveState) HandleAction(player Player, text string) bool {
	return s.Room.BeginAction(player, text)
}
