package state

import (
	"reflect"
	"testing"

	"github.com/wfunc/storyserver/network"
)

// MockState is a test double for the State interface.
// It helps us track which methods have been called.
type MockState struct {
	ID            string
	OnEnterCalled bool
	OnExitCalled  bool
}

func (m *MockState) OnEnter() {
	m.OnEnterCalled = true
}

func (m *MockState) OnExit() {
	m.OnExitCalled = true
}

func (m *MockState) GetID() string {
	return m.ID
}

func (m *MockState) HandleAction(player Player, text string) bool {
	return false
}

// reset clears the call tracking flags.
func (m *MockState) reset() {
	m.OnEnterCalled = false
	m.OnExitCalled = false
}

// MockRoom records the calls states make on their room.
type MockRoom struct {
	calls  []string
	accept bool
	acted  []string
}

func (r *MockRoom) GetID() string                    { return "room" }
func (r *MockRoom) ChangeState(newState State) error { return nil }
func (r *MockRoom) BroadcastWorld(event string)      { r.calls = append(r.calls, "world:"+event) }
func (r *MockRoom) BroadcastPlayers()                { r.calls = append(r.calls, "players") }
func (r *MockRoom) NotifyTurn()                      { r.calls = append(r.calls, "turn") }
func (r *MockRoom) BeginAction(player Player, text string) bool {
	r.acted = append(r.acted, player.GetID()+":"+text)
	return r.accept
}

type mockPlayer struct{ id string }

func (p mockPlayer) GetID() string   { return p.id }
func (p mockPlayer) GetName() string { return p.id }

func TestStateMachine_InitialState(t *testing.T) {
	initialState := &MockState{ID: "initial"}
	sm := NewBaseStateMachine(initialState)

	if !initialState.OnEnterCalled {
		t.Error("Expected OnEnter to be called on the initial state")
	}

	if sm.GetCurrentState() != initialState {
		t.Error("GetCurrentState should return the initial state")
	}
}

func TestStateMachine_ChangeState(t *testing.T) {
	initialState := &MockState{ID: "initial"}
	nextState := &MockState{ID: "next"}

	sm := NewBaseStateMachine(initialState)
	sm.AddTransition(initialState, nextState, nil)
	initialState.reset() // Reset after initialization

	err := sm.ChangeState(nextState)
	if err != nil {
		t.Fatalf("ChangeState should not return an error, but got: %v", err)
	}

	if !initialState.OnExitCalled {
		t.Error("Expected OnExit to be called on the old state")
	}

	if !nextState.OnEnterCalled {
		t.Error("Expected OnEnter to be called on the new state")
	}

	if sm.GetCurrentState() != nextState {
		t.Error("GetCurrentState should return the new state")
	}
}

func TestStateMachine_UnregisteredTransitionRejected(t *testing.T) {
	stateA := &MockState{ID: "A"}
	stateB := &MockState{ID: "B"}

	sm := NewBaseStateMachine(stateA)
	sm.AddTransition(stateA, stateB, nil)
	if err := sm.ChangeState(stateB); err != nil {
		t.Fatalf("A to B should be allowed: %v", err)
	}

	// Nothing leaves B, not even a second entry into B.
	stateB.reset()
	if err := sm.ChangeState(stateB); err != ErrTransitionNotAllowed {
		t.Errorf("Expected ErrTransitionNotAllowed for B to B, got: %v", err)
	}
	if err := sm.ChangeState(stateA); err != ErrTransitionNotAllowed {
		t.Errorf("Expected ErrTransitionNotAllowed for B to A, got: %v", err)
	}
	if stateB.OnExitCalled || stateB.OnEnterCalled {
		t.Error("Rejected transitions must not run hooks")
	}
}

func TestStateMachine_AddAndUseTransition(t *testing.T) {
	stateA := &MockState{ID: "A"}
	stateB := &MockState{ID: "B"}
	stateC := &MockState{ID: "C"}

	sm := NewBaseStateMachine(stateA)

	// Add a valid transition from A to B
	err := sm.AddTransition(stateA, stateB, func() bool { return true })
	if err != nil {
		t.Fatalf("AddTransition failed: %v", err)
	}

	// Add a blocked transition from B to C
	err = sm.AddTransition(stateB, stateC, func() bool { return false })
	if err != nil {
		t.Fatalf("AddTransition failed: %v", err)
	}

	// --- Test valid transition ---
	stateA.reset()
	err = sm.ChangeState(stateB)
	if err != nil {
		t.Errorf("Expected transition from A to B to be allowed, but got error: %v", err)
	}
	if sm.GetCurrentState().GetID() != "B" {
		t.Errorf("Expected current state to be B, but got %s", sm.GetCurrentState().GetID())
	}

	// --- Test blocked transition ---
	stateB.reset()
	err = sm.ChangeState(stateC)
	if err != ErrTransitionNotAllowed {
		t.Errorf("Expected ErrTransitionNotAllowed, but got: %v", err)
	}
	if sm.GetCurrentState().GetID() != "B" {
		t.Errorf("Expected current state to remain B after a blocked transition, but got %s", sm.GetCurrentState().GetID())
	}
	if stateB.OnExitCalled {
		t.Error("OnExit should not be called on the current state if transition is blocked")
	}
	if stateC.OnEnterCalled {
		t.Error("OnEnter should not be called on the new state if transition is blocked")
	}
}

func TestLobbyState_IgnoresActions(t *testing.T) {
	room := &MockRoom{accept: true}
	lobby := NewLobbyState(room)

	if lobby.HandleAction(mockPlayer{"p1"}, "look") {
		t.Error("Lobby should not accept actions")
	}
	if len(room.acted) != 0 {
		t.Errorf("Lobby should not forward actions, got %v", room.acted)
	}
	if lobby.GetID() != PhaseLobby {
		t.Errorf("Expected id %q, got %q", PhaseLobby, lobby.GetID())
	}
}

func TestActiveState_EnterAnnouncesGame(t *testing.T) {
	room := &MockRoom{}
	lobby := NewLobbyState(room)
	active := NewActiveState(room)

	sm := NewBaseStateMachine(lobby)
	sm.AddTransition(lobby, active, nil)
	if err := sm.ChangeState(active); err != nil {
		t.Fatalf("lobby to active failed: %v", err)
	}

	want := []string{"world:" + network.EventGameStart, "players", "turn"}
	if !reflect.DeepEqual(room.calls, want) {
		t.Errorf("Expected calls %v, got %v", want, room.calls)
	}
}

func TestActiveState_ForwardsActions(t *testing.T) {
	room := &MockRoom{accept: true}
	active := NewActiveState(room)

	if !active.HandleAction(mockPlayer{"p1"}, "dig") {
		t.Error("Expected the room's verdict to be returned")
	}
	room.accept = false
	if active.HandleAction(mockPlayer{"p2"}, "wait") {
		t.Error("Expected rejection to be returned")
	}
	if !reflect.DeepEqual(room.acted, []string{"p1:dig", "p2:wait"}) {
		t.Errorf("Unexpected forwarded actions %v", room.acted)
	}
}
