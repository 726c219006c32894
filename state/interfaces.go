// state/interfaces.go
package state

// Player defines the minimal interface for a participant that a state needs to interact with.
type Player interface {
	GetID() string
	GetName() string
}

// RoomContext defines the interface that a Room must implement to be managed by the state machine.
// This breaks the import cycle between room and state. States are only driven from the
// room's loop, so implementations need no locking.
type RoomContext interface {
	GetID() string
	ChangeState(newState State) error
	BroadcastWorld(event string)
	BroadcastPlayers()
	NotifyTurn()
	BeginAction(player Player, text string) bool
}
