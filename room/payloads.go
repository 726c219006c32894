package room

import (
	"time"

	"github.com/wfunc/storyserver/market"
	"github.com/wfunc/storyserver/world"
)

type PlayersPayload struct {
	Players     []Participant `json:"players"`
	CurrentTurn string        `json:"currentTurn"`
}

// WorldPayload carries stateUpdate and gameStart.
type WorldPayload struct {
	WorldState world.Snapshot `json:"worldState"`
}

type StockPayload struct {
	StockValue float64 `json:"stockValue"`
}

// PortfolioPayload keeps the original wire names: inventory is the share count.
type PortfolioPayload struct {
	Money     float64 `json:"money"`
	Inventory int64   `json:"inventory"`
}

type RejectionPayload struct {
	Reason string `json:"reason"`
}

// Snapshot is the admin view of the room.
type Snapshot struct {
	ID             string          `json:"id"`
	Phase          string          `json:"phase"`
	Players        []Participant   `json:"players"`
	CurrentTurn    string          `json:"currentTurn"`
	World          world.Snapshot  `json:"worldState"`
	StockValue     float64         `json:"stockValue"`
	PriceChange    float64         `json:"priceChange"`
	History        []market.Sample `json:"history"`
	ActionInFlight bool            `json:"actionInFlight"`
	CreatedAt      time.Time       `json:"createdAt"`
}
