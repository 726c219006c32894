package network

// Inbound events.
const (
	EventPing      = "ping"
	EventJoin      = "join"
	EventStartGame = "startGame"
	EventAction    = "action"
	EventBuyStock  = "buyStock"
	EventSellStock = "sellStock"
)

// Outbound events.
const (
	EventPlayersUpdate   = "playersUpdate"
	EventStateUpdate     = "stateUpdate"
	EventGameStart       = "gameStart"
	EventStockUpdate     = "stockUpdate"
	EventPortfolioUpdate = "portfolioUpdate"
	EventYourTurn        = "yourTurn"
	EventActionRejected  = "actionRejected"
	EventTradeRejected   = "tradeRejected"
)

type JoinPayload struct {
	Name string `json:"name"`
}

type ActionPayload struct {
	Text string `json:"text"`
}

type TradePayload struct {
	Qty int64 `json:"qty"`
}
