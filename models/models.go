// models/models.go
package models

import (
	"time"
)

// Outcomes shared by actions and trades.
const (
	OutcomeApplied  = "applied"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

// Trade sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// ActionRecord 行动记录: one resolved story action.
type ActionRecord struct {
	SessionID     string    `json:"session_id"`
	ParticipantID string    `json:"participant_id"`
	Speaker       string    `json:"speaker"`
	Action        string    `json:"action"`
	Outcome       string    `json:"outcome"`
	Story         string    `json:"story,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TradeRecord 交易记录: one accepted or rejected order. Cash is the decimal
// string of the balance after the order.
type TradeRecord struct {
	SessionID     string    `json:"session_id"`
	ParticipantID string    `json:"participant_id"`
	Side          string    `json:"side"`
	Qty           int64     `json:"qty"`
	Price         float64   `json:"price"`
	Cash          string    `json:"cash"`
	Shares        int64     `json:"shares"`
	Outcome       string    `json:"outcome"`
	CreatedAt     time.Time `json:"created_at"`
}
