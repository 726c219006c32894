package room

import (
	"context"

	"github.com/wfunc/storyserver/models"
)

// Broadcaster defines the interface for delivering events to connected sessions.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToAll(event string, payload any) error
	SendTo(sessionID string, event string, payload any) error
}

// Journal receives an audit record for every resolved action and trade.
// It must not block; persistence.AsyncWriter satisfies it.
type Journal interface {
	RecordAction(ctx context.Context, record models.ActionRecord) error
	RecordTrade(ctx context.Context, record models.TradeRecord) error
}
