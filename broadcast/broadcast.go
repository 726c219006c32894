// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wfunc/storyserver/logger"
	"github.com/wfunc/storyserver/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
)

// Broadcaster fans events out to every connected session, or directs them at one.
type Broadcaster interface {
	BroadcastToAll(event string, payload any) error
	SendTo(sessionID string, event string, payload any) error
}

// SessionBroadcaster delivers to the sessions held by a session.Manager.
type SessionBroadcaster struct {
	sessionManager *session.Manager
}

func NewSessionBroadcaster(sessionManager *session.Manager) *SessionBroadcaster {
	return &SessionBroadcaster{sessionManager: sessionManager}
}

func (b *SessionBroadcaster) BroadcastToAll(event string, payload any) error {
	data, err := encode(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	for _, s := range b.sessionManager.All() {
		if err := s.Send(event, data); err != nil {
			// A broken connection is cleaned up by its own read loop.
			logger.Log.Debugf("broadcast %s to session %s failed: %v", event, s.GetID(), err)
			continue
		}
	}
	return nil
}

func (b *SessionBroadcaster) SendTo(sessionID string, event string, payload any) error {
	s, ok := b.sessionManager.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	data, err := encode(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	return s.Send(event, data)
}

func encode(payload any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	return json.Marshal(payload)
}
