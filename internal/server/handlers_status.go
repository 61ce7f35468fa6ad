package server

import (
	"github.com/tvlink/relay/internal/registry"
)

// Counts is a point-in-time view of relay state.
type Counts struct {
	ConnectedClients      int
	TVs                   int
	Mobiles               int
	Emulators             int
	ActivePairingSessions int
}

// Counts reads every counter. Each number is individually consistent;
// they are not taken under one lock.
func (s *Server) Counts() Counts {
	return Counts{
		ConnectedClients:      s.ClientCount(),
		TVs:                   s.registry.Count(registry.KindTV),
		Mobiles:               s.registry.Count(registry.KindMobile),
		Emulators:             s.registry.Count(registry.KindEmulator),
		ActivePairingSessions: s.pairing.Count(),
	}
}

// handleGetStatus returns counters. It never mutates state.
func (c *Client) handleGetStatus(req request) error {
	n := c.server.Counts()
	c.reply(req, Message{
		Type: MessageTypeStatus,
		Payload: StatusPayload{
			ConnectedClients:      n.ConnectedClients,
			TVCount:               n.TVs,
			MobileCount:           n.Mobiles,
			EmulatorCount:         n.Emulators,
			ActivePairingSessions: n.ActivePairingSessions,
			Timestamp:             formatTimestamp(c.server.now()),
		},
	})
	return nil
}

// handlePing answers with the server clock. It is liveness only and does
// not touch the registry.
func (c *Client) handlePing(req request) error {
	now := c.server.now()
	c.reply(req, Message{
		Type: MessageTypePong,
		Payload: PongPayload{
			Timestamp:  formatTimestamp(now),
			ServerTime: now.UnixMilli(),
		},
	})
	return nil
}
