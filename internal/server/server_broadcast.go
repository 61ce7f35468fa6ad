package server

import (
	"github.com/tvlink/relay/internal/registry"
)

// BroadcastToAll sends msg to every currently connected transport, whether
// or not it registered, and returns how many accepted it. Transports that
// connect later never see it.
func (s *Server) BroadcastToAll(msg Message) int {
	return s.sendToClients(msg, nil)
}

// SendToOne delivers msg to the transport registered under logicalID.
// It returns false if the id is unknown or the transport could not accept
// the message; it never blocks.
func (s *Server) SendToOne(logicalID string, msg Message) bool {
	reg, err := s.registry.Resolve(logicalID)
	if err != nil {
		return false
	}
	return sendToHandle(reg.Handle, msg)
}

// BroadcastExcluding sends msg to every connected transport except the one
// registered under excludeID, and returns how many accepted it. An unknown
// excludeID excludes nothing.
func (s *Server) BroadcastExcluding(msg Message, excludeID string) int {
	var skip registry.Handle
	if reg, err := s.registry.Resolve(excludeID); err == nil {
		skip = reg.Handle
	}
	return s.BroadcastExcludingHandle(msg, skip)
}

// BroadcastExcludingHandle is BroadcastExcluding keyed by transport, so a
// sender that never registered still does not hear its own echo.
func (s *Server) BroadcastExcludingHandle(msg Message, exclude registry.Handle) int {
	if exclude == nil {
		return s.sendToClients(msg, nil)
	}
	return s.sendToClients(msg, func(c *Client) bool { return registry.Handle(c) == exclude })
}

// BroadcastToKind sends msg to every transport holding at least one
// registration of kind, skipping exclude (may be nil). A transport that
// registered several ids of that kind receives the message once.
func (s *Server) BroadcastToKind(kind registry.Kind, msg Message, exclude registry.Handle) int {
	seen := make(map[registry.Handle]bool)
	delivered := 0
	for _, reg := range s.registry.ListAll(kind) {
		if reg.Handle == nil || reg.Handle == exclude || seen[reg.Handle] {
			continue
		}
		seen[reg.Handle] = true
		if sendToHandle(reg.Handle, msg) {
			delivered++
		}
	}
	return delivered
}

// sendToClients snapshots the client set, releases the lock, then sends.
// skip may be nil. After Stop the set is empty and nothing is sent.
func (s *Server) sendToClients(msg Message, skip func(*Client) bool) int {
	s.mu.RLock()
	targets := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		if skip == nil || !skip(c) {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.enqueue(msg) {
			delivered++
		}
	}
	return delivered
}

// sendToHandle uses the fast path for our own clients and the Handle
// interface for anything else.
func sendToHandle(h registry.Handle, msg Message) bool {
	if c, ok := h.(*Client); ok {
		return c.enqueue(msg)
	}
	return h.Send(string(msg.Type), msg.Payload)
}
