package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"runtime/debug"

	apperrors "github.com/tvlink/relay/internal/errors"
	"github.com/tvlink/relay/internal/registry"
)

// request is one inbound event being handled. It carries the request id
// so replies can echo it.
type request struct {
	kind    EventKind
	id      string
	payload json.RawMessage
}

// decode unmarshals the payload into v. A missing or null payload leaves v
// at its zero value so that required-field checks report the real problem.
func (r request) decode(v interface{}) error {
	p := bytes.TrimSpace(r.payload)
	if len(p) == 0 || bytes.Equal(p, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(p, v); err != nil {
		return apperrors.InvalidMessage(fmt.Sprintf("invalid %s payload", r.kind))
	}
	return nil
}

// dispatch parses one frame and runs its handler. Every failure is reported
// to this client as an error event; none of them closes the connection.
func (c *Client) dispatch(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.replyError(request{}, "", apperrors.InvalidMessage("message is not valid JSON"))
		return
	}

	kind, ok := parseEventKind(msg.Type)
	if !ok {
		c.replyError(request{id: msg.ID}, string(msg.Type), apperrors.UnknownEvent(string(msg.Type)))
		return
	}
	req := request{kind: kind, id: msg.ID, payload: msg.Payload}

	if !c.limiter.Allow() {
		c.server.log.Warn().Str("conn", c.id).Str("event", kind.String()).Msg("event rate limited")
		c.replyError(req, kind.String(), apperrors.RateLimited())
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.server.log.Error().
				Str("conn", c.id).
				Str("event", kind.String()).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("handler panic")
			c.replyError(req, kind.String(), apperrors.Internal("Internal server error", fmt.Errorf("%v", r)))
		}
	}()

	var err error
	switch kind {
	case EventRegister:
		err = c.handleRegister(req)
	case EventPlayVideo:
		err = c.handlePlayVideo(req)
	case EventPauseVideo:
		err = c.handlePlaybackCommand(req, MessageTypePauseOnTV, MessageTypePauseResponse, "Pause command sent to all TVs")
	case EventStopVideo:
		err = c.handlePlaybackCommand(req, MessageTypeStopOnTV, MessageTypeStopResponse, "Stop command sent to all TVs")
	case EventRequestPairing:
		err = c.handleRequestPairing(req)
	case EventConfirmPairing:
		err = c.handleConfirmPairing(req)
	case EventCancelPairing:
		err = c.handleCancelPairing(req)
	case EventGetStatus:
		err = c.handleGetStatus(req)
	case EventPing:
		err = c.handlePing(req)
	case EventHeartbeat:
		err = c.handleHeartbeat(req)
	case EventSendToDevice:
		err = c.handleSendToDevice(req)
	case EventBroadcastMessage:
		err = c.handleBroadcastMessage(req)
	case EventBroadcastHTML:
		err = c.handleBroadcastHTML(req)
	case EventListDevices:
		err = c.handleListDevices(req)
	}

	if err != nil {
		c.replyError(req, kind.String(), err)
	}
}

// reply sends msg to this client, echoing the request id.
func (c *Client) reply(req request, msg Message) {
	msg.ID = req.id
	c.enqueue(msg)
}

// replyError converts err into an error event for this client. Errors
// without a code are reported as internal so their text never leaks.
func (c *Client) replyError(req request, event string, err error) {
	code, message := apperrors.ToCodeAndMessage(err)
	if code == apperrors.CodeUnknown {
		c.server.log.Error().Err(err).Str("conn", c.id).Str("event", event).Msg("unclassified handler error")
		code, message = apperrors.CodeInternal, "Internal server error"
	}
	c.reply(req, NewErrorMessage(code, message, event, c.server.now()))
}

// sourceID is how this client is named to others: its first registered
// logical id, or its transport id if it never registered.
func (c *Client) sourceID() string {
	if ids := c.server.registry.IDsForHandle(c); len(ids) > 0 {
		return ids[0]
	}
	return c.id
}

// handleDisconnect drops every registration this client owned and tells
// the remaining emulators which of their peers went away.
func (s *Server) handleDisconnect(c *Client) {
	removed := s.registry.RemoveByHandle(c)
	now := s.now()
	for _, reg := range removed {
		s.log.Info().Str("kind", string(reg.Kind)).Str("id", reg.LogicalID).Msg("device unregistered")
		if reg.Kind != registry.KindEmulator {
			continue
		}
		s.BroadcastToKind(registry.KindEmulator, NewDeviceEventMessage(MessageTypeDeviceDisconnected, DevicePayload{
			ID:        reg.LogicalID,
			Kind:      string(reg.Kind),
			Name:      reg.DisplayName,
			Timestamp: formatTimestamp(now),
		}), c)
	}
}
