package server

import (
	"bytes"
	"strings"

	apperrors "github.com/tvlink/relay/internal/errors"
	"github.com/tvlink/relay/internal/registry"
)

const (
	defaultMessageType   = "text"
	defaultBroadcastType = "update"
)

// handleSendToDevice relays an arbitrary payload to one registered device.
func (c *Client) handleSendToDevice(req request) error {
	var p SendToDevicePayload
	if err := req.decode(&p); err != nil {
		return err
	}
	targetID := strings.TrimSpace(p.TargetID)
	if targetID == "" {
		return apperrors.MissingField("Target ID is required")
	}
	if isEmptyJSON(p.Message) {
		return apperrors.MissingField("Message is required")
	}

	target, err := c.server.registry.Resolve(targetID)
	if err != nil {
		return apperrors.TargetNotFound(targetID)
	}

	now := c.server.now()
	msg := Message{
		Type: MessageTypeMessageFromServer,
		Payload: MessageFromServerPayload{
			Message:     p.Message,
			MessageType: orDefault(p.MessageType, defaultMessageType),
			SourceID:    c.sourceID(),
			Timestamp:   formatTimestamp(now),
		},
	}
	if !sendToHandle(target.Handle, msg) {
		return apperrors.DeliveryFailed(targetID)
	}

	c.reply(req, Message{
		Type: MessageTypeSendResponse,
		Payload: SendResponsePayload{
			Success:   true,
			TargetID:  targetID,
			Message:   "Message sent to " + targetID,
			Timestamp: formatTimestamp(now),
		},
	})
	return nil
}

// handleBroadcastMessage relays a payload to every other connection, or to
// every other device of one kind.
func (c *Client) handleBroadcastMessage(req request) error {
	var p BroadcastMessagePayload
	if err := req.decode(&p); err != nil {
		return err
	}
	if isEmptyJSON(p.Message) {
		return apperrors.MissingField("Message is required")
	}

	now := c.server.now()
	msg := Message{
		Type: MessageTypeMessageFromServer,
		Payload: MessageFromServerPayload{
			Message:     p.Message,
			MessageType: orDefault(p.MessageType, defaultMessageType),
			SourceID:    c.sourceID(),
			Timestamp:   formatTimestamp(now),
		},
	}

	var n int
	if p.Kind != "" {
		kind, ok := registry.ParseKind(p.Kind)
		if !ok {
			return apperrors.InvalidKind()
		}
		n = c.server.BroadcastToKind(kind, msg, c)
	} else {
		n = c.server.BroadcastExcludingHandle(msg, c)
	}

	c.reply(req, Message{
		Type: MessageTypeBroadcastResponse,
		Payload: BroadcastResponsePayload{
			Success:     true,
			TargetCount: n,
			Message:     "Broadcast sent successfully",
			Timestamp:   formatTimestamp(now),
		},
	})
	return nil
}

// handleBroadcastHTML pushes an HTML fragment to the listed emulators, or
// to every other emulator when no targets are given. Unknown targets are
// skipped and not counted.
func (c *Client) handleBroadcastHTML(req request) error {
	var p BroadcastHTMLPayload
	if err := req.decode(&p); err != nil {
		return err
	}
	if p.HTML == "" {
		return apperrors.MissingField("HTML content is required")
	}

	now := c.server.now()
	msg := Message{
		Type: MessageTypeHTMLBroadcast,
		Payload: HTMLBroadcastPayload{
			HTML:          p.HTML,
			BroadcastType: orDefault(p.BroadcastType, defaultBroadcastType),
			SourceID:      c.sourceID(),
			Timestamp:     formatTimestamp(now),
		},
	}

	n := 0
	if len(p.TargetIDs) == 0 {
		n = c.server.BroadcastToKind(registry.KindEmulator, msg, c)
	} else {
		for _, id := range p.TargetIDs {
			if c.server.SendToOne(id, msg) {
				n++
			}
		}
	}

	c.server.log.Info().Int("targets", n).Str("broadcast_type", orDefault(p.BroadcastType, defaultBroadcastType)).Msg("html broadcast")

	c.reply(req, Message{
		Type: MessageTypeBroadcastResponse,
		Payload: BroadcastResponsePayload{
			Success:     true,
			TargetCount: n,
			Message:     "HTML broadcast sent successfully",
			Timestamp:   formatTimestamp(now),
		},
	})
	return nil
}

func isEmptyJSON(raw []byte) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
