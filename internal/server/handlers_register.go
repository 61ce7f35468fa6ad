package server

import (
	"fmt"
	"strings"

	apperrors "github.com/tvlink/relay/internal/errors"
	"github.com/tvlink/relay/internal/registry"
)

// handleRegister binds a logical id to this connection.
// TVs additionally receive any pairing requests still waiting for them;
// emulators are announced to the other emulators.
func (c *Client) handleRegister(req request) error {
	var p RegisterPayload
	if err := req.decode(&p); err != nil {
		return err
	}

	if p.kind() == "" || strings.TrimSpace(p.ID) == "" {
		return apperrors.MissingField("Registration requires type and id")
	}
	kind, ok := registry.ParseKind(p.kind())
	if !ok {
		return apperrors.InvalidKind()
	}

	name := p.Name
	if name == "" {
		name = p.DeviceName
	}
	meta := p.Meta
	if kind == registry.KindEmulator {
		if name == "" {
			name = "Unknown Emulator"
		}
		version := p.AndroidVersion
		if version == "" {
			version = "Unknown"
		}
		if meta == nil {
			meta = make(map[string]string, 1)
		}
		if _, set := meta["androidVersion"]; !set {
			meta["androidVersion"] = version
		}
	}

	reg, err := c.server.registry.Register(kind, p.ID, c, name, meta)
	if err != nil {
		return apperrors.MissingField("Registration requires type and id")
	}

	c.server.log.Info().Str("conn", c.id).Str("kind", string(kind)).Str("id", reg.LogicalID).Msg("device registered")

	now := c.server.now()
	c.reply(req, Message{
		Type: MessageTypeRegistered,
		Payload: RegisteredPayload{
			Type:      string(kind),
			ID:        reg.LogicalID,
			Message:   fmt.Sprintf("%s registered successfully", kindLabels[kind]),
			Timestamp: formatTimestamp(now),
		},
	})

	switch kind {
	case registry.KindTV:
		pending := c.server.pairing.ActiveForTV(reg.LogicalID)
		if len(pending) == 0 {
			return nil
		}
		sessions := make([]PendingSession, 0, len(pending))
		for _, sess := range pending {
			sessions = append(sessions, PendingSession{
				SessionID: sess.ID,
				MobileID:  sess.Requester.ID(),
				ExpiresAt: sess.ExpiresAt.UnixMilli(),
			})
		}
		c.enqueue(Message{
			Type:    MessageTypeActivePairingSessions,
			Payload: ActivePairingSessionsPayload{Sessions: sessions, Timestamp: formatTimestamp(now)},
		})

	case registry.KindEmulator:
		d := devicePayload(reg)
		d.Timestamp = formatTimestamp(now)
		c.server.BroadcastToKind(registry.KindEmulator, NewDeviceEventMessage(MessageTypeDeviceConnected, d), c)
	}
	return nil
}

// handleListDevices returns registry snapshots, optionally filtered by kind.
func (c *Client) handleListDevices(req request) error {
	var p ListDevicesPayload
	if err := req.decode(&p); err != nil {
		return err
	}

	var kind registry.Kind
	if p.Kind != "" {
		k, ok := registry.ParseKind(p.Kind)
		if !ok {
			return apperrors.InvalidKind()
		}
		kind = k
	}

	regs := c.server.registry.ListAll(kind)
	devices := make([]DevicePayload, 0, len(regs))
	for _, reg := range regs {
		devices = append(devices, devicePayload(reg))
	}

	c.reply(req, Message{
		Type:    MessageTypeDevices,
		Payload: DevicesPayload{Devices: devices, Timestamp: formatTimestamp(c.server.now())},
	})
	return nil
}

// handleHeartbeat refreshes lastSeenAt on this connection's registrations.
func (c *Client) handleHeartbeat(req request) error {
	ids := c.server.registry.Touch(c)
	if ids == nil {
		ids = []string{}
	}
	now := c.server.now()
	c.reply(req, Message{
		Type: MessageTypeHeartbeatResponse,
		Payload: HeartbeatResponsePayload{
			IDs:        ids,
			Timestamp:  formatTimestamp(now),
			ServerTime: now.UnixMilli(),
		},
	})
	return nil
}

var kindLabels = map[registry.Kind]string{
	registry.KindTV:       "TV",
	registry.KindMobile:   "Mobile",
	registry.KindEmulator: "Emulator",
}

func devicePayload(reg registry.Registration) DevicePayload {
	return DevicePayload{
		ID:          reg.LogicalID,
		Kind:        string(reg.Kind),
		Name:        reg.DisplayName,
		Meta:        reg.Meta,
		ConnectedAt: formatTimestamp(reg.FirstSeenAt),
		LastSeen:    formatTimestamp(reg.LastSeenAt),
	}
}
