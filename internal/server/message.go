// Package server provides the WebSocket relay that TVs, mobiles and
// emulators connect to. It owns the transport, dispatches inbound events
// to handlers, and fans outbound events out through the device registry.
package server

import (
	"encoding/json"
	"strings"
	"time"
)

// MessageType identifies the kind of message being sent over WebSocket.
// Each type has a specific payload structure defined below.
type MessageType string

// Inbound message types (client -> relay).
const (
	// MessageTypeRegister binds a logical id to this connection.
	// Payload: RegisterPayload
	MessageTypeRegister MessageType = "register"

	// MessageTypePlayVideo asks every registered TV to start playback.
	// Payload: PlayVideoPayload
	MessageTypePlayVideo MessageType = "playVideo"

	// MessageTypePauseVideo asks every registered TV to pause.
	// Payload: none
	MessageTypePauseVideo MessageType = "pauseVideo"

	// MessageTypeStopVideo asks every registered TV to stop.
	// Payload: none
	MessageTypeStopVideo MessageType = "stopVideo"

	// MessageTypeRequestPairing starts a pairing handshake with a TV.
	// Payload: RequestPairingPayload
	MessageTypeRequestPairing MessageType = "requestPairing"

	// MessageTypeConfirmPairing carries the TV's accept/reject decision.
	// Payload: ConfirmPairingPayload
	MessageTypeConfirmPairing MessageType = "confirmPairing"

	// MessageTypeCancelPairing abandons a pairing session from either side.
	// Payload: CancelPairingPayload
	MessageTypeCancelPairing MessageType = "cancelPairing"

	// MessageTypeGetStatus asks for relay counters.
	// Payload: none
	MessageTypeGetStatus MessageType = "getStatus"

	// MessageTypePing is a liveness probe. It does not refresh lastSeenAt.
	// Payload: none
	MessageTypePing MessageType = "ping"

	// MessageTypeHeartbeat refreshes lastSeenAt for every id this
	// connection registered.
	// Payload: none
	MessageTypeHeartbeat MessageType = "heartbeat"

	// MessageTypeSendToDevice delivers an arbitrary payload to one device.
	// Payload: SendToDevicePayload
	MessageTypeSendToDevice MessageType = "sendToDevice"

	// MessageTypeBroadcastMessage delivers an arbitrary payload to every
	// other connection, optionally restricted to one device kind.
	// Payload: BroadcastMessagePayload
	MessageTypeBroadcastMessage MessageType = "broadcastMessage"

	// MessageTypeBroadcastHTML pushes an HTML fragment to emulators.
	// Payload: BroadcastHTMLPayload
	MessageTypeBroadcastHTML MessageType = "broadcastHTML"

	// MessageTypeListDevices returns registry snapshots.
	// Payload: ListDevicesPayload
	MessageTypeListDevices MessageType = "listDevices"
)

// Outbound message types (relay -> client).
const (
	MessageTypeRegistered            MessageType = "registered"
	MessageTypeActivePairingSessions MessageType = "activePairingSessions"
	MessageTypeDeviceConnected       MessageType = "deviceConnected"
	MessageTypeDeviceDisconnected    MessageType = "deviceDisconnected"

	MessageTypePlayOnTV      MessageType = "playOnTV"
	MessageTypePauseOnTV     MessageType = "pauseOnTV"
	MessageTypeStopOnTV      MessageType = "stopOnTV"
	MessageTypePlayResponse  MessageType = "playResponse"
	MessageTypePauseResponse MessageType = "pauseResponse"
	MessageTypeStopResponse  MessageType = "stopResponse"

	MessageTypePairingRequest   MessageType = "pairingRequest"
	MessageTypePairingRequested MessageType = "pairingRequested"
	MessageTypePairingConfirmed MessageType = "pairingConfirmed"
	MessageTypePairingRejected  MessageType = "pairingRejected"
	MessageTypePairingCancelled MessageType = "pairingCancelled"

	MessageTypeStatus            MessageType = "status"
	MessageTypePong              MessageType = "pong"
	MessageTypeHeartbeatResponse MessageType = "heartbeatResponse"

	MessageTypeMessageFromServer MessageType = "messageFromServer"
	MessageTypeSendResponse      MessageType = "sendResponse"
	MessageTypeBroadcastResponse MessageType = "broadcastResponse"
	MessageTypeHTMLBroadcast     MessageType = "htmlBroadcast"
	MessageTypeDevices           MessageType = "devices"

	// MessageTypeError reports a failed inbound event back to its sender.
	// Payload: ErrorPayload
	MessageTypeError MessageType = "error"
)

// Message is the wire envelope for every frame in both directions.
// ID is optional; when a client sets it, direct replies echo it back.
type Message struct {
	Type    MessageType `json:"type"`
	ID      string      `json:"id,omitempty"`
	Payload interface{} `json:"payload"`
}

// inboundMessage is Message with the payload left undecoded until the
// event kind is known.
type inboundMessage struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// --- inbound payloads ---

// RegisterPayload is the payload for register. The device kind may arrive
// as either kind or type; kind wins when both are set.
// Emulators may send deviceName/androidVersion instead of name/meta.
type RegisterPayload struct {
	Kind           string            `json:"kind,omitempty"`
	Type           string            `json:"type,omitempty"`
	ID             string            `json:"id"`
	Name           string            `json:"name,omitempty"`
	DeviceName     string            `json:"deviceName,omitempty"`
	AndroidVersion string            `json:"androidVersion,omitempty"`
	Meta           map[string]string `json:"meta,omitempty"`
}

func (p RegisterPayload) kind() string {
	if k := strings.TrimSpace(p.Kind); k != "" {
		return k
	}
	return strings.TrimSpace(p.Type)
}

// PlayVideoPayload is the payload for playVideo.
type PlayVideoPayload struct {
	URL       string  `json:"url"`
	Title     string  `json:"title,omitempty"`
	StartTime float64 `json:"startTime,omitempty"`
}

// RequestPairingPayload is the payload for requestPairing.
type RequestPairingPayload struct {
	TVID string `json:"tvId"`
}

// ConfirmPairingPayload is the payload for confirmPairing.
// Accepted is a pointer so an omitted field is distinguishable from false.
type ConfirmPairingPayload struct {
	SessionID string `json:"sessionId"`
	Accepted  *bool  `json:"accepted"`
}

// CancelPairingPayload is the payload for cancelPairing.
type CancelPairingPayload struct {
	SessionID string `json:"sessionId"`
}

// SendToDevicePayload is the payload for sendToDevice.
type SendToDevicePayload struct {
	TargetID    string          `json:"targetId"`
	Message     json.RawMessage `json:"message"`
	MessageType string          `json:"messageType,omitempty"`
}

// BroadcastMessagePayload is the payload for broadcastMessage.
type BroadcastMessagePayload struct {
	Message     json.RawMessage `json:"message"`
	MessageType string          `json:"messageType,omitempty"`
	Kind        string          `json:"kind,omitempty"`
}

// BroadcastHTMLPayload is the payload for broadcastHTML.
// An empty TargetIDs list means every emulator except the sender.
type BroadcastHTMLPayload struct {
	HTML          string   `json:"html"`
	TargetIDs     []string `json:"targetIds,omitempty"`
	BroadcastType string   `json:"broadcastType,omitempty"`
}

// ListDevicesPayload is the payload for listDevices.
type ListDevicesPayload struct {
	Kind string `json:"kind,omitempty"`
}

// --- outbound payloads ---

// RegisteredPayload acknowledges a register.
type RegisteredPayload struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// PendingSession describes one open pairing request for a TV.
type PendingSession struct {
	SessionID string `json:"sessionId"`
	MobileID  string `json:"mobileId"`
	ExpiresAt int64  `json:"expiresAt"`
}

// ActivePairingSessionsPayload lists requests a TV missed while offline.
type ActivePairingSessionsPayload struct {
	Sessions  []PendingSession `json:"sessions"`
	Timestamp string           `json:"timestamp"`
}

// DevicePayload describes one registered device.
type DevicePayload struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	Name        string            `json:"name,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
	ConnectedAt string            `json:"connectedAt,omitempty"`
	LastSeen    string            `json:"lastSeen,omitempty"`
	Timestamp   string            `json:"timestamp,omitempty"`
}

// DevicesPayload answers listDevices.
type DevicesPayload struct {
	Devices   []DevicePayload `json:"devices"`
	Timestamp string          `json:"timestamp"`
}

// PlayOnTVPayload is broadcast to TVs for playVideo.
type PlayOnTVPayload struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	StartTime float64 `json:"startTime"`
	Timestamp string  `json:"timestamp"`
	Source    string  `json:"source"`
}

// PlaybackCommandPayload is broadcast to TVs for pauseVideo/stopVideo.
type PlaybackCommandPayload struct {
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

// PlaybackResponsePayload acknowledges a playback command to its sender.
type PlaybackResponsePayload struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	TargetCount int    `json:"targetCount"`
	Timestamp   string `json:"timestamp"`
}

// PairingRequestPayload is sent to the TV.
type PairingRequestPayload struct {
	SessionID string `json:"sessionId"`
	MobileID  string `json:"mobileId"`
	ExpiresAt int64  `json:"expiresAt"`
	Timestamp string `json:"timestamp"`
}

// PairingRequestedPayload is sent to the requester.
type PairingRequestedPayload struct {
	SessionID string `json:"sessionId"`
	TVID      string `json:"tvId"`
	ExpiresAt int64  `json:"expiresAt"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// PairingResultPayload is used for pairingConfirmed, pairingRejected and
// pairingCancelled.
type PairingResultPayload struct {
	SessionID string `json:"sessionId"`
	TVID      string `json:"tvId,omitempty"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// StatusPayload answers getStatus.
type StatusPayload struct {
	ConnectedClients      int    `json:"connectedClients"`
	TVCount               int    `json:"tvCount"`
	MobileCount           int    `json:"mobileCount"`
	EmulatorCount         int    `json:"emulatorCount"`
	ActivePairingSessions int    `json:"activePairingSessions"`
	Timestamp             string `json:"timestamp"`
}

// PongPayload answers ping. ServerTime is Unix milliseconds.
type PongPayload struct {
	Timestamp  string `json:"timestamp"`
	ServerTime int64  `json:"serverTime"`
}

// HeartbeatResponsePayload answers heartbeat with the ids refreshed.
type HeartbeatResponsePayload struct {
	IDs        []string `json:"ids"`
	Timestamp  string   `json:"timestamp"`
	ServerTime int64    `json:"serverTime"`
}

// MessageFromServerPayload carries a relayed message to its target.
type MessageFromServerPayload struct {
	Message     json.RawMessage `json:"message"`
	MessageType string          `json:"messageType"`
	SourceID    string          `json:"sourceId"`
	Timestamp   string          `json:"timestamp"`
}

// SendResponsePayload acknowledges sendToDevice.
type SendResponsePayload struct {
	Success   bool   `json:"success"`
	TargetID  string `json:"targetId"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// BroadcastResponsePayload acknowledges broadcastMessage and broadcastHTML.
type BroadcastResponsePayload struct {
	Success     bool   `json:"success"`
	TargetCount int    `json:"targetCount"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
}

// HTMLBroadcastPayload is delivered to emulators for broadcastHTML.
type HTMLBroadcastPayload struct {
	HTML          string `json:"html"`
	BroadcastType string `json:"broadcastType"`
	SourceID      string `json:"sourceId"`
	Timestamp     string `json:"timestamp"`
}

// ErrorPayload reports a failed inbound event.
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Event     string `json:"event,omitempty"`
	Timestamp string `json:"timestamp"`
}

// formatTimestamp renders t the way every payload timestamp is rendered.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// NewErrorMessage creates an error message for the named event.
func NewErrorMessage(code, message, event string, now time.Time) Message {
	return Message{
		Type: MessageTypeError,
		Payload: ErrorPayload{
			Code:      code,
			Message:   message,
			Event:     event,
			Timestamp: formatTimestamp(now),
		},
	}
}

// NewPlayOnTVMessage creates the playOnTV broadcast.
func NewPlayOnTVMessage(p PlayVideoPayload, source string, now time.Time) Message {
	title := p.Title
	if title == "" {
		title = "Unknown Video"
	}
	return Message{
		Type: MessageTypePlayOnTV,
		Payload: PlayOnTVPayload{
			URL:       p.URL,
			Title:     title,
			StartTime: p.StartTime,
			Timestamp: formatTimestamp(now),
			Source:    source,
		},
	}
}

// NewPairingRequestMessage creates the message sent to the TV.
func NewPairingRequestMessage(sessionID, mobileID string, expiresAt, now time.Time) Message {
	return Message{
		Type: MessageTypePairingRequest,
		Payload: PairingRequestPayload{
			SessionID: sessionID,
			MobileID:  mobileID,
			ExpiresAt: expiresAt.UnixMilli(),
			Timestamp: formatTimestamp(now),
		},
	}
}

// NewPairingResultMessage creates a pairingConfirmed, pairingRejected or
// pairingCancelled message.
func NewPairingResultMessage(t MessageType, sessionID, tvID, message string, now time.Time) Message {
	return Message{
		Type: t,
		Payload: PairingResultPayload{
			SessionID: sessionID,
			TVID:      tvID,
			Message:   message,
			Timestamp: formatTimestamp(now),
		},
	}
}

// NewDeviceEventMessage creates a deviceConnected or deviceDisconnected message.
func NewDeviceEventMessage(t MessageType, d DevicePayload) Message {
	return Message{Type: t, Payload: d}
}
