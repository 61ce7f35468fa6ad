package server

// EventKind is the closed set of inbound events the relay understands.
// Frames whose type is not listed here are rejected before dispatch.
type EventKind int

const (
	EventRegister EventKind = iota
	EventPlayVideo
	EventPauseVideo
	EventStopVideo
	EventRequestPairing
	EventConfirmPairing
	EventCancelPairing
	EventGetStatus
	EventPing
	EventHeartbeat
	EventSendToDevice
	EventBroadcastMessage
	EventBroadcastHTML
	EventListDevices

	numEventKinds
)

// eventTypes maps each EventKind to its wire name. The array length ties it
// to the enum; a test checks that no slot is left empty.
var eventTypes = [numEventKinds]MessageType{
	EventRegister:         MessageTypeRegister,
	EventPlayVideo:        MessageTypePlayVideo,
	EventPauseVideo:       MessageTypePauseVideo,
	EventStopVideo:        MessageTypeStopVideo,
	EventRequestPairing:   MessageTypeRequestPairing,
	EventConfirmPairing:   MessageTypeConfirmPairing,
	EventCancelPairing:    MessageTypeCancelPairing,
	EventGetStatus:        MessageTypeGetStatus,
	EventPing:             MessageTypePing,
	EventHeartbeat:        MessageTypeHeartbeat,
	EventSendToDevice:     MessageTypeSendToDevice,
	EventBroadcastMessage: MessageTypeBroadcastMessage,
	EventBroadcastHTML:    MessageTypeBroadcastHTML,
	EventListDevices:      MessageTypeListDevices,
}

var eventsByType = func() map[MessageType]EventKind {
	m := make(map[MessageType]EventKind, len(eventTypes))
	for k, t := range eventTypes {
		m[t] = EventKind(k)
	}
	return m
}()

// parseEventKind resolves a wire type to an EventKind.
func parseEventKind(t MessageType) (EventKind, bool) {
	k, ok := eventsByType[t]
	return k, ok
}

// String returns the wire name.
func (k EventKind) String() string {
	if k < 0 || k >= numEventKinds {
		return "unknown"
	}
	return string(eventTypes[k])
}
