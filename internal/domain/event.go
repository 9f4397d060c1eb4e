package domain

import "time"

type EventType int

const (
	EventTypeStatusChange EventType = iota
	EventTypeOutput
	EventTypeFlowFired
	EventTypeError
	EventTypeMetadata
)

func (t EventType) String() string {
	switch t {
	case EventTypeStatusChange:
		return "status_change"
	case EventTypeOutput:
		return "output"
	case EventTypeFlowFired:
		return "flow_fired"
	case EventTypeError:
		return "error"
	case EventTypeMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// Event is an observability record describing a terminal state change, a
// flow firing, or an error. It is not part of the control-plane contract.
// No component of the server constructs or emits Events.
type Event struct {
	Type       EventType
	Timestamp  time.Time
	TerminalID string
	Data       any
}

type StatusChangeData struct {
	OldStatus Status
	NewStatus Status
	Reason    string
}

type OutputData struct {
	Content string
}

type FlowFiredData struct {
	FlowName   string
	TerminalID string
	Skipped    bool
}

type ErrorData struct {
	Message string
	Kind    string
}

type MetadataData struct {
	Key   string
	Value any
}

func NewStatusChangeEvent(terminalID string, oldStatus, newStatus Status, reason string) Event {
	return Event{
		Type:       EventTypeStatusChange,
		Timestamp:  time.Now(),
		TerminalID: terminalID,
		Data:       StatusChangeData{OldStatus: oldStatus, NewStatus: newStatus, Reason: reason},
	}
}

func NewOutputEvent(terminalID, content string) Event {
	return Event{
		Type:       EventTypeOutput,
		Timestamp:  time.Now(),
		TerminalID: terminalID,
		Data:       OutputData{Content: content},
	}
}

func NewFlowFiredEvent(flowName, terminalID string, skipped bool) Event {
	return Event{
		Type:      EventTypeFlowFired,
		Timestamp: time.Now(),
		Data:      FlowFiredData{FlowName: flowName, TerminalID: terminalID, Skipped: skipped},
	}
}

func NewErrorEvent(terminalID, message, kind string) Event {
	return Event{
		Type:       EventTypeError,
		Timestamp:  time.Now(),
		TerminalID: terminalID,
		Data:       ErrorData{Message: message, Kind: kind},
	}
}

func NewMetadataEvent(terminalID, key string, value any) Event {
	return Event{
		Type:       EventTypeMetadata,
		Timestamp:  time.Now(),
		TerminalID: terminalID,
		Data:       MetadataData{Key: key, Value: value},
	}
}
