package fleet

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a push-channel message.
type EventType string

// Broadcast event types.
const (
	EventDeviceStatusChange EventType = "device_status_change"
	EventNewAlert           EventType = "new_alert"
	EventInitialStatus      EventType = "initial_status"
)

// StatusChange is the payload of a device_status_change event.
type StatusChange struct {
	DeviceID   string       `json:"deviceId"`
	CustomerID string       `json:"customerId"`
	DeviceCode string       `json:"deviceCode"`
	OldStatus  DeviceStatus `json:"oldStatus"`
	NewStatus  DeviceStatus `json:"newStatus"`
}

// DeviceCounts tallies terminals by status.
type DeviceCounts struct {
	Active       int `json:"active"`
	Offline      int `json:"offline"`
	Maintenance  int `json:"maintenance"`
	Unclassified int `json:"unclassified"`
	Total        int `json:"total"`
}

// StatusSnapshot is the payload of an initial_status event.
type StatusSnapshot struct {
	Devices      DeviceCounts `json:"devices"`
	UnreadAlerts int          `json:"unreadAlerts"`
}

// Event is one push-channel message. Exactly one payload pointer is set,
// matching Type.
type Event struct {
	Type      EventType
	Timestamp time.Time

	StatusChange *StatusChange
	Alert        *Alert
	Snapshot     *StatusSnapshot
}

// NewStatusChangeEvent builds a device_status_change event.
func NewStatusChangeEvent(change StatusChange, at time.Time) Event {
	return Event{Type: EventDeviceStatusChange, Timestamp: at, StatusChange: &change}
}

// NewAlertEvent builds a new_alert event carrying the stored alert.
func NewAlertEvent(a Alert, at time.Time) Event {
	return Event{Type: EventNewAlert, Timestamp: at, Alert: &a}
}

// NewInitialStatusEvent builds an initial_status event.
func NewInitialStatusEvent(s StatusSnapshot, at time.Time) Event {
	return Event{Type: EventInitialStatus, Timestamp: at, Snapshot: &s}
}

type envelope struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON writes the flat envelope {"type", "timestamp", ...payload}.
// A new_alert carries the record under "alert".
func (e Event) MarshalJSON() ([]byte, error) {
	head := envelope{Type: e.Type, Timestamp: e.Timestamp.UTC()}
	switch e.Type {
	case EventDeviceStatusChange:
		if e.StatusChange == nil {
			return nil, fmt.Errorf("fleet: %s event without payload", e.Type)
		}
		return json.Marshal(struct {
			envelope
			*StatusChange
		}{head, e.StatusChange})
	case EventNewAlert:
		if e.Alert == nil {
			return nil, fmt.Errorf("fleet: %s event without payload", e.Type)
		}
		return json.Marshal(struct {
			envelope
			Alert *Alert `json:"alert"`
		}{head, e.Alert})
	case EventInitialStatus:
		if e.Snapshot == nil {
			return nil, fmt.Errorf("fleet: %s event without payload", e.Type)
		}
		return json.Marshal(struct {
			envelope
			*StatusSnapshot
		}{head, e.Snapshot})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type)
	}
}

// UnmarshalJSON reads the flat envelope written by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var head envelope
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	out := Event{Type: head.Type, Timestamp: head.Timestamp}
	switch head.Type {
	case EventDeviceStatusChange:
		out.StatusChange = new(StatusChange)
		if err := json.Unmarshal(data, out.StatusChange); err != nil {
			return err
		}
	case EventNewAlert:
		var body struct {
			Alert *Alert `json:"alert"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return err
		}
		if body.Alert == nil {
			return fmt.Errorf("fleet: new_alert without alert")
		}
		out.Alert = body.Alert
	case EventInitialStatus:
		out.Snapshot = new(StatusSnapshot)
		if err := json.Unmarshal(data, out.Snapshot); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, head.Type)
	}
	*e = out
	return nil
}
