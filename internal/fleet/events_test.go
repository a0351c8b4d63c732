package fleet

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

var eventTime = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func decodeObject(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return m
}

func TestEvent_MarshalStatusChange(t *testing.T) {
	e := NewStatusChangeEvent(StatusChange{
		DeviceID:   "d-1",
		CustomerID: "c-1",
		DeviceCode: "POS-001",
		OldStatus:  DeviceActive,
		NewStatus:  DeviceOffline,
	}, eventTime)

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	m := decodeObject(t, data)

	want := map[string]string{
		"type":       "device_status_change",
		"timestamp":  "2025-06-01T09:30:00Z",
		"deviceId":   "d-1",
		"customerId": "c-1",
		"deviceCode": "POS-001",
		"oldStatus":  "active",
		"newStatus":  "offline",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %v, want %q", k, m[k], v)
		}
	}
	if len(m) != len(want) {
		t.Errorf("unexpected keys in %s", data)
	}
}

func TestEvent_MarshalNewAlert(t *testing.T) {
	device := "d-1"
	e := NewAlertEvent(Alert{
		ID:        "a-1",
		DeviceID:  &device,
		Type:      AlertError,
		Priority:  PriorityHigh,
		Title:     "Terminal offline",
		CreatedAt: eventTime,
	}, eventTime)

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	m := decodeObject(t, data)
	if m["type"] != "new_alert" {
		t.Errorf("type = %v", m["type"])
	}
	alert, ok := m["alert"].(map[string]any)
	if !ok {
		t.Fatalf("alert missing from %s", data)
	}
	if alert["id"] != "a-1" || alert["deviceId"] != "d-1" || alert["isRead"] != false {
		t.Errorf("alert = %v", alert)
	}
	if _, ok := alert["customerId"]; ok {
		t.Error("nil customerId should be omitted")
	}
}

func TestEvent_MarshalInitialStatus(t *testing.T) {
	e := NewInitialStatusEvent(StatusSnapshot{
		Devices:      DeviceCounts{Active: 3, Offline: 1, Total: 4},
		UnreadAlerts: 2,
	}, eventTime)

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	m := decodeObject(t, data)
	if m["type"] != "initial_status" || m["unreadAlerts"] != float64(2) {
		t.Errorf("envelope = %v", m)
	}
	devices, _ := m["devices"].(map[string]any)
	if devices["active"] != float64(3) || devices["total"] != float64(4) {
		t.Errorf("devices = %v", devices)
	}
}

func TestEvent_Roundtrip(t *testing.T) {
	events := []Event{
		NewStatusChangeEvent(StatusChange{DeviceID: "d", CustomerID: "c", DeviceCode: "P", OldStatus: DeviceOffline, NewStatus: DeviceMaintenance}, eventTime),
		NewAlertEvent(Alert{ID: "a", Type: AlertWarning, Priority: PriorityLow, Title: "t", CreatedAt: eventTime}, eventTime),
		NewInitialStatusEvent(StatusSnapshot{Devices: DeviceCounts{Unclassified: 1, Total: 1}}, eventTime),
	}
	for _, e := range events {
		t.Run(string(e.Type), func(t *testing.T) {
			data, err := json.Marshal(e)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			var got Event
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got.Type != e.Type || !got.Timestamp.Equal(e.Timestamp) {
				t.Errorf("envelope = %s %v", got.Type, got.Timestamp)
			}
			again, err := json.Marshal(got)
			if err != nil {
				t.Fatalf("re-Marshal() error = %v", err)
			}
			if string(again) != string(data) {
				t.Errorf("roundtrip changed payload\n got %s\nwant %s", again, data)
			}
		})
	}
}

func TestEvent_UnknownType(t *testing.T) {
	if _, err := json.Marshal(Event{Type: "reboot", Timestamp: eventTime}); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("Marshal() error = %v, want ErrUnknownEvent", err)
	}

	var e Event
	err := json.Unmarshal([]byte(`{"type":"reboot","timestamp":"2025-06-01T09:30:00Z"}`), &e)
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("Unmarshal() error = %v, want ErrUnknownEvent", err)
	}
}

func TestEvent_MissingPayload(t *testing.T) {
	if _, err := json.Marshal(Event{Type: EventNewAlert, Timestamp: eventTime}); err == nil {
		t.Error("Marshal() of new_alert without alert should fail")
	}
	var e Event
	if err := json.Unmarshal([]byte(`{"type":"new_alert","timestamp":"2025-06-01T09:30:00Z"}`), &e); err == nil {
		t.Error("Unmarshal() of new_alert without alert should fail")
	}
}
