package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/posfleet-core/internal/auth"
	"github.com/nerrad567/posfleet-core/internal/fleet"
	"github.com/nerrad567/posfleet-core/internal/infrastructure/config"
	"github.com/nerrad567/posfleet-core/internal/schema"
)

func statusEvent(code string, from, to fleet.DeviceStatus) fleet.Event {
	return fleet.NewStatusChangeEvent(fleet.StatusChange{
		DeviceID:   "dev-" + code,
		CustomerID: "cust-1",
		DeviceCode: code,
		OldStatus:  from,
		NewStatus:  to,
	}, time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC))
}

func testHub(sendBuffer int) *Hub {
	return NewHub(config.WebSocketConfig{SendBuffer: sendBuffer}, testLogger(), nil)
}

// drain returns every message currently queued for sess.
func drain(sess *Session) [][]byte {
	var out [][]byte
	for {
		select {
		case msg, ok := <-sess.send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

// ─── WebSocket Hub Tests ───────────────────────────────────────────

func TestHub_BroadcastReachesEachSessionOnce(t *testing.T) {
	hub := testHub(8)
	a := hub.newSession(nil, auth.Principal{})
	b := hub.newSession(nil, auth.Principal{})
	for _, s := range []*Session{a, b} {
		if !hub.Register(s) {
			t.Fatal("Register() = false")
		}
		if s.State() != SessionOpen {
			t.Fatalf("State() = %s, want open", s.State())
		}
	}

	hub.Broadcast(statusEvent("POS-001", fleet.DeviceActive, fleet.DeviceOffline))

	for name, s := range map[string]*Session{"a": a, "b": b} {
		msgs := drain(s)
		if len(msgs) != 1 {
			t.Fatalf("session %s received %d messages, want 1", name, len(msgs))
		}
		var got map[string]any
		if err := json.Unmarshal(msgs[0], &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got["type"] != "device_status_change" || got["newStatus"] != "offline" {
			t.Errorf("session %s got %v", name, got)
		}
	}
}

func TestHub_OnlyOpenSessionsReceive(t *testing.T) {
	hub := testHub(8)
	open := hub.newSession(nil, auth.Principal{})
	connecting := hub.newSession(nil, auth.Principal{})
	closed := hub.newSession(nil, auth.Principal{})
	hub.Register(open)
	hub.Register(closed)
	hub.Unregister(closed)

	if closed.State() != SessionClosed {
		t.Fatalf("State() = %s, want closed", closed.State())
	}

	hub.Broadcast(statusEvent("POS-001", fleet.DeviceActive, fleet.DeviceMaintenance))

	if n := len(drain(open)); n != 1 {
		t.Errorf("open session received %d, want 1", n)
	}
	if n := len(drain(connecting)); n != 0 {
		t.Errorf("connecting session received %d, want 0", n)
	}
	if n := len(drain(closed)); n != 0 {
		t.Errorf("closed session received %d, want 0", n)
	}
}

func TestHub_RegisterRules(t *testing.T) {
	hub := testHub(1)
	s := hub.newSession(nil, auth.Principal{})
	if !hub.Register(s) {
		t.Fatal("first Register() = false")
	}
	if hub.Register(s) {
		t.Error("Register() of an open session should fail")
	}

	hub.Unregister(s)
	hub.Unregister(s) // second call is a no-op
	if hub.Register(s) {
		t.Error("Register() of a closed session should fail")
	}
	if hub.SessionCount() != 0 {
		t.Errorf("SessionCount() = %d, want 0", hub.SessionCount())
	}
}

func TestHub_ClosedHubRefusesSessions(t *testing.T) {
	hub := testHub(1)
	ctx, cancel := context.WithCancel(context.Background())
	live := hub.newSession(nil, auth.Principal{})
	hub.Register(live)

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if live.State() != SessionClosed {
		t.Errorf("State() after shutdown = %s, want closed", live.State())
	}
	if _, ok := <-live.send; ok {
		t.Error("send channel should be closed after shutdown")
	}
	if hub.Register(hub.newSession(nil, auth.Principal{})) {
		t.Error("Register() after shutdown should fail")
	}
}

func TestHub_FullBufferDropsWithoutBlocking(t *testing.T) {
	hub := testHub(1)
	slow := hub.newSession(nil, auth.Principal{})
	fast := hub.newSession(nil, auth.Principal{})
	hub.Register(slow)
	hub.Register(fast)

	hub.Broadcast(statusEvent("POS-001", fleet.DeviceActive, fleet.DeviceOffline))
	drain(fast)

	done := make(chan struct{})
	go func() {
		hub.Broadcast(statusEvent("POS-001", fleet.DeviceOffline, fleet.DeviceActive))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full session")
	}

	if n := len(drain(slow)); n != 1 {
		t.Errorf("slow session queued %d, want 1", n)
	}
	if n := len(drain(fast)); n != 1 {
		t.Errorf("fast session received %d, want 1", n)
	}
}

func TestSessionState_String(t *testing.T) {
	for st, want := range map[SessionState]string{
		SessionConnecting: "connecting",
		SessionOpen:       "open",
		SessionClosed:     "closed",
		SessionState(9):   "unknown",
	} {
		if got := st.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", st, got, want)
		}
	}
}

// ─── Push Channel Integration Tests ────────────────────────────────

// liveServer serves srv over a real listener and returns its ws:// base URL.
func liveServer(t *testing.T, srv *Server) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go srv.hub.Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("Dial(%s): %v (status %d)", url, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) fleet.Event {
	t.Helper()
	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var e fleet.Event
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return e
}

func seedFleet(t *testing.T, svc *fleet.Service) (deviceID string) {
	t.Helper()
	ctx := context.Background()
	branch, err := svc.Create(ctx, schema.Branches, map[string]any{"code": "BKK01", "name": "Bangkok Central"})
	if err != nil {
		t.Fatalf("create branch: %v", err)
	}
	customer, err := svc.Create(ctx, schema.Customers, map[string]any{
		"customer_code": "C-001",
		"name":          "Noodle House",
		"branch_id":     branch["id"],
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	device, err := svc.Create(ctx, schema.PosDevices, map[string]any{
		"device_code": "POS-001",
		"customer_id": customer["id"],
	})
	if err != nil {
		t.Fatalf("create device: %v", err)
	}
	return device["id"].(string)
}

func TestPushChannel_InitialStatusFirst(t *testing.T) {
	srv, svc := testServer(t)
	seedFleet(t, svc)
	base := liveServer(t, srv)

	conn := dial(t, base+"/ws")
	e := readEvent(t, conn)
	if e.Type != fleet.EventInitialStatus {
		t.Fatalf("first event = %q, want initial_status", e.Type)
	}
	if e.Snapshot.Devices.Active != 1 || e.Snapshot.Devices.Total != 1 {
		t.Errorf("snapshot = %+v", e.Snapshot.Devices)
	}
	if srv.hub.SessionCount() != 1 {
		t.Errorf("SessionCount() = %d, want 1", srv.hub.SessionCount())
	}
}

func TestPushChannel_StatusChangeBroadcast(t *testing.T) {
	srv, svc := testServer(t)
	device := seedFleet(t, svc)
	base := liveServer(t, srv)

	a := dial(t, base+"/ws")
	b := dial(t, base+"/api/v1/ws")
	readEvent(t, a)
	readEvent(t, b)

	if _, err := svc.SetDeviceStatus(context.Background(), device, fleet.DeviceOffline); err != nil {
		t.Fatalf("SetDeviceStatus: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"a": a, "b": b} {
		e := readEvent(t, conn)
		if e.Type != fleet.EventDeviceStatusChange {
			t.Fatalf("%s: event = %q, want device_status_change", name, e.Type)
		}
		if e.StatusChange.OldStatus != fleet.DeviceActive || e.StatusChange.NewStatus != fleet.DeviceOffline {
			t.Errorf("%s: change = %+v", name, e.StatusChange)
		}
		if e.StatusChange.DeviceCode != "POS-001" {
			t.Errorf("%s: deviceCode = %q", name, e.StatusChange.DeviceCode)
		}
	}
}

func TestPushChannel_NewAlertBroadcast(t *testing.T) {
	srv, svc := testServer(t)
	base := liveServer(t, srv)
	conn := dial(t, base+"/ws")
	readEvent(t, conn)

	w := do(t, srv.Handler(), http.MethodPost, "/api/v1/alerts", `{"type":"warning","priority":"medium","title":"Battery low"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create alert status = %d, body = %s", w.Code, w.Body.String())
	}

	e := readEvent(t, conn)
	if e.Type != fleet.EventNewAlert {
		t.Fatalf("event = %q, want new_alert", e.Type)
	}
	if e.Alert.Title != "Battery low" || e.Alert.IsRead {
		t.Errorf("alert = %+v", e.Alert)
	}

	// The event carries the stored record, not the request body.
	stored, err := svc.UnreadAlerts(context.Background(), 0)
	if err != nil {
		t.Fatalf("UnreadAlerts() error = %v", err)
	}
	if len(stored) != 1 || stored[0].ID != e.Alert.ID {
		t.Errorf("stored alerts = %+v, event id = %q", stored, e.Alert.ID)
	}
}

func TestPushChannel_ReconnectGetsFreshSnapshot(t *testing.T) {
	srv, svc := testServer(t)
	device := seedFleet(t, svc)
	base := liveServer(t, srv)

	first := dial(t, base+"/ws")
	readEvent(t, first)
	first.Close()

	if _, err := svc.SetDeviceStatus(context.Background(), device, fleet.DeviceMaintenance); err != nil {
		t.Fatalf("SetDeviceStatus: %v", err)
	}

	second := dial(t, base+"/ws")
	e := readEvent(t, second)
	if e.Type != fleet.EventInitialStatus {
		t.Fatalf("first event = %q, want initial_status", e.Type)
	}
	if e.Snapshot.Devices.Maintenance != 1 || e.Snapshot.Devices.Active != 0 {
		t.Errorf("snapshot after reconnect = %+v", e.Snapshot.Devices)
	}
}

func TestPushChannel_Auth(t *testing.T) {
	srv, _ := testAuthServer(t)
	base := liveServer(t, srv)

	_, resp, err := websocket.DefaultDialer.Dial(base+"/ws", nil)
	if err == nil {
		t.Fatal("Dial without credentials should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("handshake response = %v, want 401", resp)
	}

	if _, resp, err := websocket.DefaultDialer.Dial(base+"/ws?ticket=bogus", nil); err == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Error("Dial with unknown ticket should be refused with 401")
	}

	ticket := srv.tickets.issue(auth.Principal{Username: "staff-user", Role: auth.RoleStaff})
	conn := dial(t, base+"/ws?ticket="+ticket)
	if e := readEvent(t, conn); e.Type != fleet.EventInitialStatus {
		t.Errorf("first event = %q, want initial_status", e.Type)
	}

	conn = dial(t, base+"/ws?token="+tokenFor(t, auth.RoleManager))
	if e := readEvent(t, conn); e.Type != fleet.EventInitialStatus {
		t.Errorf("first event = %q, want initial_status", e.Type)
	}
}
