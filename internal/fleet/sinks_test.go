package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nerrad567/posfleet-core/internal/infrastructure/mqtt"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	sent chan struct{}
	err  error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{sent: make(chan struct{}, 16)}
}

func (p *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	p.msgs = append(p.msgs, published{topic, payload, qos, retained})
	p.mu.Unlock()
	p.sent <- struct{}{}
	return p.err
}

func (p *fakePublisher) wait(t *testing.T) {
	t.Helper()
	select {
	case <-p.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
	}
}

func TestMQTTRelay_PublishesEvents(t *testing.T) {
	pub := newFakePublisher()
	relay := NewMQTTRelay(pub, 1, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	relay.HandleEvent(ctx, NewAlertEvent(Alert{ID: "a-1", Type: AlertInfo, Priority: PriorityLow, Title: "hello"}, eventTime))
	relay.HandleEvent(ctx, NewStatusChangeEvent(StatusChange{DeviceID: "d", OldStatus: DeviceActive, NewStatus: DeviceOffline}, eventTime))
	pub.wait(t)
	pub.wait(t)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	alertTopic := mqtt.Topics{}.Event("new_alert")
	if pub.msgs[0].topic != alertTopic || pub.msgs[1].topic != "posfleet/events/device_status_change" {
		t.Errorf("topics = %q, %q", pub.msgs[0].topic, pub.msgs[1].topic)
	}
	for _, m := range pub.msgs {
		if m.qos != 1 || m.retained {
			t.Errorf("%s published with qos=%d retained=%v", m.topic, m.qos, m.retained)
		}
	}
	var e Event
	if err := json.Unmarshal(pub.msgs[0].payload, &e); err != nil || e.Alert == nil || e.Alert.ID != "a-1" {
		t.Errorf("payload decoded to %+v, %v", e, err)
	}
}

func TestMQTTRelay_DropsWhenFull(t *testing.T) {
	relay := NewMQTTRelay(newFakePublisher(), 1, 1)
	e := NewInitialStatusEvent(StatusSnapshot{}, eventTime)

	relay.HandleEvent(context.Background(), e)

	returned := make(chan struct{})
	go func() {
		relay.HandleEvent(context.Background(), e)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("HandleEvent blocked on a full queue")
	}
	if len(relay.queue) != 1 {
		t.Errorf("queue length = %d, want 1", len(relay.queue))
	}
}

func TestMQTTRelay_PublishErrorKeepsRunning(t *testing.T) {
	pub := newFakePublisher()
	pub.err = errors.New("broker gone")
	relay := NewMQTTRelay(pub, 0, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)

	relay.HandleEvent(ctx, NewInitialStatusEvent(StatusSnapshot{}, eventTime))
	relay.HandleEvent(ctx, NewInitialStatusEvent(StatusSnapshot{}, eventTime))
	pub.wait(t)
	pub.wait(t)
}

// fakeSubscriber records the handler so tests can deliver messages.
type fakeSubscriber struct {
	topic   string
	qos     byte
	handler mqtt.MessageHandler
}

func (s *fakeSubscriber) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	s.topic, s.qos, s.handler = topic, qos, handler
	return nil
}

func TestSubscribeTerminals(t *testing.T) {
	f := newFixture(t)
	sub := &fakeSubscriber{}

	if err := SubscribeTerminals(sub, 1, f.svc); err != nil {
		t.Fatalf("SubscribeTerminals() error = %v", err)
	}
	if sub.topic != "posfleet/terminal/+/status" || sub.qos != 1 {
		t.Errorf("subscribed to %q qos %d", sub.topic, sub.qos)
	}

	if err := sub.handler(mqtt.Topics{}.TerminalStatus("POS-001"), []byte(`{"status":"maintenance"}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	d, err := f.svc.GetDevice(context.Background(), f.device)
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if d.Status != DeviceMaintenance {
		t.Errorf("Status = %q, want maintenance", d.Status)
	}
	if events := f.rec.Events(); len(events) != 1 || events[0].StatusChange.DeviceCode != "POS-001" {
		t.Errorf("events = %+v", events)
	}

	if err := sub.handler("posfleet/terminal/a/b/status", []byte(`{"status":"offline"}`)); !errors.Is(err, ErrInvalidReport) {
		t.Errorf("bad topic error = %v, want ErrInvalidReport", err)
	}
}

type statusPoint struct {
	deviceID, customerID, oldStatus, newStatus string
	at                                         time.Time
}

type txPoint struct {
	deviceID, transactionType string
	amount                    float64
}

type fakeTelemetry struct {
	statuses     []statusPoint
	transactions []txPoint
}

func (w *fakeTelemetry) WriteDeviceStatus(deviceID, customerID, oldStatus, newStatus string, at time.Time) {
	w.statuses = append(w.statuses, statusPoint{deviceID, customerID, oldStatus, newStatus, at})
}

func (w *fakeTelemetry) WriteTransaction(deviceID, transactionType string, amount float64, _ time.Time) {
	w.transactions = append(w.transactions, txPoint{deviceID, transactionType, amount})
}

func TestTelemetryRecorder(t *testing.T) {
	w := &fakeTelemetry{}
	rec := NewTelemetryRecorder(w)
	ctx := context.Background()

	rec.HandleEvent(ctx, NewStatusChangeEvent(StatusChange{DeviceID: "d-1", CustomerID: "c-1", OldStatus: DeviceActive, NewStatus: DeviceOffline}, eventTime))
	rec.HandleEvent(ctx, NewAlertEvent(Alert{ID: "a"}, eventTime))
	rec.HandleEvent(ctx, NewInitialStatusEvent(StatusSnapshot{}, eventTime))
	rec.HandleTransaction(ctx, Transaction{DeviceID: "d-1", TransactionType: TransactionRefund, Amount: decimal.RequireFromString("-12.25"), OccurredAt: eventTime})

	want := statusPoint{"d-1", "c-1", "active", "offline", eventTime}
	if len(w.statuses) != 1 || w.statuses[0] != want {
		t.Errorf("statuses = %+v, want [%+v]", w.statuses, want)
	}
	if len(w.transactions) != 1 || w.transactions[0] != (txPoint{"d-1", "refund", -12.25}) {
		t.Errorf("transactions = %+v", w.transactions)
	}
}
