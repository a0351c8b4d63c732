package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/posfleet-core/internal/infrastructure/mqtt"
)

// ─── MQTT relay ─────────────────────────────────────────────────

// Publisher is the MQTT publishing surface. Satisfied by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// defaultRelayBuffer is the number of events the relay queues before it
// starts dropping.
const defaultRelayBuffer = 256

// MQTTRelay republishes broadcast events to posfleet/events/{type}.
// HandleEvent only queues; Run publishes in order on its own goroutine so a
// slow broker never holds up a write.
type MQTTRelay struct {
	pub    Publisher
	qos    byte
	queue  chan Event
	logger Logger
}

// NewMQTTRelay creates a relay. A non-positive buffer uses the default.
func NewMQTTRelay(pub Publisher, qos byte, buffer int) *MQTTRelay {
	if buffer <= 0 {
		buffer = defaultRelayBuffer
	}
	return &MQTTRelay{
		pub:    pub,
		qos:    qos,
		queue:  make(chan Event, buffer),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the relay.
func (r *MQTTRelay) SetLogger(logger Logger) {
	r.logger = logger
}

// HandleEvent queues e for publishing, dropping it when the queue is full.
func (r *MQTTRelay) HandleEvent(_ context.Context, e Event) {
	select {
	case r.queue <- e:
	default:
		r.logger.Warn("mqtt relay queue full, dropping event", "type", e.Type)
	}
}

// Run publishes queued events until ctx is cancelled.
func (r *MQTTRelay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-r.queue:
			if err := r.publish(e); err != nil {
				r.logger.Warn("relaying event to mqtt failed", "type", e.Type, "error", err)
			}
		}
	}
}

func (r *MQTTRelay) publish(e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	return r.pub.Publish(mqtt.Topics{}.Event(string(e.Type)), payload, r.qos, false)
}

// ─── Terminal status ingestion ──────────────────────────────────

// Subscriber is the MQTT subscribing surface. Satisfied by *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// reportTimeout bounds the store work done for one terminal report.
const reportTimeout = 10 * time.Second

// TerminalReport is the payload terminals publish to
// posfleet/terminal/{deviceCode}/status.
type TerminalReport struct {
	Status    DeviceStatus `json:"status"`
	Timestamp *time.Time   `json:"timestamp,omitempty"`
}

// IngestTerminalReport decodes a report payload and applies it with
// ReportTerminalStatus.
func (s *Service) IngestTerminalReport(ctx context.Context, deviceCode string, payload []byte) error {
	var report TerminalReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}
	if report.Status == "" {
		return fmt.Errorf("%w: missing status", ErrInvalidReport)
	}
	var seenAt time.Time
	if report.Timestamp != nil {
		seenAt = *report.Timestamp
	}
	_, err := s.ReportTerminalStatus(ctx, deviceCode, report.Status, seenAt)
	return err
}

// SubscribeTerminals routes every terminal status report to svc.
func SubscribeTerminals(sub Subscriber, qos byte, svc *Service) error {
	topics := mqtt.Topics{}
	return sub.Subscribe(topics.AllTerminalStatuses(), qos, func(topic string, payload []byte) error {
		code, ok := topics.ParseTerminalStatus(topic)
		if !ok {
			return fmt.Errorf("%w: unexpected topic %q", ErrInvalidReport, topic)
		}
		ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
		defer cancel()
		return svc.IngestTerminalReport(ctx, code, payload)
	})
}

// ─── Telemetry ──────────────────────────────────────────────────

// TelemetryWriter is the time-series surface. Satisfied by *influxdb.Client.
type TelemetryWriter interface {
	WriteDeviceStatus(deviceID, customerID, oldStatus, newStatus string, at time.Time)
	WriteTransaction(deviceID, transactionType string, amount float64, at time.Time)
}

// TelemetryRecorder writes status changes and transactions as time-series
// points.
type TelemetryRecorder struct {
	w TelemetryWriter
}

// NewTelemetryRecorder creates a recorder over w.
func NewTelemetryRecorder(w TelemetryWriter) *TelemetryRecorder {
	return &TelemetryRecorder{w: w}
}

// HandleEvent records device status changes; other events are ignored.
func (r *TelemetryRecorder) HandleEvent(_ context.Context, e Event) {
	if e.Type != EventDeviceStatusChange || e.StatusChange == nil {
		return
	}
	c := e.StatusChange
	r.w.WriteDeviceStatus(c.DeviceID, c.CustomerID, string(c.OldStatus), string(c.NewStatus), e.Timestamp)
}

// HandleTransaction records one transaction amount.
func (r *TelemetryRecorder) HandleTransaction(_ context.Context, t Transaction) {
	r.w.WriteTransaction(t.DeviceID, string(t.TransactionType), t.Amount.InexactFloat64(), t.OccurredAt)
}
