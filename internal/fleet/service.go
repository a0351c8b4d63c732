package fleet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nerrad567/posfleet-core/internal/auth"
	"github.com/nerrad567/posfleet-core/internal/schema"
	"github.com/nerrad567/posfleet-core/internal/store"
)

// Logger defines the logging interface used by the Service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// EventSink receives every broadcast event after the write that caused it
// has been stored. Implementations must not block.
type EventSink interface {
	HandleEvent(ctx context.Context, e Event)
}

// TransactionSink is implemented by sinks that also want recorded
// transactions. Transactions are never broadcast.
type TransactionSink interface {
	HandleTransaction(ctx context.Context, t Transaction)
}

// Service performs every write to the fleet and emits the monitoring events
// that follow from it.
//
// Device updates are serialised so that the old status read before a write
// is the status that write replaced. All public methods are thread-safe.
type Service struct {
	store *store.Store

	users        *store.Table[User]
	branches     *store.Table[Branch]
	employees    *store.Table[Employee]
	bankingUnits *store.Table[BankingUnit]
	customers    *store.Table[Customer]
	devices      *store.Table[PosDevice]
	transactions *store.Table[Transaction]
	alerts       *store.Table[Alert]
	stats        *store.Table[PosMonthlyStat]
	visits       *store.Table[Visit]
	territories  *store.Table[Territory]

	deviceMu sync.Mutex

	sinks  []EventSink
	sinkMu sync.RWMutex

	logger Logger
	now    func() time.Time
}

// NewService binds every domain type to its table. A struct that has drifted
// from the schema is reported here, at startup.
func NewService(s *store.Store) (*Service, error) {
	svc := &Service{store: s, logger: noopLogger{}, now: time.Now}
	err := errors.Join(
		bind(s, schema.Users, &svc.users),
		bind(s, schema.Branches, &svc.branches),
		bind(s, schema.Employees, &svc.employees),
		bind(s, schema.BankingUnits, &svc.bankingUnits),
		bind(s, schema.Customers, &svc.customers),
		bind(s, schema.PosDevices, &svc.devices),
		bind(s, schema.Transactions, &svc.transactions),
		bind(s, schema.Alerts, &svc.alerts),
		bind(s, schema.PosMonthlyStats, &svc.stats),
		bind(s, schema.Visits, &svc.visits),
		bind(s, schema.Territories, &svc.territories),
	)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func bind[T any](s *store.Store, entity string, dst **store.Table[T]) error {
	t, err := store.NewTable[T](s, entity)
	if err != nil {
		return fmt.Errorf("binding %s: %w", entity, err)
	}
	*dst = t
	return nil
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetClock replaces the time source used for event timestamps and reports.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// AddSink registers a sink for broadcast events.
func (s *Service) AddSink(sink EventSink) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	s.sinks = append(s.sinks, sink)
}

func (s *Service) emit(ctx context.Context, e Event) {
	s.sinkMu.RLock()
	sinks := make([]EventSink, len(s.sinks))
	copy(sinks, s.sinks)
	s.sinkMu.RUnlock()

	s.logger.Debug("emitting event", "type", e.Type, "sinks", len(sinks))
	for _, sink := range sinks {
		sink.HandleEvent(ctx, e)
	}
}

func (s *Service) recordTransaction(ctx context.Context, t Transaction) {
	s.sinkMu.RLock()
	defer s.sinkMu.RUnlock()
	for _, sink := range s.sinks {
		if ts, ok := sink.(TransactionSink); ok {
			ts.HandleTransaction(ctx, t)
		}
	}
}

// ─── Generic entity operations ──────────────────────────────────

// Create stores a new row of entity from column-keyed values and returns
// the stored row. Per-entity defaults are applied first; users get their
// password hashed; alerts and transactions are announced to the sinks.
func (s *Service) Create(ctx context.Context, entity string, values map[string]any) (map[string]any, error) {
	rows, err := s.store.Rows(entity)
	if err != nil {
		return nil, err
	}

	values = withDefaults(entity, values)
	switch entity {
	case schema.Users:
		if err := prepareUser(values, false); err != nil {
			return nil, err
		}
	case schema.Transactions:
		if values["occurred_at"] == nil {
			values["occurred_at"] = s.now()
		}
	}

	row, err := rows.Insert(ctx, values)
	if err != nil {
		return nil, err
	}

	switch entity {
	case schema.Alerts:
		a, err := s.alerts.FromRow(row)
		if err != nil {
			return nil, err
		}
		s.emit(ctx, NewAlertEvent(*a, s.now()))
	case schema.Transactions:
		t, err := s.transactions.FromRow(row)
		if err != nil {
			return nil, err
		}
		s.recordTransaction(ctx, *t)
	}

	return redact(entity, row), nil
}

// Get returns one row of entity.
func (s *Service) Get(ctx context.Context, entity, id string) (map[string]any, error) {
	rows, err := s.store.Rows(entity)
	if err != nil {
		return nil, err
	}
	row, err := rows.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return redact(entity, row), nil
}

// List returns the rows of entity matching f, newest first.
func (s *Service) List(ctx context.Context, entity string, f store.Filter) ([]map[string]any, error) {
	rows, err := s.store.Rows(entity)
	if err != nil {
		return nil, err
	}
	out, err := rows.List(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i] = redact(entity, out[i])
	}
	return out, nil
}

// Patch applies a partial update to one row of entity. Device patches go
// through UpdateDevice so a status change is broadcast.
func (s *Service) Patch(ctx context.Context, entity, id string, patch map[string]any) (map[string]any, error) {
	rows, err := s.store.Rows(entity)
	if err != nil {
		return nil, err
	}

	switch entity {
	case schema.PosDevices:
		row, _, err := s.updateDevice(ctx, id, patch)
		return row, err
	case schema.Users:
		patch = copyValues(patch)
		if err := prepareUser(patch, true); err != nil {
			return nil, err
		}
	}

	row, err := rows.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return redact(entity, row), nil
}

// Remove deletes one row of entity. Employees are deactivated rather than
// deleted so that visits and customers keep their references.
func (s *Service) Remove(ctx context.Context, entity, id string) error {
	rows, err := s.store.Rows(entity)
	if err != nil {
		return err
	}
	if entity == schema.Employees {
		_, err := rows.Update(ctx, id, map[string]any{"is_active": false})
		return err
	}
	return rows.Delete(ctx, id)
}

// defaults are applied on create when the caller leaves the column out.
var defaults = map[string]map[string]any{
	schema.Users:      {"role": string(auth.RoleStaff)},
	schema.Employees:  {"is_active": true},
	schema.Customers:  {"status": string(CustomerActive)},
	schema.PosDevices: {"status": string(DeviceActive)},
	schema.Alerts:     {"is_read": false},
}

func withDefaults(entity string, values map[string]any) map[string]any {
	out := copyValues(values)
	for k, v := range defaults[entity] {
		if cur, ok := out[k]; !ok || cur == nil || cur == "" {
			out[k] = v
		}
	}
	return out
}

func copyValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func redact(entity string, row map[string]any) map[string]any {
	if entity == schema.Users {
		delete(row, "password")
	}
	return row
}

// prepareUser checks the username format and replaces a plaintext password
// with its hash.
func prepareUser(values map[string]any, partial bool) error {
	verr := &schema.ValidationError{Entity: schema.Users}

	if name, ok := values["username"].(string); ok && name != "" && !auth.IsValidUsername(name) {
		verr.Fields = append(verr.Fields, schema.FieldError{
			Field:   "username",
			Message: "may contain only letters, digits, dots, hyphens and underscores",
		})
	}

	raw, present := values["password"]
	switch pw := raw.(type) {
	case nil:
		if partial && present {
			verr.Fields = append(verr.Fields, schema.FieldError{Field: "password", Message: "is required"})
		}
	case string:
		if pw == "" {
			if partial {
				verr.Fields = append(verr.Fields, schema.FieldError{Field: "password", Message: "is required"})
			}
			break
		}
		hash, err := auth.HashPassword(pw)
		if errors.Is(err, auth.ErrPasswordTooLong) {
			verr.Fields = append(verr.Fields, schema.FieldError{Field: "password", Message: "must be at most 72 bytes"})
			break
		}
		if err != nil {
			return err
		}
		values["password"] = hash
	default:
		verr.Fields = append(verr.Fields, schema.FieldError{Field: "password", Message: "must be a valid string"})
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// ─── Watched device mutations ───────────────────────────────────

// writableStatuses are the device statuses a caller may set.
var writableStatuses = map[DeviceStatus]bool{
	DeviceActive:      true,
	DeviceOffline:     true,
	DeviceMaintenance: true,
}

// GetDevice returns one terminal.
func (s *Service) GetDevice(ctx context.Context, id string) (*PosDevice, error) {
	return s.devices.Get(ctx, id)
}

// SetDeviceStatus changes the status of one terminal and broadcasts the
// change when it differs from the stored status.
func (s *Service) SetDeviceStatus(ctx context.Context, id string, status DeviceStatus) (*PosDevice, error) {
	if !status.Writable() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.UpdateDevice(ctx, id, map[string]any{"status": string(status)})
}

// UpdateDevice applies a column-keyed patch to one terminal. When the stored
// status changed, exactly one device_status_change event is emitted after
// the write returns.
func (s *Service) UpdateDevice(ctx context.Context, id string, patch map[string]any) (*PosDevice, error) {
	_, d, err := s.updateDevice(ctx, id, patch)
	return d, err
}

func (s *Service) updateDevice(ctx context.Context, id string, patch map[string]any) (map[string]any, *PosDevice, error) {
	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()

	old, err := s.devices.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	row, err := s.devices.Rows().Update(ctx, id, patch)
	if err != nil {
		return nil, nil, err
	}
	updated, err := s.devices.FromRow(row)
	if err != nil {
		return nil, nil, err
	}

	if updated.Status != old.Status {
		s.logger.Info("device status changed",
			"device_id", updated.ID,
			"device_code", updated.DeviceCode,
			"old", old.Status,
			"new", updated.Status,
		)
		s.emit(ctx, NewStatusChangeEvent(StatusChange{
			DeviceID:   updated.ID,
			CustomerID: updated.CustomerID,
			DeviceCode: updated.DeviceCode,
			OldStatus:  old.Status,
			NewStatus:  updated.Status,
		}, s.now()))
	}
	return row, updated, nil
}

// ReportTerminalStatus records a status report from a terminal identified
// by its device code. Unless the report says the terminal is offline, its
// last_connection is moved to seenAt (now when zero).
func (s *Service) ReportTerminalStatus(ctx context.Context, deviceCode string, status DeviceStatus, seenAt time.Time) (*PosDevice, error) {
	if !status.Writable() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	d, err := s.devices.FindBy(ctx, "device_code", deviceCode)
	if err != nil {
		return nil, err
	}

	patch := map[string]any{"status": string(status)}
	if status != DeviceOffline {
		if seenAt.IsZero() {
			seenAt = s.now()
		}
		patch["last_connection"] = seenAt
	}
	return s.UpdateDevice(ctx, d.ID, patch)
}

// ─── Alerts ─────────────────────────────────────────────────────

// CreateAlert stores a and broadcasts it as new_alert. a is overwritten with
// the stored record.
func (s *Service) CreateAlert(ctx context.Context, a *Alert) error {
	if err := s.alerts.Insert(ctx, a); err != nil {
		return err
	}
	s.emit(ctx, NewAlertEvent(*a, s.now()))
	return nil
}

// MarkAlertRead sets is_read on one alert.
func (s *Service) MarkAlertRead(ctx context.Context, id string) (*Alert, error) {
	return s.alerts.Update(ctx, id, map[string]any{"is_read": true})
}

// MarkAllAlertsRead sets is_read on every unread alert and returns how many
// changed.
func (s *Service) MarkAllAlertsRead(ctx context.Context) (int64, error) {
	isRead, _ := s.alerts.Rows().Entity().Field("is_read")

	var n int64
	err := s.store.Exec(ctx, func(ctx context.Context, tx *sqlx.Tx, d schema.Dialect) error {
		yes, err := d.Encode(isRead, true)
		if err != nil {
			return err
		}
		no, err := d.Encode(isRead, false)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, tx.Rebind("UPDATE alerts SET is_read = ? WHERE is_read = ?"), yes, no)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("marking alerts read: %w", err)
	}
	return n, nil
}

// UnreadAlerts returns unread alerts, newest first. A non-positive limit
// returns all of them.
func (s *Service) UnreadAlerts(ctx context.Context, limit int) ([]Alert, error) {
	if limit < 0 {
		limit = 0
	}
	return s.alerts.List(ctx, store.Filter{Where: map[string]any{"is_read": false}, Limit: limit})
}

// ─── Transactions ───────────────────────────────────────────────

// RecordTransaction stores t (immutable thereafter) and forwards it to
// transaction sinks. A zero OccurredAt is set to now.
func (s *Service) RecordTransaction(ctx context.Context, t *Transaction) error {
	if t.OccurredAt.IsZero() {
		t.OccurredAt = s.now()
	}
	if err := s.transactions.Insert(ctx, t); err != nil {
		return err
	}
	s.recordTransaction(ctx, *t)
	return nil
}

// ─── Snapshots ──────────────────────────────────────────────────

// DeviceCounts tallies terminals by status. Rows whose stored status is
// outside the known set are counted as unclassified.
func (s *Service) DeviceCounts(ctx context.Context) (DeviceCounts, error) {
	var c DeviceCounts
	total, err := s.devices.Count(ctx, store.Filter{})
	if err != nil {
		return c, err
	}
	for _, st := range []struct {
		status DeviceStatus
		dst    *int
	}{
		{DeviceActive, &c.Active},
		{DeviceOffline, &c.Offline},
		{DeviceMaintenance, &c.Maintenance},
	} {
		n, err := s.devices.Count(ctx, store.Filter{Where: map[string]any{"status": string(st.status)}})
		if err != nil {
			return c, err
		}
		*st.dst = n
	}
	c.Total = total
	c.Unclassified = total - c.Active - c.Offline - c.Maintenance
	return c, nil
}

// InitialStatus returns the snapshot sent once to every new push session.
func (s *Service) InitialStatus(ctx context.Context) (StatusSnapshot, error) {
	devices, err := s.DeviceCounts(ctx)
	if err != nil {
		return StatusSnapshot{}, fmt.Errorf("counting devices: %w", err)
	}
	unread, err := s.alerts.Count(ctx, store.Filter{Where: map[string]any{"is_read": false}})
	if err != nil {
		return StatusSnapshot{}, fmt.Errorf("counting unread alerts: %w", err)
	}
	return StatusSnapshot{Devices: devices, UnreadAlerts: unread}, nil
}

// InitialStatusEvent wraps InitialStatus as an event.
func (s *Service) InitialStatusEvent(ctx context.Context) (Event, error) {
	snap, err := s.InitialStatus(ctx)
	if err != nil {
		return Event{}, err
	}
	return NewInitialStatusEvent(snap, s.now()), nil
}

// Summary is the dashboard headline figures.
type Summary struct {
	Devices         DeviceCounts           `json:"devices"`
	Customers       map[CustomerStatus]int `json:"customers"`
	TotalCustomers  int                    `json:"totalCustomers"`
	Branches        int                    `json:"branches"`
	ActiveEmployees int                    `json:"activeEmployees"`
	UnreadAlerts    int                    `json:"unreadAlerts"`
}

var customerStatuses = []CustomerStatus{
	CustomerActive, CustomerNormal, CustomerMarketing, CustomerCollected, CustomerLoss,
}

// Summary returns the dashboard headline figures.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	snap, err := s.InitialStatus(ctx)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		Devices:      snap.Devices,
		UnreadAlerts: snap.UnreadAlerts,
		Customers:    make(map[CustomerStatus]int, len(customerStatuses)),
	}

	for _, st := range customerStatuses {
		n, err := s.customers.Count(ctx, store.Filter{Where: map[string]any{"status": string(st)}})
		if err != nil {
			return Summary{}, err
		}
		sum.Customers[st] = n
	}
	if sum.TotalCustomers, err = s.customers.Count(ctx, store.Filter{}); err != nil {
		return Summary{}, err
	}
	if sum.Branches, err = s.branches.Count(ctx, store.Filter{}); err != nil {
		return Summary{}, err
	}
	if sum.ActiveEmployees, err = s.employees.Count(ctx, store.Filter{Where: map[string]any{"is_active": true}}); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// ─── Accounts ───────────────────────────────────────────────────

// Authenticate checks a username and password. Unknown users and wrong
// passwords both return auth.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.users.FindBy(ctx, "username", username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	ok, err := auth.VerifyPassword(password, u.Password)
	if err != nil {
		s.logger.Warn("stored password hash unreadable", "user_id", u.ID, "error", err)
		return nil, auth.ErrInvalidCredentials
	}
	if !ok {
		return nil, auth.ErrInvalidCredentials
	}
	return u, nil
}

// CountUsers returns the number of user accounts.
func (s *Service) CountUsers(ctx context.Context) (int, error) {
	return s.users.Count(ctx, store.Filter{})
}

// CreateUser stores an account whose password is already hashed.
func (s *Service) CreateUser(ctx context.Context, username, passwordHash string, role auth.Role) error {
	return s.users.Insert(ctx, &User{Username: username, Password: passwordHash, Role: role})
}

// HealthCheck pings the storage backend.
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.store.DB().HealthCheck(ctx)
}

// Backend names the storage backend in use.
func (s *Service) Backend() string {
	return string(s.store.DB().Backend())
}
