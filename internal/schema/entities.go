package schema

import "github.com/shopspring/decimal"

// Table names.
const (
	Users           = "users"
	Branches        = "branches"
	Employees       = "employees"
	BankingUnits    = "banking_units"
	Customers       = "customers"
	PosDevices      = "pos_devices"
	Transactions    = "transactions"
	Alerts          = "alerts"
	PosMonthlyStats = "pos_monthly_stats"
	Visits          = "visits"
	Territories     = "territories"
)

// Enum member sets shared by more than one entity.
var (
	customerStatuses = []string{"active", "normal", "marketing", "collected", "loss"}
	deviceStatuses   = []string{"active", "offline", "maintenance"}
)

func idField() Field {
	return Field{Name: "id", Type: String, Required: true, Immutable: true, MaxLen: 64, primary: true}
}

func createdAt() Field {
	return Field{Name: "created_at", Type: Timestamp, Required: true, Immutable: true, Indexed: true}
}

func updatedAt() Field {
	return Field{Name: "updated_at", Type: Timestamp, Required: true, AutoNow: true}
}

func text(name string, maxLen int) Field {
	return Field{Name: name, Type: String, MaxLen: maxLen}
}

func ref(name, table string, required bool) Field {
	return Field{Name: name, Type: String, References: table, Required: required}
}

func money(name string) Field {
	return Field{Name: name, Type: Decimal, Precision: 15, Scale: 2}
}

func latitude() Field {
	return Field{Name: "latitude", Type: Decimal, Precision: 10, Scale: 6, Range: between(-90, 90)}
}

func longitude() Field {
	return Field{Name: "longitude", Type: Decimal, Precision: 10, Scale: 6, Range: between(-180, 180)}
}

func between(lo, hi int64) *Range {
	return &Range{Min: decimal.NewFromInt(lo), Max: decimal.NewFromInt(hi)}
}

// entities is ordered so that every referenced table precedes the tables
// that reference it.
var entities = []*Entity{
	{
		Name: Users,
		Fields: []Field{
			idField(),
			{Name: "username", Type: String, Required: true, Unique: true, MaxLen: 64},
			{Name: "password", Type: String, Required: true, MaxLen: 255},
			text("full_name", 255),
			{Name: "role", Type: Enum, Required: true, Values: []string{"admin", "manager", "staff"}},
			createdAt(),
		},
	},
	{
		Name: Branches,
		Fields: []Field{
			idField(),
			{Name: "code", Type: String, Required: true, Unique: true, MaxLen: 32},
			{Name: "name", Type: String, Required: true, MaxLen: 255},
			text("address", 512),
			latitude(),
			longitude(),
			{Name: "coverage_radius", Type: Decimal, Precision: 8, Scale: 2, Range: between(0, 1000)},
			money("monthly_target"),
			money("monthly_actual"),
			text("phone", 32),
			createdAt(),
		},
	},
	{
		Name: Employees,
		Fields: []Field{
			idField(),
			{Name: "employee_code", Type: String, Required: true, Unique: true, MaxLen: 32},
			{Name: "full_name", Type: String, Required: true, MaxLen: 255},
			text("position", 128),
			text("phone", 32),
			text("email", 255),
			ref("branch_id", Branches, false),
			{Name: "is_active", Type: Boolean, Required: true},
			createdAt(),
		},
	},
	{
		Name: BankingUnits,
		Fields: []Field{
			idField(),
			{Name: "code", Type: String, Required: true, Unique: true, MaxLen: 32},
			{Name: "name", Type: String, Required: true, MaxLen: 255},
			{Name: "unit_type", Type: Enum, Required: true, Values: []string{"branch", "counter", "kiosk"}},
			text("address", 512),
			latitude(),
			longitude(),
			createdAt(),
			updatedAt(),
		},
	},
	{
		Name: Customers,
		Fields: []Field{
			idField(),
			{Name: "customer_code", Type: String, Required: true, Unique: true, MaxLen: 32},
			{Name: "name", Type: String, Required: true, MaxLen: 255},
			text("owner_name", 255),
			text("phone", 32),
			text("address", 512),
			latitude(),
			longitude(),
			text("business_type", 128),
			{Name: "status", Type: Enum, Required: true, Indexed: true, Values: customerStatuses},
			ref("branch_id", Branches, true),
			ref("banking_unit_id", BankingUnits, false),
			ref("supporting_employee_id", Employees, false),
			createdAt(),
		},
	},
	{
		Name: PosDevices,
		Fields: []Field{
			idField(),
			{Name: "device_code", Type: String, Required: true, Unique: true, MaxLen: 64},
			ref("customer_id", Customers, true),
			text("model", 128),
			text("serial_number", 128),
			{Name: "status", Type: Enum, Required: true, Indexed: true, Values: deviceStatuses},
			{Name: "last_connection", Type: Timestamp},
			{Name: "installed_at", Type: Timestamp},
			createdAt(),
		},
	},
	{
		Name:     Transactions,
		ReadOnly: true,
		Fields: []Field{
			idField(),
			ref("device_id", PosDevices, true),
			{Name: "amount", Type: Decimal, Precision: 15, Scale: 2, Required: true},
			{Name: "transaction_type", Type: Enum, Required: true, Values: []string{"sale", "refund", "void"}},
			text("reference", 128),
			{Name: "occurred_at", Type: Timestamp, Required: true, Indexed: true},
			createdAt(),
		},
	},
	{
		Name: Alerts,
		Fields: []Field{
			idField(),
			ref("customer_id", Customers, false),
			ref("device_id", PosDevices, false),
			{Name: "type", Type: Enum, Required: true, Values: []string{"error", "warning", "info"}},
			{Name: "priority", Type: Enum, Required: true, Values: []string{"high", "medium", "low"}},
			{Name: "title", Type: String, Required: true, MaxLen: 255},
			text("message", 2048),
			{Name: "is_read", Type: Boolean, Required: true, Indexed: true},
			createdAt(),
		},
	},
	{
		Name: PosMonthlyStats,
		Fields: []Field{
			idField(),
			ref("customer_id", Customers, true),
			ref("branch_id", Branches, false),
			{Name: "year", Type: Integer, Required: true, Range: between(2000, 2100)},
			{Name: "month", Type: Integer, Required: true, Range: between(1, 12)},
			{Name: "transaction_count", Type: Integer, Range: between(0, 1<<40)},
			money("total_amount"),
			money("revenue"),
			money("profit"),
			{Name: "status", Type: Enum, Values: customerStatuses},
			createdAt(),
		},
	},
	{
		Name: Visits,
		Fields: []Field{
			idField(),
			ref("customer_id", Customers, true),
			ref("employee_id", Employees, true),
			{Name: "visit_date", Type: Timestamp, Required: true},
			text("purpose", 255),
			text("notes", 4096),
			text("outcome", 255),
			createdAt(),
		},
	},
	{
		Name: Territories,
		Fields: []Field{
			idField(),
			{Name: "name", Type: String, Required: true, MaxLen: 255},
			{Name: "boundary", Type: JSON},
			text("color", 16),
			ref("banking_unit_id", BankingUnits, false),
			createdAt(),
			updatedAt(),
		},
	},
}

// Entities returns every entity, parents before children.
func Entities() []*Entity {
	out := make([]*Entity, len(entities))
	copy(out, entities)
	return out
}

// Lookup returns the entity for a table name.
func Lookup(name string) (*Entity, bool) {
	for _, e := range entities {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}
