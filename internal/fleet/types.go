package fleet

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nerrad567/posfleet-core/internal/auth"
)

// DeviceStatus is the operational state of a POS terminal.
type DeviceStatus string

// Device statuses. Unclassified is read-only: it stands for any stored
// value outside the known set.
const (
	DeviceActive       DeviceStatus = "active"
	DeviceOffline      DeviceStatus = "offline"
	DeviceMaintenance  DeviceStatus = "maintenance"
	DeviceUnclassified DeviceStatus = "unclassified"
)

// Writable reports whether callers may set s.
func (s DeviceStatus) Writable() bool {
	return writableStatuses[s]
}

// CustomerStatus is the lifecycle stage of a merchant.
type CustomerStatus string

// Customer statuses.
const (
	CustomerActive    CustomerStatus = "active"
	CustomerNormal    CustomerStatus = "normal"
	CustomerMarketing CustomerStatus = "marketing"
	CustomerCollected CustomerStatus = "collected"
	CustomerLoss      CustomerStatus = "loss"
)

// UnitType classifies a banking unit.
type UnitType string

// Banking unit types.
const (
	UnitBranch  UnitType = "branch"
	UnitCounter UnitType = "counter"
	UnitKiosk   UnitType = "kiosk"
)

// TransactionType classifies a recorded transaction.
type TransactionType string

// Transaction types.
const (
	TransactionSale   TransactionType = "sale"
	TransactionRefund TransactionType = "refund"
	TransactionVoid   TransactionType = "void"
)

// AlertType is the severity class of an alert.
type AlertType string

// Alert types.
const (
	AlertError   AlertType = "error"
	AlertWarning AlertType = "warning"
	AlertInfo    AlertType = "info"
)

// AlertPriority orders alerts for operators.
type AlertPriority string

// Alert priorities.
const (
	PriorityHigh   AlertPriority = "high"
	PriorityMedium AlertPriority = "medium"
	PriorityLow    AlertPriority = "low"
)

// User is a dashboard operator account. Password holds the bcrypt hash and
// is never serialised.
type User struct {
	ID        string    `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Password  string    `db:"password" json:"-"`
	FullName  string    `db:"full_name" json:"fullName,omitempty"`
	Role      auth.Role `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Branch is a bank branch that owns merchants.
type Branch struct {
	ID             string           `db:"id" json:"id"`
	Code           string           `db:"code" json:"code"`
	Name           string           `db:"name" json:"name"`
	Address        string           `db:"address" json:"address,omitempty"`
	Latitude       *decimal.Decimal `db:"latitude" json:"latitude,omitempty"`
	Longitude      *decimal.Decimal `db:"longitude" json:"longitude,omitempty"`
	CoverageRadius *decimal.Decimal `db:"coverage_radius" json:"coverageRadius,omitempty"`
	MonthlyTarget  *decimal.Decimal `db:"monthly_target" json:"monthlyTarget,omitempty"`
	MonthlyActual  *decimal.Decimal `db:"monthly_actual" json:"monthlyActual,omitempty"`
	Phone          string           `db:"phone" json:"phone,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
}

// Employee is a bank staff member who supports merchants.
type Employee struct {
	ID           string    `db:"id" json:"id"`
	EmployeeCode string    `db:"employee_code" json:"employeeCode"`
	FullName     string    `db:"full_name" json:"fullName"`
	Position     string    `db:"position" json:"position,omitempty"`
	Phone        string    `db:"phone" json:"phone,omitempty"`
	Email        string    `db:"email" json:"email,omitempty"`
	BranchID     *string   `db:"branch_id" json:"branchId,omitempty"`
	IsActive     bool      `db:"is_active" json:"isActive"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// BankingUnit is a service point below a branch.
type BankingUnit struct {
	ID        string           `db:"id" json:"id"`
	Code      string           `db:"code" json:"code"`
	Name      string           `db:"name" json:"name"`
	UnitType  UnitType         `db:"unit_type" json:"unitType"`
	Address   string           `db:"address" json:"address,omitempty"`
	Latitude  *decimal.Decimal `db:"latitude" json:"latitude,omitempty"`
	Longitude *decimal.Decimal `db:"longitude" json:"longitude,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time        `db:"updated_at" json:"updatedAt"`
}

// Customer is a merchant hosting one or more terminals.
type Customer struct {
	ID                   string           `db:"id" json:"id"`
	CustomerCode         string           `db:"customer_code" json:"customerCode"`
	Name                 string           `db:"name" json:"name"`
	OwnerName            string           `db:"owner_name" json:"ownerName,omitempty"`
	Phone                string           `db:"phone" json:"phone,omitempty"`
	Address              string           `db:"address" json:"address,omitempty"`
	Latitude             *decimal.Decimal `db:"latitude" json:"latitude,omitempty"`
	Longitude            *decimal.Decimal `db:"longitude" json:"longitude,omitempty"`
	BusinessType         string           `db:"business_type" json:"businessType,omitempty"`
	Status               CustomerStatus   `db:"status" json:"status"`
	BranchID             string           `db:"branch_id" json:"branchId"`
	BankingUnitID        *string          `db:"banking_unit_id" json:"bankingUnitId,omitempty"`
	SupportingEmployeeID *string          `db:"supporting_employee_id" json:"supportingEmployeeId,omitempty"`
	CreatedAt            time.Time        `db:"created_at" json:"createdAt"`
}

// PosDevice is a payment terminal installed at a customer.
type PosDevice struct {
	ID             string       `db:"id" json:"id"`
	DeviceCode     string       `db:"device_code" json:"deviceCode"`
	CustomerID     string       `db:"customer_id" json:"customerId"`
	Model          string       `db:"model" json:"model,omitempty"`
	SerialNumber   string       `db:"serial_number" json:"serialNumber,omitempty"`
	Status         DeviceStatus `db:"status" json:"status"`
	LastConnection *time.Time   `db:"last_connection" json:"lastConnection,omitempty"`
	InstalledAt    *time.Time   `db:"installed_at" json:"installedAt,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"createdAt"`
}

// Transaction is an immutable payment record from a terminal.
type Transaction struct {
	ID              string          `db:"id" json:"id"`
	DeviceID        string          `db:"device_id" json:"deviceId"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	TransactionType TransactionType `db:"transaction_type" json:"transactionType"`
	Reference       string          `db:"reference" json:"reference,omitempty"`
	OccurredAt      time.Time       `db:"occurred_at" json:"occurredAt"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}

// Alert is an operator notification about a customer or terminal.
type Alert struct {
	ID         string        `db:"id" json:"id"`
	CustomerID *string       `db:"customer_id" json:"customerId,omitempty"`
	DeviceID   *string       `db:"device_id" json:"deviceId,omitempty"`
	Type       AlertType     `db:"type" json:"type"`
	Priority   AlertPriority `db:"priority" json:"priority"`
	Title      string        `db:"title" json:"title"`
	Message    string        `db:"message" json:"message,omitempty"`
	IsRead     bool          `db:"is_read" json:"isRead"`
	CreatedAt  time.Time     `db:"created_at" json:"createdAt"`
}

// PosMonthlyStat is the monthly performance roll-up of one customer.
type PosMonthlyStat struct {
	ID               string           `db:"id" json:"id"`
	CustomerID       string           `db:"customer_id" json:"customerId"`
	BranchID         *string          `db:"branch_id" json:"branchId,omitempty"`
	Year             int              `db:"year" json:"year"`
	Month            int              `db:"month" json:"month"`
	TransactionCount *int64           `db:"transaction_count" json:"transactionCount,omitempty"`
	TotalAmount      *decimal.Decimal `db:"total_amount" json:"totalAmount,omitempty"`
	Revenue          *decimal.Decimal `db:"revenue" json:"revenue,omitempty"`
	Profit           *decimal.Decimal `db:"profit" json:"profit,omitempty"`
	Status           CustomerStatus   `db:"status" json:"status,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"createdAt"`
}

// Visit records an employee visiting a customer.
type Visit struct {
	ID         string    `db:"id" json:"id"`
	CustomerID string    `db:"customer_id" json:"customerId"`
	EmployeeID string    `db:"employee_id" json:"employeeId"`
	VisitDate  time.Time `db:"visit_date" json:"visitDate"`
	Purpose    string    `db:"purpose" json:"purpose,omitempty"`
	Notes      string    `db:"notes" json:"notes,omitempty"`
	Outcome    string    `db:"outcome" json:"outcome,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// Territory is a polygon on the map assigned to a banking unit.
type Territory struct {
	ID            string          `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Boundary      json.RawMessage `db:"boundary" json:"boundary,omitempty"`
	Color         string          `db:"color" json:"color,omitempty"`
	BankingUnitID *string         `db:"banking_unit_id" json:"bankingUnitId,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}
