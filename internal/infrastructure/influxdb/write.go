package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDeviceStatus = "device_status"
	MeasurementTransactions = "transactions"
)

// DeviceStatusPoint builds the point recorded for one terminal status
// change. online is 1 when the new status is "active".
func DeviceStatusPoint(deviceID, customerID, oldStatus, newStatus string, at time.Time) *write.Point {
	online := 0
	if newStatus == "active" {
		online = 1
	}
	return write.NewPoint(
		MeasurementDeviceStatus,
		map[string]string{
			"device_id":   deviceID,
			"customer_id": customerID,
		},
		map[string]interface{}{
			"old_status": oldStatus,
			"new_status": newStatus,
			"online":     online,
		},
		pointTime(at),
	)
}

// TransactionPoint builds the point recorded for one POS transaction.
func TransactionPoint(deviceID, transactionType string, amount float64, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementTransactions,
		map[string]string{
			"device_id": deviceID,
			"type":      transactionType,
		},
		map[string]interface{}{
			"amount": amount,
		},
		pointTime(at),
	)
}

func pointTime(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now()
	}
	return at
}

// WriteDeviceStatus records a terminal status change.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Nothing is written after Close.
//
//	client.WriteDeviceStatus(deviceID, customerID, "active", "offline", time.Now())
func (c *Client) WriteDeviceStatus(deviceID, customerID, oldStatus, newStatus string, at time.Time) {
	c.writePoint(DeviceStatusPoint(deviceID, customerID, oldStatus, newStatus, at))
}

// WriteTransaction records a transaction amount, tagged by device and
// transaction type.
func (c *Client) WriteTransaction(deviceID, transactionType string, amount float64, at time.Time) {
	c.writePoint(TransactionPoint(deviceID, transactionType, amount, at))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}
