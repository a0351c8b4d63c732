// Package influxdb records fleet telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Two measurements are
// written:
//
//	device_status  tags: device_id, customer_id
//	               fields: old_status, new_status, online (0/1)
//	transactions   tags: device_id, type
//	               fields: amount
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	svc.AddSink(fleet.NewTelemetryRecorder(client))
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Asynchronous write failures are delivered to the
// SetOnError callback; connection and health check errors are returned
// directly.
package influxdb
