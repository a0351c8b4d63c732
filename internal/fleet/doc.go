// Package fleet holds the domain model of the POS fleet and the Service
// through which every write passes.
//
// Each domain struct carries `db` tags that bind it to one schema entity;
// NewService fails if a struct and its table have drifted apart.
//
// Watched mutations emit events to registered sinks only after the write
// has been stored:
//
//   - a device whose status changes produces one device_status_change
//   - a created alert produces one new_alert carrying the stored record
//
// Recorded transactions go to transaction sinks (telemetry) and are never
// broadcast. The push hub, the MQTT relay and the InfluxDB recorder are all
// sinks.
package fleet
