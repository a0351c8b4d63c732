// Package mqtt connects the fleet back end to an MQTT broker.
//
// Two flows use it, both optional (mqtt.enabled):
//
//	terminals ──posfleet/terminal/{code}/status──▶ broker ──▶ back end
//	back end ──posfleet/events/{type}──▶ broker ──▶ other consumers
//
// The client reconnects with exponential backoff and restores its
// subscriptions. A retained presence message on posfleet/system/status,
// backed by a Last Will, lets gateways see when the back end goes away and
// which version and storage backend it runs.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Identity{Version: version, Backend: "sqlite"})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllTerminalStatuses(), 1, handler)
package mqtt
