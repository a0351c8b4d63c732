package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes.
//
// Terminals report on posfleet/terminal/{deviceCode}/status; the back end
// relays monitoring events on posfleet/events/{type} and announces its own
// presence on posfleet/system/status.
const (
	// TopicPrefix is the root of every fleet topic.
	TopicPrefix = "posfleet"

	// TopicPrefixTerminal is the base for terminal-originated topics.
	TopicPrefixTerminal = "posfleet/terminal"

	// TopicPrefixEvents is the base for relayed monitoring events.
	TopicPrefixEvents = "posfleet/events"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "posfleet/system"
)

// Topics provides builders for fleet MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.TerminalStatus("POS-0042")
//	// Returns: "posfleet/terminal/POS-0042/status"
type Topics struct{}

// TerminalStatus returns the topic a terminal publishes its status on.
//
// Example: posfleet/terminal/POS-0042/status
func (Topics) TerminalStatus(deviceCode string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixTerminal, deviceCode)
}

// AllTerminalStatuses returns the wildcard for every terminal status topic.
func (Topics) AllTerminalStatuses() string {
	return TopicPrefixTerminal + "/+/status"
}

// ParseTerminalStatus extracts the device code from a terminal status topic.
func (Topics) ParseTerminalStatus(topic string) (deviceCode string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixTerminal+"/")
	if !found {
		return "", false
	}
	code, found := strings.CutSuffix(rest, "/status")
	if !found || code == "" || strings.Contains(code, "/") {
		return "", false
	}
	return code, true
}

// Event returns the topic a monitoring event type is relayed on.
//
// Example: posfleet/events/device_status_change
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixEvents, eventType)
}

// AllEvents returns the wildcard for every relayed event.
func (Topics) AllEvents() string {
	return TopicPrefixEvents + "/+"
}

// SystemStatus returns the back end's presence topic (online/offline, LWT).
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllTopics returns the wildcard for every fleet topic.
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
