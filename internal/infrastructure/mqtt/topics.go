package mqtt

import "fmt"

// Topic scheme. Everything Outpost publishes lives under one root:
//
//	outpost/status            retained online/offline status (also the LWT)
//	outpost/event/{channel}   hub events, one topic per broadcast channel
//
// Channels mirror the WebSocket hub: sensors, gpio, alerts, devices, system.
const (
	// TopicPrefix is the root of all Outpost topics.
	TopicPrefix = "outpost"
)

// Topics provides builders for Outpost MQTT topics. Using these helpers keeps
// topic naming consistent between the publisher and external subscribers.
//
//	topics := mqtt.Topics{}
//	topic := topics.Event("sensors")
//	// Returns: "outpost/event/sensors"
type Topics struct{}

// Status returns the retained status topic. The broker publishes the LWT
// here on unexpected disconnect, so subscribers always see the last known
// online/offline state.
//
// Example: outpost/status
func (Topics) Status() string {
	return fmt.Sprintf("%s/status", TopicPrefix)
}

// Event returns the republish topic for one broadcast channel.
//
// Example: outpost/event/sensors
func (Topics) Event(channel string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, channel)
}

// AllEvents returns a pattern matching every event channel.
//
// Pattern: outpost/event/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefix)
}

// AllTopics returns a pattern matching all Outpost topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: outpost/#
func (Topics) AllTopics() string {
	return fmt.Sprintf("%s/#", TopicPrefix)
}
