package mqtt

import "fmt"

// Topic prefixes for the bridge's MQTT surface.
//
// All topics use the flat scheme: selve/{category}/{sid}
const (
	// TopicPrefix is the base for all bridge topics.
	TopicPrefix = "selve"

	// TopicPrefixSystem is the base for system topics (online/offline status).
	TopicPrefixSystem = "selve/system"
)

// Topics provides builders for the bridge's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("1a")
//	// Returns: "selve/state/1a"
type Topics struct{}

// DeviceState returns the retained state topic for a device.
//
// Example: selve/state/1a
func (Topics) DeviceState(sid string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, sid)
}

// DeviceCommand returns the command topic for a device.
//
// Example: selve/command/1a
func (Topics) DeviceCommand(sid string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, sid)
}

// Health returns the bridge health heartbeat topic.
//
// Example: selve/health
func (Topics) Health() string {
	return fmt.Sprintf("%s/health", TopicPrefix)
}

// ServerInfo returns the retained gateway self-description topic.
//
// Example: selve/server
func (Topics) ServerInfo() string {
	return fmt.Sprintf("%s/server", TopicPrefix)
}

// SystemStatus returns the system status topic (also used as LWT).
//
// Example: selve/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceCommands returns a pattern matching commands to any device.
//
// Pattern: selve/command/+
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefix)
}

// AllDeviceStates returns a pattern matching all device state topics.
//
// Pattern: selve/state/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}

// AllTopics returns a pattern matching every bridge topic.
// Use with caution - this receives ALL traffic.
//
// Pattern: selve/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
