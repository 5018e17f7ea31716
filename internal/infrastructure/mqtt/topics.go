package mqtt

import "fmt"

// Topic prefixes for the Synapse MQTT hierarchy.
//
// App events use the scheme: synapse/{action}/{app_name}
// so a single app's traffic can be matched with synapse/+/{app_name}.
const (
	// TopicPrefix is the base for all Synapse topics.
	TopicPrefix = "synapse"

	// TopicPrefixSystem is the base for service status topics.
	TopicPrefixSystem = "synapse/system"
)

// Topics provides builders for Synapse MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topics.Event("turn_on", "kitchen")
//	// Returns: "synapse/turn_on/kitchen"
type Topics struct{}

// Event returns the topic for an app-scoped bus event.
//
// Example: synapse/register/kitchen
func (Topics) Event(action, appName string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefix, action, appName)
}

// SystemStatus returns the service status topic (online/offline, LWT).
//
// Example: synapse/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllAppEvents returns a pattern matching every event of one app.
//
// Pattern: synapse/+/{app_name}
func (Topics) AllAppEvents(appName string) string {
	return fmt.Sprintf("%s/+/%s", TopicPrefix, appName)
}

// AllActionEvents returns a pattern matching one action across all apps.
//
// Pattern: synapse/{action}/+
func (Topics) AllActionEvents(action string) string {
	return fmt.Sprintf("%s/%s/+", TopicPrefix, action)
}

// AllTopics returns a pattern matching all Synapse topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: synapse/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
