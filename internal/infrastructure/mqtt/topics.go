package mqtt

import "fmt"

// Topic prefixes per control-core MQTT specification.
// See docs/protocols/mqtt.md for complete topic hierarchy.
//
// All bridge topics use the flat scheme: control-core/{category}/{protocol}/{address}
// This matches every adapter's topic layout (see internal/integration/mqttadapter).
const (
	// TopicPrefixBridge is the base for all bridge topics.
	// Flat scheme: control-core/{category}/{protocol}/{address_or_id}
	TopicPrefixBridge = "control-core"

	// TopicPrefixCore is the base for all core topics.
	TopicPrefixCore = "control-core/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "control-core/system"

	// TopicPrefixUI is the base for UI-specific topics.
	TopicPrefixUI = "control-core/ui"
)

// Topics provides builders for control-core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// Bridge topics use the flat scheme shared by every integration adapter:
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.BridgeState("knx", "light-living-main")
//	// Returns: "control-core/state/knx/light-living-main"
type Topics struct{}

// =============================================================================
// Bridge Topics
// =============================================================================

// BridgeState returns the topic for device state updates from a bridge.
//
// Example: control-core/state/knx/light-living-main
func (Topics) BridgeState(protocol, address string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefixBridge, protocol, address)
}

// BridgeCommand returns the topic for commands to a bridge.
//
// Example: control-core/command/knx/light-living-main
func (Topics) BridgeCommand(protocol, address string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixBridge, protocol, address)
}

// BridgeAck returns the topic for command acknowledgements from a bridge.
//
// Example: control-core/ack/knx/light-living-main
func (Topics) BridgeAck(protocol, address string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefixBridge, protocol, address)
}

// BridgeResponse returns the topic for request responses from a bridge.
//
// Example: control-core/response/knx/req-abc123
func (Topics) BridgeResponse(protocol, requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefixBridge, protocol, requestID)
}

// BridgeRequest returns the topic for requests to a bridge.
//
// Example: control-core/request/knx/req-abc123
func (Topics) BridgeRequest(protocol, requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefixBridge, protocol, requestID)
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: control-core/health/knx
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefixBridge, protocol)
}

// BridgeDiscovery returns the topic for device discovery from a bridge.
//
// Example: control-core/discovery/knx
func (Topics) BridgeDiscovery(protocol string) string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefixBridge, protocol)
}

// BridgeConfig returns the topic for configuration updates to a bridge.
//
// Example: control-core/config/knx
func (Topics) BridgeConfig(protocol string) string {
	return fmt.Sprintf("%s/config/%s", TopicPrefixBridge, protocol)
}

// =============================================================================
// Core Topics
// =============================================================================

// CoreDeviceState returns the canonical device state topic.
// This is the authoritative state published by Core after processing bridge updates.
//
// Example: control-core/core/device/light-living-main/state
func (Topics) CoreDeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefixCore, deviceID)
}

// CoreEvent returns the topic for system events.
//
// Example: control-core/core/event/device_state_changed
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// CoreSceneActivated returns the topic for scene activation events.
//
// Example: control-core/core/scene/cinema-mode/activated
func (Topics) CoreSceneActivated(sceneID string) string {
	return fmt.Sprintf("%s/scene/%s/activated", TopicPrefixCore, sceneID)
}

// CoreSceneProgress returns the topic for scene execution progress.
//
// Example: control-core/core/scene/cinema-mode/progress
func (Topics) CoreSceneProgress(sceneID string) string {
	return fmt.Sprintf("%s/scene/%s/progress", TopicPrefixCore, sceneID)
}

// CoreAutomationFired returns the topic for automation rule triggers.
//
// Example: control-core/core/automation/rule-sunrise-blinds/fired
func (Topics) CoreAutomationFired(ruleID string) string {
	return fmt.Sprintf("%s/automation/%s/fired", TopicPrefixCore, ruleID)
}

// CoreAlert returns the topic for system alerts.
//
// Example: control-core/core/alert/alert-dali-offline
func (Topics) CoreAlert(alertID string) string {
	return fmt.Sprintf("%s/alert/%s", TopicPrefixCore, alertID)
}

// CoreMode returns the topic for mode changes.
//
// Example: control-core/core/mode
func (Topics) CoreMode() string {
	return fmt.Sprintf("%s/mode", TopicPrefixCore)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
//
// Example: control-core/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemTime returns the time sync topic.
//
// Example: control-core/system/time
func (Topics) SystemTime() string {
	return fmt.Sprintf("%s/time", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: control-core/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// =============================================================================
// UI Topics
// =============================================================================

// UINotification returns the notification topic for a specific UI client.
//
// Example: control-core/ui/panel-kitchen/notification
func (Topics) UINotification(clientID string) string {
	return fmt.Sprintf("%s/%s/notification", TopicPrefixUI, clientID)
}

// UIPresence returns the presence topic for a specific UI client.
//
// Example: control-core/ui/panel-kitchen/presence
func (Topics) UIPresence(clientID string) string {
	return fmt.Sprintf("%s/%s/presence", TopicPrefixUI, clientID)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllBridgeStates returns a pattern matching all bridge state updates.
//
// Pattern: control-core/state/+/+
func (Topics) AllBridgeStates() string {
	return fmt.Sprintf("%s/state/+/+", TopicPrefixBridge)
}

// AllBridgeCommands returns a pattern matching all commands to bridges.
//
// Pattern: control-core/command/+/+
func (Topics) AllBridgeCommands() string {
	return fmt.Sprintf("%s/command/+/+", TopicPrefixBridge)
}

// AllBridgeAcks returns a pattern matching all bridge acknowledgements.
//
// Pattern: control-core/ack/+/+
func (Topics) AllBridgeAcks() string {
	return fmt.Sprintf("%s/ack/+/+", TopicPrefixBridge)
}

// AllBridgeHealth returns a pattern matching all bridge health updates.
//
// Pattern: control-core/health/+
func (Topics) AllBridgeHealth() string {
	return fmt.Sprintf("%s/health/+", TopicPrefixBridge)
}

// AllBridgeDiscovery returns a pattern matching all bridge discovery topics.
//
// Pattern: control-core/discovery/+
func (Topics) AllBridgeDiscovery() string {
	return fmt.Sprintf("%s/discovery/+", TopicPrefixBridge)
}

// AllBridgeRequests returns a pattern matching all bridge request topics.
//
// Pattern: control-core/request/+/+
func (Topics) AllBridgeRequests() string {
	return fmt.Sprintf("%s/request/+/+", TopicPrefixBridge)
}

// AllBridgeResponses returns a pattern matching all bridge response topics.
//
// Pattern: control-core/response/+/+
func (Topics) AllBridgeResponses() string {
	return fmt.Sprintf("%s/response/+/+", TopicPrefixBridge)
}

// AllBridgeConfigs returns a pattern matching all bridge config topics.
//
// Pattern: control-core/config/+
func (Topics) AllBridgeConfigs() string {
	return fmt.Sprintf("%s/config/+", TopicPrefixBridge)
}

// AllCoreDeviceStates returns a pattern matching all canonical device states.
//
// Pattern: control-core/core/device/+/state
func (Topics) AllCoreDeviceStates() string {
	return fmt.Sprintf("%s/device/+/state", TopicPrefixCore)
}

// AllCoreEvents returns a pattern matching all core events.
//
// Pattern: control-core/core/event/+
func (Topics) AllCoreEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefixCore)
}

// AllCoreAlerts returns a pattern matching all alerts.
//
// Pattern: control-core/core/alert/+
func (Topics) AllCoreAlerts() string {
	return fmt.Sprintf("%s/alert/+", TopicPrefixCore)
}

// AllTopics returns a pattern matching all control-core topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: control-core/#
func (Topics) AllTopics() string {
	return "control-core/#"
}
