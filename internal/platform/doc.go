// Package platform defines the host side of the Synapse integration: the
// event bus adapters fire and listen on, and the entity contract that
// platforms such as lights hand to the entity registry.
//
// Two bus implementations are provided:
//   - LocalBus dispatches in-process, synchronously and in registration order
//   - MQTTBus maps each event name to an MQTT topic with a JSON object payload
//
// Adapters only ever see the Bus interface, so their logic can be tested by
// firing synthetic events on a LocalBus.
package platform
