// Package mqtt provides MQTT client connectivity for the Synapse service.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored after reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// MQTT is the event bus between this service and the external apps that
// own the devices. Each app's events live under synapse/{action}/{app_name}:
//
//	Synapse service ↔ MQTT Broker ↔ External apps
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllAppEvents("kitchen"), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.PublishJSON(mqtt.Topics{}.Event("turn_on", "kitchen"),
//	    map[string]any{"unique_id": "abc123"})
package mqtt
