// Package mqtt provides MQTT client connectivity for Aqua Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Aqua Core uses MQTT as the message bus connecting the coordinator to
// station valve hardware and to external consumers of published state.
// The broker (Mosquitto) decouples the core from valve-specific gateways.
//
//	Aqua Core ↔ MQTT Broker ↔ Valve Gateways / Consumers
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to station valve feedback
//	err = client.Subscribe(mqtt.Topics{}.AllStationStates("garden"), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish command
//	topic := mqtt.Topics{}.StationSet("garden", 3)
//	client.Publish(topic, []byte(`{"on":true}`), 1, false)
package mqtt
