// Package mqtt provides MQTT client connectivity for the historian.
//
// This package manages the broker connection with auto-reconnect, ingest
// subscriptions (re-sent in one request after a reconnect), retained
// publishes for statistics and the JSON status message with its Last Will
// for offline detection.
//
// # Architecture
//
// Gray Logic uses MQTT as its internal message bus. The historian subscribes
// to point sample topics and records each sample in the point value store.
// Its own online/offline state is published, retained, on the status topic.
//
//	Protocol Bridges → MQTT Broker → Historian → Point Value Store
//
// Topics live under a configurable prefix (default "graylogic/historian"):
//
//	<prefix>/point/<id>/value   sample for one data point
//	<prefix>/status             retained online/offline status (LWT)
//	<prefix>/stats              store statistics
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllPointValues(), 1,
//	    func(topic string, payload []byte) error {
//	        id, ok := client.Topics().ParsePointValue(topic)
//	        ...
//	    })
package mqtt
