// Package ingest records point samples published on MQTT.
//
// An Ingester subscribes to <prefix>/point/+/value, decodes each JSON
// sample and hands it to the point value store. Points are registered on
// first sight so orphan cleanup never removes ingested data.
//
// # Message Format
//
//	{
//	  "type":   "numeric",            // binary|multistate|numeric|alphanumeric|image
//	  "value":  21.5,                 // JSON type matches "type"; base64 for images
//	  "ts":     1700000000000,        // epoch ms, optional (receive time)
//	  "source": "knx:1/2/3",          // optional, stored as annotation
//	  "format": "png",                // images only: jpg|gif|png
//	  "sync":   false,                // true forces a confirmed insert
//	  "xid":    "DP_42",              // optional point metadata
//	  "name":   "Living room temp"
//	}
//
// Numeric, binary and multistate samples without a source go through the
// write-behind batcher unless "sync" is set. Everything else is inserted
// synchronously.
package ingest
