// Package influxdb mirrors persisted point values into InfluxDB.
//
// The relational store stays the system of record. InfluxDB holds a copy
// for dashboards and ad-hoc analysis, written through the batching
// non-blocking API of influxdb-client-go v2.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetLogger(log)
//	store.SetMirror(client)
//
// Each value becomes a point in the point_values measurement tagged with
// point_id and data_type, with the data type name as its field key.
// Batch write failures are logged; Connect and HealthCheck return theirs.
// The store calls Flush once its write-behind queue has drained on
// shutdown.
package influxdb
