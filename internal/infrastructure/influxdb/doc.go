// Package influxdb writes motor bank time series to InfluxDB v2.
//
// It wraps influxdb-client-go's non-blocking write API. Three measurements
// are written:
//   - motor_state: every raw state change, tagged by motor number and name
//   - motor_event: every command-driven event
//   - link_status: the controller link going up or down
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err // optional subsystem; callers usually just warn
//	}
//	defer client.Close()
//
//	client.WriteMotorState(influxdb.MotorState{Number: 3, Name: "Kitchen", State: "opening"})
//
// Writes are batched per batch_size and flush_interval and never block the
// caller. Async failures are reported through SetOnError.
package influxdb
