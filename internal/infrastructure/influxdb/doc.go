// Package influxdb provides InfluxDB connectivity for control-core.
//
// It wraps the official influxdb-client-go v2 library with control-core-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This is the primary device-state history backend (see
// cmd/graylogic/telemetry.go's connectHistory): one point per
// InternalUpdate, recording a controllable device's power and brightness
// over time. Takes priority over the tsdb package's VictoriaMetrics writer
// when both are enabled.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "control-core",
//	    Bucket: "metrics",
//	}
//
//	client, err := influxdb.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WritePoint("device_state",
//	    map[string]string{"integration_id": "mqtt", "device_id": "light-living"},
//	    map[string]interface{}{"power": true, "brightness": 0.9})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
