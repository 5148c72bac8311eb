package main

import (
	"context"

	"github.com/homeforge/control-core/internal/device"
	"github.com/homeforge/control-core/internal/infrastructure/config"
	"github.com/homeforge/control-core/internal/infrastructure/influxdb"
	"github.com/homeforge/control-core/internal/infrastructure/logging"
	"github.com/homeforge/control-core/internal/infrastructure/tsdb"
)

// historyWriter is the subset of the InfluxDB and line-protocol TSDB
// clients the dispatcher needs to record device-state history. Both
// *influxdb.Client and *tsdb.Client satisfy it as-is.
type historyWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{})
	Close() error
}

// connectHistory wires whichever telemetry backend the config enables.
// InfluxDB takes priority when both are enabled; at most one backend
// runs at a time since both write the same device_state measurement.
func connectHistory(ctx context.Context, cfg *config.Config, logger *logging.Logger) historyWriter {
	if cfg.InfluxDB.Enabled {
		cli, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			logger.Warn("influxdb connection failed, device-state history disabled", "err", err)
			return nil
		}
		cli.SetOnError(func(err error) {
			logger.Error("influxdb write failed", "err", err)
		})
		logger.Info("recording device-state history to influxdb", "url", cfg.InfluxDB.URL)
		return cli
	}
	if cfg.TSDB.Enabled {
		cli, err := tsdb.Connect(ctx, cfg.TSDB)
		if err != nil {
			logger.Warn("tsdb connection failed, device-state history disabled", "err", err)
			return nil
		}
		cli.SetOnError(func(err error) {
			logger.Error("tsdb write failed", "err", err)
		})
		logger.Info("recording device-state history to tsdb", "url", cfg.TSDB.URL)
		return cli
	}
	return nil
}

// recordDeviceHistory writes rec's current Controllable state as a
// device_state point (supplemented "Device state history" feature):
// one point per InternalUpdate, tagged by integration and device id so
// a dashboard can chart power/brightness over time per device.
func recordDeviceHistory(w historyWriter, rec *device.Record) {
	if w == nil || rec == nil || rec.DataKind != device.DataControllable || rec.Controllable == nil {
		return
	}
	fields := map[string]interface{}{
		"power": rec.Controllable.Power,
	}
	if rec.Controllable.Brightness != nil {
		fields["brightness"] = *rec.Controllable.Brightness
	}
	w.WritePoint(
		"device_state",
		map[string]string{
			"integration_id": rec.IntegrationID,
			"device_id":      rec.Key.DeviceID,
		},
		fields,
	)
}
