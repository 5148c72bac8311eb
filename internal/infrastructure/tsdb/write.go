package tsdb

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// WriteDeviceMetric records a single numeric reading for a device — the
// lightweight counterpart to WritePoint when only one field is needed.
//
//	client.WriteDeviceMetric("thermostat-01", "temperature", 21.5)
func (c *Client) WriteDeviceMetric(deviceID string, measurement string, value float64) {
	c.enqueueLine(formatLineProtocol(
		"device_metrics",
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	))
}

// WriteEnergyMetric records power draw, and cumulative energy consumption
// when known (pass 0 to omit the energy_kwh field).
func (c *Client) WriteEnergyMetric(deviceID string, powerWatts float64, energyKWh float64) {
	fields := map[string]interface{}{
		"power_watts": powerWatts,
	}
	if energyKWh > 0 {
		fields["energy_kwh"] = energyKWh
	}

	c.enqueueLine(formatLineProtocol(
		"energy",
		map[string]string{
			"device_id": deviceID,
		},
		fields,
		time.Now(),
	))
}

// WritePoint writes an arbitrary measurement with its own tags and fields —
// the method recordDeviceHistory (cmd/graylogic/telemetry.go) uses to record
// device_state points.
//
//	client.WritePoint("device_state",
//	    map[string]string{"integration_id": "mqtt", "device_id": "light-kitchen"},
//	    map[string]interface{}{"power": true, "brightness": 0.8})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.enqueueLine(formatLineProtocol(measurement, tags, fields, time.Now()))
}

// WritePointWithTime is WritePoint for a point whose timestamp isn't "now",
// e.g. a late-arriving or backfilled reading.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	c.enqueueLine(formatLineProtocol(measurement, tags, fields, timestamp))
}

// formatLineProtocol renders a point as an InfluxDB line-protocol string:
// measurement,tag1=val1 field1=val1,field2=val2 timestamp_ns
func formatLineProtocol(measurement string, tags map[string]string, fields map[string]interface{}, t time.Time) string {
	var b strings.Builder

	b.WriteString(escapeMeasurement(measurement))

	tagKeys := make([]string, 0, len(tags))
	for k := range tags {
		tagKeys = append(tagKeys, k)
	}
	sort.Strings(tagKeys)
	for _, k := range tagKeys {
		b.WriteByte(',')
		b.WriteString(escapeTag(k))
		b.WriteByte('=')
		b.WriteString(escapeTag(tags[k]))
	}

	fieldKeys := make([]string, 0, len(fields))
	for k := range fields {
		fieldKeys = append(fieldKeys, k)
	}
	sort.Strings(fieldKeys)
	b.WriteByte(' ')
	first := true
	for _, k := range fieldKeys {
		v := fields[k]
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(escapeTag(k))
		b.WriteByte('=')
		switch val := v.(type) {
		case float64:
			b.WriteString(fmt.Sprintf("%g", val))
		case int:
			b.WriteString(fmt.Sprintf("%di", val))
		case int64:
			b.WriteString(fmt.Sprintf("%di", val))
		case bool:
			if val {
				b.WriteString("true")
			} else {
				b.WriteString("false")
			}
		case string:
			b.WriteString(fmt.Sprintf("%q", val))
		default:
			b.WriteString(fmt.Sprintf("%v", val))
		}
	}

	b.WriteByte(' ')
	b.WriteString(fmt.Sprintf("%d", t.UnixNano()))

	return b.String()
}

// escapeTag escapes commas, spaces and equals signs in a tag key or value
// per the line-protocol spec, and strips newlines to block line injection.
func escapeTag(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, " ", "\\ ")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "=", "\\=")
	return s
}

// escapeMeasurement is escapeTag's measurement-name counterpart: commas and
// spaces are escaped, newlines stripped; measurement names carry no '='.
func escapeMeasurement(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, " ", "\\ ")
	s = strings.ReplaceAll(s, ",", "\\,")
	return s
}
