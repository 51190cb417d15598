package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteStationRun records a completed (or aborted) station run.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - controllerID: Controller identifier
//   - stationID: Station number on the controller
//   - minutes: Actual minutes the station ran
//   - litres: Water delivered during the run
//   - depthMm: Irrigation depth delivered (litres / area)
func (c *Client) WriteStationRun(controllerID string, stationID int, minutes float64, litres float64, depthMm float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"station_run",
		map[string]string{
			"controller": controllerID,
			"station":    strconv.Itoa(stationID),
		},
		map[string]interface{}{
			"minutes":  minutes,
			"litres":   litres,
			"depth_mm": depthMm,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteWaterUsage records the controller's cumulative water consumption.
//
// Parameters:
//   - controllerID: Controller identifier
//   - totalLitres: Cumulative litres delivered across all stations
func (c *Client) WriteWaterUsage(controllerID string, totalLitres float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"water_usage",
		map[string]string{
			"controller": controllerID,
		},
		map[string]interface{}{
			"total_litres": totalLitres,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteWeatherSnapshot records the normalized weather reading used for
// scheduling decisions. Tagged with the provider so stale/degraded periods
// can be distinguished in dashboards.
//
// Parameters:
//   - provider: Weather provider name ("openweathermap", "pirateweather", "none")
//   - rainMmToday: Rain fallen so far today
//   - forecastMmToday: Total expected rain today (fallen + forecast)
//   - degraded: Whether the snapshot is stale due to source failure
func (c *Client) WriteWeatherSnapshot(provider string, rainMmToday float64, forecastMmToday float64, degraded bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"weather",
		map[string]string{
			"provider": provider,
		},
		map[string]interface{}{
			"rain_mm_today":     rainMmToday,
			"forecast_mm_today": forecastMmToday,
			"degraded":          degraded,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
