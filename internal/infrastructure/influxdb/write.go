package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementLightState is the measurement holding light history.
const measurementLightState = "light_state"

// LightState is one observation of a light's state.
// Optional readings are nil when the app has not reported them.
type LightState struct {
	EntityID        string
	UniqueID        string
	AppName         string
	On              bool
	Brightness      *float64
	ColorTempKelvin *float64
	ColorMode       string
}

// WriteLightState records a light observation. Non-blocking; does nothing
// when the client is closed or nil.
func (c *Client) WriteLightState(s LightState) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(lightStatePoint(s, time.Now()))
}

// lightStatePoint tags by identity and stores readings as fields, so
// entity_id and unique_id stay low-cardinality indexes.
func lightStatePoint(s LightState, ts time.Time) *write.Point {
	tags := map[string]string{
		"unique_id": s.UniqueID,
		"app":       s.AppName,
	}
	if s.EntityID != "" {
		tags["entity_id"] = s.EntityID
	}

	fields := map[string]interface{}{
		"on": s.On,
	}
	if s.Brightness != nil {
		fields["brightness"] = *s.Brightness
	}
	if s.ColorTempKelvin != nil {
		fields["color_temp_kelvin"] = *s.ColorTempKelvin
	}
	if s.ColorMode != "" {
		fields["color_mode"] = s.ColorMode
	}

	return write.NewPoint(measurementLightState, tags, fields, ts)
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
