// Package influxdb records light state history in InfluxDB v2.
//
// Every time an app reports new state for a light (through a
// configuration or update event) the service writes a light_state point
// tagged with the light's unique_id, entity_id and app. Writes are batched
// and non-blocking so a slow or absent InfluxDB never stalls the event bus.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history is optional
//	}
//	defer client.Close()
//
//	client.WriteLightState(influxdb.LightState{UniqueID: "lamp-1", On: true})
package influxdb
