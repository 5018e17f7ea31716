// Package light exposes Synapse app lights as host entities.
//
// SetupEntry builds one Light per descriptor found in the bridge's
// configuration and hands them to the host. A Light holds a reference to its
// descriptor and reads it on every access, so state merged in by the bridge
// shows up immediately.
//
// # Setup modes
//
// SetupDynamic prefers the configuration the app published at runtime and
// falls back to the static app data. It also listens for the app's
// register event and hands over a wrapper for every light in the current
// configuration each time one arrives. Lights seen before are handed over
// again; the host registry decides what to do with them.
//
// SetupStatic uses the app data only and never listens.
//
// # Actions
//
// TurnOn and TurnOff send one event to the app carrying the light's
// unique_id plus the caller's parameters:
//
//	{"unique_id": "abc123", "brightness": 200}
//
// DispatchBridge hands the event to the bridge's EmitEvent; DispatchBus
// fires it on the host bus under the bridge's event name.
package light
