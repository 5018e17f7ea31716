// Package synapse implements the bridge between the host and one external
// Synapse app.
//
// A Bridge is created per configuration entry and passed explicitly to the
// platforms that need it. It owns:
//   - the static app data loaded from YAML at startup
//   - the dynamic configuration the app publishes at runtime
//   - the event names for the app (synapse/{action}/{app_name})
//   - the outbound transport used by EmitEvent
//
// Descriptors are shared by pointer. The bridge merges app updates into them
// in place, so every wrapper holding a descriptor sees new state on its
// next read.
package synapse
