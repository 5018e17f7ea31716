package synapse

import (
	"fmt"
	"maps"
	"sync"
)

// KeyUniqueID is the descriptor field holding the device identifier.
const KeyUniqueID = "unique_id"

// Descriptor is the live record the app reports for one device.
// It is safe for concurrent reads and merges.
type Descriptor struct {
	mu     sync.RWMutex
	fields map[string]any
}

// NewDescriptor copies fields into a new descriptor.
func NewDescriptor(fields map[string]any) *Descriptor {
	d := &Descriptor{fields: make(map[string]any, len(fields))}
	maps.Copy(d.fields, fields)
	return d
}

// Get returns the raw value stored under key.
func (d *Descriptor) Get(key string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.fields[key]
	return v, ok
}

// UniqueID returns the device identifier, or "" when missing or not a string.
func (d *Descriptor) UniqueID() string {
	v, _ := d.Get(KeyUniqueID)
	s, _ := v.(string)
	return s
}

// Merge overwrites the given fields. A nil value deletes the field so the
// reader falls back to its default.
func (d *Descriptor) Merge(fields map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range fields {
		if v == nil {
			delete(d.fields, k)
			continue
		}
		d.fields[k] = v
	}
}

// Replace swaps in a copy of fields, dropping every field not listed.
// Nil values are dropped as in Merge.
func (d *Descriptor) Replace(fields map[string]any) {
	next := make(map[string]any, len(fields))
	for k, v := range fields {
		if v != nil {
			next[k] = v
		}
	}
	d.mu.Lock()
	d.fields = next
	d.mu.Unlock()
}

// Snapshot returns a shallow copy of the current fields.
func (d *Descriptor) Snapshot() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.fields)
}

// Configuration maps a category name such as "light" to its descriptors,
// in the order the app listed them.
type Configuration map[string][]*Descriptor

// Category returns the descriptors of one category.
func (c Configuration) Category(name string) ([]*Descriptor, bool) {
	if c == nil {
		return nil, false
	}
	ds, ok := c[name]
	return ds, ok
}

// find returns the descriptor with uniqueID in any category.
func (c Configuration) find(uniqueID string) *Descriptor {
	if uniqueID == "" {
		return nil
	}
	for _, ds := range c {
		for _, d := range ds {
			if d.UniqueID() == uniqueID {
				return d
			}
		}
	}
	return nil
}

// ParseConfiguration converts a decoded JSON or YAML document of the form
// {category: [{field: value}, ...]} into a Configuration.
func ParseConfiguration(raw map[string]any) (Configuration, error) {
	cfg := make(Configuration, len(raw))
	for category, v := range raw {
		if v == nil {
			cfg[category] = nil
			continue
		}
		items, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: category %q is %T, want a list", ErrInvalidConfiguration, category, v)
		}
		ds := make([]*Descriptor, 0, len(items))
		for i, item := range items {
			fields, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%d] is %T, want an object", ErrInvalidConfiguration, category, i, item)
			}
			ds = append(ds, NewDescriptor(fields))
		}
		cfg[category] = ds
	}
	return cfg, nil
}
