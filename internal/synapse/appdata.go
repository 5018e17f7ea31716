package synapse

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadAppData reads the static app data file. The document maps category
// names to descriptor lists:
//
//	light:
//	  - unique_id: desk-lamp
//	    name: Desk lamp
//	    is_on: false
//	    supported_color_modes: [brightness]
//
// An empty path yields empty app data.
func LoadAppData(path string) (Configuration, error) {
	if path == "" {
		return Configuration{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading app data %s: %w", path, err)
	}
	return ParseAppData(data)
}

// ParseAppData decodes an app data YAML document.
func ParseAppData(data []byte) (Configuration, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing app data: %w", ErrInvalidConfiguration, err)
	}
	if raw == nil {
		return Configuration{}, nil
	}
	return ParseConfiguration(raw)
}
