// Package config handles loading and validating the Synapse service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (SYNAPSE_*)
//   - Validation of required fields
//   - Default value handling, including per-entry defaults
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, entry := range cfg.Synapse.Entries {
//	    fmt.Println(entry.ID, entry.AppName)
//	}
package config
