// Package config handles loading and validating Aqua Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields (stations, schedules, providers)
//   - Default value handling
//
// Validation is strict: overlapping schedule entries, non-positive station
// area or flow rate, and unknown providers are all rejected at load time
// with ErrConfigInvalid. Bad configuration never reaches the coordinator.
//
// Security Considerations:
//   - Sensitive values (passwords, API keys, tokens) should be set via
//     environment variables (AQUACORE_WEATHER_API_KEY etc.)
//   - The config file should have restricted permissions (0600)
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load; changes require a reload
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
