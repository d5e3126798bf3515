// Package config handles loading and validating Motorbank Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (MOTORBANK_*)
//   - Validation of required fields, collected into one error
//   - Default value handling
//
// The transport section describes the single link (TCP or serial) shared by
// all eight motors. The motors section only carries presentation data (names,
// summary icons); motor count is fixed at MotorCount.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Transport.Type)
package config
