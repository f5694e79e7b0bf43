// Package config provides layered configuration for the rngpool coordinator.
//
// Values are resolved from, lowest to highest precedence:
//   - built-in defaults (Default)
//   - an optional YAML (.yaml, .yml) or TOML (.toml) file
//   - environment variables
//   - command-line flags, applied by the caller
//
// Configuration Sections:
//   - Pool: worker count, sample interval, channel capacity, timeouts, mode
//   - Shutdown: graceful join and final reap timeouts
//   - Logging: log level and output format
//   - Status: optional status server address
//
// Example Usage:
//
//	cfg, err := config.Load("rngpool.yaml")
//	if err != nil {
//		return err
//	}
//	if err := cfg.Validate(); err != nil {
//		return err // errors.Is(err, config.ErrInvalidConfig)
//	}
//
// Environment Variables:
//   - RNGPOOL_WORKERS, RNGPOOL_INTERVAL, RNGPOOL_QUIET, RNGPOOL_MODE
//   - RNGPOOL_CAPACITY, RNGPOOL_SEND_TIMEOUT, RNGPOOL_RECEIVE_TIMEOUT
//   - RNGPOOL_JOIN_TIMEOUT, RNGPOOL_REAP_TIMEOUT
//   - RNGPOOL_STATUS_ADDR
//   - LOG_LEVEL, LOG_DEV
package config
