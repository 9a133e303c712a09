// Package config loads the balancer configuration from defaults, an
// optional config.yaml and environment variables, validates it, and can
// watch the file for live changes to the selection settings.
//
// Environment variables use the key path in upper case with dots replaced
// by underscores, for example STRATEGY_TYPE or RELAY_IDLE_GAP.
package config
