// Package config loads sharing service configuration from environment
// variables, with an optional YAML file overlay for deployments that
// prefer checked-in configuration.
package config
