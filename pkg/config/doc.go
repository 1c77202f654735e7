// Package config loads shardctl's tool settings.
//
// Settings are layered with viper. Highest precedence first:
//
//  1. command-line flags the user actually set
//  2. SHARDCTL_* environment variables (SHARDCTL_LOG_LEVEL, SHARDCTL_COMPOSE_FILES, ...)
//  3. SHARDCTL_* entries in the .env file of the root directory
//  4. shardctl.yaml (or .toml/.json) in the root directory
//  5. defaults
//
// The service manifest itself is not a setting; see package manifest.
//
// Example shardctl.yaml:
//
//	services_dir: services
//	manifest: services.yml
//	policies: [policy/]
//	parallel: 4
//	timeout: 10m
//	compose:
//	  files: [docker-compose.yml, docker-compose.dev.yml]
//	  profile: dev
//	clone:
//	  backend: go-git
//	  depth: 1
package config
