// Package compose is the thin glue between shardctl and a container compose
// tool. It never manages containers itself: it builds argument vectors with
// the configured compose files and profile, checks requested service names
// against the project (loaded with compose-go), forwards the command, and
// parses `ps --format json` output for the status table.
package compose
