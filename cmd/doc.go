// Package cmd implements the command-line interface for calbridge.
//
// This package provides the following commands:
//   - providers: List the calendar backends with a complete configuration
//   - events list|create|update|delete: Run one operation across all backends
//   - watch: Periodically fetch a window of events and serve metrics and probes
//   - version: Display version information
//
// Every command reads the backend configuration from the environment and the
// user's tokens from the file given by --credentials.
package cmd
