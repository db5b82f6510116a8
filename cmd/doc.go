// Package cmd implements the command-line interface for the tKV distributed
// cache. It provides a hierarchical command structure with operations for
// running a cluster node and interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - cache: Commands for cache operations (put, get, remove, compute, etc.)
//   - serve: Commands for starting and configuring a tKV node
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See tkv -help for a list of all commands.
package cmd
