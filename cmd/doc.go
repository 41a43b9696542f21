// Package cmd implements the command-line interface of roc. It provides a
// hierarchical command structure with operations for running the server,
// talking to it as a client and controlling it as an operator.
//
// The package is organized into several subpackages:
//
//   - serve: Starts and configures the roc server
//   - kv: One-shot key-value operations (hi, set, get, range, perf, ...)
//   - shell: Interactive client session with line editing and history
//   - admin: Sends operator commands (shutdown, crash, clear-log, snapshot) to a server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as environment variable ROC_<FLAG> (e.g. ROC_DATA_DIR),
// .env and .env.local files in the working directory are loaded on start.
//
// See roc -help for a list of all commands.
package cmd
