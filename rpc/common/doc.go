// Package common provides the data structures shared by the roc server, the client
// and the transports.
//
// The package focuses on:
//   - The wire protocol: one JSON object per line per request and per response
//   - Configuration structures for client and server components
//   - A custom logger factory for the dragonboat logging facade used across roc
//
// Key Components:
//
//   - Request: a client request with a `command` discriminator (HI, PING, SET, GET,
//     DEL, UPDATE, RANGE, LIST, EXIT). DecodeRequest rejects malformed input before it
//     can reach the store, the error message always starts with "invalid request".
//
//   - Response: the reply shapes {"user_id"}, {"response"}, {"Ok"} and {"Err"}.
//     LIST and RANGE entries are encoded as [[user_id, key], value].
//
//   - ServerConfig / ClientConfig: settings filled from cobra flags and ROC_*
//     environment variables by the cmd package.
//
//   - InitLoggers: installs the `LEVEL | name | message` logger and sets the level
//     on every named logger of the server.
package common
