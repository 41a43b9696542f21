// Package http implements an HTTP transport for roc. Every request is one POST to
// /rpc with the encoded request as body, the response body is the encoded response.
// It trades performance for compatibility with existing HTTP tooling (curl, proxies).
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport with round-robin selection
//     across endpoints and a simple retry loop.
//
//   - httpServerTransport: Implements IRPCServerTransport. Close shuts the server
//     down gracefully so requests in progress are still answered. With log level
//     debug every request is logged by a middleware.
package http
