// Package transport defines the interfaces all roc transports implement. A transport
// carries exactly one encoded request and one encoded response per exchange, it knows
// nothing about the protocol inside the bytes.
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receive requests and pass them to the registered handler.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
//
// Implementations live in the sub packages: quic (one bidirectional stream per
// request, the default), tcp and unix (newline framed requests on pooled stream
// connections, built on base) and http (one POST per request).
package transport
