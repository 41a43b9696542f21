// Package quic implements the default roc transport on top of quic-go. QUIC provides
// TLS 1.3 and stream multiplexing, so a client keeps one connection per endpoint and
// opens a dedicated bidirectional stream for every request.
//
// Exchange on a stream:
//
//	client: {"command":"GET","user_id":"...","key":"x"}\n  (then closes its send side)
//	server: {"Ok":5}\n                                      (then closes the stream)
//
// Without a configured key pair the server generates an in-memory self-signed
// ECDSA certificate, clients then need InsecureSkipVerify. Both sides negotiate the
// ALPN protocol "roc".
package quic
