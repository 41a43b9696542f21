// Package server implements the roc server process. It recovers the state from the data
// directory, starts the storage engine, the session router and the admin controller and
// exposes the store over a client transport.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes a decoded request against a store.IStore.
//
//   - NewIStoreServerAdapter: Factory function creating an adapter that translates
//     requests to store.IStore method calls and results to responses.
//
//   - NewRPCServer: Factory function creating a server with the specified transport.
//
// Usage Example:
//
//	config := common.DefaultServerConfig()
//	config.DataDir = "/var/lib/roc"
//
//	s := server.NewRPCServer(config, quic.NewQUICServerTransport())
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//
//	if err := s.Serve(ctx); err != nil {
//		log.Fatalf("Server error: %v", err)
//	}
//
// Lifecycle:
//
//	On start the checkpoint flag is set to DIRTY. Serve returns when the context is done,
//	an admin shutdown was requested or a component failed. The session router is closed
//	first, the engine then drains its queue and writes a final snapshot, and only if that
//	succeeded the flag is set back to CLEAN. A crash leaves the flag DIRTY and the next
//	start replays the write-ahead log.
//
// Thread Safety:
//
//	Requests of different connections are handled concurrently, all commands of one user
//	are serialized by the user's session. Serve must be called only once.
package server
