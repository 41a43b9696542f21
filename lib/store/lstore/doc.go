// Package lstore implements store.IStore in-process on top of the actor system.
//
// Every method builds the matching command.Command with a fresh one-shot reply, hands it to
// a store.Dispatcher (the session router in the server) and waits for the reply. The
// dispatch and the wait share one deadline derived from the configured timeout.
//
// Error mapping:
//
//   - store.Error values produced by the engine (e.g. RetCIOError when the write-ahead log
//     cannot be written) are returned unchanged
//   - store.ErrClosed becomes RetCUnavailable, the server is shutting down
//   - an expired deadline becomes RetCUnavailable, the server is overloaded
//
// Usage Example:
//
//	router := session.NewRouter(engine, session.Config{QueueSize: 64})
//	s := lstore.NewLocalStore(router, 5*time.Second)
//
//	id, _ := s.Hi("")
//	_ = s.Set(id, "a", 1)
//	value, found, err := s.Get(id, "a")
package lstore
