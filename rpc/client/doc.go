// Package client implements store.IStore on top of a client transport, so remote users
// of a roc server work with the same API as in-process callers.
//
// Every method encodes one request line, sends it and decodes the response. A response
// of the form {"Err": "..."} is returned as error.
//
// Usage:
//
//	t := quic.NewQUICClientTransport()
//	s, err := client.NewRPCStore(config, t)
//	if err != nil {
//		return err
//	}
//	userID, err := client.LoadOrCreateUserID(s, config.UserIDFile, false)
//	...
//	err = s.Set(userID, "x", 5)
//
// LoadOrCreateUserID keeps the user id in ~/.roc_client/user_id.crd by default, so a
// client keeps its data across runs.
package client
