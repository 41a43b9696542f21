package server

import (
	"github.com/ValentinKolb/roc/lib/store"
	"github.com/ValentinKolb/roc/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a validated request and returns a response.
	// It takes a Request and a store as parameters.
	// If an error occurs, it is set in the response
	Handle(req *common.Request, store store.IStore) (resp *common.Response)
}
