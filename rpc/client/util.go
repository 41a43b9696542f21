package client

import (
	"fmt"

	"github.com/ValentinKolb/roc/rpc/common"
	"github.com/ValentinKolb/roc/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
type rpcClientAdapter struct {
	config    common.ClientConfig
	transport transport.IRPCClientTransport
}

// invokeRPCRequest is a helper function used for all RPC Clients to send requests
// It takes a request and a transport layer as parameters
// It returns the decoded response. A response carrying an error is returned as error.
func invokeRPCRequest(req *common.Request, transport transport.IRPCClientTransport) (*common.Response, error) {
	// Encode the request
	reqBytes, err := common.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	// Send the request
	respBytes, err := transport.Send(reqBytes)
	if err != nil {
		return nil, err
	}

	// Decode the response
	resp, err := common.DecodeResponse(respBytes)
	if err != nil {
		return nil, fmt.Errorf("RPC %s - %w", req.Command, err)
	}

	// Check if the response is an error response
	if err := resp.AsError(); err != nil {
		return nil, fmt.Errorf("RPC %s - Error: %w", req.Command, err)
	}

	return resp, nil
}
