package client

import (
	"fmt"

	"github.com/ValentinKolb/roc/lib/command"
	"github.com/ValentinKolb/roc/lib/store"
	"github.com/ValentinKolb/roc/rpc/common"
	"github.com/ValentinKolb/roc/rpc/transport"
)

// NewRPCStore creates a new RPC store
// The function takes a config and a transport as parameters
// It returns a store.IStore and an error
func NewRPCStore(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
) (store.IStore, error) {

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	// Create a new RPC store
	return &rpcStore{
		rpcClientAdapter{
			config:    config,
			transport: transport,
		},
	}, nil
}

type rpcStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcStore) Hi(userID string) (string, error) {
	resp, err := invokeRPCRequest(common.NewHiRequest(userID), i.transport)
	if err != nil {
		return "", err
	}
	if resp.UserID == nil {
		return "", fmt.Errorf("RPC HI - response has no user_id")
	}
	return *resp.UserID, nil
}

func (i *rpcStore) Ping(userID string) (string, error) {
	resp, err := invokeRPCRequest(common.NewPingRequest(userID), i.transport)
	if err != nil {
		return "", err
	}
	if resp.Response == nil {
		return "", fmt.Errorf("RPC PING - response has no response field")
	}
	return *resp.Response, nil
}

func (i *rpcStore) Set(userID, key string, value uint64) error {
	return i.ack(common.NewSetRequest(userID, key, value))
}

func (i *rpcStore) Get(userID, key string) (uint64, bool, error) {
	resp, err := invokeRPCRequest(common.NewGetRequest(userID, key), i.transport)
	if err != nil {
		return 0, false, err
	}
	return resp.OkValue()
}

func (i *rpcStore) Delete(userID, key string) error {
	return i.ack(common.NewDelRequest(userID, key))
}

func (i *rpcStore) Update(userID, key string, value uint64) error {
	return i.ack(common.NewUpdateRequest(userID, key, value))
}

func (i *rpcStore) Range(userID, start, end string) ([]command.Entry, error) {
	return i.entries(common.NewRangeRequest(userID, start, end))
}

func (i *rpcStore) List(userID string) ([]command.Entry, error) {
	return i.entries(common.NewListRequest(userID))
}

func (i *rpcStore) Exit(userID string) error {
	return i.ack(common.NewExitRequest(userID))
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (i *rpcStore) ack(req *common.Request) error {
	resp, err := invokeRPCRequest(req, i.transport)
	if err != nil {
		return err
	}
	return resp.OkAck()
}

func (i *rpcStore) entries(req *common.Request) ([]command.Entry, error) {
	resp, err := invokeRPCRequest(req, i.transport)
	if err != nil {
		return nil, err
	}
	return resp.OkEntries()
}
