package server

import (
	"fmt"

	"github.com/ValentinKolb/roc/lib/store"
	"github.com/ValentinKolb/roc/rpc/common"
)

func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Handle(req *common.Request, store store.IStore) *common.Response {
	// Check for nil store
	if store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	userID := req.UserIDOrEmpty()

	// Handle different commands (the request was validated, required fields are set)
	switch req.Command {
	case common.CmdHi:
		return common.NewHiResponse(store.Hi(userID))
	case common.CmdPing:
		return common.NewPingResponse(store.Ping(userID))
	case common.CmdSet:
		return common.NewAckResponse(store.Set(userID, *req.Key, *req.Value))
	case common.CmdGet:
		return common.NewGetResponse(store.Get(userID, *req.Key))
	case common.CmdDel:
		return common.NewAckResponse(store.Delete(userID, *req.Key))
	case common.CmdUpdate:
		return common.NewAckResponse(store.Update(userID, *req.Key, *req.Value))
	case common.CmdRange:
		return common.NewEntriesResponse(store.Range(userID, *req.Start, *req.End))
	case common.CmdList:
		return common.NewEntriesResponse(store.List(userID))
	case common.CmdExit:
		return common.NewAckResponse(store.Exit(userID))
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC IStoreAdapter - Unsupported command: %s", req.Command),
		)
	}
}
