package server

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/tKV/lib/cluster"
	"github.com/ValentinKolb/tKV/rpc/common"
)

// NewCacheServerAdapter creates the adapter translating cache requests into
// operations of a cluster node
func NewCacheServerAdapter() IRPCServerAdapter {
	return &cacheServerAdapterImpl{}
}

type cacheServerAdapterImpl struct{}

func (adapter *cacheServerAdapterImpl) Handle(ctx context.Context, req *common.Message, node *cluster.Node) *common.Message {
	// Check for nil node
	if node == nil {
		return common.NewErrorResponse("handler: node is nil")
	}

	var opts []cluster.WriteOption
	if req.Lifespan > 0 {
		opts = append(opts, cluster.WithLifespan(time.Duration(req.Lifespan)*time.Millisecond))
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTPut:
		prev, err := node.Put(ctx, req.Key, req.Value, opts...)
		return common.NewPutResponse(prev, err)
	case common.MsgTPutIfAbsent:
		existing, ok, err := node.PutIfAbsent(ctx, req.Key, req.Value, opts...)
		return common.NewPutIfAbsentResponse(existing, ok, err)
	case common.MsgTGet:
		val, ok, err := node.Get(ctx, req.Key)
		return common.NewGetResponse(val, ok, err)
	case common.MsgTRemove:
		prev, err := node.Remove(ctx, req.Key)
		return common.NewRemoveResponse(prev, err)
	case common.MsgTRemoveIf:
		ok, err := node.RemoveIf(ctx, req.Key, req.Expected)
		return common.NewRemoveIfResponse(ok, err)
	case common.MsgTReplace:
		prev, ok, err := node.Replace(ctx, req.Key, req.Value, opts...)
		return common.NewReplaceResponse(prev, ok, err)
	case common.MsgTReplaceIf:
		ok, err := node.ReplaceIf(ctx, req.Key, req.Expected, req.Value, opts...)
		return common.NewReplaceIfResponse(ok, err)
	case common.MsgTCompute:
		val, err := node.Compute(ctx, req.Key, req.Function, req.Value, opts...)
		return common.NewComputeResponse(val, err)
	case common.MsgTPutAll:
		prev, err := node.PutAll(ctx, req.Entries, opts...)
		return common.NewPutAllResponse(prev, err)
	case common.MsgTStats:
		return common.NewStatsResponse([]byte(node.Stats().String()), nil)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC CacheAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
