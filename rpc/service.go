package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/themelio-labs/themelio-core/sync"
)

// ServiceName is the grpc full service name the sync surface is
// registered under.
const ServiceName = "themelio.node.Sync"

// SyncServer is the set of methods the sync ServiceDesc dispatches to.
// *sync.Server satisfies this directly — there is no adapter layer
// between the domain backend and the wire.
type SyncServer interface {
	GetSummary(context.Context, *sync.GetSummaryRequest) (*sync.GetSummaryResponse, error)
	GetAbbrBlock(context.Context, *sync.GetAbbrBlockRequest) (*sync.GetAbbrBlockResponse, error)
	GetSmtBranch(context.Context, *sync.GetSmtBranchRequest) (*sync.GetSmtBranchResponse, error)
	GetStakersRaw(context.Context, *sync.GetStakersRawRequest) (*sync.GetStakersRawResponse, error)
	GetLz4Blocks(context.Context, *sync.GetLz4BlocksRequest) (*sync.GetLz4BlocksResponse, error)
	SendTx(context.Context, *sync.SendTxRequest) (*sync.SendTxResponse, error)
}

func _Sync_GetSummary_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(sync.GetSummaryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncServer).GetSummary(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/GetSummary"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SyncServer).GetSummary(ctx, req.(*sync.GetSummaryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Sync_GetAbbrBlock_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(sync.GetAbbrBlockRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncServer).GetAbbrBlock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/GetAbbrBlock"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SyncServer).GetAbbrBlock(ctx, req.(*sync.GetAbbrBlockRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Sync_GetSmtBranch_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(sync.GetSmtBranchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncServer).GetSmtBranch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/GetSmtBranch"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SyncServer).GetSmtBranch(ctx, req.(*sync.GetSmtBranchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Sync_GetStakersRaw_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(sync.GetStakersRawRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncServer).GetStakersRaw(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/GetStakersRaw"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SyncServer).GetStakersRaw(ctx, req.(*sync.GetStakersRawRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Sync_GetLz4Blocks_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(sync.GetLz4BlocksRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncServer).GetLz4Blocks(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/GetLz4Blocks"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SyncServer).GetLz4Blocks(ctx, req.(*sync.GetLz4BlocksRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Sync_SendTx_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(sync.SendTxRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncServer).SendTx(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/SendTx"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SyncServer).SendTx(ctx, req.(*sync.SendTxRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the grpc registration descriptor for the sync surface,
// shaped exactly as protoc-gen-go-grpc would emit it for a six-rpc
// service — RegisterSyncServer below is this repo's hand-written stand-in
// for the generated registration function.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SyncServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSummary", Handler: _Sync_GetSummary_Handler},
		{MethodName: "GetAbbrBlock", Handler: _Sync_GetAbbrBlock_Handler},
		{MethodName: "GetSmtBranch", Handler: _Sync_GetSmtBranch_Handler},
		{MethodName: "GetStakersRaw", Handler: _Sync_GetStakersRaw_Handler},
		{MethodName: "GetLz4Blocks", Handler: _Sync_GetLz4Blocks_Handler},
		{MethodName: "SendTx", Handler: _Sync_SendTx_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "themelio/sync.go",
}

// RegisterSyncServer attaches srv's six verbs to server under ServiceDesc.
func RegisterSyncServer(server *grpc.Server, srv SyncServer) {
	server.RegisterService(&ServiceDesc, srv)
}
