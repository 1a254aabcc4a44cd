package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/themelio-labs/themelio-core/sync"
)

// Client is a grpc-backed sync.PeerClient plus the remaining light-client
// verbs of spec §4.J, all carried over the stdcode codec rather than
// protobuf.
type Client struct {
	cc *grpc.ClientConn
}

// Dial opens a plaintext grpc connection to a peer's sync/rpc listener.
// The node's own transport security (if any) is a separate concern from
// this wire codec, same as the teacher's grpc clients layer TLS
// independently of their protobuf schema.
func Dial(target string) (*Client, error) {
	cc, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc}, nil
}

func (c *Client) Close() error { return c.cc.Close() }

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) error {
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp); err != nil {
		return FromGRPCError(err)
	}
	return nil
}

func (c *Client) GetSummary(ctx context.Context, req *sync.GetSummaryRequest) (*sync.GetSummaryResponse, error) {
	resp := new(sync.GetSummaryResponse)
	if err := c.invoke(ctx, "GetSummary", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetAbbrBlock(ctx context.Context, req *sync.GetAbbrBlockRequest) (*sync.GetAbbrBlockResponse, error) {
	resp := new(sync.GetAbbrBlockResponse)
	if err := c.invoke(ctx, "GetAbbrBlock", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetSmtBranch(ctx context.Context, req *sync.GetSmtBranchRequest) (*sync.GetSmtBranchResponse, error) {
	resp := new(sync.GetSmtBranchResponse)
	if err := c.invoke(ctx, "GetSmtBranch", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetStakersRaw(ctx context.Context, req *sync.GetStakersRawRequest) (*sync.GetStakersRawResponse, error) {
	resp := new(sync.GetStakersRawResponse)
	if err := c.invoke(ctx, "GetStakersRaw", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetLz4Blocks(ctx context.Context, req *sync.GetLz4BlocksRequest) (*sync.GetLz4BlocksResponse, error) {
	resp := new(sync.GetLz4BlocksResponse)
	if err := c.invoke(ctx, "GetLz4Blocks", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) SendTx(ctx context.Context, req *sync.SendTxRequest) (*sync.SendTxResponse, error) {
	resp := new(sync.SendTxResponse)
	if err := c.invoke(ctx, "SendTx", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

var _ sync.PeerClient = (*Client)(nil)
