package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client is a thin wrapper over a grpc.ClientConn dialed against this
// package's jsonCodec, mirroring the teacher's REST-proxy dial pattern
// in lnd.go (dial once, reuse the connection for every call) without
// the generated stub a .proto toolchain would otherwise produce.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a control-surface server at target.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)))
	conn, err := grpc.Dial(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out)
}

// GetInfo queries the remote node's identity and peer counts.
func (c *Client) GetInfo(ctx context.Context, req *GetInfoRequest) (*GetInfoResponse, error) {
	out := new(GetInfoResponse)
	if err := c.invoke(ctx, "GetInfo", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReportPeer submits a reputation change for a peer.
func (c *Client) ReportPeer(ctx context.Context, req *ReportPeerRequest) (*ReportPeerResponse, error) {
	out := new(ReportPeerResponse)
	if err := c.invoke(ctx, "ReportPeer", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPeerReputation looks up a peer's current reputation.
func (c *Client) GetPeerReputation(ctx context.Context, req *GetPeerReputationRequest) (*GetPeerReputationResponse, error) {
	out := new(GetPeerReputationResponse)
	if err := c.invoke(ctx, "GetPeerReputation", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DispatchVault forwards a VaultRequest to the remote node's vault
// manager for the named chain.
func (c *Client) DispatchVault(ctx context.Context, req *VaultDispatchRequest) (*VaultDispatchResponse, error) {
	out := new(VaultDispatchResponse)
	if err := c.invoke(ctx, "DispatchVault", req, out); err != nil {
		return nil, err
	}
	return out, nil
}
