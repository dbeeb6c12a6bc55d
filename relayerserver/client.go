package relayerserver

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/spf13/pflag"

	"github.com/celestiaorg/sequencer-relayer-celestia/blobs"
	"github.com/celestiaorg/sequencer-relayer-celestia/types"
)

// Client is a typed JSON-RPC client for the relayer server. The consensus
// collaborator uses it to hand finished blocks to the relayer; readers use
// it for verified retrieval.
type Client struct {
	rpc *rpc.Client
}

type ClientConfig struct {
	RPCURL         string        `koanf:"rpc-url"`
	RequestTimeout time.Duration `koanf:"request-timeout"`
}

var DefaultClientConfig = ClientConfig{
	RPCURL:         "http://localhost:9876",
	RequestTimeout: 30 * time.Second,
}

func ClientConfigAddOptions(prefix string, f *pflag.FlagSet) {
	f.String(prefix+".rpc-url", DefaultClientConfig.RPCURL, "RPC URL for the relayer server")
	f.Duration(prefix+".request-timeout", DefaultClientConfig.RequestTimeout, "timeout for RPC requests")
}

func NewClient(ctx context.Context, config ClientConfig) (*Client, error) {
	client, err := rpc.DialContext(ctx, config.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relayer server at %s: %w", config.RPCURL, err)
	}
	return &Client{rpc: client}, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) SubmitBlock(ctx context.Context, req *SubmitBlockRequest) (*SubmitBlockResult, error) {
	var result SubmitBlockResult
	if err := c.rpc.CallContext(ctx, &result, "relayer_submitBlock", req); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) RetrieveBlock(ctx context.Context, height uint64, blockHash types.BlockHash) (*RetrieveBlockResult, error) {
	var result RetrieveBlockResult
	if err := c.rpc.CallContext(ctx, &result, "relayer_retrieveBlock", hexutil.Uint64(height), blockHash); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetSequencerBlobs(ctx context.Context, height uint64) ([]blobs.CelestiaSequencerBlob, error) {
	var result []blobs.CelestiaSequencerBlob
	if err := c.rpc.CallContext(ctx, &result, "relayer_getSequencerBlobs", hexutil.Uint64(height)); err != nil {
		return nil, err
	}
	return result, nil
}
