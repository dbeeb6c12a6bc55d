// Package relayerserver exposes the relayer over JSON-RPC: block submission
// for the consensus collaborator and verified retrieval for rollup readers.
package relayerserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/celestiaorg/sequencer-relayer-celestia/blobs"
	"github.com/celestiaorg/sequencer-relayer-celestia/cmd/genericconf"
	"github.com/celestiaorg/sequencer-relayer-celestia/das"
	"github.com/celestiaorg/sequencer-relayer-celestia/tree"
	"github.com/celestiaorg/sequencer-relayer-celestia/types"
)

var (
	rpcSubmitRequestGauge      = metrics.NewRegisteredGauge("relayer/rpc/submit/requests", nil)
	rpcSubmitSuccessGauge      = metrics.NewRegisteredGauge("relayer/rpc/submit/success", nil)
	rpcSubmitFailureGauge      = metrics.NewRegisteredGauge("relayer/rpc/submit/failure", nil)
	rpcSubmitDurationHistogram = metrics.NewRegisteredHistogram("relayer/rpc/submit/duration", nil, metrics.NewBoundedHistogramSample())

	rpcRetrieveRequestGauge      = metrics.NewRegisteredGauge("relayer/rpc/retrieve/requests", nil)
	rpcRetrieveSuccessGauge      = metrics.NewRegisteredGauge("relayer/rpc/retrieve/success", nil)
	rpcRetrieveFailureGauge      = metrics.NewRegisteredGauge("relayer/rpc/retrieve/failure", nil)
	rpcRetrieveDurationHistogram = metrics.NewRegisteredHistogram("relayer/rpc/retrieve/duration", nil, metrics.NewBoundedHistogramSample())
)

// SubmitBlockRequest carries an unsplit block: the header, the bundles in
// canonical order, and the audit paths the block producer committed.
type SubmitBlockRequest struct {
	Header                  types.SequencerBlockHeader `json:"header"`
	Bundles                 []blobs.RollupBundle       `json:"bundles"`
	RollupTransactionsProof tree.AuditPath             `json:"rollup_transactions_proof"`
	RollupIdsProof          tree.AuditPath             `json:"rollup_ids_proof"`
	BundleProofs            []tree.AuditPath           `json:"bundle_proofs"`
}

type SubmitBlockResult struct {
	Height    hexutil.Uint64  `json:"height"`
	BlockHash types.BlockHash `json:"block_hash"`
}

type RetrievedRollup struct {
	RollupId     types.RollupId `json:"rollup_id"`
	Transactions [][]byte       `json:"transactions"`
}

// RetrieveBlockResult is the verified view of a block: only rollups whose
// blobs passed proof verification appear in Rollups.
type RetrieveBlockResult struct {
	BlockHash types.BlockHash            `json:"block_hash"`
	Header    types.SequencerBlockHeader `json:"header"`
	RollupIds []types.RollupId           `json:"rollup_ids"`
	Rollups   []RetrievedRollup          `json:"rollups"`
}

type RelayerRPCServer struct {
	reader das.BlockReader
	writer das.BlockWriter
}

func StartRPCServer(ctx context.Context, addr string, portNum uint64, rpcServerTimeouts genericconf.HTTPServerTimeoutConfig, rpcServerBodyLimit int, reader das.BlockReader, writer das.BlockWriter) (*http.Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", addr, portNum))
	if err != nil {
		return nil, err
	}
	return StartRPCServerOnListener(ctx, listener, rpcServerTimeouts, rpcServerBodyLimit, reader, writer)
}

func StartRPCServerOnListener(ctx context.Context, listener net.Listener, rpcServerTimeouts genericconf.HTTPServerTimeoutConfig, rpcServerBodyLimit int, reader das.BlockReader, writer das.BlockWriter) (*http.Server, error) {
	if writer == nil {
		return nil, errors.New("no writer backend was configured for the relayer RPC server")
	}
	rpcServer := rpc.NewServer()
	if rpcServerBodyLimit > 0 {
		rpcServer.SetHTTPBodyLimit(rpcServerBodyLimit)
	}
	err := rpcServer.RegisterName("relayer", &RelayerRPCServer{
		reader: reader,
		writer: writer,
	})
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Handler:           rpcServer,
		ReadTimeout:       rpcServerTimeouts.ReadTimeout,
		ReadHeaderTimeout: rpcServerTimeouts.ReadHeaderTimeout,
		WriteTimeout:      rpcServerTimeouts.WriteTimeout,
		IdleTimeout:       rpcServerTimeouts.IdleTimeout,
	}

	go func() {
		if err := srv.Serve(listener); err != nil {
			return
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	return srv, nil
}

// SubmitBlock splits the block into its header and rollup blobs and
// publishes them to Celestia. Returns the inclusion height and the block
// hash the blobs are filed under.
func (serv *RelayerRPCServer) SubmitBlock(ctx context.Context, req *SubmitBlockRequest) (*SubmitBlockResult, error) {
	log.Trace("relayerRpc.RelayerRPCServer.SubmitBlock", "height", req.Header.Height, "bundles", len(req.Bundles), "this", serv)
	rpcSubmitRequestGauge.Inc(1)
	start := time.Now()
	success := false
	defer func() {
		if success {
			rpcSubmitSuccessGauge.Inc(1)
		} else {
			rpcSubmitFailureGauge.Inc(1)
		}
		rpcSubmitDurationHistogram.Update(time.Since(start).Nanoseconds())
	}()

	sequencerBlob, rollupBlobs, err := blobs.Split(req.Header, req.Bundles, req.RollupTransactionsProof, req.RollupIdsProof, req.BundleProofs)
	if err != nil {
		return nil, err
	}
	height, err := serv.writer.SubmitBlock(ctx, sequencerBlob, rollupBlobs)
	if err != nil {
		return nil, err
	}
	success = true
	return &SubmitBlockResult{
		Height:    hexutil.Uint64(height),
		BlockHash: sequencerBlob.BlockHash,
	}, nil
}

// RetrieveBlock fetches the block with the given hash at a Celestia height
// and verifies every blob against the header's commitments.
func (serv *RelayerRPCServer) RetrieveBlock(ctx context.Context, height hexutil.Uint64, blockHash types.BlockHash) (*RetrieveBlockResult, error) {
	log.Trace("relayerRpc.RelayerRPCServer.RetrieveBlock", "height", height, "blockHash", blockHash, "this", serv)
	rpcRetrieveRequestGauge.Inc(1)
	start := time.Now()
	success := false
	defer func() {
		if success {
			rpcRetrieveSuccessGauge.Inc(1)
		} else {
			rpcRetrieveFailureGauge.Inc(1)
		}
		rpcRetrieveDurationHistogram.Update(time.Since(start).Nanoseconds())
	}()

	verified, err := serv.reader.RetrieveBlock(ctx, uint64(height), blockHash)
	if err != nil {
		return nil, err
	}
	success = true
	return retrieveResultFromVerified(verified), nil
}

// GetSequencerBlobs lists the signed sequencer blobs found at a Celestia
// height, without rollup blob verification. Callers use it to discover
// which blocks landed at a height before retrieving one in full.
func (serv *RelayerRPCServer) GetSequencerBlobs(ctx context.Context, height hexutil.Uint64) ([]blobs.CelestiaSequencerBlob, error) {
	log.Trace("relayerRpc.RelayerRPCServer.GetSequencerBlobs", "height", height, "this", serv)
	return serv.reader.GetSequencerBlobs(ctx, uint64(height))
}

func retrieveResultFromVerified(verified *blobs.VerifiedBlock) *RetrieveBlockResult {
	rollupIds := verified.RollupIds()
	rollups := make([]RetrievedRollup, 0, len(rollupIds))
	for _, id := range rollupIds {
		txs, ok := verified.Transactions(id)
		if !ok {
			continue
		}
		rollups = append(rollups, RetrievedRollup{RollupId: id, Transactions: txs})
	}
	return &RetrieveBlockResult{
		BlockHash: verified.BlockHash(),
		Header:    verified.Header(),
		RollupIds: rollupIds,
		Rollups:   rollups,
	}
}
