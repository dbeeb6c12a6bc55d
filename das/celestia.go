// Package das publishes sequencer blocks to Celestia and retrieves them.
//
// Each block becomes one signed sequencer blob in the relayer's base
// namespace plus one signed rollup blob per rollup namespace, all paid for
// in a single submission. Retrieval is namespace-wide: whatever the network
// returns is filtered by signature and by proof checks, and bad blobs are
// skipped rather than failing the read.
package das

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	openrpc "github.com/celestiaorg/celestia-openrpc"
	"github.com/celestiaorg/celestia-openrpc/types/blob"
	"github.com/celestiaorg/celestia-openrpc/types/share"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/spf13/pflag"

	"github.com/celestiaorg/sequencer-relayer-celestia/blobs"
	"github.com/celestiaorg/sequencer-relayer-celestia/signer"
	"github.com/celestiaorg/sequencer-relayer-celestia/types"
)

type DAConfig struct {
	Enable        bool          `koanf:"enable"`
	GasPrice      float64       `koanf:"gas-price"`
	GasMultiplier float64       `koanf:"gas-multiplier"`
	Rpc           string        `koanf:"rpc"`
	ReadRpc       string        `koanf:"read-rpc"`
	NamespaceId   string        `koanf:"namespace-id"`
	AuthToken     string        `koanf:"auth-token"`
	ReadAuthToken string        `koanf:"read-auth-token"`
	KeyFile       string        `koanf:"key-file"`
	NoopWriter    bool          `koanf:"noop-writer"`
	SubmitTimeout time.Duration `koanf:"submit-timeout"`
}

func CelestiaDAConfigAddOptions(prefix string, f *pflag.FlagSet) {
	f.Bool(prefix+".enable", false, "Enable the Celestia DA connection")
	f.Float64(prefix+".gas-price", 0.01, "Gas price for retrying Celestia transactions")
	f.Float64(prefix+".gas-multiplier", 1.01, "Gas multiplier for Celestia transactions")
	f.String(prefix+".rpc", "", "Rpc endpoint for celestia-node")
	f.String(prefix+".read-rpc", "", "separate celestia RPC endpoint for reads")
	f.String(prefix+".namespace-id", "", "Celestia namespace to post sequencer blobs to")
	f.String(prefix+".auth-token", "", "Auth token for Celestia Node")
	f.String(prefix+".read-auth-token", "", "Auth token for the read Celestia Node")
	f.String(prefix+".key-file", "", "Path to the hex-encoded ed25519 seed used to sign blobs")
	f.Bool(prefix+".noop-writer", false, "Noop writer (disable posting to celestia)")
	f.Duration(prefix+".submit-timeout", time.Minute*5, "how long a single block submission may take before it is abandoned")
}

var (
	relayerLastSuccessfulActionGauge = metrics.NewRegisteredGauge("relayer/action/last_success", nil)
	relayerLastNonDefaultGasprice    = metrics.NewRegisteredGaugeFloat64("relayer/last_gas_price", nil)
	relayerSuccessCounter            = metrics.NewRegisteredCounter("relayer/action/celestia_success", nil)
	relayerFailureCounter            = metrics.NewRegisteredCounter("relayer/action/celestia_failure", nil)
	relayerGasRetries                = metrics.NewRegisteredCounter("relayer/action/gas_retries", nil)
	relayerSkippedBlobs              = metrics.NewRegisteredCounter("relayer/retrieval/skipped_blobs", nil)
	relayerBlobsPerBlockHistogram    = metrics.NewRegisteredHistogram("relayer/submission/blobs_per_block", nil, metrics.NewBoundedHistogramSample())
)

var (
	// ErrTxTimedout is the error message returned by the DA when mempool is congested
	ErrTxTimedout = errors.New("timed out waiting for tx to be included in a block")

	// ErrTxAlreadyInMempool is the error message returned by the DA when tx is already in mempool
	ErrTxAlreadyInMempool = errors.New("tx already in mempool")

	// ErrTxIncorrectAccountSequence is the error message returned by the DA when tx has incorrect sequence
	ErrTxIncorrectAccountSequence = errors.New("incorrect account sequence")

	// ErrBlockNotFound reports that no sequencer blob for the requested
	// block survived retrieval and verification.
	ErrBlockNotFound = errors.New("no verifiable sequencer blob found at height")
)

// defaultGasPrice lets the node pick the network's current default.
const defaultGasPrice = -1.0

type CelestiaClient struct {
	Cfg        *DAConfig
	Client     *openrpc.Client
	ReadClient *openrpc.Client

	Namespace share.Namespace
	Signer    *signer.Signer
}

func NewCelestiaClient(ctx context.Context, cfg *DAConfig) (*CelestiaClient, error) {
	if cfg == nil {
		return nil, errors.New("celestia cfg cannot be blank")
	}
	daClient, err := openrpc.NewClient(ctx, cfg.Rpc, cfg.AuthToken)
	if err != nil {
		return nil, err
	}

	readClient := daClient
	if cfg.ReadRpc != "" && cfg.ReadAuthToken != "" {
		readClient, err = openrpc.NewClient(ctx, cfg.ReadRpc, cfg.ReadAuthToken)
		if err != nil {
			return nil, err
		}
	}

	if cfg.NamespaceId == "" {
		return nil, errors.New("namespace id cannot be blank")
	}
	nsBytes, err := hex.DecodeString(cfg.NamespaceId)
	if err != nil {
		return nil, err
	}
	namespace, err := share.NewBlobNamespaceV0(nsBytes)
	if err != nil {
		return nil, err
	}

	var blobSigner *signer.Signer
	if cfg.KeyFile != "" {
		blobSigner, err = signer.FromFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load signing key: %w", err)
		}
	}

	return &CelestiaClient{
		Cfg:        cfg,
		Client:     daClient,
		ReadClient: readClient,
		Namespace:  namespace,
		Signer:     blobSigner,
	}, nil
}

func (c *CelestiaClient) Stop() error {
	if c.ReadClient != c.Client {
		c.ReadClient.Close()
	}
	c.Client.Close()
	return nil
}

// SubmitBlock signs and publishes a split block: the sequencer blob to the
// base namespace and each rollup blob to its rollup's derived namespace,
// all in one submission so the block lands at a single Celestia height.
// Returns the inclusion height.
func (c *CelestiaClient) SubmitBlock(ctx context.Context, sequencerBlob blobs.CelestiaSequencerBlob, rollupBlobs []blobs.CelestiaRollupBlob) (uint64, error) {
	if c.Cfg.NoopWriter {
		log.Warn("NoopWriter enabled, skipping block submission", "blockHash", sequencerBlob.BlockHash)
		relayerFailureCounter.Inc(1)
		return 0, errors.New("NoopWriter enabled")
	}
	if c.Signer == nil {
		relayerFailureCounter.Inc(1)
		return 0, errors.New("no signing key configured, cannot submit blobs")
	}

	dataBlobs, err := c.packBlock(sequencerBlob, rollupBlobs)
	if err != nil {
		relayerFailureCounter.Inc(1)
		log.Warn("Error packing block into blobs", "err", err)
		return 0, err
	}
	relayerBlobsPerBlockHistogram.Update(int64(len(dataBlobs)))

	// if a submission takes longer than this there is an issue with the
	// connection to the celestia node
	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout())
	defer cancel()

	height := uint64(0)
	gasPrice := defaultGasPrice
	for {
		height, err = c.Client.Blob.Submit(ctx, dataBlobs, openrpc.GasPrice(gasPrice))
		if err != nil {
			if isRetryableSubmitError(err) {
				log.Warn("Failed to submit blobs, bumping gas price and retrying...", "err", err)
				gasPrice = bumpGasPrice(gasPrice, c.Cfg.GasPrice, c.Cfg.GasMultiplier)
				relayerGasRetries.Inc(1)
				continue
			}
			relayerFailureCounter.Inc(1)
			log.Warn("Blob submission error", "err", err)
			return 0, err
		}
		if height == 0 {
			relayerFailureCounter.Inc(1)
			log.Warn("Unexpected height from blob response", "height", height)
			return 0, errors.New("unexpected response code")
		}
		break
	}
	relayerLastNonDefaultGasprice.Update(gasPrice)

	log.Info("Successfully posted block", "height", height, "blockHash", sequencerBlob.BlockHash, "rollupBlobs", len(rollupBlobs))
	relayerSuccessCounter.Inc(1)
	relayerLastSuccessfulActionGauge.Update(time.Now().Unix())
	return height, nil
}

// GetSequencerBlobs fetches every blob in the base namespace at height and
// returns those that carry a valid signed sequencer blob. Undecodable or
// unsigned blobs are logged and skipped.
func (c *CelestiaClient) GetSequencerBlobs(ctx context.Context, height uint64) ([]blobs.CelestiaSequencerBlob, error) {
	raw, err := c.ReadClient.Blob.GetAll(ctx, height, []share.Namespace{c.Namespace})
	if err != nil {
		relayerFailureCounter.Inc(1)
		return nil, fmt.Errorf("failed to get blobs at height %d: %w", height, err)
	}

	out := make([]blobs.CelestiaSequencerBlob, 0, len(raw))
	for _, b := range raw {
		var sequencerBlob blobs.CelestiaSequencerBlob
		if err := unwrapSigned(b.Data, &sequencerBlob); err != nil {
			log.Warn("Skipping blob in sequencer namespace", "height", height, "err", err)
			relayerSkippedBlobs.Inc(1)
			continue
		}
		out = append(out, sequencerBlob)
	}
	relayerLastSuccessfulActionGauge.Update(time.Now().Unix())
	return out, nil
}

// GetRollupBlobs fetches the namespaces derived from the sequencer blob's
// rollup ID list and returns, for each rollup, the first blob that carries
// a valid signature and passes proof verification against the sequencer
// blob. Missing rollups are not an error.
func (c *CelestiaClient) GetRollupBlobs(ctx context.Context, height uint64, sequencerBlob blobs.CelestiaSequencerBlob) ([]blobs.CelestiaRollupBlob, error) {
	out := make([]blobs.CelestiaRollupBlob, 0, len(sequencerBlob.RollupIds))
	for _, id := range sequencerBlob.RollupIds {
		namespace, err := NamespaceForRollup(id)
		if err != nil {
			return nil, err
		}
		raw, err := c.ReadClient.Blob.GetAll(ctx, height, []share.Namespace{namespace})
		if err != nil {
			relayerFailureCounter.Inc(1)
			return nil, fmt.Errorf("failed to get blobs for rollup %s at height %d: %w", id, height, err)
		}

		for _, b := range raw {
			var rollupBlob blobs.CelestiaRollupBlob
			if err := unwrapSigned(b.Data, &rollupBlob); err != nil {
				log.Warn("Skipping blob in rollup namespace", "rollup", id, "height", height, "err", err)
				relayerSkippedBlobs.Inc(1)
				continue
			}
			if err := blobs.ValidateRollupBlob(sequencerBlob, rollupBlob); err != nil {
				log.Warn("Skipping unverifiable rollup blob", "rollup", id, "height", height, "err", err)
				relayerSkippedBlobs.Inc(1)
				continue
			}
			out = append(out, rollupBlob)
			break
		}
	}
	relayerLastSuccessfulActionGauge.Update(time.Now().Unix())
	return out, nil
}

// RetrieveBlock fetches and fully verifies the block with the given hash at
// a Celestia height: sequencer blob, rollup blobs, and all proofs.
func (c *CelestiaClient) RetrieveBlock(ctx context.Context, height uint64, blockHash types.BlockHash) (*blobs.VerifiedBlock, error) {
	sequencerBlobs, err := c.GetSequencerBlobs(ctx, height)
	if err != nil {
		return nil, err
	}
	for _, sequencerBlob := range sequencerBlobs {
		if sequencerBlob.BlockHash != blockHash {
			continue
		}
		rollupBlobs, err := c.GetRollupBlobs(ctx, height, sequencerBlob)
		if err != nil {
			return nil, err
		}
		verified, err := blobs.Validate(sequencerBlob, rollupBlobs)
		if err != nil {
			log.Warn("Skipping unverifiable sequencer blob", "height", height, "blockHash", blockHash, "err", err)
			relayerSkippedBlobs.Inc(1)
			continue
		}
		return verified, nil
	}
	return nil, fmt.Errorf("%w: block %s at height %d", ErrBlockNotFound, blockHash, height)
}

// NamespaceForRollup converts a rollup's derived namespace into the share
// namespace blobs are filed under on Celestia.
func NamespaceForRollup(id types.RollupId) (share.Namespace, error) {
	return share.NewBlobNamespaceV0(types.NamespaceForRollup(id).Bytes())
}

func (c *CelestiaClient) submitTimeout() time.Duration {
	if c.Cfg.SubmitTimeout > 0 {
		return c.Cfg.SubmitTimeout
	}
	return time.Minute * 5
}

// packBlock signs the sequencer blob and every rollup blob and converts
// them into namespace-filed Celestia blobs ready for one submission.
func (c *CelestiaClient) packBlock(sequencerBlob blobs.CelestiaSequencerBlob, rollupBlobs []blobs.CelestiaRollupBlob) ([]*blob.Blob, error) {
	out := make([]*blob.Blob, 0, 1+len(rollupBlobs))

	raw, err := seal(c.Signer, sequencerBlob)
	if err != nil {
		return nil, err
	}
	sequencerDataBlob, err := blob.NewBlobV0(c.Namespace, raw)
	if err != nil {
		return nil, err
	}
	out = append(out, sequencerDataBlob)

	for _, rollupBlob := range rollupBlobs {
		namespace, err := NamespaceForRollup(rollupBlob.RollupId)
		if err != nil {
			return nil, err
		}
		raw, err := seal(c.Signer, rollupBlob)
		if err != nil {
			return nil, err
		}
		rollupDataBlob, err := blob.NewBlobV0(namespace, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rollupDataBlob)
	}
	return out, nil
}

func seal(s *signer.Signer, payload interface{}) ([]byte, error) {
	signed, err := s.Sign(payload)
	if err != nil {
		return nil, err
	}
	return signed.Bytes()
}

// unwrapSigned decodes a signed envelope from raw blob bytes, verifies the
// signature, and deserializes the payload into v.
func unwrapSigned(raw []byte, v interface{}) error {
	envelope, err := signer.SignedBlobFromBytes(raw)
	if err != nil {
		return err
	}
	return envelope.Unwrap(v)
}

func isRetryableSubmitError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, ErrTxTimedout.Error()) ||
		strings.Contains(msg, ErrTxAlreadyInMempool.Error()) ||
		strings.Contains(msg, ErrTxIncorrectAccountSequence.Error())
}

// bumpGasPrice moves from the node default to the configured floor, then
// multiplies on every further retry.
func bumpGasPrice(current, floor, multiplier float64) float64 {
	if current == defaultGasPrice {
		return floor
	}
	return current * multiplier
}
