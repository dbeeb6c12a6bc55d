// Command relayercli is a small probe for a running relayer server: it
// lists the sequencer blobs at a Celestia height, or retrieves and prints a
// fully verified block.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/celestiaorg/sequencer-relayer-celestia/relayerserver"
	"github.com/celestiaorg/sequencer-relayer-celestia/types"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	f := flag.NewFlagSet("relayercli", flag.ContinueOnError)
	rpcURL := f.String("rpc-url", relayerserver.DefaultClientConfig.RPCURL, "RPC URL of the relayer server")
	height := f.Uint64("height", 0, "Celestia height to read")
	blockHashHex := f.String("block-hash", "", "hex block hash to retrieve; omit to list sequencer blobs at the height")
	timeout := f.Duration("timeout", 30*time.Second, "request timeout")
	if err := f.Parse(args); err != nil {
		return err
	}
	if *height == 0 {
		return fmt.Errorf("please specify --height")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := relayerserver.NewClient(ctx, relayerserver.ClientConfig{
		RPCURL:         *rpcURL,
		RequestTimeout: *timeout,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	if *blockHashHex == "" {
		sequencerBlobs, err := client.GetSequencerBlobs(ctx, *height)
		if err != nil {
			return err
		}
		return printJSON(sequencerBlobs)
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(*blockHashHex, "0x"))
	if err != nil {
		return fmt.Errorf("invalid --block-hash: %w", err)
	}
	blockHash, err := types.BlockHashFromBytes(raw)
	if err != nil {
		return fmt.Errorf("invalid --block-hash: %w", err)
	}
	block, err := client.RetrieveBlock(ctx, *height, blockHash)
	if err != nil {
		return err
	}
	return printJSON(block)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
