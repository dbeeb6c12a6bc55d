package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/exp"

	"github.com/celestiaorg/sequencer-relayer-celestia/cmd/genericconf"
	"github.com/celestiaorg/sequencer-relayer-celestia/cmd/util/confighelpers"
	"github.com/celestiaorg/sequencer-relayer-celestia/config"
	"github.com/celestiaorg/sequencer-relayer-celestia/das"
	"github.com/celestiaorg/sequencer-relayer-celestia/relayerserver"
)

type RelayerServerConfig struct {
	Conf       genericconf.ConfConfig `koanf:"conf"`
	ConfigFile string                 `koanf:"config-file"`

	EnableRPC          bool                                `koanf:"enable-rpc"`
	RPCAddr            string                              `koanf:"rpc-addr"`
	RPCPort            uint64                              `koanf:"rpc-port"`
	RPCServerTimeouts  genericconf.HTTPServerTimeoutConfig `koanf:"rpc-server-timeouts"`
	RPCServerBodyLimit int                                 `koanf:"rpc-server-body-limit"`

	Celestia das.DAConfig `koanf:"celestia"`

	LogLevel string `koanf:"log-level"`
	LogType  string `koanf:"log-type"`

	Metrics       bool                            `koanf:"metrics"`
	MetricsServer genericconf.MetricsServerConfig `koanf:"metrics-server"`
	PProf         bool                            `koanf:"pprof"`
	PprofCfg      genericconf.PProf               `koanf:"pprof-cfg"`
}

var DefaultRelayerServerConfig = RelayerServerConfig{
	Conf:               genericconf.ConfConfigDefault,
	EnableRPC:          true,
	RPCAddr:            "localhost",
	RPCPort:            9876,
	RPCServerTimeouts:  genericconf.HTTPServerTimeoutConfigDefault,
	RPCServerBodyLimit: genericconf.HTTPServerBodyLimitDefault,
	LogLevel:           "INFO",
	LogType:            "plaintext",
	Metrics:            false,
	MetricsServer:      genericconf.MetricsServerConfigDefault,
	PProf:              false,
	PprofCfg:           genericconf.PProfDefault,
}

func main() {
	if err := startup(); err != nil {
		gethlog.Error("Error running relayer server", "err", err)
	}
}

func printSampleUsage(progname string) {
	fmt.Printf("\n")
	fmt.Printf("Sample usage:                  %s --help \n", progname)
}

func parseRelayerServer(args []string) (*RelayerServerConfig, error) {
	f := flag.NewFlagSet("relayerserver", flag.ContinueOnError)
	genericconf.ConfConfigAddOptions("conf", f)

	f.String("config-file", DefaultRelayerServerConfig.ConfigFile, "path to a TOML configuration file; flags set on the command line take effect only where the file is silent")

	f.Bool("enable-rpc", DefaultRelayerServerConfig.EnableRPC, "enable the HTTP-RPC server listening on rpc-addr and rpc-port")
	f.String("rpc-addr", DefaultRelayerServerConfig.RPCAddr, "HTTP-RPC server listening interface")
	f.Uint64("rpc-port", DefaultRelayerServerConfig.RPCPort, "HTTP-RPC server listening port")
	f.Int("rpc-server-body-limit", DefaultRelayerServerConfig.RPCServerBodyLimit, "HTTP-RPC server maximum request body size in bytes; the default (0) uses geth's 5MB limit")
	genericconf.HTTPServerTimeoutConfigAddOptions("rpc-server-timeouts", f)

	f.Bool("metrics", DefaultRelayerServerConfig.Metrics, "enable metrics")
	genericconf.MetricsServerAddOptions("metrics-server", f)

	f.Bool("pprof", DefaultRelayerServerConfig.PProf, "enable pprof")
	genericconf.PProfAddOptions("pprof-cfg", f)

	f.String("log-level", DefaultRelayerServerConfig.LogLevel, "log level, valid values are CRIT, ERROR, WARN, INFO, DEBUG, TRACE")
	f.String("log-type", DefaultRelayerServerConfig.LogType, "log type (plaintext or json)")

	das.CelestiaDAConfigAddOptions("celestia", f)

	k, err := confighelpers.BeginCommonParse(f, args)
	if err != nil {
		return nil, err
	}

	var serverConfig RelayerServerConfig
	if err := confighelpers.EndCommonParse(k, &serverConfig); err != nil {
		return nil, err
	}
	if serverConfig.Conf.Dump {
		err = confighelpers.DumpConfig(k, map[string]interface{}{
			"celestia.auth-token":      "",
			"celestia.read-auth-token": "",
		})
		if err != nil {
			return nil, fmt.Errorf("error removing extra parameters before dump: %w", err)
		}
	}
	return &serverConfig, nil
}

// applyFileConfig overlays settings from a TOML configuration file onto the
// flag-derived config. The file wins wherever it sets a value.
func applyFileConfig(serverConfig *RelayerServerConfig) error {
	fileCfg, err := config.LoadConfig(serverConfig.ConfigFile)
	if err != nil {
		return err
	}

	daConfig, err := fileCfg.DAConfig()
	if err != nil {
		return err
	}
	serverConfig.Celestia = daConfig

	timeouts, err := fileCfg.ServerTimeouts()
	if err != nil {
		return err
	}
	serverConfig.RPCServerTimeouts = timeouts
	serverConfig.RPCAddr = fileCfg.Server.RPCAddr
	serverConfig.RPCPort = fileCfg.Server.RPCPort
	serverConfig.RPCServerBodyLimit = fileCfg.Server.RPCBodyLimit

	serverConfig.LogLevel = fileCfg.Logging.Level
	serverConfig.LogType = fileCfg.Logging.Type

	if fileCfg.Metrics.Enabled {
		serverConfig.Metrics = true
		serverConfig.MetricsServer.Addr = fileCfg.Metrics.Addr
		serverConfig.MetricsServer.Port = fileCfg.Metrics.Port
	}
	if fileCfg.Metrics.PProf {
		serverConfig.PProf = true
		serverConfig.PprofCfg.Addr = fileCfg.Metrics.PProfAddr
		serverConfig.PprofCfg.Port = fileCfg.Metrics.PProfPort
	}
	return nil
}

// Checks metrics and PProf flag, runs them if enabled.
// Note: they are separate so one can enable/disable them as they wish, the only
// requirement is that they can't run on the same address and port.
func startMetrics(cfg *RelayerServerConfig) error {
	mAddr := fmt.Sprintf("%v:%v", cfg.MetricsServer.Addr, cfg.MetricsServer.Port)
	pAddr := fmt.Sprintf("%v:%v", cfg.PprofCfg.Addr, cfg.PprofCfg.Port)
	if cfg.Metrics && cfg.PProf && mAddr == pAddr {
		return fmt.Errorf("metrics and pprof cannot be enabled on the same address:port: %s", mAddr)
	}
	if cfg.Metrics {
		go metrics.CollectProcessMetrics(cfg.MetricsServer.UpdateInterval)
		exp.Setup(mAddr)
	}
	if cfg.PProf {
		genericconf.StartPprof(pAddr)
	}
	return nil
}

func startup() error {
	serverConfig, err := parseRelayerServer(os.Args[1:])
	if err != nil {
		confighelpers.PrintErrorAndExit(err, printSampleUsage)
	}
	if serverConfig.ConfigFile != "" {
		if err := applyFileConfig(serverConfig); err != nil {
			confighelpers.PrintErrorAndExit(err, printSampleUsage)
		}
	}
	if !serverConfig.EnableRPC {
		confighelpers.PrintErrorAndExit(errors.New("please specify --enable-rpc"), printSampleUsage)
	}

	logLevel, err := genericconf.ToSlogLevel(serverConfig.LogLevel)
	if err != nil {
		confighelpers.PrintErrorAndExit(err, printSampleUsage)
	}
	handler, err := genericconf.HandlerFromLogType(serverConfig.LogType, io.Writer(os.Stderr))
	if err != nil {
		flag.Usage()
		return fmt.Errorf("error parsing log type when creating handler: %w", err)
	}
	glogger := gethlog.NewGlogHandler(handler)
	glogger.Verbosity(logLevel)
	gethlog.SetDefault(gethlog.NewLogger(glogger))

	if err := startMetrics(serverConfig); err != nil {
		return err
	}

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	celestiaClient, err := das.NewCelestiaClient(ctx, &serverConfig.Celestia)
	if err != nil {
		return err
	}

	var rpcServer *http.Server
	if serverConfig.EnableRPC {
		rpcServer, err = relayerserver.StartRPCServer(
			ctx,
			serverConfig.RPCAddr,
			serverConfig.RPCPort,
			serverConfig.RPCServerTimeouts,
			serverConfig.RPCServerBodyLimit,
			celestiaClient,
			celestiaClient,
		)
		if err != nil {
			return err
		}
	}

	<-sigint
	_ = celestiaClient.Stop()

	if rpcServer != nil {
		err = rpcServer.Shutdown(ctx)
	}
	return err
}
