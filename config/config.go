package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/celestiaorg/sequencer-relayer-celestia/cmd/genericconf"
	"github.com/celestiaorg/sequencer-relayer-celestia/das"
)

// Config is the root configuration structure
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Celestia CelestiaConfig `toml:"celestia"`
	Logging  LoggingConfig  `toml:"logging"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// ServerConfig contains RPC server settings
type ServerConfig struct {
	RPCAddr           string `toml:"rpc_addr"`
	RPCPort           uint64 `toml:"rpc_port"`
	RPCBodyLimit      int    `toml:"rpc_body_limit"`
	ReadTimeout       string `toml:"read_timeout"`
	ReadHeaderTimeout string `toml:"read_header_timeout"`
	WriteTimeout      string `toml:"write_timeout"`
	IdleTimeout       string `toml:"idle_timeout"`
}

// CelestiaConfig contains all Celestia-related settings
type CelestiaConfig struct {
	NamespaceID   string  `toml:"namespace_id"`
	GasPrice      float64 `toml:"gas_price"`
	GasMultiplier float64 `toml:"gas_multiplier"`
	NoopWriter    bool    `toml:"noop_writer"`
	SubmitTimeout string  `toml:"submit_timeout"`

	Reader ReaderConfig `toml:"reader"`
	Writer WriterConfig `toml:"writer"`
	Signer SignerConfig `toml:"signer"`
}

// ReaderConfig contains celestia-node connection settings for reading
type ReaderConfig struct {
	RPC       string `toml:"rpc"`
	AuthToken string `toml:"auth_token"`
}

// WriterConfig contains celestia-node connection settings for submission
type WriterConfig struct {
	RPC       string `toml:"rpc"`
	AuthToken string `toml:"auth_token"`
}

// SignerConfig points at the relayer's blob signing key
type SignerConfig struct {
	KeyFile string `toml:"key_file"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `toml:"level"`
	Type  string `toml:"type"`
}

// MetricsConfig contains metrics and profiling settings
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Addr      string `toml:"addr"`
	Port      int    `toml:"port"`
	PProf     bool   `toml:"pprof"`
	PProfAddr string `toml:"pprof_addr"`
	PProfPort int    `toml:"pprof_port"`
}

// LoadConfig loads configuration from a TOML file
func LoadConfig(path string) (*Config, error) {
	// Expand ~ in path
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home dir: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the TOML content
	content := expandEnvVars(string(data))

	cfg := DefaultConfig()
	if err := toml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR} or $VAR with environment variable values
func expandEnvVars(content string) string {
	// Match ${VAR} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	content = re.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1] // Remove ${ and }
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Keep original if env var not set
	})

	// Match $VAR pattern (simple form)
	re2 := regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	content = re2.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[1:] // Remove $
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Keep original if env var not set
	})

	return content
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c.Celestia.NamespaceID == "" {
		return fmt.Errorf("celestia.namespace_id is required")
	}

	if c.Celestia.Reader.RPC == "" && c.Celestia.Writer.RPC == "" {
		return fmt.Errorf("at least one of celestia.reader.rpc or celestia.writer.rpc is required")
	}

	if !c.Celestia.NoopWriter && c.Celestia.Writer.RPC != "" {
		if c.Celestia.Signer.KeyFile == "" {
			return fmt.Errorf("celestia.signer.key_file is required when a writer is configured")
		}
	}

	// Validate duration strings
	for name, value := range map[string]string{
		"celestia.submit_timeout":    c.Celestia.SubmitTimeout,
		"server.read_timeout":        c.Server.ReadTimeout,
		"server.read_header_timeout": c.Server.ReadHeaderTimeout,
		"server.write_timeout":       c.Server.WriteTimeout,
		"server.idle_timeout":        c.Server.IdleTimeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s duration: %w", name, err)
		}
	}

	return nil
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			RPCAddr:           "0.0.0.0",
			RPCPort:           9876,
			RPCBodyLimit:      0,
			ReadTimeout:       "30s",
			ReadHeaderTimeout: "10s",
			WriteTimeout:      "30s",
			IdleTimeout:       "120s",
		},
		Celestia: CelestiaConfig{
			GasPrice:      0.01,
			GasMultiplier: 1.01,
			SubmitTimeout: "5m",
		},
		Logging: LoggingConfig{
			Level: "INFO",
			Type:  "plaintext",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Addr:      "127.0.0.1",
			Port:      6060,
			PProfAddr: "127.0.0.1",
			PProfPort: 6061,
		},
	}
}

// DAConfig converts the TOML view into the das client configuration. The
// writer endpoint doubles as the primary RPC; the reader endpoint, when
// set, serves reads.
func (c *Config) DAConfig() (das.DAConfig, error) {
	submitTimeout, err := durationOrZero(c.Celestia.SubmitTimeout)
	if err != nil {
		return das.DAConfig{}, fmt.Errorf("invalid celestia.submit_timeout: %w", err)
	}

	rpc := c.Celestia.Writer.RPC
	authToken := c.Celestia.Writer.AuthToken
	if rpc == "" {
		rpc = c.Celestia.Reader.RPC
		authToken = c.Celestia.Reader.AuthToken
	}

	return das.DAConfig{
		Enable:        true,
		GasPrice:      c.Celestia.GasPrice,
		GasMultiplier: c.Celestia.GasMultiplier,
		Rpc:           rpc,
		AuthToken:     authToken,
		ReadRpc:       c.Celestia.Reader.RPC,
		ReadAuthToken: c.Celestia.Reader.AuthToken,
		NamespaceId:   c.Celestia.NamespaceID,
		KeyFile:       c.Celestia.Signer.KeyFile,
		NoopWriter:    c.Celestia.NoopWriter,
		SubmitTimeout: submitTimeout,
	}, nil
}

// ServerTimeouts converts the TOML duration strings into the HTTP server
// timeout configuration.
func (c *Config) ServerTimeouts() (genericconf.HTTPServerTimeoutConfig, error) {
	out := genericconf.HTTPServerTimeoutConfigDefault
	for _, d := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"server.read_timeout", c.Server.ReadTimeout, &out.ReadTimeout},
		{"server.read_header_timeout", c.Server.ReadHeaderTimeout, &out.ReadHeaderTimeout},
		{"server.write_timeout", c.Server.WriteTimeout, &out.WriteTimeout},
		{"server.idle_timeout", c.Server.IdleTimeout, &out.IdleTimeout},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return out, fmt.Errorf("invalid %s duration: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return out, nil
}

func durationOrZero(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	return time.ParseDuration(value)
}

// PrintConfig prints the configuration with sensitive values masked
func (c *Config) PrintConfig() string {
	var sb strings.Builder

	sb.WriteString("=== Configuration ===\n")
	sb.WriteString("[server]\n")
	sb.WriteString(fmt.Sprintf("  rpc_addr = %q\n", c.Server.RPCAddr))
	sb.WriteString(fmt.Sprintf("  rpc_port = %d\n", c.Server.RPCPort))
	sb.WriteString(fmt.Sprintf("  rpc_body_limit = %d\n", c.Server.RPCBodyLimit))

	sb.WriteString("\n[celestia]\n")
	sb.WriteString(fmt.Sprintf("  namespace_id = %q\n", c.Celestia.NamespaceID))
	sb.WriteString(fmt.Sprintf("  gas_price = %f\n", c.Celestia.GasPrice))
	sb.WriteString(fmt.Sprintf("  gas_multiplier = %f\n", c.Celestia.GasMultiplier))
	sb.WriteString(fmt.Sprintf("  noop_writer = %t\n", c.Celestia.NoopWriter))
	sb.WriteString(fmt.Sprintf("  submit_timeout = %q\n", c.Celestia.SubmitTimeout))

	sb.WriteString("\n[celestia.reader]\n")
	sb.WriteString(fmt.Sprintf("  rpc = %q\n", c.Celestia.Reader.RPC))
	sb.WriteString(fmt.Sprintf("  auth_token = %q\n", maskSecret(c.Celestia.Reader.AuthToken)))

	sb.WriteString("\n[celestia.writer]\n")
	sb.WriteString(fmt.Sprintf("  rpc = %q\n", c.Celestia.Writer.RPC))
	sb.WriteString(fmt.Sprintf("  auth_token = %q\n", maskSecret(c.Celestia.Writer.AuthToken)))

	sb.WriteString("\n[celestia.signer]\n")
	sb.WriteString(fmt.Sprintf("  key_file = %q\n", c.Celestia.Signer.KeyFile))

	sb.WriteString("\n[logging]\n")
	sb.WriteString(fmt.Sprintf("  level = %q\n", c.Logging.Level))
	sb.WriteString(fmt.Sprintf("  type = %q\n", c.Logging.Type))

	sb.WriteString("\n[metrics]\n")
	sb.WriteString(fmt.Sprintf("  enabled = %t\n", c.Metrics.Enabled))
	sb.WriteString(fmt.Sprintf("  addr = %q\n", c.Metrics.Addr))
	sb.WriteString(fmt.Sprintf("  port = %d\n", c.Metrics.Port))
	sb.WriteString(fmt.Sprintf("  pprof = %t\n", c.Metrics.PProf))

	return sb.String()
}

// maskSecret hides all but the first and last few characters of a secret
func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****" + secret[len(secret)-4:]
}
