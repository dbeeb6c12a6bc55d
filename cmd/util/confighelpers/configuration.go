// Package confighelpers wires pflag, environment variables, and JSON config
// files into a single koanf-backed configuration parse.
package confighelpers

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/mitchellh/mapstructure"
	flag "github.com/spf13/pflag"
)

// BeginCommonParse parses args against f and layers environment variables
// and JSON config sources on top, returning the merged koanf tree.
// Precedence, lowest to highest: flags, env vars (conf.env-prefix), config
// files (conf.file), config string (conf.string).
func BeginCommonParse(f *flag.FlagSet, args []string) (*koanf.Koanf, error) {
	if err := f.Parse(args); err != nil {
		return nil, err
	}
	if f.NArg() != 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", f.Args())
	}

	k := koanf.New(".")
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("error loading command line flags: %w", err)
	}
	if err := applyOverrides(k); err != nil {
		return nil, err
	}
	return k, nil
}

func applyOverrides(k *koanf.Koanf) error {
	if envPrefix := k.String("conf.env-prefix"); envPrefix != "" {
		if err := loadEnvironmentVariables(k, envPrefix); err != nil {
			return fmt.Errorf("error loading environment variables: %w", err)
		}
	}
	for _, path := range k.Strings("conf.file") {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return fmt.Errorf("error loading config file %s: %w", path, err)
		}
	}
	if confString := k.String("conf.string"); confString != "" {
		if err := k.Load(rawbytes.Provider([]byte(confString)), json.Parser()); err != nil {
			return fmt.Errorf("error loading config string: %w", err)
		}
	}
	return nil
}

// loadEnvironmentVariables maps PREFIX_SOME_OPTION to some.option.
func loadEnvironmentVariables(k *koanf.Koanf, prefix string) error {
	return k.Load(env.Provider(prefix+"_", ".", func(key string) string {
		key = strings.ToLower(strings.TrimPrefix(key, prefix+"_"))
		return strings.ReplaceAll(key, "_", ".")
	}), nil)
}

// EndCommonParse unmarshals the merged tree into config, rejecting unknown
// keys so typos in flags or files fail loudly.
func EndCommonParse(k *koanf.Koanf, config interface{}) error {
	decoderConfig := mapstructure.DecoderConfig{
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           config,
		WeaklyTypedInput: true,
	}
	if err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{
		Tag:           "koanf",
		DecoderConfig: &decoderConfig,
	}); err != nil {
		return fmt.Errorf("error unmarshalling config: %w", err)
	}
	return nil
}

// DumpConfig prints the active configuration as JSON, with secret-bearing
// fields replaced by the given overrides, then exits.
func DumpConfig(k *koanf.Koanf, extraOverrideFields map[string]interface{}) error {
	if err := k.Load(confmap.Provider(extraOverrideFields, "."), nil); err != nil {
		return fmt.Errorf("error removing extra parameters before dump: %w", err)
	}
	out, err := k.Marshal(json.Parser())
	if err != nil {
		return fmt.Errorf("error marshalling config for dump: %w", err)
	}
	fmt.Println(string(out))
	os.Exit(0)
	return nil
}

func PrintErrorAndExit(err error, usage func(string)) {
	progname := "program"
	if len(os.Args) > 0 {
		progname = os.Args[0]
	}
	if err != nil && errors.Is(err, flag.ErrHelp) {
		usage(progname)
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		usage(progname)
		os.Exit(1)
	}
}
