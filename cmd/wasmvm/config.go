package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"

	"github.com/wippyai/wasmvm/cache"
)

const envPrefix = "WASMVM"

// Config keys, shared by flags, the config file and WASMVM_* variables.
const (
	keyHome              = "home"
	keyConfig            = "config"
	keyCapabilities      = "capabilities"
	keyMemoryCacheMiB    = "memory-cache-mib"
	keyInstanceMemoryMiB = "instance-memory-mib"
	keyPrintDebug        = "print-debug"
	keyGasLimit          = "gas-limit"
	keyLogLevel          = "log-level"
	keyLogFile           = "log-file"
	keyLogMaxSizeMiB     = "log-max-size-mib"
	keyMetricsAddr       = "metrics-addr"
)

type config struct {
	Home              string
	Capabilities      []string
	MemoryCacheMiB    uint32
	InstanceMemoryMiB uint32
	PrintDebug        bool
	GasLimit          uint64
	LogLevel          string
	LogFile           string
	LogMaxSizeMiB     int
	MetricsAddr       string
}

func defaultHome() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".wasmvm")
	}
	return ".wasmvm"
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: keyHome, Aliases: []string{"d"}, Usage: "data directory for code, compiled modules and contract state"},
		&cli.StringFlag{Name: keyConfig, Aliases: []string{"c"}, Usage: "config file (toml, yaml or json)"},
		&cli.StringFlag{Name: keyCapabilities, Usage: "comma separated capabilities offered to contracts"},
		&cli.UintFlag{Name: keyMemoryCacheMiB, Usage: "in-memory module cache size in MiB, 0 disables it"},
		&cli.UintFlag{Name: keyInstanceMemoryMiB, Usage: "linear memory limit per instance in MiB"},
		&cli.BoolFlag{Name: keyPrintDebug, Usage: "print contract debug messages to stderr"},
		&cli.Uint64Flag{Name: keyGasLimit, Usage: "gas limit per call"},
		&cli.StringFlag{Name: keyLogLevel, Usage: "debug, info, warn or error"},
		&cli.StringFlag{Name: keyLogFile, Usage: "also write logs to this file, rotated"},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyHome, defaultHome())
	v.SetDefault(keyCapabilities, "iterator,staking,stargate")
	v.SetDefault(keyMemoryCacheMiB, 100)
	v.SetDefault(keyInstanceMemoryMiB, 32)
	v.SetDefault(keyPrintDebug, false)
	v.SetDefault(keyGasLimit, uint64(500_000_000_000))
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogMaxSizeMiB, 100)
	v.SetDefault(keyMetricsAddr, "127.0.0.1:9464")
	return v
}

// loadConfig merges defaults, the config file, WASMVM_* variables and
// flags, in increasing precedence.
func loadConfig(c *cli.Context) (*config, error) {
	v := newViper()

	if path := c.String(keyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	for _, name := range []string{keyHome, keyCapabilities, keyLogLevel, keyLogFile} {
		if c.IsSet(name) {
			v.Set(name, c.String(name))
		}
	}
	for _, name := range []string{keyMemoryCacheMiB, keyInstanceMemoryMiB} {
		if c.IsSet(name) {
			v.Set(name, c.Uint(name))
		}
	}
	if c.IsSet(keyPrintDebug) {
		v.Set(keyPrintDebug, c.Bool(keyPrintDebug))
	}
	if c.IsSet(keyGasLimit) {
		v.Set(keyGasLimit, c.Uint64(keyGasLimit))
	}

	return &config{
		Home:              v.GetString(keyHome),
		Capabilities:      cache.ParseCapabilities(v.GetString(keyCapabilities)),
		MemoryCacheMiB:    v.GetUint32(keyMemoryCacheMiB),
		InstanceMemoryMiB: v.GetUint32(keyInstanceMemoryMiB),
		PrintDebug:        v.GetBool(keyPrintDebug),
		GasLimit:          v.GetUint64(keyGasLimit),
		LogLevel:          v.GetString(keyLogLevel),
		LogFile:           v.GetString(keyLogFile),
		LogMaxSizeMiB:     v.GetInt(keyLogMaxSizeMiB),
		MetricsAddr:       v.GetString(keyMetricsAddr),
	}, nil
}

func (c *config) codeDir() string {
	return filepath.Join(c.Home, "cache")
}

func (c *config) stateDir(contract string) string {
	return filepath.Join(c.Home, "state", contract)
}
