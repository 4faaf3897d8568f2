package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasmvm"
)

func main() {
	a := &app{}
	cliApp := &cli.App{
		Name:   "wasmvm",
		Usage:  "store, inspect and call wasm contracts",
		Flags:  globalFlags(),
		Before: a.before,
		After:  a.after,
		Commands: []*cli.Command{
			a.storeCommand(),
			a.getCommand(),
			a.removeCommand(),
			a.pinCommand(),
			a.unpinCommand(),
			a.analyzeCommand(),
			a.metricsCommand(),
			a.callCommand(),
			a.serveMetricsCommand(),
			a.interactiveCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg *config
	log *zap.Logger
}

func (a *app) before(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.cfg, a.log = cfg, log
	return nil
}

func (a *app) after(*cli.Context) error {
	if a.log != nil {
		// stderr cannot always be synced
		_ = a.log.Sync()
	}
	return nil
}

func (a *app) openVM() (*wasmvm.VM, error) {
	return wasmvm.NewVMWithConfig(wasmvm.Config{
		DataDir:                a.cfg.codeDir(),
		Capabilities:           a.cfg.Capabilities,
		MemoryCacheSizeMiB:     a.cfg.MemoryCacheMiB,
		InstanceMemoryLimitMiB: a.cfg.InstanceMemoryMiB,
		PrintDebug:             a.cfg.PrintDebug,
		Logger:                 a.log,
	})
}

// withVM runs fn with an open VM and releases it afterwards.
func (a *app) withVM(fn func(vm *wasmvm.VM) error) (err error) {
	vm, err := a.openVM()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, vm.Cleanup())
	}()
	return fn(vm)
}
