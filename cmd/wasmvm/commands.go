package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasmvm"
	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/metrics"
	"github.com/wippyai/wasmvm/runtime"
	"github.com/wippyai/wasmvm/types"
)

func checksumArg(c *cli.Context) ([]byte, error) {
	if c.NArg() < 1 {
		return nil, fmt.Errorf("missing checksum argument")
	}
	cs, err := types.ParseChecksum(c.Args().First())
	if err != nil {
		return nil, err
	}
	return cs.Bytes(), nil
}

// printJSON indents output for terminals and keeps it compact for pipes.
func printJSON(w io.Writer, v any) error {
	var (
		data []byte
		err  error
	)
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func (a *app) storeCommand() *cli.Command {
	return &cli.Command{
		Name:      "store",
		Usage:     "validate, compile and store a wasm file",
		ArgsUsage: "<file.wasm>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "unchecked", Usage: "skip static validation"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("missing wasm file argument")
			}
			code, err := os.ReadFile(c.Args().First())
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}
			return a.withVM(func(vm *wasmvm.VM) error {
				var (
					checksum []byte
					cost     uint64
				)
				if c.Bool("unchecked") {
					checksum, err = vm.StoreCodeUnchecked(code)
				} else {
					checksum, cost, err = vm.StoreCode(code, math.MaxUint64)
				}
				if err != nil {
					return err
				}
				a.log.Info("code stored", zap.String("checksum", hex.EncodeToString(checksum)), zap.Int("size", len(code)))
				return printJSON(os.Stdout, map[string]any{
					"checksum": hex.EncodeToString(checksum),
					"gas_cost": cost,
				})
			})
		},
	}
}

func (a *app) getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "write stored code to a file",
		ArgsUsage: "<checksum>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Required: true, Usage: "output file"},
		},
		Action: func(c *cli.Context) error {
			checksum, err := checksumArg(c)
			if err != nil {
				return err
			}
			return a.withVM(func(vm *wasmvm.VM) error {
				code, err := vm.GetCode(checksum)
				if err != nil {
					return err
				}
				return os.WriteFile(c.String("out"), code, 0o644)
			})
		},
	}
}

// checksumCommand builds a command taking one checksum and no output.
func (a *app) checksumCommand(name, usage string, fn func(*wasmvm.VM, []byte) error) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<checksum>",
		Action: func(c *cli.Context) error {
			checksum, err := checksumArg(c)
			if err != nil {
				return err
			}
			return a.withVM(func(vm *wasmvm.VM) error {
				if err := fn(vm, checksum); err != nil {
					return err
				}
				a.log.Info(name+" done", zap.String("checksum", hex.EncodeToString(checksum)))
				return nil
			})
		},
	}
}

func (a *app) removeCommand() *cli.Command {
	return a.checksumCommand("remove", "delete stored code", (*wasmvm.VM).RemoveCode)
}

func (a *app) pinCommand() *cli.Command {
	return a.checksumCommand("pin", "keep the compiled module in memory", (*wasmvm.VM).Pin)
}

func (a *app) unpinCommand() *cli.Command {
	return a.checksumCommand("unpin", "release a pinned module", (*wasmvm.VM).Unpin)
}

func (a *app) analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "report entry points and required capabilities",
		ArgsUsage: "<checksum>",
		Action: func(c *cli.Context) error {
			checksum, err := checksumArg(c)
			if err != nil {
				return err
			}
			return a.withVM(func(vm *wasmvm.VM) error {
				report, err := vm.AnalyzeCode(checksum)
				if err != nil {
					return err
				}
				return printJSON(os.Stdout, report)
			})
		},
	}
}

func (a *app) metricsCommand() *cli.Command {
	return &cli.Command{
		Name:  "metrics",
		Usage: "print cache metrics",
		Action: func(c *cli.Context) error {
			return a.withVM(func(vm *wasmvm.VM) error {
				m, err := vm.GetMetrics()
				if err != nil {
					return err
				}
				return printJSON(os.Stdout, m)
			})
		},
	}
}

// entryPoints are the names accepted by call and interactive.
func entryPoints() []string {
	names := []string{
		runtime.EntryInstantiate, runtime.EntryExecute, runtime.EntryQuery,
		runtime.EntryMigrate, runtime.EntrySudo, runtime.EntryReply,
		runtime.EntryIBCChannelOpen, runtime.EntryIBCChannelConnect, runtime.EntryIBCChannelClose,
		runtime.EntryIBCPacketReceive, runtime.EntryIBCPacketAck, runtime.EntryIBCPacketTimeout,
	}
	sort.Strings(names)
	return names
}

type envMsgCall func(wasmvm.Checksum, []byte, []byte, wasmvm.KVStore, wasmvm.GoAPI, wasmvm.Querier, wasmvm.GasMeter, uint64) ([]byte, types.GasReport, error)

// callEntry dispatches one entry point call against state.
func callEntry(vm *wasmvm.VM, entry string, checksum, env, info, msg []byte, state *contractState, gasLimit uint64) ([]byte, types.GasReport, error) {
	switch entry {
	case runtime.EntryInstantiate:
		return vm.Instantiate(checksum, env, info, msg, state.store, localAPI{}, localQuerier{}, state.meter, gasLimit)
	case runtime.EntryExecute:
		return vm.Execute(checksum, env, info, msg, state.store, localAPI{}, localQuerier{}, state.meter, gasLimit)
	}

	calls := map[string]envMsgCall{
		runtime.EntryQuery:             vm.Query,
		runtime.EntryMigrate:           vm.Migrate,
		runtime.EntrySudo:              vm.Sudo,
		runtime.EntryReply:             vm.Reply,
		runtime.EntryIBCChannelOpen:    vm.IBCChannelOpen,
		runtime.EntryIBCChannelConnect: vm.IBCChannelConnect,
		runtime.EntryIBCChannelClose:   vm.IBCChannelClose,
		runtime.EntryIBCPacketReceive:  vm.IBCPacketReceive,
		runtime.EntryIBCPacketAck:      vm.IBCPacketAck,
		runtime.EntryIBCPacketTimeout:  vm.IBCPacketTimeout,
	}
	fn, ok := calls[entry]
	if !ok {
		return nil, types.GasReport{}, errors.InvalidInput(errors.PhaseBoundary, "unknown entry point %q", entry)
	}
	return fn(checksum, env, msg, state.store, localAPI{}, localQuerier{}, state.meter, gasLimit)
}

type callOutput struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Gas    types.GasReport `json:"gas"`
}

// resultJSON keeps JSON results as they are and quotes anything else.
func resultJSON(res []byte) json.RawMessage {
	if json.Valid(res) {
		return res
	}
	quoted, _ := json.Marshal(string(res))
	return quoted
}

func callFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "contract", Value: "contract0", Usage: "contract address, selects the state directory"},
		&cli.StringFlag{Name: "sender", Value: "creator", Usage: "message sender"},
		&cli.Uint64Flag{Name: "height", Value: 1, Usage: "block height"},
	}
}

func (a *app) callCommand() *cli.Command {
	return &cli.Command{
		Name:      "call",
		Usage:     "call an entry point of stored code",
		ArgsUsage: "<entry> <checksum>",
		Flags: append(callFlags(),
			&cli.StringFlag{Name: "msg", Value: "{}", Usage: "JSON message"},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("usage: call <entry> <checksum>; entries: %v", entryPoints())
			}
			entry := c.Args().Get(0)
			cs, err := types.ParseChecksum(c.Args().Get(1))
			if err != nil {
				return err
			}

			contract := c.String("contract")
			env, err := envJSON(contract, c.Uint64("height"), time.Now())
			if err != nil {
				return err
			}
			info, err := infoJSON(c.String("sender"))
			if err != nil {
				return err
			}

			return a.withVM(func(vm *wasmvm.VM) (err error) {
				state, err := openState(a.cfg.stateDir(contract), a.cfg.GasLimit)
				if err != nil {
					return err
				}
				defer func() {
					err = multierr.Append(err, state.Close())
				}()

				res, report, callErr := callEntry(vm, entry, cs.Bytes(), env, info, []byte(c.String("msg")), state, a.cfg.GasLimit)
				a.log.Debug("call finished",
					zap.String("entry", entry),
					zap.String("contract", contract),
					zap.Uint64("gas_used", report.Total()),
					zap.Error(callErr))

				out := callOutput{Gas: report}
				if callErr != nil {
					out.Error = callErr.Error()
				} else {
					out.Result = resultJSON(res)
				}
				if err := printJSON(os.Stdout, out); err != nil {
					return err
				}
				return callErr
			})
		},
	}
}

func (a *app) serveMetricsCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve-metrics",
		Usage: "serve cache metrics for Prometheus",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "listen address, defaults to metrics-addr from config"},
		},
		Action: func(c *cli.Context) error {
			addr := a.cfg.MetricsAddr
			if c.IsSet("listen") {
				addr = c.String("listen")
			}
			return a.withVM(func(vm *wasmvm.VM) error {
				reg := prometheus.NewRegistry()
				reg.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				)
				if _, err := metrics.Register(reg, "wasmvm", vm, a.log); err != nil {
					return err
				}

				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

				ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
				defer stop()
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()

				a.log.Info("serving metrics", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
}

func (a *app) interactiveCommand() *cli.Command {
	return &cli.Command{
		Name:      "interactive",
		Aliases:   []string{"i"},
		Usage:     "call entry points of stored code from a terminal UI",
		ArgsUsage: "<checksum>",
		Flags:     callFlags(),
		Action: func(c *cli.Context) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("interactive mode needs a terminal")
			}
			checksum, err := checksumArg(c)
			if err != nil {
				return err
			}
			return a.withVM(func(vm *wasmvm.VM) (err error) {
				contract := c.String("contract")
				state, err := openState(a.cfg.stateDir(contract), a.cfg.GasLimit)
				if err != nil {
					return err
				}
				defer func() {
					err = multierr.Append(err, state.Close())
				}()
				return runInteractive(&session{
					vm:       vm,
					checksum: checksum,
					state:    state,
					contract: contract,
					sender:   c.String("sender"),
					height:   c.Uint64("height"),
					gasLimit: a.cfg.GasLimit,
				})
			})
		},
	}
}
