package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wippyai/wasmvm/storage"
	"github.com/wippyai/wasmvm/types"
)

// Gas the CLI charges for address operations.
const (
	addrValidateCost     = 1_000
	addrCanonicalizeCost = 1_500
	addrHumanizeCost     = 1_500
)

// localAPI uses lowercase ASCII addresses as their own canonical form.
type localAPI struct{}

func (localAPI) HumanizeAddress(canonical []byte) (string, uint64, error) {
	if err := checkAddress(string(canonical)); err != nil {
		return "", addrHumanizeCost, err
	}
	return string(canonical), addrHumanizeCost, nil
}

func (localAPI) CanonicalizeAddress(human string) ([]byte, uint64, error) {
	if err := checkAddress(human); err != nil {
		return nil, addrCanonicalizeCost, err
	}
	return []byte(human), addrCanonicalizeCost, nil
}

func (localAPI) ValidateAddress(human string) (uint64, error) {
	return addrValidateCost, checkAddress(human)
}

func checkAddress(addr string) error {
	if len(addr) < 3 || len(addr) > 64 {
		return types.UserError{Msg: fmt.Sprintf("address length %d out of range", len(addr))}
	}
	if strings.ToLower(addr) != addr {
		return types.UserError{Msg: "address must be lowercase"}
	}
	return nil
}

// localQuerier has no chain to ask.
type localQuerier struct{}

func (localQuerier) Query(request []byte, _ uint64) ([]byte, error) {
	return nil, types.UserError{Msg: "no chain to query: " + string(request)}
}

func (localQuerier) GasConsumed() uint64 { return 0 }

// contractState is the persistent store of one contract address.
type contractState struct {
	db    *storage.LevelDB
	meter *storage.GasMeter
	store *storage.GasKV
}

func openState(dir string, hostGasLimit uint64) (*contractState, error) {
	db, err := storage.OpenLevelDB(dir)
	if err != nil {
		return nil, err
	}
	meter := storage.NewGasMeter(hostGasLimit)
	return &contractState{
		db:    db,
		meter: meter,
		store: storage.NewGasKV(db, meter, storage.DefaultGasConfig()),
	}, nil
}

func (s *contractState) Close() error {
	return s.db.Close()
}

// callEnv is the block environment passed to contracts.
type callEnv struct {
	Block struct {
		Height  uint64 `json:"height"`
		Time    string `json:"time"`
		ChainID string `json:"chain_id"`
	} `json:"block"`
	Contract struct {
		Address string `json:"address"`
	} `json:"contract"`
}

type messageInfo struct {
	Sender string `json:"sender"`
	Funds  []any  `json:"funds"`
}

func envJSON(contract string, height uint64, now time.Time) ([]byte, error) {
	var env callEnv
	env.Block.Height = height
	env.Block.Time = fmt.Sprintf("%d", now.UnixNano())
	env.Block.ChainID = "wasmvm-local"
	env.Contract.Address = contract
	return json.Marshal(env)
}

func infoJSON(sender string) ([]byte, error) {
	return json.Marshal(messageInfo{Sender: sender, Funds: []any{}})
}
