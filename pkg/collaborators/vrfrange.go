package collaborators

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// operatorRangeManagerABI is the minimal surface this collaborator calls on
// the on-chain operator-range registry contract.
const operatorRangeManagerABI = `[
  {"name":"getNumOperators","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
  {"name":"getOperatorsInRange","type":"function","stateMutability":"view","inputs":[{"type":"uint256"}],"outputs":[{"type":"address[]"}]},
  {"name":"operatorRanges","type":"function","stateMutability":"view","inputs":[{"type":"address"}],"outputs":[{"type":"uint256","name":"start"},{"type":"uint256","name":"end"}]}
]`

// ParseOperatorRangeManagerABI parses the contract ABI this provider binds
// to, split out so it can be exercised without a live RPC endpoint.
func ParseOperatorRangeManagerABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(operatorRangeManagerABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("collaborators: parse operator range abi: %w", err)
	}
	return parsed, nil
}

// VRFRangeProvider queries an on-chain operator-range registry to turn a VRF
// random seed into the set of operators eligible to serve a request — the
// host-side counterpart to the enclave's own VRF gate.
type VRFRangeProvider struct {
	client   *ethclient.Client
	contract *bind.BoundContract
}

// DialVRFRangeProvider connects to rpcURL and binds to the operator range
// manager contract at address.
func DialVRFRangeProvider(ctx context.Context, rpcURL, address string) (*VRFRangeProvider, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("collaborators: dial ethereum rpc: %w", err)
	}
	parsedABI, err := ParseOperatorRangeManagerABI()
	if err != nil {
		client.Close()
		return nil, err
	}
	addr := common.HexToAddress(address)
	contract := bind.NewBoundContract(addr, parsedABI, client, client, client)
	return &VRFRangeProvider{client: client, contract: contract}, nil
}

// NumOperators returns the total number of registered operators.
func (p *VRFRangeProvider) NumOperators(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getNumOperators"); err != nil {
		return nil, fmt.Errorf("collaborators: getNumOperators: %w", err)
	}
	return out[0].(*big.Int), nil
}

// OperatorsInRange returns the operators selected by randomSeed.
func (p *VRFRangeProvider) OperatorsInRange(ctx context.Context, randomSeed uint64) ([]common.Address, error) {
	var out []interface{}
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getOperatorsInRange", new(big.Int).SetUint64(randomSeed)); err != nil {
		return nil, fmt.Errorf("collaborators: getOperatorsInRange: %w", err)
	}
	return out[0].([]common.Address), nil
}

// OperatorThreshold returns end-start for operator's assigned range.
func (p *VRFRangeProvider) OperatorThreshold(ctx context.Context, operator common.Address) (uint64, error) {
	var out []interface{}
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "operatorRanges", operator); err != nil {
		return 0, fmt.Errorf("collaborators: operatorRanges: %w", err)
	}
	start := out[0].(*big.Int)
	end := out[1].(*big.Int)
	return new(big.Int).Sub(end, start).Uint64(), nil
}

// Close releases the underlying RPC connection.
func (p *VRFRangeProvider) Close() {
	p.client.Close()
}
