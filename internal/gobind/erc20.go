package gobind

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

// ERC20MetaData contains the part of the ERC-20 ABI needed to check and grant allowances.
var ERC20MetaData = &bind.MetaData{
	ABI: `[` +
		`{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},` +
		`{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},` +
		`{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},` +
		`{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},` +
		`{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}` +
		`]`,
}

type ERC20 struct {
	abi *abi.ABI
}

func NewERC20() (*ERC20, error) {
	parsed, err := ERC20MetaData.GetAbi()
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse ERC20 ABI")
	}
	return &ERC20{abi: parsed}, nil
}

func (e *ERC20) ABI() *abi.ABI {
	return e.abi
}

func (e *ERC20) PackBalanceOf(owner common.Address) ([]byte, error) {
	return e.abi.Pack("balanceOf", owner)
}

func (e *ERC20) PackAllowance(owner, spender common.Address) ([]byte, error) {
	return e.abi.Pack("allowance", owner, spender)
}

func (e *ERC20) PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return e.abi.Pack("approve", spender, amount)
}

func (e *ERC20) PackDecimals() ([]byte, error) {
	return e.abi.Pack("decimals")
}

func (e *ERC20) PackSymbol() ([]byte, error) {
	return e.abi.Pack("symbol")
}

// UnpackAmount decodes the uint256 result of balanceOf or allowance.
func (e *ERC20) UnpackAmount(method string, data []byte) (*big.Int, error) {
	out, err := e.abi.Unpack(method, data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unpack amount", logan.F{"method": method})
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (e *ERC20) UnpackDecimals(data []byte) (uint8, error) {
	out, err := e.abi.Unpack("decimals", data)
	if err != nil {
		return 0, errors.Wrap(err, "failed to unpack decimals")
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

func (e *ERC20) UnpackSymbol(data []byte) (string, error) {
	out, err := e.abi.Unpack("symbol", data)
	if err != nil {
		return "", errors.Wrap(err, "failed to unpack symbol")
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}
