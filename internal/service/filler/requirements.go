package filler

import (
	"context"
	"math/big"

	"github.com/Swapica/order-filler-svc/internal/data"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

const (
	nativeSymbol   = "native"
	nativeDecimals = 18
)

// remaining returns the making amount still available for the order.
func (e *Executor) remaining(ctx context.Context, signer SignerContext, order data.Order) (*big.Int, error) {
	if order.MakerTraits.UsesBitInvalidator() {
		return e.remainingByBit(ctx, signer, order)
	}

	input, err := e.protocol.PackRawRemainingInvalidatorForOrder(order.Maker, order.Hash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack remaining invalidator call")
	}
	out, err := e.callSettlement(ctx, signer, input)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read remaining invalidator", logan.F{
			"maker": order.Maker.Hex(),
		})
	}

	// zero means untouched, anything else is the bitwise inverse of the remaining amount
	raw, err := e.protocol.UnpackRawRemainingInvalidatorForOrder(out)
	if err != nil {
		return nil, err
	}
	if raw.Sign() == 0 {
		return new(big.Int).Set(order.MakingAmount), nil
	}

	remaining := new(big.Int).Xor(raw, math.MaxBig256)
	if remaining.Cmp(order.MakingAmount) > 0 {
		remaining.Set(order.MakingAmount)
	}
	return remaining, nil
}

// remainingByBit checks the maker's nonce bit: once it is set the order was
// filled or cancelled, before that the whole order is available.
func (e *Executor) remainingByBit(ctx context.Context, signer SignerContext, order data.Order) (*big.Int, error) {
	nonce := order.MakerTraits.NonceOrEpoch()
	slot := new(big.Int).SetUint64(nonce >> 8)

	input, err := e.protocol.PackBitInvalidatorForOrder(order.Maker, slot)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack bit invalidator call")
	}
	out, err := e.callSettlement(ctx, signer, input)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read bit invalidator", logan.F{
			"maker": order.Maker.Hex(),
			"slot":  slot.String(),
		})
	}

	bits, err := e.protocol.UnpackBitInvalidatorForOrder(out)
	if err != nil {
		return nil, err
	}
	if bits.Bit(int(nonce&0xff)) == 1 {
		return new(big.Int), nil
	}
	return new(big.Int).Set(order.MakingAmount), nil
}

func (e *Executor) callSettlement(ctx context.Context, signer SignerContext, input []byte) ([]byte, error) {
	settlement := e.protocol.Address
	return signer.CallContract(ctx, ethereum.CallMsg{
		From: signer.Address(),
		To:   &settlement,
		Data: input,
	})
}

// takingAmountFor scales the taking amount to the remaining part of the order,
// rounding down so the contract never computes more than remaining.
func takingAmountFor(order data.Order, remaining *big.Int) *big.Int {
	if remaining.Cmp(order.MakingAmount) >= 0 {
		return new(big.Int).Set(order.TakingAmount)
	}
	amount := new(big.Int).Mul(order.TakingAmount, remaining)
	return amount.Quo(amount, order.MakingAmount)
}

// makingAmountFor is the contract's own conversion of a taker amount.
func makingAmountFor(order data.Order, takingAmount *big.Int) *big.Int {
	amount := new(big.Int).Mul(order.MakingAmount, takingAmount)
	return amount.Quo(amount, order.TakingAmount)
}

func (e *Executor) requirements(ctx context.Context, signer SignerContext, order data.Order, amount *big.Int) (Requirements, error) {
	reqs := Requirements{
		Token:    order.TakerAsset,
		Required: new(big.Int).Set(amount),
	}
	owner := signer.Address()

	if order.IsNativeTakerAsset() {
		balance, err := signer.BalanceAt(ctx, owner)
		if err != nil {
			return reqs, errors.Wrap(err, "failed to get native balance")
		}
		reqs.Native = true
		reqs.Symbol = nativeSymbol
		reqs.Decimals = nativeDecimals
		reqs.Balance = balance
		reqs.Allowance = new(big.Int).Set(math.MaxBig256)
		return reqs, nil
	}

	input, _ := e.erc20.PackBalanceOf(owner)
	balance, err := e.callAmount(ctx, signer, order.TakerAsset, "balanceOf", input)
	if err != nil {
		return reqs, err
	}
	input, _ = e.erc20.PackAllowance(owner, e.protocol.Address)
	allowance, err := e.callAmount(ctx, signer, order.TakerAsset, "allowance", input)
	if err != nil {
		return reqs, err
	}
	reqs.Balance, reqs.Allowance = balance, allowance
	reqs.Symbol, reqs.Decimals = e.tokenInfo(ctx, signer, order.TakerAsset)

	return reqs, nil
}

func (e *Executor) callToken(ctx context.Context, signer SignerContext, token common.Address, input []byte) ([]byte, error) {
	return signer.CallContract(ctx, ethereum.CallMsg{
		From: signer.Address(),
		To:   &token,
		Data: input,
	})
}

func (e *Executor) callAmount(ctx context.Context, signer SignerContext, token common.Address, method string, input []byte) (*big.Int, error) {
	out, err := e.callToken(ctx, signer, token, input)
	if err != nil {
		return nil, errors.Wrap(err, "failed to call token", logan.F{
			"token":  token.Hex(),
			"method": method,
		})
	}
	return e.erc20.UnpackAmount(method, out)
}

// tokenInfo is best effort: tokens without metadata are shown in base units.
func (e *Executor) tokenInfo(ctx context.Context, signer SignerContext, token common.Address) (string, int32) {
	symbol, decimals := token.Hex(), int32(0)

	input, _ := e.erc20.PackSymbol()
	if out, err := e.callToken(ctx, signer, token, input); err == nil {
		if s, err := e.erc20.UnpackSymbol(out); err == nil && s != "" {
			symbol = s
		}
	}

	input, _ = e.erc20.PackDecimals()
	if out, err := e.callToken(ctx, signer, token, input); err == nil {
		if d, err := e.erc20.UnpackDecimals(out); err == nil {
			decimals = int32(d)
		}
	}

	return symbol, decimals
}

func formatAmount(amount *big.Int, decimals int32, symbol string) string {
	return decimal.NewFromBigInt(amount, -decimals).String() + " " + symbol
}
