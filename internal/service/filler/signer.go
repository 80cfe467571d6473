package filler

import (
	"context"
	"math/big"

	"github.com/Swapica/order-filler-svc/internal/registry"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SignerContext is the caller's account on the chain the order lives on.
type SignerContext interface {
	Address() common.Address
	ChainID() *big.Int

	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg) ([]byte, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)

	// SendTransaction signs and broadcasts the request, returning the tx hash.
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
	// WaitMined blocks until the transaction is included or ctx is done.
	WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TxRequest is an unsigned transaction. Nonce is assigned by the signer; zero
// fee fields are filled from the node's suggestions.
type TxRequest struct {
	To        common.Address
	Data      []byte
	Value     *big.Int
	GasLimit  uint64
	GasPrice  *big.Int
	GasFeeCap *big.Int
	GasTipCap *big.Int
}

// Registry is the order book the executor reads order terms from.
type Registry interface {
	Order(ctx context.Context, orderHash common.Hash) (*registry.Order, error)
}
