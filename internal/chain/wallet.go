package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"

	"github.com/Swapica/order-filler-svc/internal/service/filler"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

const DefaultDerivationPath = "m/44'/60'/0'/0/0"

// Backend is the part of ethclient.Client the wallet needs.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ethereum.ChainStateReader
	ethereum.TransactionReader
}

var _ filler.SignerContext = (*Wallet)(nil)

// Wallet signs with a local key and implements filler.SignerContext.
type Wallet struct {
	backend Backend
	opts    *bind.TransactOpts
	chainID *big.Int

	// mu serialises sends so nonces are read and spent in order, and guards sent.
	mu   sync.Mutex
	sent map[common.Hash]*types.Transaction
}

func NewWallet(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int) (*Wallet, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create transactor")
	}
	return &Wallet{
		backend: backend,
		opts:    opts,
		chainID: new(big.Int).Set(chainID),
		sent:    make(map[common.Hash]*types.Transaction),
	}, nil
}

// KeyFromHex parses a hex private key with or without the 0x prefix.
func KeyFromHex(raw string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	return key, errors.Wrap(err, "failed to parse private key")
}

// KeyFromMnemonic derives the key of a BIP-44 path from the mnemonic.
func KeyFromMnemonic(mnemonic, path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		path = DefaultDerivationPath
	}
	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open mnemonic")
	}

	derivation, err := hdwallet.ParseDerivationPath(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse derivation path", logan.F{"path": path})
	}
	account, err := wallet.Derive(derivation, false)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive account", logan.F{"path": path})
	}

	key, err := wallet.PrivateKey(account)
	return key, errors.Wrap(err, "failed to get derived private key")
}

func (w *Wallet) Address() common.Address { return w.opts.From }
func (w *Wallet) ChainID() *big.Int       { return new(big.Int).Set(w.chainID) }

func (w *Wallet) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return w.backend.CodeAt(ctx, account, nil)
}

func (w *Wallet) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return w.backend.BalanceAt(ctx, account, nil)
}

func (w *Wallet) CallContract(ctx context.Context, call ethereum.CallMsg) ([]byte, error) {
	return w.backend.CallContract(ctx, call, nil)
}

func (w *Wallet) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return w.backend.EstimateGas(ctx, call)
}

// SendTransaction signs and broadcasts the request. A gas price override or a chain
// without base fee produces a legacy transaction, anything else is EIP-1559.
// Broadcast errors are returned as is so the JSON-RPC error code stays reachable.
func (w *Wallet) SendTransaction(ctx context.Context, req filler.TxRequest) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	opts := w.transactOpts(ctx, req)
	contract := bind.NewBoundContract(req.To, abi.ABI{}, w.backend, w.backend, w.backend)
	tx, err := contract.RawTransact(opts, req.Data)
	if err != nil {
		return common.Hash{}, err
	}

	w.sent[tx.Hash()] = tx
	return tx.Hash(), nil
}

func (w *Wallet) transactOpts(ctx context.Context, req filler.TxRequest) *bind.TransactOpts {
	opts := &bind.TransactOpts{
		From:     w.opts.From,
		Signer:   w.opts.Signer,
		Context:  ctx,
		Value:    req.Value,
		GasLimit: req.GasLimit,
		GasPrice: req.GasPrice,
	}
	// a legacy gas price wins over fee caps
	if req.GasPrice == nil {
		opts.GasFeeCap, opts.GasTipCap = req.GasFeeCap, req.GasTipCap
	}
	return opts
}

// WaitMined waits for the receipt of a transaction until ctx is done. Transactions
// not sent by this wallet are looked up on the node first.
func (w *Wallet) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	w.mu.Lock()
	tx, ok := w.sent[txHash]
	delete(w.sent, txHash)
	w.mu.Unlock()

	if !ok {
		var err error
		if tx, _, err = w.backend.TransactionByHash(ctx, txHash); err != nil {
			return nil, errors.Wrap(err, "failed to get transaction", logan.F{"tx_hash": txHash.Hex()})
		}
	}
	return bind.WaitMined(ctx, w.backend, tx)
}
