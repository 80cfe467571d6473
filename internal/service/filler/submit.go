package filler

import (
	"context"
	"math/big"
	"time"

	"github.com/Swapica/order-filler-svc/internal/data"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

// fillCall is the prepared settlement call of one attempt.
type fillCall struct {
	kind  MakerKind
	input []byte
	value *big.Int
}

func (e *Executor) buildFill(ctx context.Context, signer SignerContext, order data.Order, signature []byte, amount *big.Int) (fillCall, error) {
	code, err := signer.CodeAt(ctx, order.Maker)
	if err != nil {
		return fillCall{}, errors.Wrap(err, "failed to get maker code", logan.F{"maker": order.Maker.Hex()})
	}

	call := fillCall{kind: MakerEOA, value: new(big.Int)}
	if len(code) > 0 {
		call.kind = MakerContract
	}
	if order.IsNativeTakerAsset() {
		// fillContractOrder and fillContractOrderArgs are not payable
		if call.kind == MakerContract {
			return fillCall{}, newError(MalformedOrderData, "contract maker order cannot take the native currency", nil)
		}
		call.value.Set(amount)
	}

	traits, args := data.TakerTraits{Extension: order.Extension}.Encode()
	contractOrder := order.Struct()

	switch call.kind {
	case MakerContract:
		if len(args) > 0 {
			call.input, err = e.protocol.PackFillContractOrderArgs(contractOrder, signature, amount, traits, args)
		} else {
			call.input, err = e.protocol.PackFillContractOrder(contractOrder, signature, amount, traits)
		}
	default:
		sig, serr := data.SignatureFromBytes(signature)
		if serr != nil {
			return fillCall{}, newError(MalformedOrderData, "maker signature is invalid", serr)
		}
		if err := e.checkSigner(signer, order, sig); err != nil {
			return fillCall{}, err
		}

		r, vs := sig.Compact()
		if len(args) > 0 {
			call.input, err = e.protocol.PackFillOrderArgs(contractOrder, r, vs, amount, traits, args)
		} else {
			call.input, err = e.protocol.PackFillOrder(contractOrder, r, vs, amount, traits)
		}
	}
	if err != nil {
		return fillCall{}, errors.Wrap(err, "failed to pack fill call", logan.F{"maker_kind": call.kind.String()})
	}

	return call, nil
}

// checkSigner rejects EOA signatures that do not recover to the maker. The check is
// only possible when the order hash is the typed data hash for this chain.
func (e *Executor) checkSigner(signer SignerContext, order data.Order, sig data.Signature) error {
	digest := order.TypedDataHash(signer.ChainID(), e.protocol.Address)
	if digest != order.Hash {
		return nil
	}

	recovered, err := sig.Recover(digest)
	if err != nil {
		return newError(MalformedOrderData, "failed to recover maker signature", err)
	}
	if recovered != order.Maker {
		return newError(MalformedOrderData, "signature belongs to "+recovered.Hex()+", not the maker", nil)
	}
	return nil
}

func (e *Executor) submit(ctx context.Context, log *logan.Entry, signer SignerContext, call fillCall, opts Options) (common.Hash, uint64, error) {
	settlement := e.protocol.Address
	gasLimit := e.gasLimit(ctx, log, signer, ethereum.CallMsg{
		From:  signer.Address(),
		To:    &settlement,
		Value: call.value,
		Data:  call.input,
	}, opts)

	txHash, err := signer.SendTransaction(ctx, txRequest(settlement, call.input, call.value, gasLimit, opts))
	if err != nil {
		return common.Hash{}, gasLimit, newError(classifySend(err), "failed to submit fill transaction", err)
	}
	return txHash, gasLimit, nil
}

func (e *Executor) approve(ctx context.Context, log *logan.Entry, signer SignerContext, reqs Requirements, opts Options) (common.Hash, error) {
	input, err := e.erc20.PackApprove(e.protocol.Address, reqs.Required)
	if err != nil {
		return common.Hash{}, newError(ApprovalFailed, "failed to pack approve call", err)
	}

	token := reqs.Token
	gasLimit := e.gasLimit(ctx, log, signer, ethereum.CallMsg{
		From: signer.Address(),
		To:   &token,
		Data: input,
	}, Options{})

	steps := e.steps
	steps.Retryable = func(err error) bool {
		kind := classifySend(err)
		return kind != UserRejected && kind != InsufficientBalance
	}

	var txHash common.Hash
	err = steps.Do(ctx, func(int) error {
		var err error
		txHash, err = signer.SendTransaction(ctx, txRequest(token, input, nil, gasLimit, opts))
		return err
	})
	if err != nil {
		switch kind := classifySend(err); kind {
		case UserRejected, InsufficientBalance:
			return common.Hash{}, newError(kind, "approval was not sent", err)
		default:
			return common.Hash{}, newError(ApprovalFailed, "failed to send approval", err)
		}
	}
	log.WithField("approval_tx", txHash.Hex()).Debug("approval submitted, waiting for confirmation")

	if _, err := e.confirm(ctx, signer, txHash, opts.ConfirmationTimeout); err != nil {
		return common.Hash{}, newTxError(ApprovalFailed, "approval was not confirmed", txHash, err)
	}
	return txHash, nil
}

// gasLimit estimates the call and adds a safety margin, falling back to a fixed
// limit when the node cannot estimate.
func (e *Executor) gasLimit(ctx context.Context, log *logan.Entry, signer SignerContext, call ethereum.CallMsg, opts Options) uint64 {
	if opts.GasLimit != 0 {
		return opts.GasLimit
	}

	estimated, err := signer.EstimateGas(ctx, call)
	if err != nil || estimated == 0 {
		log.WithError(err).WithField("fallback", fallbackGasLimit).Warn("failed to estimate gas")
		return fallbackGasLimit
	}
	return estimated + estimated*gasMarginPercent/100
}

func txRequest(to common.Address, input []byte, value *big.Int, gasLimit uint64, opts Options) TxRequest {
	return TxRequest{
		To:        to,
		Data:      input,
		Value:     value,
		GasLimit:  gasLimit,
		GasPrice:  opts.GasPrice,
		GasFeeCap: opts.MaxFeePerGas,
		GasTipCap: opts.MaxPriorityFeePerGas,
	}
}

// confirm waits for the receipt within timeout and requires a successful status.
func (e *Executor) confirm(ctx context.Context, signer SignerContext, txHash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	receipt, err := signer.WaitMined(waitCtx, txHash)
	if err != nil {
		if ctx.Err() == nil && waitCtx.Err() != nil {
			return nil, newTxError(ConfirmationTimeout, "transaction was not mined in "+timeout.String(), txHash, err)
		}
		return nil, newTxError(UnclassifiedFailure, "failed to wait for transaction", txHash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, newTxError(TransactionRejected, "transaction reverted", txHash, nil)
	}
	return receipt, nil
}
