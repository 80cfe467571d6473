package filler

import (
	"context"
	"math/big"
	"time"

	"github.com/Swapica/order-filler-svc/internal/data"
	"github.com/Swapica/order-filler-svc/internal/gobind"
	"github.com/Swapica/order-filler-svc/internal/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

// Executor fills limit orders of the settlement contract on behalf of a signer.
// It keeps no per-call state, so one instance serves concurrent callers.
type Executor struct {
	log      *logan.Entry
	registry Registry
	protocol *gobind.LimitOrderProtocol
	erc20    *gobind.ERC20
	// steps retries single sub-steps (registry reads, approval broadcast).
	steps Policy
	now   func() time.Time
}

func NewExecutor(log *logan.Entry, registry Registry, settlement common.Address) (*Executor, error) {
	protocol, err := gobind.NewLimitOrderProtocol(settlement)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init settlement contract binding")
	}
	erc20, err := gobind.NewERC20()
	if err != nil {
		return nil, errors.Wrap(err, "failed to init token binding")
	}

	return &Executor{
		log:      log,
		registry: registry,
		protocol: protocol,
		erc20:    erc20,
		steps: Policy{
			MaxAttempts: defaultStepAttempts,
			Delay:       Exponential(defaultStepDelay),
		},
		now: time.Now,
	}, nil
}

func (e *Executor) Settlement() common.Address {
	return e.protocol.Address
}

// Fill runs the whole fill flow, retrying transient failures. An empty signature
// means the one stored in the registry is used.
func (e *Executor) Fill(ctx context.Context, signer SignerContext, orderHash common.Hash, signature []byte, opts Options) (*FillResult, error) {
	opts = opts.withDefaults()
	log := e.log.WithFields(logan.F{
		"order_hash": orderHash.Hex(),
		"taker":      signer.Address().Hex(),
	})

	policy := Policy{
		MaxAttempts: opts.MaxRetries,
		Delay:       Linear(opts.BaseDelay),
		Retryable:   IsRetryable,
	}

	var (
		result   *FillResult
		attempts int
	)
	err := policy.Do(ctx, func(attempt int) error {
		attempts = attempt
		alog := log.WithField("attempt", attempt)

		res, err := e.attempt(ctx, alog, signer, orderHash, signature, opts)
		if err != nil {
			err = classified(err)
			fe, _ := AsError(err)
			alog.WithError(err).WithFields(fe.Fields()).Warn("fill attempt failed")
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		fe, ok := AsError(err)
		if !ok {
			fe = &Error{Kind: UnclassifiedFailure, Msg: "fill interrupted", Err: err}
			err = fe
		}
		fe.Attempts = attempts
		return nil, err
	}

	result.Attempts = attempts
	log.WithFields(logan.F{
		"tx_hash":              result.TxHash.Hex(),
		"attempts":             attempts,
		"filled_making_amount": result.FilledMakingAmount.String(),
		"filled_taking_amount": result.FilledTakingAmount.String(),
	}).Info("order filled")
	return result, nil
}

// Validate returns the amount of the maker asset that can still be filled. Zero
// means the order is settled or cancelled.
func (e *Executor) Validate(ctx context.Context, signer SignerContext, orderHash common.Hash) (*big.Int, error) {
	order, _, err := e.fetchOrder(ctx, orderHash)
	if err != nil {
		return nil, err
	}
	return e.remaining(ctx, signer, order)
}

func (e *Executor) attempt(ctx context.Context, log *logan.Entry, signer SignerContext, orderHash common.Hash, signature []byte, opts Options) (*FillResult, error) {
	order, rec, err := e.fetchOrder(ctx, orderHash)
	if err != nil {
		return nil, err
	}
	if len(signature) == 0 {
		if signature, err = hexutil.Decode(rec.Signature); err != nil || len(signature) == 0 {
			return nil, newError(MalformedOrderData, "order has no usable signature", err)
		}
	}

	remaining, err := e.remaining(ctx, signer, order)
	if err != nil {
		return nil, err
	}
	if remaining.Sign() == 0 {
		return nil, newError(OrderAlreadySettled, "order has no remaining amount", nil)
	}
	if order.MakerTraits.IsExpired(e.now().Unix()) {
		return nil, newError(OrderExpired, "order expired at "+time.Unix(int64(order.MakerTraits.Expiration()), 0).UTC().String(), nil)
	}

	amount := takingAmountFor(order, remaining)
	if amount.Sign() == 0 {
		return nil, newError(OrderAlreadySettled, "remaining amount is below one taker asset unit", nil)
	}
	log = log.WithFields(logan.F{
		"remaining": remaining.String(),
		"amount":    amount.String(),
	})
	log.Debug("order is fillable")

	reqs, err := e.requirements(ctx, signer, order, amount)
	if err != nil {
		return nil, err
	}
	if !reqs.HasBalance() {
		return nil, newError(InsufficientBalance, "required "+formatAmount(reqs.Required, reqs.Decimals, reqs.Symbol)+
			", available "+formatAmount(reqs.Balance, reqs.Decimals, reqs.Symbol), nil)
	}

	var approvalTx *common.Hash
	if reqs.NeedsApproval() {
		log.WithField("allowance", reqs.Allowance.String()).Info("allowance is not enough, approving")
		hash, err := e.approve(ctx, log, signer, reqs, opts)
		if err != nil {
			return nil, err
		}
		approvalTx = &hash
	}

	fill, err := e.buildFill(ctx, signer, order, signature, amount)
	if err != nil {
		return nil, err
	}
	log = log.WithField("maker_kind", fill.kind.String())

	txHash, gasLimit, err := e.submit(ctx, log, signer, fill, opts)
	if err != nil {
		return nil, err
	}
	log = log.WithField("tx_hash", txHash.Hex())
	log.Debug("fill transaction submitted, waiting for confirmation")

	receipt, err := e.confirm(ctx, signer, txHash, opts.ConfirmationTimeout)
	if err != nil {
		return nil, err
	}

	result := &FillResult{
		OrderHash:          orderHash,
		TxHash:             txHash,
		ApprovalTx:         approvalTx,
		Receipt:            receipt,
		MakerKind:          fill.kind,
		GasLimit:           gasLimit,
		FilledMakingAmount: makingAmountFor(order, amount),
		FilledTakingAmount: amount,
		RemainingAmount:    new(big.Int).Sub(remaining, makingAmountFor(order, amount)),
	}

	filled, err := e.protocol.FindOrderFilled(receipt.Logs, orderHash)
	if err != nil {
		log.WithError(err).Warn("failed to parse OrderFilled event, reporting requested amounts")
	}
	if filled != nil {
		result.RemainingAmount = filled.RemainingAmount
		result.FilledMakingAmount = new(big.Int).Sub(remaining, filled.RemainingAmount)
	}

	return result, nil
}

func (e *Executor) fetchOrder(ctx context.Context, orderHash common.Hash) (data.Order, *registry.Order, error) {
	steps := e.steps
	steps.Retryable = func(err error) bool { return err != registry.ErrNotFound }

	var rec *registry.Order
	err := steps.Do(ctx, func(int) error {
		var err error
		rec, err = e.registry.Order(ctx, orderHash)
		return err
	})
	if err != nil {
		return data.Order{}, nil, newError(OrderNotFound, "failed to fetch order from registry", err)
	}

	order, err := rec.Parse()
	if err != nil {
		return data.Order{}, nil, newError(MalformedOrderData, "failed to rebuild order", err)
	}
	if order.Hash != (common.Hash{}) && order.Hash != orderHash {
		return data.Order{}, nil, newError(MalformedOrderData, "registry returned order "+order.Hash.Hex(), nil)
	}
	order.Hash = orderHash

	return order, rec, nil
}

func classified(err error) error {
	if _, ok := AsError(err); ok {
		return err
	}
	return newError(UnclassifiedFailure, "", err)
}
