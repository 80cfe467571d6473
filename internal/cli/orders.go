package cli

import (
	"context"

	"github.com/Swapica/order-filler-svc/internal/config"
	"github.com/Swapica/order-filler-svc/internal/data"
	"github.com/Swapica/order-filler-svc/internal/data/postgres"
	"github.com/Swapica/order-filler-svc/internal/service/filler"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

func newExecutor(cfg config.Config) (*filler.Executor, error) {
	exec, err := filler.NewExecutor(cfg.Log(), cfg.Registry(), cfg.Network().Settlement)
	return exec, errors.Wrap(err, "failed to instantiate fill executor")
}

func parseHash(raw string) (common.Hash, error) {
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, errors.From(errors.New("hash must be 32 hex bytes"), logan.F{"hash": raw})
	}
	return common.BytesToHash(b), nil
}

func fillOrder(ctx context.Context, cfg config.Config, rawHash, rawSignature string) error {
	orderHash, err := parseHash(rawHash)
	if err != nil {
		return err
	}
	var signature []byte
	if rawSignature != "" {
		if signature, err = hexutil.Decode(rawSignature); err != nil {
			return errors.Wrap(err, "signature is not a hex string")
		}
	}

	exec, err := newExecutor(cfg)
	if err != nil {
		return err
	}
	result, err := exec.Fill(ctx, cfg.Network().Wallet, orderHash, signature, cfg.Filler().Options)
	if err != nil {
		return errors.Wrap(err, "failed to fill order")
	}

	cfg.Log().WithFields(logan.F{
		"tx_hash":              result.TxHash.Hex(),
		"maker_kind":           result.MakerKind.String(),
		"attempts":             result.Attempts,
		"filled_making_amount": result.FilledMakingAmount.String(),
		"filled_taking_amount": result.FilledTakingAmount.String(),
	}).Info("order filled")
	return nil
}

func validateOrder(ctx context.Context, cfg config.Config, rawHash string) error {
	orderHash, err := parseHash(rawHash)
	if err != nil {
		return err
	}
	exec, err := newExecutor(cfg)
	if err != nil {
		return err
	}

	remaining, err := exec.Validate(ctx, cfg.Network().Wallet, orderHash)
	if err != nil {
		return errors.Wrap(err, "failed to validate order")
	}
	cfg.Log().WithFields(logan.F{
		"order_hash": orderHash.Hex(),
		"remaining":  decimal.NewFromBigInt(remaining, 0).String(),
		"fillable":   remaining.Sign() > 0,
	}).Info("order validated")
	return nil
}

func enqueue(cfg config.Config, rawHash, signature string) error {
	orderHash, err := parseHash(rawHash)
	if err != nil {
		return err
	}
	if signature != "" {
		if _, err := hexutil.Decode(signature); err != nil {
			return errors.Wrap(err, "signature is not a hex string")
		}
	}

	req, err := postgres.NewFillRequests(cfg.DB()).Insert(data.FillRequest{
		OrderHash: orderHash.Hex(),
		Signature: signature,
	})
	if err != nil {
		return err
	}
	cfg.Log().WithFields(logan.F{
		"request_id": req.ID,
		"order_hash": req.OrderHash,
	}).Info("fill request queued")
	return nil
}

func status(cfg config.Config, id string) error {
	req, err := postgres.NewFillRequests(cfg.DB()).Get(id)
	if err != nil {
		return err
	}
	if req == nil {
		return errors.From(errors.New("fill request not found"), logan.F{"request_id": id})
	}

	fills, err := postgres.NewFills(cfg.DB()).ByOrderHash(req.OrderHash)
	if err != nil {
		return err
	}

	log := cfg.Log().WithFields(logan.F{
		"request_id": req.ID,
		"order_hash": req.OrderHash,
	})
	log.WithField("status", req.Status).Info("fill request")
	for _, fill := range fills {
		log.WithFields(logan.F{
			"success":    fill.Success,
			"attempts":   fill.Attempts,
			"tx_hash":    fill.TxHash.String,
			"error_kind": fill.ErrorKind.String,
			"created_at": fill.CreatedAt,
		}).Info("fill")
	}
	return nil
}
