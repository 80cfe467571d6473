package service

import (
	"context"
	"database/sql"

	"github.com/Swapica/order-filler-svc/internal/data"
	"github.com/Swapica/order-filler-svc/internal/service/filler"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

// worker drains one batch of pending fill requests. Requests it did not finish,
// because of an error or a panic, go back to pending.
func (s *service) worker(ctx context.Context) error {
	batch, err := s.requests.Claim(s.batchSize, s.lease)
	if err != nil {
		return errors.Wrap(err, "failed to claim fill requests")
	}
	if len(batch) == 0 {
		s.log.Debug("no pending fill requests")
		return nil
	}

	done := 0
	defer func() {
		if done < len(batch) {
			s.release(batch[done:])
		}
	}()

	for _, req := range batch {
		if err := s.process(ctx, req); err != nil {
			return errors.Wrap(err, "failed to process fill request", logan.F{"request_id": req.ID})
		}
		done++
	}
	return nil
}

func (s *service) release(reqs []data.FillRequest) {
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		ids = append(ids, req.ID)
	}
	if err := s.requests.Release(ids); err != nil {
		s.log.WithError(err).WithField("ids", ids).Error("failed to release fill requests, they wait for the lease")
		return
	}
	s.log.WithField("ids", ids).Warn("released unprocessed fill requests")
}

// process fills one request and stores its outcome. Fill failures are recorded,
// only storage failures are returned.
func (s *service) process(ctx context.Context, req data.FillRequest) error {
	log := s.log.WithFields(logan.F{
		"request_id": req.ID,
		"order_hash": req.OrderHash,
	})

	var (
		result *filler.FillResult
		err    error
	)
	orderHash, signature, perr := parseRequest(req)
	if perr != nil {
		err = &filler.Error{Kind: filler.MalformedOrderData, Msg: "invalid fill request", Err: perr}
	} else {
		result, err = s.executor.Fill(ctx, s.signer, orderHash, signature, s.opts)
	}

	fill := newFill(req, s.signer.Address(), result, err)
	if ierr := s.fills.Insert(fill); ierr != nil {
		return errors.Wrap(ierr, "failed to record fill")
	}

	status := data.RequestFilled
	if err != nil {
		status = data.RequestFailed
		fe, _ := filler.AsError(err)
		entry := log.WithError(err)
		if fe != nil {
			entry = entry.WithFields(fe.Fields())
		}
		entry.Warn("failed to fill order")
	} else {
		log.WithFields(logan.F{
			"tx_hash":  result.TxHash.Hex(),
			"attempts": result.Attempts,
		}).Info("order filled")
	}

	return errors.Wrap(s.requests.SetStatus(req.ID, status), "failed to update fill request status")
}

func parseRequest(req data.FillRequest) (common.Hash, []byte, error) {
	raw, err := hexutil.Decode(req.OrderHash)
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, nil, errors.From(errors.New("order hash must be 32 hex bytes"), logan.F{
			"order_hash": req.OrderHash,
		})
	}

	var signature []byte
	if req.Signature != "" {
		if signature, err = hexutil.Decode(req.Signature); err != nil {
			return common.Hash{}, nil, errors.Wrap(err, "signature is not a hex string")
		}
	}
	return common.BytesToHash(raw), signature, nil
}

// newFill builds the stored outcome of a fill request.
func newFill(req data.FillRequest, taker common.Address, result *filler.FillResult, err error) data.Fill {
	fill := data.Fill{
		RequestID: sql.NullString{String: req.ID, Valid: req.ID != ""},
		OrderHash: req.OrderHash,
		Taker:     taker.Hex(),
		Success:   err == nil,
	}

	if err != nil {
		kind := filler.KindOf(err)
		fill.ErrorKind = sql.NullString{String: kind.String(), Valid: true}
		fill.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		if fe, ok := filler.AsError(err); ok {
			fill.Attempts = fe.Attempts
			if fe.TxHash != nil {
				fill.TxHash = sql.NullString{String: fe.TxHash.Hex(), Valid: true}
			}
		}
		return fill
	}

	fill.Attempts = result.Attempts
	fill.TxHash = sql.NullString{String: result.TxHash.Hex(), Valid: true}
	fill.FilledMakingAmount = sql.NullString{String: result.FilledMakingAmount.String(), Valid: true}
	fill.FilledTakingAmount = sql.NullString{String: result.FilledTakingAmount.String(), Valid: true}
	if result.Receipt != nil {
		if result.Receipt.BlockNumber != nil {
			fill.BlockNumber = sql.NullInt64{Int64: result.Receipt.BlockNumber.Int64(), Valid: true}
		}
		fill.GasUsed = sql.NullInt64{Int64: int64(result.Receipt.GasUsed), Valid: true}
	}
	return fill
}
