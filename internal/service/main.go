package service

import (
	"context"
	"time"

	"github.com/Swapica/order-filler-svc/internal/config"
	"github.com/Swapica/order-filler-svc/internal/data"
	"github.com/Swapica/order-filler-svc/internal/data/postgres"
	"github.com/Swapica/order-filler-svc/internal/service/filler"
	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
	"gitlab.com/distributed_lab/running"
)

// executor is the part of filler.Executor the worker drives.
type executor interface {
	Fill(ctx context.Context, signer filler.SignerContext, orderHash common.Hash, signature []byte, opts filler.Options) (*filler.FillResult, error)
}

type service struct {
	log      *logan.Entry
	requests data.FillRequests
	fills    data.Fills
	executor executor
	signer   filler.SignerContext
	opts     filler.Options

	batchSize  uint64
	lease      time.Duration
	pollPeriod time.Duration
}

func (s *service) run() error {
	s.log.WithFields(logan.F{
		"taker":       s.signer.Address().Hex(),
		"poll_period": s.pollPeriod.String(),
	}).Info("Service started")
	running.WithBackOff(context.Background(), s.log, "filler", s.worker, s.pollPeriod, s.pollPeriod, time.Minute)

	return nil
}

func newService(cfg config.Config) *service {
	network := cfg.Network()
	exec, err := filler.NewExecutor(cfg.Log(), cfg.Registry(), network.Settlement)
	if err != nil {
		panic(errors.Wrap(err, "failed to instantiate fill executor"))
	}

	return &service{
		log:        cfg.Log(),
		requests:   postgres.NewFillRequests(cfg.DB()),
		fills:      postgres.NewFills(cfg.DB()),
		executor:   exec,
		signer:     network.Wallet,
		opts:       cfg.Filler().Options,
		batchSize:  cfg.Filler().BatchSize,
		lease:      cfg.Filler().Lease,
		pollPeriod: cfg.Filler().PollPeriod,
	}
}

func Run(cfg config.Config) {
	if err := newService(cfg).run(); err != nil {
		panic(err)
	}
}
