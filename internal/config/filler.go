package config

import (
	"math/big"
	"time"

	"github.com/Swapica/order-filler-svc/internal/service/filler"
	"gitlab.com/distributed_lab/figure/v3"
	"gitlab.com/distributed_lab/kit/kv"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

const (
	defaultPollPeriod = 5 * time.Second
	defaultBatchSize  = 10
	defaultLease      = 30 * time.Minute
)

type Filler struct {
	Options    filler.Options
	PollPeriod time.Duration
	BatchSize  uint64
	// Lease is how long a claimed request may stay in processing before
	// another worker takes it over.
	Lease time.Duration
}

func (c *config) Filler() Filler {
	return c.fillerOnce.Do(func() interface{} {
		var cfg struct {
			MaxRetries           int           `fig:"max_retries"`
			BaseDelay            time.Duration `fig:"base_delay"`
			ConfirmationTimeout  time.Duration `fig:"confirmation_timeout"`
			GasLimit             uint64        `fig:"gas_limit"`
			GasPrice             string        `fig:"gas_price"`
			MaxFeePerGas         string        `fig:"max_fee_per_gas"`
			MaxPriorityFeePerGas string        `fig:"max_priority_fee_per_gas"`
			PollPeriod           time.Duration `fig:"poll_period"`
			BatchSize            uint64        `fig:"batch_size"`
			Lease                time.Duration `fig:"lease"`
		}

		err := figure.Out(&cfg).
			From(kv.MustGetStringMap(c.getter, "filler")).
			Please()
		if err != nil {
			panic(errors.Wrap(err, "failed to figure out filler"))
		}

		if cfg.PollPeriod == 0 {
			cfg.PollPeriod = defaultPollPeriod
		}
		if cfg.BatchSize == 0 {
			cfg.BatchSize = defaultBatchSize
		}
		if cfg.Lease == 0 {
			cfg.Lease = defaultLease
		}

		return Filler{
			Options: filler.Options{
				MaxRetries:           cfg.MaxRetries,
				BaseDelay:            cfg.BaseDelay,
				ConfirmationTimeout:  cfg.ConfirmationTimeout,
				GasLimit:             cfg.GasLimit,
				GasPrice:             mustWei("gas_price", cfg.GasPrice),
				MaxFeePerGas:         mustWei("max_fee_per_gas", cfg.MaxFeePerGas),
				MaxPriorityFeePerGas: mustWei("max_priority_fee_per_gas", cfg.MaxPriorityFeePerGas),
			},
			PollPeriod: cfg.PollPeriod,
			BatchSize:  cfg.BatchSize,
			Lease:      cfg.Lease,
		}
	}).(Filler)
}

// mustWei parses an optional decimal wei amount.
func mustWei(field, raw string) *big.Int {
	if raw == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		panic(errors.From(errors.New("invalid wei amount"), logan.F{field: raw}))
	}
	return v
}
