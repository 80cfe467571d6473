package config

import (
	"net/http"
	"net/url"
	"time"

	"github.com/Swapica/order-filler-svc/internal/registry"
	"gitlab.com/distributed_lab/figure/v3"
	jsonapi "gitlab.com/distributed_lab/json-api-connector"
	"gitlab.com/distributed_lab/kit/kv"
	"gitlab.com/distributed_lab/logan/v3/errors"
	"gitlab.com/tokend/connectors/signed"
	"golang.org/x/time/rate"
)

const defaultRegistryRPS = 1

type Registry struct {
	*registry.Client
	Endpoint *url.URL
}

func (c *config) Registry() Registry {
	return c.registryOnce.Do(func() interface{} {
		var cfg struct {
			Endpoint       *url.URL      `fig:"endpoint,required"`
			APIKey         string        `fig:"api_key"`
			RequestTimeout time.Duration `fig:"request_timeout"`
			RPS            float64       `fig:"rps"`
			Burst          int           `fig:"burst"`
		}
		err := figure.Out(&cfg).
			From(kv.MustGetStringMap(c.getter, "registry")).
			Please()
		if err != nil {
			panic(errors.Wrap(err, "failed to figure out registry"))
		}

		if cfg.RequestTimeout == 0 {
			cfg.RequestTimeout = defaultRequestTimeout
		}
		if cfg.RPS <= 0 {
			cfg.RPS = defaultRegistryRPS
		}
		if cfg.Burst <= 0 {
			cfg.Burst = 1
		}

		httpClient := &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: registry.BearerTransport{Key: cfg.APIKey},
		}
		connector := jsonapi.NewConnector(signed.NewClient(httpClient, cfg.Endpoint))
		limiter := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)

		return Registry{
			Client:   registry.NewClient(connector, c.Network().ChainID.Int64(), limiter),
			Endpoint: cfg.Endpoint,
		}
	}).(Registry)
}
