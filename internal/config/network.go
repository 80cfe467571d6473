package config

import (
	"context"
	"crypto/ecdsa"
	"math"
	"math/big"
	"os"
	"time"

	"github.com/Swapica/order-filler-svc/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"gitlab.com/distributed_lab/figure/v3"
	"gitlab.com/distributed_lab/kit/kv"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

// Environment fallbacks for the signing key, usually provided through .env.
const (
	privateKeyEnv = "FILLER_PRIVATE_KEY"
	mnemonicEnv   = "FILLER_MNEMONIC"
)

type Network struct {
	Client         *ethclient.Client
	Wallet         *chain.Wallet
	ChainID        *big.Int
	Settlement     common.Address
	RequestTimeout time.Duration
}

const defaultRequestTimeout = 10 * time.Second
const maxChainID int64 = math.MaxUint64/2 - 36

func (c *config) Network() Network {
	return c.networkOnce.Do(func() interface{} {
		var cfg struct {
			RPC            string         `fig:"rpc,required"`
			ChainID        int64          `fig:"chain_id,required"`
			Settlement     common.Address `fig:"settlement,required"`
			PrivateKey     string         `fig:"private_key"`
			Mnemonic       string         `fig:"mnemonic"`
			DerivationPath string         `fig:"derivation_path"`
			RequestTimeout time.Duration  `fig:"request_timeout"`
		}

		err := figure.Out(&cfg).
			With(figure.EthereumHooks).
			From(kv.MustGetStringMap(c.getter, "network")).
			Please()
		if err != nil {
			panic(errors.Wrap(err, "failed to figure out network"))
		}

		if cfg.ChainID > maxChainID || cfg.ChainID <= 0 {
			panic("chain_id value out of range due to EIP 2294")
		}
		if cfg.RequestTimeout == 0 {
			cfg.RequestTimeout = defaultRequestTimeout
		}

		cli, err := ethclient.Dial(cfg.RPC)
		if err != nil {
			panic(errors.Wrap(err, "failed to connect to RPC provider"))
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer cancel()
		nodeChainID, err := cli.ChainID(ctx)
		if err != nil {
			panic(errors.Wrap(err, "failed to get chain id from RPC provider"))
		}
		if nodeChainID.Int64() != cfg.ChainID {
			panic(errors.From(errors.New("RPC provider serves another chain"), logan.F{
				"configured": cfg.ChainID,
				"provider":   nodeChainID.String(),
			}))
		}

		key, err := signingKey(cfg.PrivateKey, cfg.Mnemonic, cfg.DerivationPath)
		if err != nil {
			panic(errors.Wrap(err, "failed to load signing key"))
		}

		wallet, err := chain.NewWallet(cli, key, nodeChainID)
		if err != nil {
			panic(errors.Wrap(err, "failed to create wallet"))
		}

		return Network{
			Client:         cli,
			Wallet:         wallet,
			ChainID:        nodeChainID,
			Settlement:     cfg.Settlement,
			RequestTimeout: cfg.RequestTimeout,
		}
	}).(Network)
}

// signingKey prefers an explicit private key over a mnemonic, config over environment.
func signingKey(privateKey, mnemonic, path string) (*ecdsa.PrivateKey, error) {
	if privateKey == "" && mnemonic == "" {
		privateKey, mnemonic = os.Getenv(privateKeyEnv), os.Getenv(mnemonicEnv)
	}

	switch {
	case privateKey != "":
		return chain.KeyFromHex(privateKey)
	case mnemonic != "":
		return chain.KeyFromMnemonic(mnemonic, path)
	default:
		return nil, errors.New("neither private_key nor mnemonic is set")
	}
}
