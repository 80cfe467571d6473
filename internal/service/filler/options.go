package filler

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	DefaultMaxRetries          = 3
	DefaultConfirmationTimeout = 300 * time.Second
	DefaultBaseDelay           = 3 * time.Second

	defaultStepAttempts = 3
	defaultStepDelay    = time.Second
	fallbackGasLimit    = uint64(300000)
	gasMarginPercent    = 20
)

type Options struct {
	MaxRetries          int
	ConfirmationTimeout time.Duration
	BaseDelay           time.Duration

	// Gas overrides, zero values mean estimate or ask the node.
	GasLimit             uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.ConfirmationTimeout <= 0 {
		o.ConfirmationTimeout = DefaultConfirmationTimeout
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	return o
}

// MakerKind selects the fill entry point: EOA makers sign off-chain, contract makers
// are checked through ERC-1271.
type MakerKind int

const (
	MakerEOA MakerKind = iota
	MakerContract
)

func (k MakerKind) String() string {
	if k == MakerContract {
		return "contract"
	}
	return "eoa"
}

// Requirements is the balance and allowance state of the taker for one attempt.
type Requirements struct {
	Token     common.Address
	Symbol    string
	Decimals  int32
	Native    bool
	Required  *big.Int
	Balance   *big.Int
	Allowance *big.Int
}

func (r Requirements) HasBalance() bool {
	return r.Balance.Cmp(r.Required) >= 0
}

func (r Requirements) NeedsApproval() bool {
	return !r.Native && r.Allowance.Cmp(r.Required) < 0
}

type FillResult struct {
	OrderHash  common.Hash
	TxHash     common.Hash
	ApprovalTx *common.Hash
	Receipt    *types.Receipt
	MakerKind  MakerKind
	Attempts   int
	GasLimit   uint64

	// FilledMakingAmount and FilledTakingAmount are taken from the OrderFilled event
	// when the receipt has one, otherwise they are the requested amounts.
	FilledMakingAmount *big.Int
	FilledTakingAmount *big.Int
	RemainingAmount    *big.Int
}
