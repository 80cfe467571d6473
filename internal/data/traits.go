package data

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Maker traits layout of the v6 protocol: flags in the high bits, then
// series/nonce/expiration and the low 80 bits of the allowed sender.
const (
	noPartialFillsFlag     = 255
	allowMultipleFillsFlag = 254
	preInteractionFlag     = 252
	postInteractionFlag    = 251
	needCheckEpochFlag     = 250
	hasExtensionFlag       = 249
	usePermit2MakerFlag    = 248
	unwrapWethMakerFlag    = 247

	allowedSenderBits = 80
	expirationOffset  = 80
	expirationBits    = 40
	nonceOffset       = 120
	nonceBits         = 40
	seriesOffset      = 160
	seriesBits        = 40
)

// Taker traits layout.
const (
	makerAmountFlag        = 255
	unwrapWethTakerFlag    = 254
	skipOrderPermitFlag    = 253
	usePermit2TakerFlag    = 252
	argsHasTargetFlag      = 251
	argsExtensionLenOffset = 224
	argsInteractionOffset  = 200
	thresholdBits          = 185
)

// MakerTraits is the packed uint256 describing how an order may be filled.
type MakerTraits struct {
	value *big.Int
}

func NewMakerTraits(value *big.Int) MakerTraits {
	if value == nil {
		return MakerTraits{value: new(big.Int)}
	}
	return MakerTraits{value: new(big.Int).Set(value)}
}

func (t MakerTraits) Int() *big.Int {
	if t.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(t.value)
}

func (t MakerTraits) bit(n int) bool {
	return t.value != nil && t.value.Bit(n) == 1
}

func (t MakerTraits) field(offset, bits int) uint64 {
	if t.value == nil {
		return 0
	}
	v := new(big.Int).Rsh(t.value, uint(offset))
	return v.And(v, lowBitsMask(bits)).Uint64()
}

func lowBitsMask(bits int) *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(bits)), big.NewInt(1))
}

func (t MakerTraits) AllowsPartialFills() bool   { return !t.bit(noPartialFillsFlag) }
func (t MakerTraits) AllowsMultipleFills() bool  { return t.bit(allowMultipleFillsFlag) }
func (t MakerTraits) NeedsPreInteraction() bool  { return t.bit(preInteractionFlag) }
func (t MakerTraits) NeedsPostInteraction() bool { return t.bit(postInteractionFlag) }
func (t MakerTraits) NeedsEpochCheck() bool      { return t.bit(needCheckEpochFlag) }
func (t MakerTraits) HasExtension() bool         { return t.bit(hasExtensionFlag) }
func (t MakerTraits) UsesPermit2() bool          { return t.bit(usePermit2MakerFlag) }
func (t MakerTraits) UnwrapsWeth() bool          { return t.bit(unwrapWethMakerFlag) }

// UsesBitInvalidator reports whether the protocol tracks fills of the order by a
// bit of the maker's nonce slot instead of the remaining amount.
func (t MakerTraits) UsesBitInvalidator() bool {
	return !t.AllowsPartialFills() || !t.AllowsMultipleFills()
}

// Expiration returns the unix timestamp after which the order is invalid, 0 if it never expires.
func (t MakerTraits) Expiration() uint64   { return t.field(expirationOffset, expirationBits) }
func (t MakerTraits) NonceOrEpoch() uint64 { return t.field(nonceOffset, nonceBits) }
func (t MakerTraits) Series() uint64       { return t.field(seriesOffset, seriesBits) }

// IsExpired reports whether the order expired at the given unix time.
func (t MakerTraits) IsExpired(now int64) bool {
	exp := t.Expiration()
	return exp != 0 && exp < uint64(now)
}

// AllowsSender checks the low 80 bits of the allowed sender against the taker address.
// A zero allowed sender means the order is public.
func (t MakerTraits) AllowsSender(sender common.Address) bool {
	if t.value == nil {
		return true
	}
	mask := lowBitsMask(allowedSenderBits)
	want := new(big.Int).And(t.value, mask)
	if want.Sign() == 0 {
		return true
	}
	got := new(big.Int).And(new(big.Int).SetBytes(sender.Bytes()), mask)
	return got.Cmp(want) == 0
}

// TakerTraits configures a single fill call.
type TakerTraits struct {
	MakerAmount     bool
	UnwrapWeth      bool
	SkipOrderPermit bool
	UsePermit2      bool
	Target          *common.Address
	Threshold       *big.Int
	Extension       []byte
	Interaction     []byte
}

// Encode packs the traits into the uint256 flag word and the args blob that accompanies it.
func (t TakerTraits) Encode() (*big.Int, []byte) {
	traits := new(big.Int)
	if t.MakerAmount {
		traits.SetBit(traits, makerAmountFlag, 1)
	}
	if t.UnwrapWeth {
		traits.SetBit(traits, unwrapWethTakerFlag, 1)
	}
	if t.SkipOrderPermit {
		traits.SetBit(traits, skipOrderPermitFlag, 1)
	}
	if t.UsePermit2 {
		traits.SetBit(traits, usePermit2TakerFlag, 1)
	}

	var args []byte
	if t.Target != nil {
		traits.SetBit(traits, argsHasTargetFlag, 1)
		args = append(args, t.Target.Bytes()...)
	}

	traits.Or(traits, new(big.Int).Lsh(big.NewInt(int64(len(t.Extension))), argsExtensionLenOffset))
	traits.Or(traits, new(big.Int).Lsh(big.NewInt(int64(len(t.Interaction))), argsInteractionOffset))
	args = append(args, t.Extension...)
	args = append(args, t.Interaction...)

	if t.Threshold != nil {
		traits.Or(traits, new(big.Int).And(t.Threshold, lowBitsMask(thresholdBits)))
	}

	return traits, args
}
