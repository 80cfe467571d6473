package gobind

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

// orderTuple is the OrderLib.Order struct of the v6 protocol. Address fields are
// declared as uint256 in the contract (type Address is uint256), so the selector
// must be computed over uint256 components.
const orderTuple = `{"components":[` +
	`{"internalType":"uint256","name":"salt","type":"uint256"},` +
	`{"internalType":"Address","name":"maker","type":"uint256"},` +
	`{"internalType":"Address","name":"receiver","type":"uint256"},` +
	`{"internalType":"Address","name":"makerAsset","type":"uint256"},` +
	`{"internalType":"Address","name":"takerAsset","type":"uint256"},` +
	`{"internalType":"uint256","name":"makingAmount","type":"uint256"},` +
	`{"internalType":"uint256","name":"takingAmount","type":"uint256"},` +
	`{"internalType":"MakerTraits","name":"makerTraits","type":"uint256"}` +
	`],"internalType":"struct IOrderMixin.Order","name":"order","type":"tuple"}`

const fillOutputs = `"outputs":[` +
	`{"internalType":"uint256","name":"makingAmount","type":"uint256"},` +
	`{"internalType":"uint256","name":"takingAmount","type":"uint256"},` +
	`{"internalType":"bytes32","name":"orderHash","type":"bytes32"}]`

// LimitOrderProtocolMetaData contains the subset of the 1inch Aggregation Router v6
// ABI used to settle limit orders.
var LimitOrderProtocolMetaData = &bind.MetaData{
	ABI: `[` +
		`{"inputs":[{"internalType":"address","name":"maker","type":"address"},{"internalType":"bytes32","name":"orderHash","type":"bytes32"}],"name":"rawRemainingInvalidatorForOrder","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},` +
		`{"inputs":[{"internalType":"address","name":"maker","type":"address"},{"internalType":"uint256","name":"slot","type":"uint256"}],"name":"bitInvalidatorForOrder","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},` +
		`{"inputs":[` + orderTuple + `,{"internalType":"bytes32","name":"r","type":"bytes32"},{"internalType":"bytes32","name":"vs","type":"bytes32"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"TakerTraits","name":"takerTraits","type":"uint256"}],"name":"fillOrder",` + fillOutputs + `,"stateMutability":"payable","type":"function"},` +
		`{"inputs":[` + orderTuple + `,{"internalType":"bytes32","name":"r","type":"bytes32"},{"internalType":"bytes32","name":"vs","type":"bytes32"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"TakerTraits","name":"takerTraits","type":"uint256"},{"internalType":"bytes","name":"args","type":"bytes"}],"name":"fillOrderArgs",` + fillOutputs + `,"stateMutability":"payable","type":"function"},` +
		`{"inputs":[` + orderTuple + `,{"internalType":"bytes","name":"signature","type":"bytes"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"TakerTraits","name":"takerTraits","type":"uint256"}],"name":"fillContractOrder",` + fillOutputs + `,"stateMutability":"nonpayable","type":"function"},` +
		`{"inputs":[` + orderTuple + `,{"internalType":"bytes","name":"signature","type":"bytes"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"TakerTraits","name":"takerTraits","type":"uint256"},{"internalType":"bytes","name":"args","type":"bytes"}],"name":"fillContractOrderArgs",` + fillOutputs + `,"stateMutability":"nonpayable","type":"function"},` +
		`{"anonymous":false,"inputs":[{"indexed":false,"internalType":"bytes32","name":"orderHash","type":"bytes32"},{"indexed":false,"internalType":"uint256","name":"remainingAmount","type":"uint256"}],"name":"OrderFilled","type":"event"}` +
		`]`,
}

// IOrderMixinOrder is an auto generated low-level Go binding around the v6 Order struct.
type IOrderMixinOrder struct {
	Salt         *big.Int
	Maker        *big.Int
	Receiver     *big.Int
	MakerAsset   *big.Int
	TakerAsset   *big.Int
	MakingAmount *big.Int
	TakingAmount *big.Int
	MakerTraits  *big.Int
}

// LimitOrderProtocolOrderFilled represents an OrderFilled event raised by the protocol.
type LimitOrderProtocolOrderFilled struct {
	OrderHash       [32]byte
	RemainingAmount *big.Int
	Raw             types.Log
}

// LimitOrderProtocol packs calls to and unpacks results from the settlement contract.
type LimitOrderProtocol struct {
	Address common.Address
	abi     *abi.ABI
}

func NewLimitOrderProtocol(address common.Address) (*LimitOrderProtocol, error) {
	parsed, err := LimitOrderProtocolMetaData.GetAbi()
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse limit order protocol ABI")
	}
	return &LimitOrderProtocol{Address: address, abi: parsed}, nil
}

func (l *LimitOrderProtocol) ABI() *abi.ABI {
	return l.abi
}

func (l *LimitOrderProtocol) PackRawRemainingInvalidatorForOrder(maker common.Address, orderHash common.Hash) ([]byte, error) {
	return l.abi.Pack("rawRemainingInvalidatorForOrder", maker, orderHash)
}

func (l *LimitOrderProtocol) UnpackRawRemainingInvalidatorForOrder(data []byte) (*big.Int, error) {
	out, err := l.abi.Unpack("rawRemainingInvalidatorForOrder", data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unpack rawRemainingInvalidatorForOrder")
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (l *LimitOrderProtocol) PackBitInvalidatorForOrder(maker common.Address, slot *big.Int) ([]byte, error) {
	return l.abi.Pack("bitInvalidatorForOrder", maker, slot)
}

func (l *LimitOrderProtocol) UnpackBitInvalidatorForOrder(data []byte) (*big.Int, error) {
	out, err := l.abi.Unpack("bitInvalidatorForOrder", data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unpack bitInvalidatorForOrder")
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (l *LimitOrderProtocol) PackFillOrder(order IOrderMixinOrder, r, vs [32]byte, amount, takerTraits *big.Int) ([]byte, error) {
	return l.abi.Pack("fillOrder", order, r, vs, amount, takerTraits)
}

func (l *LimitOrderProtocol) PackFillOrderArgs(order IOrderMixinOrder, r, vs [32]byte, amount, takerTraits *big.Int, args []byte) ([]byte, error) {
	return l.abi.Pack("fillOrderArgs", order, r, vs, amount, takerTraits, args)
}

func (l *LimitOrderProtocol) PackFillContractOrder(order IOrderMixinOrder, signature []byte, amount, takerTraits *big.Int) ([]byte, error) {
	return l.abi.Pack("fillContractOrder", order, signature, amount, takerTraits)
}

func (l *LimitOrderProtocol) PackFillContractOrderArgs(order IOrderMixinOrder, signature []byte, amount, takerTraits *big.Int, args []byte) ([]byte, error) {
	return l.abi.Pack("fillContractOrderArgs", order, signature, amount, takerTraits, args)
}

// FindOrderFilled returns the first OrderFilled event emitted by the protocol for
// the given order, or nil if the receipt has none.
func (l *LimitOrderProtocol) FindOrderFilled(logs []*types.Log, orderHash common.Hash) (*LimitOrderProtocolOrderFilled, error) {
	event := l.abi.Events["OrderFilled"]
	for _, log := range logs {
		if log == nil || log.Address != l.Address || len(log.Topics) == 0 || log.Topics[0] != event.ID {
			continue
		}

		var filled LimitOrderProtocolOrderFilled
		if err := l.abi.UnpackIntoInterface(&filled, "OrderFilled", log.Data); err != nil {
			return nil, errors.Wrap(err, "failed to unpack OrderFilled event")
		}
		if common.Hash(filled.OrderHash) != orderHash {
			continue
		}
		filled.Raw = *log
		return &filled, nil
	}
	return nil, nil
}
