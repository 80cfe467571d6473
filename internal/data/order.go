package data

import (
	"math/big"

	"github.com/Swapica/order-filler-svc/internal/gobind"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// NativeCurrency is the sentinel the order book uses for the chain's native coin.
var NativeCurrency = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

const (
	eip712DomainName    = "1inch Aggregation Router"
	eip712DomainVersion = "6"
)

var (
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
	orderTypeHash = crypto.Keccak256Hash([]byte(
		"Order(uint256 salt,address maker,address receiver,address makerAsset,address takerAsset,uint256 makingAmount,uint256 takingAmount,uint256 makerTraits)",
	))
)

// Order is a signed limit order as it is settled by the protocol.
type Order struct {
	Hash         common.Hash
	Salt         *big.Int
	Maker        common.Address
	Receiver     common.Address
	MakerAsset   common.Address
	TakerAsset   common.Address
	MakingAmount *big.Int
	TakingAmount *big.Int
	MakerTraits  MakerTraits
	Extension    []byte
}

func (o Order) IsNativeTakerAsset() bool {
	return o.TakerAsset == NativeCurrency
}

// Struct converts the order into the contract representation where addresses are uint256.
func (o Order) Struct() gobind.IOrderMixinOrder {
	return gobind.IOrderMixinOrder{
		Salt:         new(big.Int).Set(o.Salt),
		Maker:        new(big.Int).SetBytes(o.Maker.Bytes()),
		Receiver:     new(big.Int).SetBytes(o.Receiver.Bytes()),
		MakerAsset:   new(big.Int).SetBytes(o.MakerAsset.Bytes()),
		TakerAsset:   new(big.Int).SetBytes(o.TakerAsset.Bytes()),
		MakingAmount: new(big.Int).Set(o.MakingAmount),
		TakingAmount: new(big.Int).Set(o.TakingAmount),
		MakerTraits:  o.MakerTraits.Int(),
	}
}

// TypedDataHash computes the EIP-712 digest the maker signs for this order.
func (o Order) TypedDataHash(chainID *big.Int, verifyingContract common.Address) common.Hash {
	bytes32Type, _ := abi.NewType("bytes32", "", nil)
	uint256Type, _ := abi.NewType("uint256", "", nil)
	addressType, _ := abi.NewType("address", "", nil)

	domain, err := abi.Arguments{
		{Type: bytes32Type},
		{Type: bytes32Type},
		{Type: bytes32Type},
		{Type: uint256Type},
		{Type: addressType},
	}.Pack(
		eip712DomainTypeHash,
		crypto.Keccak256Hash([]byte(eip712DomainName)),
		crypto.Keccak256Hash([]byte(eip712DomainVersion)),
		chainID,
		verifyingContract,
	)
	if err != nil {
		panic("failed to encode domain separator: " + err.Error())
	}

	message, err := abi.Arguments{
		{Type: bytes32Type},
		{Type: uint256Type},
		{Type: addressType},
		{Type: addressType},
		{Type: addressType},
		{Type: addressType},
		{Type: uint256Type},
		{Type: uint256Type},
		{Type: uint256Type},
	}.Pack(
		orderTypeHash,
		o.Salt,
		o.Maker,
		o.Receiver,
		o.MakerAsset,
		o.TakerAsset,
		o.MakingAmount,
		o.TakingAmount,
		o.MakerTraits.Int(),
	)
	if err != nil {
		panic("failed to encode order: " + err.Error())
	}

	domainSeparator := crypto.Keccak256Hash(domain)
	structHash := crypto.Keccak256Hash(message)

	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator.Bytes(), structHash.Bytes())
}
