package registry

import (
	"math/big"
	"strings"

	"github.com/Swapica/order-filler-svc/internal/data"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

// OrderData holds the order terms as the order book serves them: addresses as hex
// strings, amounts as decimal strings and maker traits as hex.
type OrderData struct {
	Salt         string `json:"salt"`
	Maker        string `json:"maker"`
	Receiver     string `json:"receiver"`
	MakerAsset   string `json:"makerAsset"`
	TakerAsset   string `json:"takerAsset"`
	MakingAmount string `json:"makingAmount"`
	TakingAmount string `json:"takingAmount"`
	MakerTraits  string `json:"makerTraits"`
	Extension    string `json:"extension"`
}

// Order is a single order book record. Older records carry the terms at the top
// level instead of under data.
type Order struct {
	OrderHash string     `json:"orderHash"`
	Signature string     `json:"signature"`
	Data      *OrderData `json:"data"`
	OrderData
}

func (o Order) IsEmpty() bool {
	return o.OrderHash == "" && o.Signature == "" && o.Data == nil && o.OrderData == (OrderData{})
}

// terms merges the nested record with the top-level fallbacks.
func (o Order) terms() OrderData {
	d := o.OrderData
	if o.Data == nil {
		return d
	}
	n := *o.Data
	pick := func(nested, top string) string {
		if nested != "" {
			return nested
		}
		return top
	}
	return OrderData{
		Salt:         pick(n.Salt, d.Salt),
		Maker:        pick(n.Maker, d.Maker),
		Receiver:     pick(n.Receiver, d.Receiver),
		MakerAsset:   pick(n.MakerAsset, d.MakerAsset),
		TakerAsset:   pick(n.TakerAsset, d.TakerAsset),
		MakingAmount: pick(n.MakingAmount, d.MakingAmount),
		TakingAmount: pick(n.TakingAmount, d.TakingAmount),
		MakerTraits:  pick(n.MakerTraits, d.MakerTraits),
		Extension:    pick(n.Extension, d.Extension),
	}
}

// Parse rebuilds the on-chain order. The returned order has a zero hash when the
// record does not echo one.
func (o Order) Parse() (data.Order, error) {
	t := o.terms()
	var (
		order data.Order
		err   error
	)

	if order.Maker, err = parseAddress("maker", t.Maker, true); err != nil {
		return order, err
	}
	if order.MakerAsset, err = parseAddress("makerAsset", t.MakerAsset, true); err != nil {
		return order, err
	}
	if order.TakerAsset, err = parseAddress("takerAsset", t.TakerAsset, true); err != nil {
		return order, err
	}
	if order.Receiver, err = parseAddress("receiver", t.Receiver, false); err != nil {
		return order, err
	}
	if order.Salt, err = parseUint256("salt", t.Salt); err != nil {
		return order, err
	}
	if order.MakingAmount, err = parseUint256("makingAmount", t.MakingAmount); err != nil {
		return order, err
	}
	if order.TakingAmount, err = parseUint256("takingAmount", t.TakingAmount); err != nil {
		return order, err
	}
	if order.MakingAmount.Sign() == 0 || order.TakingAmount.Sign() == 0 {
		return order, errors.From(errors.New("order amounts must be positive"), logan.F{
			"making_amount": t.MakingAmount,
			"taking_amount": t.TakingAmount,
		})
	}

	traits, err := parseUint256("makerTraits", t.MakerTraits)
	if err != nil {
		return order, err
	}
	order.MakerTraits = data.NewMakerTraits(traits)

	if ext := strings.TrimSpace(t.Extension); ext != "" && ext != "0x" {
		if order.Extension, err = hexutil.Decode(ext); err != nil {
			return order, errors.Wrap(err, "extension is not a hex string")
		}
	}

	if o.OrderHash != "" {
		if !isHex(o.OrderHash, common.HashLength) {
			return order, errors.From(errors.New("order hash is malformed"), logan.F{"order_hash": o.OrderHash})
		}
		order.Hash = common.HexToHash(o.OrderHash)
	}

	return order, nil
}

func parseAddress(field, raw string, required bool) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return common.Address{}, errors.From(errors.New("field is missing"), logan.F{"field": field})
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, errors.From(errors.New("field is not an address"), logan.F{
			"field": field,
			"value": raw,
		})
	}
	return common.HexToAddress(raw), nil
}

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// parseUint256 accepts decimal strings and 0x-prefixed hex.
func parseUint256(field, raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.From(errors.New("field is missing"), logan.F{"field": field})
	}

	digits, base := raw, 10
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		digits, base = raw[2:], 16
	}

	v, ok := new(big.Int).SetString(digits, base)
	if !ok || digits == "" || v.Sign() < 0 || v.Cmp(maxUint256) > 0 {
		return nil, errors.From(errors.New("field is not a uint256"), logan.F{
			"field": field,
			"value": raw,
		})
	}
	return v, nil
}

func isHex(s string, length int) bool {
	b, err := hexutil.Decode(s)
	return err == nil && len(b) == length
}
