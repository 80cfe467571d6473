package filler

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/Swapica/order-filler-svc/internal/data"
	"github.com/Swapica/order-filler-svc/internal/gobind"
	"github.com/Swapica/order-filler-svc/internal/registry"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"gitlab.com/distributed_lab/logan/v3"
)

var (
	testChainID    = big.NewInt(137)
	testSettlement = common.HexToAddress("0x111111125421ca6dc452d289314280a0f8842a65")
	testToken      = common.HexToAddress("0xc2132d05d31c914a87c6611c10748aeb04b58e8f")
	testMakerAsset = common.HexToAddress("0x2791bca1f2de4661ed88a30c99a7a9449aa84174")
)

type sentTx struct {
	method string
	req    TxRequest
	hash   common.Hash
	args   []interface{}
}

// fakeChain plays the settlement contract and the taker's tokens for a single order.
type fakeChain struct {
	t   *testing.T
	mu  sync.Mutex
	lop *gobind.LimitOrderProtocol
	erc *gobind.ERC20

	taker     common.Address
	orderHash common.Hash
	maker     common.Address

	code       map[common.Address][]byte
	native     *big.Int
	balances   map[common.Address]*big.Int
	allowances map[common.Address]*big.Int
	raw        *big.Int
	// bits are the maker's nonce slots of the bit invalidator.
	bits map[uint64]*big.Int

	// checkSignature makes EOA fills revert unless (r, vs) recovers to the maker.
	checkSignature bool
	estimateErr    error
	estimate       uint64
	sendErrs       []error
	hangFills      int

	sent     []sentTx
	calls    map[string]int
	receipts map[common.Hash]*types.Receipt
	waited   map[common.Hash]bool
	hanging  map[common.Hash]bool
}

func newFakeChain(t *testing.T) *fakeChain {
	lop, err := gobind.NewLimitOrderProtocol(testSettlement)
	if err != nil {
		t.Fatalf("binding: %v", err)
	}
	erc, err := gobind.NewERC20()
	if err != nil {
		t.Fatalf("binding: %v", err)
	}

	return &fakeChain{
		t:          t,
		lop:        lop,
		erc:        erc,
		taker:      common.HexToAddress("0x00000000000000000000000000000000000000f1"),
		code:       map[common.Address][]byte{},
		native:     new(big.Int),
		balances:   map[common.Address]*big.Int{},
		allowances: map[common.Address]*big.Int{},
		raw:        new(big.Int),
		bits:       map[uint64]*big.Int{},
		estimate:   100000,
		calls:      map[string]int{},
		receipts:   map[common.Hash]*types.Receipt{},
		waited:     map[common.Hash]bool{},
		hanging:    map[common.Hash]bool{},
	}
}

func (f *fakeChain) Address() common.Address { return f.taker }
func (f *fakeChain) ChainID() *big.Int       { return testChainID }

func (f *fakeChain) CodeAt(_ context.Context, account common.Address) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code[account], nil
}

func (f *fakeChain) BalanceAt(_ context.Context, _ common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["nativeBalance"]++
	return new(big.Int).Set(f.native), nil
}

func (f *fakeChain) CallContract(_ context.Context, call ethereum.CallMsg) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if *call.To == testSettlement {
		method, args := f.decode(f.lop.ABI(), call.Data)
		f.calls[method.Name]++
		if args[0].(common.Address) != f.maker {
			return method.Outputs.Pack(new(big.Int))
		}
		if method.Name == "bitInvalidatorForOrder" {
			return method.Outputs.Pack(f.slot(args[1].(*big.Int).Uint64()))
		}
		if common.Hash(args[1].([32]byte)) != f.orderHash {
			return method.Outputs.Pack(new(big.Int))
		}
		return method.Outputs.Pack(new(big.Int).Set(f.raw))
	}

	method, _ := f.decode(f.erc.ABI(), call.Data)
	f.calls[method.Name]++
	token := *call.To
	switch method.Name {
	case "balanceOf":
		return method.Outputs.Pack(f.amount(f.balances, token))
	case "allowance":
		return method.Outputs.Pack(f.amount(f.allowances, token))
	case "decimals":
		return method.Outputs.Pack(uint8(6))
	case "symbol":
		return method.Outputs.Pack("USDT")
	}
	return nil, fmt.Errorf("unexpected call %s", method.Name)
}

func (f *fakeChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.estimate, f.estimateErr
}

func (f *fakeChain) SendTransaction(_ context.Context, req TxRequest) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var (
		method *abi.Method
		args   []interface{}
	)
	if req.To == testSettlement {
		method, args = f.decode(f.lop.ABI(), req.Data)
	} else {
		method, args = f.decode(f.erc.ABI(), req.Data)
	}

	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("tx-%d", len(f.sent))))
	f.sent = append(f.sent, sentTx{method: method.Name, req: req, hash: hash, args: args})

	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		if len(f.sendErrs) > 1 {
			f.sendErrs = f.sendErrs[1:]
		}
		if err != nil {
			return common.Hash{}, err
		}
	}

	receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash, BlockNumber: big.NewInt(int64(len(f.sent)))}
	switch method.Name {
	case "approve":
		f.allowances[req.To] = args[1].(*big.Int)
	default:
		if f.hangFills > 0 {
			f.hangFills--
			f.hanging[hash] = true
			return hash, nil
		}
		logs, ok := f.fill(method.Name, req, args)
		if !ok {
			receipt.Status = types.ReceiptStatusFailed
		}
		receipt.Logs = logs
	}
	f.receipts[hash] = receipt
	return hash, nil
}

func (f *fakeChain) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	receipt, hang := f.receipts[hash], f.hanging[hash]
	f.waited[hash] = true
	f.mu.Unlock()

	if hang || receipt == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return receipt, nil
}

// fill applies a settlement call the way the contract would for a taker amount.
func (f *fakeChain) fill(name string, req TxRequest, args []interface{}) ([]*types.Log, bool) {
	order := *abi.ConvertType(args[0], new(gobind.IOrderMixinOrder)).(*gobind.IOrderMixinOrder)

	var amount *big.Int
	switch name {
	case "fillOrder", "fillOrderArgs":
		amount = args[3].(*big.Int)
		if f.checkSignature {
			sig := data.SignatureFromCompact(args[1].([32]byte), args[2].([32]byte))
			signer, err := sig.Recover(f.orderHash)
			if err != nil || signer != f.maker {
				return nil, false
			}
		}
	case "fillContractOrder", "fillContractOrderArgs":
		amount = args[2].(*big.Int)
	default:
		f.t.Fatalf("unexpected settlement method %s", name)
	}

	for _, tx := range f.sent[:len(f.sent)-1] {
		if tx.method == "approve" && !f.waited[tx.hash] {
			f.t.Errorf("fill sent before approval %s was confirmed", tx.hash.Hex())
		}
	}

	takerAsset := common.BigToAddress(order.TakerAsset)
	if takerAsset == data.NativeCurrency {
		if req.Value == nil || req.Value.Cmp(amount) != 0 {
			return nil, false
		}
		f.native.Sub(f.native, amount)
	} else {
		if f.amount(f.allowances, takerAsset).Cmp(amount) < 0 || f.amount(f.balances, takerAsset).Cmp(amount) < 0 {
			return nil, false
		}
		f.balances[takerAsset] = new(big.Int).Sub(f.balances[takerAsset], amount)
		f.allowances[takerAsset] = new(big.Int).Sub(f.allowances[takerAsset], amount)
	}

	making := new(big.Int).Mul(amount, order.MakingAmount)
	making.Quo(making, order.TakingAmount)

	var remaining *big.Int
	if traits := data.NewMakerTraits(order.MakerTraits); traits.UsesBitInvalidator() {
		nonce := traits.NonceOrEpoch()
		bits := f.slot(nonce >> 8)
		if bits.Bit(int(nonce&0xff)) == 1 {
			return nil, false
		}
		if !traits.AllowsPartialFills() && making.Cmp(order.MakingAmount) != 0 {
			return nil, false
		}
		f.bits[nonce>>8] = bits.SetBit(bits, int(nonce&0xff), 1)
		remaining = new(big.Int).Sub(order.MakingAmount, making)
	} else {
		remaining = new(big.Int).Set(order.MakingAmount)
		if f.raw.Sign() != 0 {
			remaining.Xor(f.raw, math.MaxBig256)
		}
		if making.Cmp(remaining) > 0 {
			return nil, false
		}
		remaining.Sub(remaining, making)
		f.raw = new(big.Int).Xor(remaining, math.MaxBig256)
	}

	event := f.lop.ABI().Events["OrderFilled"]
	payload, err := event.Inputs.Pack(f.orderHash, remaining)
	if err != nil {
		f.t.Fatalf("pack event: %v", err)
	}
	return []*types.Log{{
		Address: testSettlement,
		Topics:  []common.Hash{event.ID},
		Data:    payload,
	}}, true
}

func (f *fakeChain) decode(contract *abi.ABI, input []byte) (*abi.Method, []interface{}) {
	method, err := contract.MethodById(input)
	if err != nil {
		f.t.Fatalf("unknown selector %x: %v", input[:4], err)
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		f.t.Fatalf("failed to unpack %s: %v", method.Name, err)
	}
	return method, args
}

func (f *fakeChain) slot(n uint64) *big.Int {
	if v, ok := f.bits[n]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (f *fakeChain) amount(m map[common.Address]*big.Int, token common.Address) *big.Int {
	if v, ok := m[token]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (f *fakeChain) sentMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	methods := make([]string, 0, len(f.sent))
	for _, tx := range f.sent {
		methods = append(methods, tx.method)
	}
	return methods
}

type fakeRegistry struct {
	mu     sync.Mutex
	order  *registry.Order
	errs   []error
	called int
}

func (r *fakeRegistry) Order(context.Context, common.Hash) (*registry.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.called++
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return nil, err
	}
	if r.order == nil {
		return nil, registry.ErrNotFound
	}
	return r.order, nil
}

// testOrder is a maker key with a signed order selling maker asset for the taker asset.
type testOrder struct {
	key       *ecdsa.PrivateKey
	order     data.Order
	signature []byte
}

// multipleFillsTraits marks an order as partially fillable many times, the way the
// dashboard creates them.
var multipleFillsTraits = new(big.Int).SetBit(new(big.Int), 254, 1)

func newTestOrder(t *testing.T, takerAsset common.Address, making, taking int64) testOrder {
	return newTestOrderWithTraits(t, takerAsset, making, taking, multipleFillsTraits)
}

func newTestOrderWithTraits(t *testing.T, takerAsset common.Address, making, taking int64, traits *big.Int) testOrder {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	order := data.Order{
		Salt:         big.NewInt(42),
		Maker:        crypto.PubkeyToAddress(key.PublicKey),
		MakerAsset:   testMakerAsset,
		TakerAsset:   takerAsset,
		MakingAmount: big.NewInt(making),
		TakingAmount: big.NewInt(taking),
		MakerTraits:  data.NewMakerTraits(traits),
	}
	order.Hash = order.TypedDataHash(testChainID, testSettlement)

	sig, err := crypto.Sign(order.Hash.Bytes(), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return testOrder{key: key, order: order, signature: sig}
}

func (o testOrder) record() *registry.Order {
	d := &registry.OrderData{
		Salt:         o.order.Salt.String(),
		Maker:        o.order.Maker.Hex(),
		MakerAsset:   o.order.MakerAsset.Hex(),
		TakerAsset:   o.order.TakerAsset.Hex(),
		MakingAmount: o.order.MakingAmount.String(),
		TakingAmount: o.order.TakingAmount.String(),
		MakerTraits:  hexutil.EncodeBig(o.order.MakerTraits.Int()),
	}
	if len(o.order.Extension) > 0 {
		d.Extension = hexutil.Encode(o.order.Extension)
	}
	return &registry.Order{
		OrderHash: o.order.Hash.Hex(),
		Signature: hexutil.Encode(o.signature),
		Data:      d,
	}
}

func newTestExecutor(t *testing.T, reg Registry) *Executor {
	e, err := NewExecutor(logan.New(), reg, testSettlement)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	e.steps.Delay = Exponential(time.Millisecond)
	return e
}

func fastOptions() Options {
	return Options{
		MaxRetries:          3,
		BaseDelay:           time.Millisecond,
		ConfirmationTimeout: time.Second,
	}
}

// setup wires a fake chain and registry for an order and funds the taker.
func setup(t *testing.T, o testOrder) (*Executor, *fakeChain, *fakeRegistry) {
	chain := newFakeChain(t)
	chain.orderHash = o.order.Hash
	chain.maker = o.order.Maker
	chain.checkSignature = true
	chain.balances[testToken] = big.NewInt(1000000000)
	chain.allowances[testToken] = big.NewInt(1000000000)
	chain.native = big.NewInt(1000000000)

	reg := &fakeRegistry{order: o.record()}
	return newTestExecutor(t, reg), chain, reg
}
