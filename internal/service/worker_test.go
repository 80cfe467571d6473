package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/Swapica/order-filler-svc/internal/data"
	"github.com/Swapica/order-filler-svc/internal/service/filler"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

type memRequests struct {
	rows     []data.FillRequest
	now      time.Time
	released []string
}

func newMemRequests(reqs ...data.FillRequest) *memRequests {
	m := &memRequests{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	for _, req := range reqs {
		_, _ = m.Insert(req)
	}
	return m
}

func (m *memRequests) Insert(req data.FillRequest) (data.FillRequest, error) {
	if req.Status == "" {
		req.Status = data.RequestPending
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = m.now
	}
	m.rows = append(m.rows, req)
	return req, nil
}

func (m *memRequests) Claim(limit uint64, lease time.Duration) ([]data.FillRequest, error) {
	var batch []data.FillRequest
	for i := range m.rows {
		if uint64(len(batch)) == limit {
			break
		}
		row := &m.rows[i]
		expired := row.Status == data.RequestProcessing && row.UpdatedAt.Before(m.now.Add(-lease))
		if row.Status != data.RequestPending && !expired {
			continue
		}
		row.Status, row.UpdatedAt = data.RequestProcessing, m.now
		batch = append(batch, *row)
	}
	return batch, nil
}

func (m *memRequests) Release(ids []string) error {
	m.released = append(m.released, ids...)
	for _, id := range ids {
		if row := m.row(id); row != nil && row.Status == data.RequestProcessing {
			row.Status = data.RequestPending
		}
	}
	return nil
}

func (m *memRequests) SetStatus(id string, status data.RequestStatus) error {
	if row := m.row(id); row != nil {
		row.Status = status
	}
	return nil
}

func (m *memRequests) Get(id string) (*data.FillRequest, error) { return m.row(id), nil }

func (m *memRequests) row(id string) *data.FillRequest {
	for i := range m.rows {
		if m.rows[i].ID == id {
			return &m.rows[i]
		}
	}
	return nil
}

func (m *memRequests) status(id string) data.RequestStatus {
	if row := m.row(id); row != nil {
		return row.Status
	}
	return ""
}

type memFills struct {
	stored []data.Fill
	err    error
}

func (m *memFills) Insert(fill data.Fill) error {
	if m.err != nil {
		return m.err
	}
	m.stored = append(m.stored, fill)
	return nil
}

func (m *memFills) ByOrderHash(string) ([]data.Fill, error) { return m.stored, nil }

type stubSigner struct {
	filler.SignerContext
	address common.Address
}

func (s stubSigner) Address() common.Address { return s.address }

type stubExecutor struct {
	calls   []common.Hash
	results map[common.Hash]*filler.FillResult
	errs    map[common.Hash]error
}

func (e *stubExecutor) Fill(_ context.Context, _ filler.SignerContext, orderHash common.Hash, _ []byte, _ filler.Options) (*filler.FillResult, error) {
	e.calls = append(e.calls, orderHash)
	if err, ok := e.errs[orderHash]; ok {
		return nil, err
	}
	return e.results[orderHash], nil
}

func newTestService(exec executor, requests *memRequests, fills *memFills) *service {
	return &service{
		log:       logan.New(),
		requests:  requests,
		fills:     fills,
		executor:  exec,
		signer:    stubSigner{address: common.HexToAddress("0xf1")},
		batchSize: 10,
		lease:     30 * time.Minute,
	}
}

func TestWorkerRecordsOutcomes(t *testing.T) {
	okHash := common.HexToHash("0x01")
	badHash := common.HexToHash("0x02")
	txHash := common.HexToHash("0xaa")

	exec := &stubExecutor{
		results: map[common.Hash]*filler.FillResult{okHash: {
			TxHash:             txHash,
			Attempts:           2,
			FilledMakingAmount: big.NewInt(100),
			FilledTakingAmount: big.NewInt(200),
			Receipt:            &types.Receipt{BlockNumber: big.NewInt(77), GasUsed: 90000},
		}},
		errs: map[common.Hash]error{badHash: &filler.Error{Kind: filler.OrderAlreadySettled, Msg: "settled", Attempts: 1}},
	}
	requests := newMemRequests(
		data.FillRequest{ID: "a", OrderHash: okHash.Hex()},
		data.FillRequest{ID: "b", OrderHash: badHash.Hex()},
		data.FillRequest{ID: "c", OrderHash: "0x1234"},
	)
	fills := &memFills{}

	if err := newTestService(exec, requests, fills).worker(context.Background()); err != nil {
		t.Fatalf("worker() error = %v", err)
	}

	if len(exec.calls) != 2 {
		t.Errorf("executor called %d times, malformed request must be skipped", len(exec.calls))
	}
	want := map[string]data.RequestStatus{"a": data.RequestFilled, "b": data.RequestFailed, "c": data.RequestFailed}
	for id, status := range want {
		if got := requests.status(id); got != status {
			t.Errorf("status of %s = %s, want %s", id, got, status)
		}
	}
	if len(fills.stored) != 3 {
		t.Fatalf("stored %d fills, want 3", len(fills.stored))
	}

	ok := fills.stored[0]
	if !ok.Success || ok.TxHash.String != txHash.Hex() || ok.BlockNumber.Int64 != 77 || ok.GasUsed.Int64 != 90000 {
		t.Errorf("success fill = %+v", ok)
	}
	if ok.FilledMakingAmount.String != "100" || ok.FilledTakingAmount.String != "200" || ok.Attempts != 2 {
		t.Errorf("success amounts = %+v", ok)
	}

	settled := fills.stored[1]
	if settled.Success || settled.ErrorKind.String != "order_already_settled" || settled.Attempts != 1 {
		t.Errorf("failed fill = %+v", settled)
	}
	if malformed := fills.stored[2]; malformed.ErrorKind.String != "malformed_order_data" {
		t.Errorf("malformed fill = %+v", malformed)
	}
}

func TestWorkerReleasesUnprocessedOnStorageError(t *testing.T) {
	first, second := common.HexToHash("0x01"), common.HexToHash("0x02")
	requests := newMemRequests(
		data.FillRequest{ID: "a", OrderHash: first.Hex()},
		data.FillRequest{ID: "b", OrderHash: second.Hex()},
	)
	exec := &stubExecutor{errs: map[common.Hash]error{first: &filler.Error{Kind: filler.OrderNotFound}}}

	err := newTestService(exec, requests, &memFills{err: errors.New("db is down")}).worker(context.Background())
	if err == nil {
		t.Fatal("expected storage error")
	}
	if len(exec.calls) != 1 {
		t.Errorf("executor called %d times, want 1", len(exec.calls))
	}
	for _, id := range []string{"a", "b"} {
		if got := requests.status(id); got != data.RequestPending {
			t.Errorf("status of %s = %s, want %s", id, got, data.RequestPending)
		}
	}
	if len(requests.released) != 2 {
		t.Errorf("released %v, want both requests", requests.released)
	}
}

type panickingExecutor struct{}

func (panickingExecutor) Fill(context.Context, filler.SignerContext, common.Hash, []byte, filler.Options) (*filler.FillResult, error) {
	panic("not implemented")
}

func TestWorkerReleasesUnprocessedOnPanic(t *testing.T) {
	requests := newMemRequests(
		data.FillRequest{ID: "a", OrderHash: common.HexToHash("0x01").Hex()},
		data.FillRequest{ID: "b", OrderHash: common.HexToHash("0x02").Hex()},
	)
	svc := newTestService(panickingExecutor{}, requests, &memFills{})

	func() {
		defer func() {
			if rvr := recover(); rvr == nil {
				t.Error("panic was swallowed")
			}
		}()
		_ = svc.worker(context.Background())
	}()

	for _, id := range []string{"a", "b"} {
		if got := requests.status(id); got != data.RequestPending {
			t.Errorf("status of %s = %s, want %s", id, got, data.RequestPending)
		}
	}
}

func TestWorkerReclaimsExpiredLease(t *testing.T) {
	hash := common.HexToHash("0x01")
	requests := newMemRequests(data.FillRequest{ID: "a", OrderHash: hash.Hex()})
	stale := requests.row("a")
	stale.Status = data.RequestProcessing
	stale.UpdatedAt = requests.now.Add(-time.Hour)

	fresh, _ := requests.Insert(data.FillRequest{ID: "b", OrderHash: hash.Hex(), Status: data.RequestProcessing})

	exec := &stubExecutor{results: map[common.Hash]*filler.FillResult{hash: {
		TxHash:             common.HexToHash("0xaa"),
		FilledMakingAmount: big.NewInt(1),
		FilledTakingAmount: big.NewInt(1),
	}}}
	if err := newTestService(exec, requests, &memFills{}).worker(context.Background()); err != nil {
		t.Fatalf("worker() error = %v", err)
	}

	if got := requests.status("a"); got != data.RequestFilled {
		t.Errorf("status of expired request = %s, want %s", got, data.RequestFilled)
	}
	if got := requests.status(fresh.ID); got != data.RequestProcessing {
		t.Errorf("status of leased request = %s, want %s", got, data.RequestProcessing)
	}
	if len(exec.calls) != 1 {
		t.Errorf("executor called %d times, want 1", len(exec.calls))
	}
}

func TestParseRequest(t *testing.T) {
	hash := common.HexToHash("0xbeef")
	got, sig, err := parseRequest(data.FillRequest{OrderHash: hash.Hex(), Signature: "0x0102"})
	if err != nil {
		t.Fatalf("parseRequest() error = %v", err)
	}
	if got != hash || len(sig) != 2 {
		t.Errorf("parsed %s %x", got.Hex(), sig)
	}

	if _, sig, err = parseRequest(data.FillRequest{OrderHash: hash.Hex()}); err != nil || sig != nil {
		t.Errorf("empty signature: %x, %v", sig, err)
	}
	if _, _, err = parseRequest(data.FillRequest{OrderHash: hash.Hex(), Signature: "zz"}); err == nil {
		t.Error("bad signature accepted")
	}
}
