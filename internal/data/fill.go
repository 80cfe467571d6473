package data

import (
	"database/sql"
	"time"
)

type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestProcessing RequestStatus = "processing"
	RequestFilled     RequestStatus = "filled"
	RequestFailed     RequestStatus = "failed"
)

// FillRequests is the queue of orders the dashboard asked the service to fill.
type FillRequests interface {
	Insert(FillRequest) (FillRequest, error)
	// Claim moves up to limit pending requests into processing and returns them.
	// Requests left in processing for longer than lease are claimed again.
	Claim(limit uint64, lease time.Duration) ([]FillRequest, error)
	// Release returns claimed requests that were not processed to pending.
	Release(ids []string) error
	SetStatus(id string, status RequestStatus) error
	Get(id string) (*FillRequest, error)
}

type FillRequest struct {
	ID        string        `structs:"id" db:"id"`
	OrderHash string        `structs:"order_hash" db:"order_hash"`
	Signature string        `structs:"signature" db:"signature"`
	Status    RequestStatus `structs:"status" db:"status"`
	CreatedAt time.Time     `structs:"created_at,omitnested" db:"created_at"`
	UpdatedAt time.Time     `structs:"updated_at,omitnested" db:"updated_at"`
}

// Fills stores the outcome of every executor call.
type Fills interface {
	Insert(Fill) error
	ByOrderHash(orderHash string) ([]Fill, error)
}

type Fill struct {
	ID        int64          `structs:"-" db:"id"`
	RequestID sql.NullString `structs:"request_id,omitnested" db:"request_id"`
	OrderHash string         `structs:"order_hash" db:"order_hash"`
	Taker     string         `structs:"taker" db:"taker"`
	Success   bool           `structs:"success" db:"success"`
	Attempts  int            `structs:"attempts" db:"attempts"`

	TxHash             sql.NullString `structs:"tx_hash,omitnested" db:"tx_hash"`
	BlockNumber        sql.NullInt64  `structs:"block_number,omitnested" db:"block_number"`
	GasUsed            sql.NullInt64  `structs:"gas_used,omitnested" db:"gas_used"`
	FilledMakingAmount sql.NullString `structs:"filled_making_amount,omitnested" db:"filled_making_amount"`
	FilledTakingAmount sql.NullString `structs:"filled_taking_amount,omitnested" db:"filled_taking_amount"`
	ErrorKind          sql.NullString `structs:"error_kind,omitnested" db:"error_kind"`
	ErrorMessage       sql.NullString `structs:"error_message,omitnested" db:"error_message"`

	CreatedAt time.Time `structs:"created_at,omitnested" db:"created_at"`
}
