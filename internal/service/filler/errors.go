package filler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/rpc"
	"gitlab.com/distributed_lab/logan/v3"
)

// Kind is the closed set of failure categories a fill can end with.
type Kind int

const (
	UnclassifiedFailure Kind = iota
	OrderNotFound
	MalformedOrderData
	OrderAlreadySettled
	OrderExpired
	InsufficientBalance
	ApprovalFailed
	UserRejected
	TransactionRejected
	TransactionValidationFailed
	ConfirmationTimeout
)

var kindNames = map[Kind]string{
	UnclassifiedFailure:         "unclassified_failure",
	OrderNotFound:               "order_not_found",
	MalformedOrderData:          "malformed_order_data",
	OrderAlreadySettled:         "order_already_settled",
	OrderExpired:                "order_expired",
	InsufficientBalance:         "insufficient_balance",
	ApprovalFailed:              "approval_failed",
	UserRejected:                "user_rejected",
	TransactionRejected:         "transaction_rejected",
	TransactionValidationFailed: "transaction_validation_failed",
	ConfirmationTimeout:         "confirmation_timeout",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Retryable reports whether another attempt may succeed after this kind of failure.
func (k Kind) Retryable() bool {
	switch k {
	case TransactionRejected, TransactionValidationFailed, ConfirmationTimeout, UnclassifiedFailure:
		return true
	default:
		return false
	}
}

// Error is the classified failure returned by the executor.
type Error struct {
	Kind Kind
	Msg  string
	// TxHash is set once a transaction for the failing step was broadcast.
	TxHash   *common.Hash
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.TxHash != nil {
		b.WriteString(" (tx ")
		b.WriteString(e.TxHash.Hex())
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fields returns the error description in the form the service logs it.
func (e *Error) Fields() logan.F {
	fields := logan.F{
		"error_kind": e.Kind.String(),
		"retryable":  e.Kind.Retryable(),
	}
	if e.TxHash != nil {
		fields["tx_hash"] = e.TxHash.Hex()
	}
	if e.Attempts > 0 {
		fields["attempts"] = e.Attempts
	}
	return fields
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func newTxError(kind Kind, msg string, txHash common.Hash, err error) *Error {
	return &Error{Kind: kind, Msg: msg, TxHash: &txHash, Err: err}
}

// AsError finds the classified error in the chain, following both Unwrap and Cause.
func AsError(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		switch x := err.(type) {
		case interface{ Unwrap() error }:
			err = x.Unwrap()
		case interface{ Cause() error }:
			err = x.Cause()
		default:
			return nil, false
		}
	}
	return nil, false
}

// KindOf returns the kind of a classified error and UnclassifiedFailure for anything else.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return UnclassifiedFailure
}

// IsRetryable is the predicate the outer retry policy uses.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

const (
	codeUserRejected    = 4001
	codeExecutionError  = 3
	codeInternalError   = -32603
	userRejectedMessage = "user rejected"
)

// classifySend maps a failed broadcast to a kind. The structured JSON-RPC code wins,
// message matching is the fallback for nodes that do not return one.
func classifySend(err error) Kind {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeUserRejected:
			return UserRejected
		case codeExecutionError, codeInternalError:
			if isInsufficientFunds(err) {
				return InsufficientBalance
			}
			return TransactionValidationFailed
		}
	}

	switch {
	case isInsufficientFunds(err):
		return InsufficientBalance
	case strings.Contains(strings.ToLower(err.Error()), userRejectedMessage):
		return UserRejected
	default:
		return TransactionRejected
	}
}

func isInsufficientFunds(err error) bool {
	return errors.Is(err, core.ErrInsufficientFunds) ||
		strings.Contains(err.Error(), core.ErrInsufficientFunds.Error())
}
