package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Gateway is the charge contract settlement depends on. Implementations own
// their transport retry policy: a returned *TransportError means retries are
// already exhausted and the caller treats the charge as failed.
type Gateway interface {
	Charge(ctx context.Context, payerID, payeeID string, amount decimal.Decimal) (*ChargeResult, error)
}

// ChargeResult reports a successful charge
type ChargeResult struct {
	ChargeID string          `json:"charge_id"`
	PayerID  string          `json:"payer_id"`
	PayeeID  string          `json:"payee_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// DeclinedError is a terminal refusal from the gateway; it is never retried
type DeclinedError struct {
	Reason string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("charge declined: %s", e.Reason)
}

// TransportError means the gateway could not be reached even after the
// gateway layer's own retries
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway unreachable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
