package payment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func TestCharge_Success(t *testing.T) {
	gateway := &SimulatedGateway{
		MinLatency:  1,
		MaxLatency:  2,
		MaxAttempts: 3,
	}

	amount := decimal.NewFromInt(250)
	result, err := gateway.Charge(context.Background(), "buyer", "seller", amount)
	assert.NoError(t, err)
	assert.NotNil(t, result)
	check.True(t, strings.HasPrefix(result.ChargeID, "CHG_"))
	check.Equal(t, "buyer", result.PayerID)
	check.Equal(t, "seller", result.PayeeID)
	check.True(t, result.Amount.Equal(amount))
}

func TestCharge_DeclineIsImmediate(t *testing.T) {
	gateway := &SimulatedGateway{
		MinLatency:  1,
		MaxLatency:  2,
		DeclineRate: 1.0,
		MaxAttempts: 3,
	}

	result, err := gateway.Charge(context.Background(), "buyer", "seller", decimal.NewFromInt(250))
	check.Nil(t, result)

	var declined *DeclinedError
	assert.True(t, errors.As(err, &declined))
	check.Equal(t, "card declined", declined.Reason)
}

func TestCharge_TransportRetriesExhausted(t *testing.T) {
	gateway := &SimulatedGateway{
		MinLatency:        1,
		MaxLatency:        2,
		TransportFailRate: 1.0,
		MaxAttempts:       2,
	}

	result, err := gateway.Charge(context.Background(), "buyer", "seller", decimal.NewFromInt(250))
	check.Nil(t, result)

	var transport *TransportError
	assert.True(t, errors.As(err, &transport))
	check.Equal(t, 2, transport.Attempts)
}

func TestCharge_ContextCancelled(t *testing.T) {
	gateway := &SimulatedGateway{
		MinLatency:  500,
		MaxLatency:  500,
		MaxAttempts: 3,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := gateway.Charge(ctx, "buyer", "seller", decimal.NewFromInt(250))
	check.Nil(t, result)
	check.True(t, errors.Is(err, context.Canceled))
}
