package payment

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// SimulatedGateway mimics a third-party card processor: network latency,
// occasional transient transport failures (retried internally) and a share
// of hard declines. It stands in for the real processor in development and
// simulation runs.
type SimulatedGateway struct {
	MinLatency        int // in milliseconds
	MaxLatency        int
	DeclineRate       float64 // 0-1, probability of a hard decline
	TransportFailRate float64 // 0-1, probability of a transient transport failure per attempt
	MaxAttempts       int     // transport retries before giving up
}

// NewSimulatedGateway returns a gateway with realistic default behaviour
func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{
		MinLatency:        10,
		MaxLatency:        80,
		DeclineRate:       0.05,
		TransportFailRate: 0.02,
		MaxAttempts:       3,
	}
}

// Charge attempts to move funds from payer to payee. Transient transport
// failures are retried up to MaxAttempts with backoff; declines are terminal
// and returned immediately.
func (g *SimulatedGateway) Charge(ctx context.Context, payerID, payeeID string, amount decimal.Decimal) (*ChargeResult, error) {
	logger := log.With().
		Str("payer_id", payerID).
		Str("payee_id", payeeID).
		Str("amount", amount.String()).
		Str("component", "payment_gateway").
		Logger()

	logger.Info().Msg("attempting charge")

	attempts := g.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		latency := g.MinLatency
		if g.MaxLatency > g.MinLatency {
			latency += rand.Intn(g.MaxLatency - g.MinLatency + 1)
		}

		select {
		case <-time.After(time.Duration(latency) * time.Millisecond):
		case <-ctx.Done():
			return nil, &TransportError{Attempts: attempt, Err: ctx.Err()}
		}

		if rand.Float64() < g.TransportFailRate {
			lastErr = errors.New("connection reset by processor")
			logger.Warn().
				Int("attempt", attempt).
				Err(lastErr).
				Msg("transport failure, retrying")
			continue
		}

		if rand.Float64() < g.DeclineRate {
			logger.Warn().Int("attempt", attempt).Msg("charge declined by processor")
			return nil, &DeclinedError{Reason: "card declined"}
		}

		result := &ChargeResult{
			ChargeID: "CHG_" + uuid.New().String(),
			PayerID:  payerID,
			PayeeID:  payeeID,
			Amount:   amount,
		}

		logger.Info().
			Str("charge_id", result.ChargeID).
			Int("attempt", attempt).
			Msg("charge completed")

		return result, nil
	}

	logger.Error().Int("attempts", attempts).Err(lastErr).Msg("gateway unreachable, retries exhausted")
	return nil, &TransportError{Attempts: attempts, Err: lastErr}
}
