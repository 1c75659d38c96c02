package settlement

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor is the scheduler collaborator: it periodically settles auctions
// past their end time and re-drives charges left pending by a crash.
// Delivery is at-least-once; the settled-flag compare-and-set in Settle
// keeps the outcome exactly-once even with several processors running.
type Processor struct {
	service      *Service
	processDelay time.Duration // Time between settlement scans
	recoveryAge  time.Duration // How old a PENDING charge must be before re-driving it
}

func NewProcessor(service *Service, processDelay, recoveryAge time.Duration) *Processor {
	return &Processor{
		service:      service,
		processDelay: processDelay,
		recoveryAge:  recoveryAge,
	}
}

// Start begins the settlement processing loop
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "settlement_processor").Logger()
	logger.Info().
		Dur("interval", p.processDelay).
		Msg("starting settlement processor")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down settlement processor")
			return
		case <-ticker.C:
			if err := p.settleExpiredAuctions(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to settle expired auctions")
			}
			if err := p.recoverPendingPayments(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to recover pending payments")
			}
		}
	}
}

// settleExpiredAuctions settles every auction whose end time has passed and
// that carries no settled flag yet. Individual failures are logged and
// retried on the next scan; a lost race is success-elsewhere, not an error.
func (p *Processor) settleExpiredAuctions(ctx context.Context) error {
	logger := log.With().Str("component", "settlement_processor").Logger()

	auctions, err := p.service.GetDB().GetExpiredUnsettled(time.Now())
	if err != nil {
		return err
	}

	if len(auctions) == 0 {
		return nil
	}

	logger.Info().Int("expired_count", len(auctions)).Msg("settling expired auctions")

	for _, a := range auctions {
		result, err := p.service.Settle(ctx, a.AuctionID)
		if err != nil {
			logger.Error().
				Err(err).
				Str("auction_id", a.AuctionID).
				Msg("settlement attempt failed, will retry on next scan")
			continue
		}

		logger.Info().
			Str("auction_id", a.AuctionID).
			Str("outcome", result.Outcome).
			Bool("already_settled", result.AlreadySettled).
			Msg("auction settled")
	}

	return nil
}

// recoverPendingPayments re-drives charges for sales recorded before a crash
// that never got a payment result. This is crash recovery for an unresolved
// charge, not a retry of a declined one: declines are terminal and marked
// FAILED when they happen.
func (p *Processor) recoverPendingPayments(ctx context.Context) error {
	logger := log.With().Str("component", "settlement_processor").Logger()

	cutoff := time.Now().Add(-p.recoveryAge)
	pending, err := p.service.GetDB().GetStalePendingTransactions(cutoff)
	if err != nil {
		return err
	}

	for _, record := range pending {
		logger.Warn().
			Str("transaction_id", record.TransactionID).
			Str("auction_id", record.AuctionID).
			Time("created_at", record.CreatedAt).
			Msg("re-driving unresolved charge")

		if err := p.service.RecoverPayment(ctx, record.TransactionID); err != nil {
			logger.Error().
				Err(err).
				Str("transaction_id", record.TransactionID).
				Msg("payment recovery failed")
		}
	}

	return nil
}
