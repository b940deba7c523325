package application

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	"github.com/sebuszqo/FundLedger/internal/notify"
)

const DefaultGapEscalation = 5

type SweepResult struct {
	Resolved int `json:"resolved"`
	Pending  int `json:"pending"`
}

// GapSweeper retries the donation records that failed after a captured payment.
// Donation creation is idempotent on the settlement reference, so a retry after a
// write that actually landed is harmless.
type GapSweeper struct {
	gaps       domain.SettlementGapStore
	donations  domain.DonationRepository
	notifier   notify.Sink
	escalateAt int
}

func NewGapSweeper(gaps domain.SettlementGapStore, donations domain.DonationRepository, notifier notify.Sink) *GapSweeper {
	return &GapSweeper{gaps: gaps, donations: donations, notifier: notifier, escalateAt: DefaultGapEscalation}
}

func (s *GapSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	gaps, err := s.gaps.List(ctx)
	if err != nil {
		return result, fmt.Errorf("could not list settlement gaps: %w", err)
	}

	for _, gap := range gaps {
		donation := gap.Donation()
		donation.ID = uuid.NewString()
		created, err := s.donations.Create(ctx, &donation)
		if err != nil {
			result.Pending++
			gap.Attempts++
			gap.Reason = err.Error()
			if recErr := s.gaps.Record(ctx, gap); recErr != nil {
				log.Printf("level=error component=gap_sweeper settlement_ref=%s msg=\"could not update gap\" err=%v", gap.SettlementRef, recErr)
			}
			log.Printf("level=warn component=gap_sweeper settlement_ref=%s attempts=%d msg=\"retry failed\" err=%v", gap.SettlementRef, gap.Attempts, err)
			if gap.Attempts == s.escalateAt {
				s.notifier.Notify(notify.Error("", "Settlement gap needs manual follow-up",
					fmt.Sprintf("Settlement %s (%s) still unrecorded after %d retries.", gap.SettlementRef, gap.Amount.StringFixed(2), gap.Attempts)))
			}
			continue
		}

		if err := s.gaps.Resolve(ctx, gap.SettlementRef); err != nil {
			log.Printf("level=error component=gap_sweeper settlement_ref=%s msg=\"could not resolve gap\" err=%v", gap.SettlementRef, err)
		}
		result.Resolved++
		log.Printf("level=info component=gap_sweeper settlement_ref=%s created=%t msg=\"gap resolved\"", gap.SettlementRef, created)
		s.notifier.Notify(notify.Info("", "Settlement gap resolved", fmt.Sprintf("Settlement %s is now recorded.", gap.SettlementRef)))
		if gap.Donor.IsRegistered() {
			s.notifier.Notify(notify.Success(*gap.Donor.UserID, "Donation recorded",
				fmt.Sprintf("Your donation of %s is now recorded.", gap.Amount.StringFixed(2))))
		}
	}
	return result, nil
}
