package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tylerheishman/manifold/internal/cpmm"
	"github.com/tylerheishman/manifold/internal/domain"
)

// RedeemService nets a user's offsetting YES/NO positions back into mana.
type RedeemService struct {
	ledger domain.Ledger
	policy cpmm.RedemptionPolicy
	logger *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewRedeemService creates a RedeemService.
func NewRedeemService(ledger domain.Ledger, policy cpmm.RedemptionPolicy, logger *slog.Logger) *RedeemService {
	return &RedeemService{
		ledger: ledger,
		policy: policy,
		logger: logger.With(slog.String("component", "redeem_service")),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// RedeemShares redeems every matched YES/NO pair the user holds on the
// contract. One matched pair is worth exactly one mana regardless of the
// current probability, so redemption writes a pair of fee-free sell bets per
// answer and credits the net amount, minus any loan repayment, in the same
// transaction. Answers with no matched shares are skipped.
//
// Redeeming twice in a row is a no-op: the first run's sell bets zero out
// the matched position the second run would find.
func (s *RedeemService) RedeemShares(ctx context.Context, contractID, userID string) error {
	err := s.ledger.RunTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		now := s.now()

		contract, err := tx.GetContract(ctx, contractID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NewAPIError(404, "contract not found")
			}
			return fmt.Errorf("redeem_service: get contract %q: %w", contractID, err)
		}
		if contract.Mechanism != domain.MechanismCpmm1 && contract.Mechanism != domain.MechanismCpmmMulti1 {
			return domain.NewAPIError(403, "contract does not support share redemption")
		}

		bets, err := tx.ListBetsByUser(ctx, contractID, userID)
		if err != nil {
			return fmt.Errorf("redeem_service: list bets: %w", err)
		}

		// Group by answer; nil AnswerID is the contract-wide binary position.
		byAnswer := make(map[string][]domain.Bet)
		var answerOrder []string
		for _, b := range bets {
			key := ""
			if b.AnswerID != nil {
				key = *b.AnswerID
			}
			if _, seen := byAnswer[key]; !seen {
				answerOrder = append(answerOrder, key)
			}
			byAnswer[key] = append(byAnswer[key], b)
		}

		totalAmount := 0.0
		for _, key := range answerOrder {
			answerBets := byAnswer[key]
			redemption, err := s.policy.ComputeRedemption(answerBets)
			if err != nil {
				return err
			}
			if cpmm.FloatingEqual(redemption.Shares, 0) {
				continue
			}
			totalAmount += redemption.NetAmount

			// Price the sells at the probability of the user's latest bet.
			lastProb := latestBet(answerBets).ProbAfter
			var answerID *string
			if key != "" {
				id := key
				answerID = &id
			}
			yesBet, noBet := cpmm.RedemptionBets(
				contract, answerID, redemption.Shares, redemption.LoanPayment, lastProb, now,
			)
			yesBet.ID, yesBet.UserID = s.newID(), userID
			noBet.ID, noBet.UserID = s.newID(), userID
			if err := tx.CreateBet(ctx, yesBet); err != nil {
				return fmt.Errorf("redeem_service: create sell bet: %w", err)
			}
			if err := tx.CreateBet(ctx, noBet); err != nil {
				return fmt.Errorf("redeem_service: create sell bet: %w", err)
			}

			s.logger.InfoContext(ctx, "redeem_service: redeemed",
				slog.String("contract_id", contractID),
				slog.String("user_id", userID),
				slog.Float64("shares", redemption.Shares),
				slog.Float64("net_amount", redemption.NetAmount),
			)
		}

		if err := tx.IncrementBalance(ctx, userID, totalAmount, 0); err != nil {
			return fmt.Errorf("redeem_service: credit balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

func latestBet(bets []domain.Bet) domain.Bet {
	latest := bets[0]
	for _, b := range bets[1:] {
		if b.CreatedAt.After(latest.CreatedAt) {
			latest = b
		}
	}
	return latest
}
