// Package service implements the settlement operations: answer creation with
// sum-to-one rebalancing, position redemption, and market metadata updates.
// Every ledger mutation runs inside a single transaction; side effects that
// may fail independently (notifications, cache invalidation, event fan-out)
// run after commit.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tylerheishman/manifold/internal/cpmm"
	"github.com/tylerheishman/manifold/internal/domain"
	"github.com/tylerheishman/manifold/internal/notify"
)

// convertConcurrency bounds the per-user conversion transactions run in
// parallel after an answer is added to a sum-to-one contract.
const convertConcurrency = 8

// AnswerService adds answers to multi-answer contracts.
type AnswerService struct {
	ledger   domain.Ledger
	cache    domain.ContractCache
	bus      domain.SignalBus
	notifier *notify.Notifier
	logger   *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewAnswerService creates an AnswerService with all required dependencies.
func NewAnswerService(
	ledger domain.Ledger,
	cache domain.ContractCache,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *AnswerService {
	return &AnswerService{
		ledger:   ledger,
		cache:    cache,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "answer_service")),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// CreateAnswerOptions are the internal knobs of answer creation. External
// callers leave them zero.
type CreateAnswerOptions struct {
	// OverrideAddAnswersMode bypasses the contract's configured mode, for
	// system-created answers.
	OverrideAddAnswersMode *domain.AddAnswersMode
	// SpecialLiquidityPerAnswer seeds the answer with system liquidity at a
	// low initial probability instead of charging the user. Incompatible with
	// sum-to-one contracts.
	SpecialLiquidityPerAnswer *float64
}

// CreateAnswer adds an answer to a multi-answer contract on behalf of
// creatorID and returns the new answer's id.
//
// For independent contracts the answer gets a fresh pool and nothing else
// changes. For sum-to-one contracts the answer's probability is carved out
// of the "Other" catch-all: the pools are split, every probability is bet
// down until the set sums to one again, and the mana squeezed out by the
// rebalancing is fed back into the pools as subsidy. Holders of Other shares
// are then compensated in follow-up transactions, because the meaning of
// "Other" has narrowed.
func (s *AnswerService) CreateAnswer(
	ctx context.Context,
	contractID, text, creatorID string,
	opts CreateAnswerOptions,
) (string, error) {
	var (
		newAnswerID    string
		contract       domain.Contract
		user           domain.User
		addAnswersMode domain.AddAnswersMode
	)

	err := s.ledger.RunTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		now := s.now()

		var err error
		contract, err = tx.GetContract(ctx, contractID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NewAPIError(404, "contract not found")
			}
			return fmt.Errorf("answer_service: get contract %q: %w", contractID, err)
		}

		if contract.Mechanism != domain.MechanismCpmmMulti1 {
			return domain.NewAPIError(403, "requires a cpmm multiple choice contract")
		}
		if contract.OutcomeType == domain.OutcomeTypeNumber {
			return domain.NewAPIError(403, "cannot create new answers for numeric contracts")
		}
		if contract.IsClosed(now) {
			return domain.NewAPIError(403, "trading is closed")
		}

		addAnswersMode = contract.AddAnswersMode
		if opts.OverrideAddAnswersMode != nil {
			addAnswersMode = *opts.OverrideAddAnswersMode
		}
		if addAnswersMode == "" || addAnswersMode == domain.AddAnswersDisabled {
			return domain.NewAPIError(400, "adding answers is disabled")
		}

		user, err = tx.GetUser(ctx, creatorID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NewAPIError(401, "your account was not found")
			}
			return fmt.Errorf("answer_service: get user %q: %w", creatorID, err)
		}

		if contract.AddAnswersMode == domain.AddAnswersOnlyCreator &&
			contract.CreatorID != creatorID && !user.IsAdmin {
			return domain.NewAPIError(403, "only the creator or an admin can create an answer")
		}
		if user.IsBannedFromPosting {
			return domain.NewAPIError(403, "you are banned")
		}
		if user.Balance < domain.AnswerCost && opts.SpecialLiquidityPerAnswer == nil {
			return domain.Errorf(403, "insufficient balance, need M%v", domain.AnswerCost)
		}

		answers, err := tx.ListAnswers(ctx, contractID)
		if err != nil {
			return fmt.Errorf("answer_service: list answers: %w", err)
		}
		unresolved := 0
		for _, a := range answers {
			if a.Resolution == nil {
				unresolved++
			}
		}
		maxAnswers := domain.MaximumAnswers(contract.ShouldAnswersSumToOne)
		if unresolved >= maxAnswers {
			return domain.Errorf(403, "cannot add an answer: maximum number (%d) of open answers reached", maxAnswers)
		}

		poolYes, poolNo := domain.AnswerCost, domain.AnswerCost
		totalLiquidity := domain.AnswerCost
		prob := 0.5
		if special := opts.SpecialLiquidityPerAnswer; special != nil {
			if contract.ShouldAnswersSumToOne {
				return domain.NewAPIError(500, "special liquidity is incompatible with sum-to-one contracts")
			}
			prob = 0.02
			poolYes = *special
			poolNo = *special / (1/prob - 1)
			totalLiquidity = *special
		}

		newAnswer := domain.Answer{
			ID:             s.newID(),
			ContractID:     contractID,
			UserID:         user.ID,
			Index:          len(answers),
			Text:           text,
			PoolYes:        poolYes,
			PoolNo:         poolNo,
			Prob:           prob,
			TotalLiquidity: totalLiquidity,
			CreatedAt:      now,
		}

		if contract.ShouldAnswersSumToOne {
			if err := s.createSumToOne(ctx, tx, user, contract, answers, newAnswer, now); err != nil {
				return err
			}
		} else {
			if err := tx.CreateAnswer(ctx, newAnswer); err != nil {
				return fmt.Errorf("answer_service: create answer: %w", err)
			}
		}

		if opts.SpecialLiquidityPerAnswer == nil {
			if err := tx.IncrementBalance(ctx, user.ID, -domain.AnswerCost, -domain.AnswerCost); err != nil {
				return fmt.Errorf("answer_service: debit answer cost: %w", err)
			}
			if err := tx.IncrementContractLiquidity(ctx, contractID, domain.AnswerCost); err != nil {
				return fmt.Errorf("answer_service: increment contract liquidity: %w", err)
			}
			answerID := newAnswer.ID
			lp := domain.LiquidityProvision{
				ID:         s.newID(),
				ContractID: contractID,
				AnswerID:   &answerID,
				UserID:     user.ID,
				Amount:     domain.AnswerCost,
				Pool:       domain.Pool{Yes: newAnswer.PoolYes, No: newAnswer.PoolNo},
				CreatedAt:  now,
			}
			if err := tx.CreateLiquidity(ctx, lp); err != nil {
				return fmt.Errorf("answer_service: create liquidity provision: %w", err)
			}
		}

		newAnswerID = newAnswer.ID
		return nil
	})
	if err != nil {
		return "", err
	}

	if contract.ShouldAnswersSumToOne && addAnswersMode != domain.AddAnswersDisabled {
		if err := s.convertOtherShares(ctx, contractID, newAnswerID); err != nil {
			return "", fmt.Errorf("answer_service: convert Other shares: %w", err)
		}
	}

	s.afterAnswerCreated(ctx, contract, user, newAnswerID, text)
	return newAnswerID, nil
}

// createSumToOne inserts newAnswer into a sum-to-one contract inside tx.
// The split, bet-down, and subsidy steps are pure computations; this method
// turns them into ledger writes.
func (s *AnswerService) createSumToOne(
	ctx context.Context,
	tx domain.Tx,
	user domain.User,
	contract domain.Contract,
	answers []domain.Answer,
	newAnswer domain.Answer,
	now time.Time,
) error {
	split, err := cpmm.SplitFromOther(answers, newAnswer, domain.AnswerCost)
	if err != nil {
		return err
	}

	unfilled, err := tx.ListUnfilledLimitBets(ctx, contract.ID)
	if err != nil {
		return fmt.Errorf("answer_service: list unfilled limit bets: %w", err)
	}
	// Resting orders on Other are cancelled rather than matched: the split
	// changes what Other means, so the prices they were placed at no longer
	// apply.
	var onOther, offOther []domain.Bet
	for _, b := range unfilled {
		if b.AnswerID != nil && *b.AnswerID == split.OtherAnswer.ID {
			onOther = append(onOther, b)
		} else {
			offOther = append(offOther, b)
		}
	}

	makerIDs := make([]string, 0, len(offOther))
	for _, b := range offOther {
		makerIDs = append(makerIDs, b.UserID)
	}
	balances, err := tx.UserBalances(ctx, makerIDs)
	if err != nil {
		return fmt.Errorf("answer_service: load maker balances: %w", err)
	}

	betDown, err := cpmm.BetDownToOne(contract, split.AllAnswers(), offOther, balances, now)
	if err != nil {
		return err
	}

	pools := make(map[string]domain.Pool, len(betDown.Results))
	for _, r := range betDown.Results {
		pools[r.Answer.ID] = r.Pool
	}
	subsidized, err := cpmm.AddMultiLiquidity(pools, betDown.ExtraMana)
	if err != nil {
		return err
	}

	if err := tx.CreateAnswer(ctx, split.NewAnswer); err != nil {
		return fmt.Errorf("answer_service: create answer: %w", err)
	}
	if err := tx.UpdateAnswer(ctx, split.OtherAnswer); err != nil {
		return fmt.Errorf("answer_service: update Other answer: %w", err)
	}

	for _, r := range betDown.Results {
		bet := r.Bet
		bet.ID = s.newID()
		bet.UserID = user.ID
		if err := tx.CreateBet(ctx, bet); err != nil {
			return fmt.Errorf("answer_service: create rebalancing bet: %w", err)
		}

		a := r.Answer
		pool := subsidized[a.ID]
		a.PoolYes = pool.Yes
		a.PoolNo = pool.No
		prob, err := cpmm.Probability(pool)
		if err != nil {
			return err
		}
		a.Prob = prob
		if err := tx.UpdateAnswer(ctx, a); err != nil {
			return fmt.Errorf("answer_service: update answer %q: %w", a.ID, err)
		}

		if err := updateMakers(ctx, tx, r.Makers, bet.ID); err != nil {
			return err
		}
		for _, cancel := range r.OrdersToCancel {
			if err := tx.CancelBet(ctx, cancel.ID); err != nil {
				return fmt.Errorf("answer_service: cancel order %q: %w", cancel.ID, err)
			}
		}
	}

	for _, b := range onOther {
		if err := tx.CancelBet(ctx, b.ID); err != nil {
			return fmt.Errorf("answer_service: cancel order on Other %q: %w", b.ID, err)
		}
	}
	return nil
}

// updateMakers applies maker-side fills: each filled limit order gets the new
// fills appended, its running amount and shares recomputed, and its owner's
// balance debited for the mana spent.
func updateMakers(ctx context.Context, tx domain.Tx, makers []cpmm.MakerFill, takerBetID string) error {
	byBet := make(map[string][]cpmm.MakerFill)
	order := make([]string, 0, len(makers))
	for _, m := range makers {
		if _, seen := byBet[m.Bet.ID]; !seen {
			order = append(order, m.Bet.ID)
		}
		byBet[m.Bet.ID] = append(byBet[m.Bet.ID], m)
	}

	spentByUser := make(map[string]float64)
	userOrder := make([]string, 0, len(makers))
	for _, betID := range order {
		fills := byBet[betID]
		bet := fills[0].Bet
		allFills := append([]domain.Fill(nil), bet.Fills...)
		for _, m := range fills {
			matched := takerBetID
			allFills = append(allFills, domain.Fill{
				MatchedBetID: &matched,
				Amount:       m.Amount,
				Shares:       m.Shares,
				Timestamp:    m.Timestamp,
			})
		}
		totalAmount, totalShares := 0.0, 0.0
		for _, f := range allFills {
			totalAmount += f.Amount
			totalShares += f.Shares
		}
		isFilled := bet.OrderAmount != nil && cpmm.FloatingEqual(totalAmount, *bet.OrderAmount)
		if err := tx.UpdateBetFills(ctx, bet.ID, allFills, totalAmount, totalShares, isFilled); err != nil {
			return fmt.Errorf("answer_service: update maker bet %q: %w", bet.ID, err)
		}

		spent := 0.0
		for _, m := range fills {
			spent += m.Amount
		}
		if _, seen := spentByUser[bet.UserID]; !seen {
			userOrder = append(userOrder, bet.UserID)
		}
		spentByUser[bet.UserID] += spent
	}

	for _, userID := range userOrder {
		if err := tx.IncrementBalance(ctx, userID, -spentByUser[userID], 0); err != nil {
			return fmt.Errorf("answer_service: debit maker %q: %w", userID, err)
		}
	}
	return nil
}

// convertOtherShares compensates holders of Other shares after a new answer
// narrowed what Other means. Phase one, in a single transaction, grants each
// net-YES holder of Other the same number of YES shares in the new answer: a
// YES on Other pays out if either the refinement or the remainder wins.
// Phase two runs one transaction per user, converting a net-NO position on
// Other into NO on the updated Other plus YES in every previous answer,
// which is the equivalent claim under the new answer set.
//
// Each phase derives eligibility from the bets persisted at that moment, so
// an interrupted run can be re-invoked without double-granting.
func (s *AnswerService) convertOtherShares(ctx context.Context, contractID, newAnswerID string) error {
	var (
		answers   []domain.Answer
		newAnswer domain.Answer
		other     domain.Answer
		userIDs   []string
	)

	err := s.ledger.RunTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		now := s.now()

		var err error
		answers, err = tx.ListAnswers(ctx, contractID)
		if err != nil {
			return fmt.Errorf("answer_service: list answers: %w", err)
		}
		foundNew, foundOther := false, false
		for _, a := range answers {
			if a.ID == newAnswerID {
				newAnswer = a
				foundNew = true
			}
			if a.IsOther {
				other = a
				foundOther = true
			}
		}
		if !foundNew || !foundOther {
			return domain.NewAPIError(500, "conversion requires both the new answer and Other")
		}

		bets, err := tx.ListBetsByAnswer(ctx, contractID, other.ID)
		if err != nil {
			return fmt.Errorf("answer_service: list bets on Other: %w", err)
		}
		byUser := make(map[string][]domain.Bet)
		for _, b := range bets {
			if _, seen := byUser[b.UserID]; !seen {
				userIDs = append(userIDs, b.UserID)
			}
			byUser[b.UserID] = append(byUser[b.UserID], b)
		}
		sort.Strings(userIDs)

		for _, userID := range userIDs {
			position := netYesShares(byUser[userID])
			if cpmm.FloatingEqual(position, 0) || position < 0 {
				continue
			}
			granted, err := hasShareGrant(ctx, tx, contractID, userID, newAnswerID)
			if err != nil {
				return err
			}
			if granted {
				continue
			}
			answerID := newAnswerID
			grant := domain.Bet{
				ID:           s.newID(),
				ContractID:   contractID,
				UserID:       userID,
				AnswerID:     &answerID,
				Outcome:      domain.OutcomeYes,
				Amount:       0,
				Shares:       position,
				ProbBefore:   newAnswer.Prob,
				ProbAfter:    newAnswer.Prob,
				Fees:         domain.NoFees,
				IsFilled:     true,
				IsRedemption: true,
				Visibility:   byUser[userID][0].Visibility,
				CreatedAt:    now,
			}
			if err := tx.CreateBet(ctx, grant); err != nil {
				return fmt.Errorf("answer_service: grant shares to %q: %w", userID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(convertConcurrency)
	for _, userID := range userIDs {
		userID := userID
		g.Go(func() error {
			return s.convertNoShares(gctx, contractID, userID, answers, newAnswer, other)
		})
	}
	return g.Wait()
}

// convertNoShares converts one user's net-NO position on Other in its own
// transaction. The position is re-read inside the transaction; the explicit
// NO bet it writes zeroes the position, so a repeat run is a no-op.
func (s *AnswerService) convertNoShares(
	ctx context.Context,
	contractID, userID string,
	answers []domain.Answer,
	newAnswer, other domain.Answer,
) error {
	return s.ledger.RunTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		now := s.now()

		userBets, err := tx.ListBetsByUser(ctx, contractID, userID)
		if err != nil {
			return fmt.Errorf("answer_service: list bets for %q: %w", userID, err)
		}
		var onOther []domain.Bet
		for _, b := range userBets {
			if b.AnswerID != nil && *b.AnswerID == other.ID {
				onOther = append(onOther, b)
			}
		}
		noPosition := -netYesShares(onOther)
		if cpmm.FloatingEqual(noPosition, 0) || noPosition < 0 {
			return nil
		}
		visibility := onOther[0].Visibility

		otherID := other.ID
		noBet := domain.Bet{
			ID:           s.newID(),
			ContractID:   contractID,
			UserID:       userID,
			AnswerID:     &otherID,
			Outcome:      domain.OutcomeNo,
			Amount:       0,
			Shares:       -noPosition,
			ProbBefore:   other.Prob,
			ProbAfter:    other.Prob,
			Fees:         domain.NoFees,
			IsFilled:     true,
			IsRedemption: true,
			Visibility:   visibility,
			CreatedAt:    now,
		}
		if err := tx.CreateBet(ctx, noBet); err != nil {
			return fmt.Errorf("answer_service: convert NO position of %q: %w", userID, err)
		}

		for _, a := range answers {
			if a.ID == newAnswer.ID || a.ID == other.ID {
				continue
			}
			answerID := a.ID
			gain := domain.Bet{
				ID:           s.newID(),
				ContractID:   contractID,
				UserID:       userID,
				AnswerID:     &answerID,
				Outcome:      domain.OutcomeYes,
				Amount:       0,
				Shares:       noPosition,
				ProbBefore:   a.Prob,
				ProbAfter:    a.Prob,
				Fees:         domain.NoFees,
				IsFilled:     true,
				IsRedemption: true,
				Visibility:   visibility,
				CreatedAt:    now,
			}
			if err := tx.CreateBet(ctx, gain); err != nil {
				return fmt.Errorf("answer_service: grant sibling shares to %q: %w", userID, err)
			}
		}
		return nil
	})
}

// netYesShares is the user's net YES position across bets on one answer.
func netYesShares(bets []domain.Bet) float64 {
	total := 0.0
	for _, b := range bets {
		if b.Outcome == domain.OutcomeYes {
			total += b.Shares
		} else {
			total -= b.Shares
		}
	}
	return total
}

// hasShareGrant reports whether the user already holds a conversion grant on
// the given answer, which marks phase one as done for them.
func hasShareGrant(ctx context.Context, tx domain.Tx, contractID, userID, answerID string) (bool, error) {
	bets, err := tx.ListBetsByUser(ctx, contractID, userID)
	if err != nil {
		return false, fmt.Errorf("answer_service: list bets for %q: %w", userID, err)
	}
	for _, b := range bets {
		if b.AnswerID != nil && *b.AnswerID == answerID &&
			b.IsRedemption && b.Outcome == domain.OutcomeYes && b.Amount == 0 {
			return true, nil
		}
	}
	return false, nil
}

// afterAnswerCreated runs the post-commit side effects. Failures are logged
// and swallowed: the answer is already committed.
func (s *AnswerService) afterAnswerCreated(
	ctx context.Context,
	contract domain.Contract,
	user domain.User,
	answerID, text string,
) {
	if s.notifier != nil {
		title := fmt.Sprintf("New answer on %q", contract.Question)
		message := fmt.Sprintf("%s added: %s", user.Username, text)
		if err := s.notifier.Notify(ctx, notify.EventAnswerCreated, title, message); err != nil {
			s.logger.WarnContext(ctx, "answer_service: notify failed",
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":      "answer_created",
			"contractId": contract.ID,
			"answerId":   answerID,
			"userId":     user.ID,
			"text":       text,
		})
		if err := s.bus.Publish(ctx, "answers", evt); err != nil {
			s.logger.WarnContext(ctx, "answer_service: publish event failed",
				slog.String("error", err.Error()),
			)
		}
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, contract.ID); err != nil {
			s.logger.WarnContext(ctx, "answer_service: cache invalidation failed",
				slog.String("contract_id", contract.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "answer_service: answer created",
		slog.String("contract_id", contract.ID),
		slog.String("answer_id", answerID),
		slog.String("user_id", user.ID),
	)
}
