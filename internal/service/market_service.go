package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tylerheishman/manifold/internal/domain"
)

// MarketService serves contract reads and metadata updates.
type MarketService struct {
	ledger domain.Ledger
	cache  domain.ContractCache
	logger *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(ledger domain.Ledger, cache domain.ContractCache, logger *slog.Logger) *MarketService {
	return &MarketService{
		ledger: ledger,
		cache:  cache,
		logger: logger.With(slog.String("component", "market_service")),
	}
}

// GetMarket returns a contract, from cache when possible.
func (s *MarketService) GetMarket(ctx context.Context, contractID string) (domain.Contract, error) {
	if s.cache != nil {
		if c, err := s.cache.Get(ctx, contractID); err == nil {
			return c, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "market_service: cache read failed",
				slog.String("contract_id", contractID),
				slog.String("error", err.Error()),
			)
		}
	}

	var contract domain.Contract
	err := s.ledger.RunTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		contract, err = tx.GetContract(ctx, contractID)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Contract{}, domain.NewAPIError(404, "contract not found")
		}
		return domain.Contract{}, fmt.Errorf("market_service: get contract %q: %w", contractID, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, contract); err != nil {
			s.logger.WarnContext(ctx, "market_service: cache write failed",
				slog.String("contract_id", contractID),
				slog.String("error", err.Error()),
			)
		}
	}
	return contract, nil
}

// ListAnswers returns a contract's answers in index order.
func (s *MarketService) ListAnswers(ctx context.Context, contractID string) ([]domain.Answer, error) {
	var answers []domain.Answer
	err := s.ledger.RunTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.GetContract(ctx, contractID); err != nil {
			return err
		}
		var err error
		answers, err = tx.ListAnswers(ctx, contractID)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewAPIError(404, "contract not found")
		}
		return nil, fmt.Errorf("market_service: list answers for %q: %w", contractID, err)
	}
	return answers, nil
}

// ListUserBets returns a user's bets on a contract, oldest first.
func (s *MarketService) ListUserBets(ctx context.Context, contractID, userID string) ([]domain.Bet, error) {
	var bets []domain.Bet
	err := s.ledger.RunTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.GetContract(ctx, contractID); err != nil {
			return err
		}
		var err error
		bets, err = tx.ListBetsByUser(ctx, contractID, userID)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewAPIError(404, "contract not found")
		}
		return nil, fmt.Errorf("market_service: list bets for %q: %w", contractID, err)
	}
	return bets, nil
}

// AddOrRemoveTopic tags or untags a contract with a topic group. Private
// contracts and private groups cannot be retagged, and a contract holds at
// most MaxGroupsPerMarket tags.
func (s *MarketService) AddOrRemoveTopic(ctx context.Context, contractID, groupID, userID string, remove bool) error {
	err := s.ledger.RunTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		group, err := tx.GetGroup(ctx, groupID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NewAPIError(404, "group cannot be found")
			}
			return fmt.Errorf("market_service: get group %q: %w", groupID, err)
		}
		contract, err := tx.GetContract(ctx, contractID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NewAPIError(404, "contract cannot be found")
			}
			return fmt.Errorf("market_service: get contract %q: %w", contractID, err)
		}

		if contract.Visibility == domain.VisibilityPrivate {
			return domain.NewAPIError(403, "tags of private contracts can't be changed")
		}
		if group.PrivacyStatus == "private" {
			return domain.NewAPIError(403, "private groups can't be tagged or untagged")
		}
		if !remove && len(contract.GroupIDs) >= domain.MaxGroupsPerMarket {
			return domain.Errorf(403, "a question can only have up to %d topic tags", domain.MaxGroupsPerMarket)
		}

		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NewAPIError(401, "your account was not found")
			}
			return fmt.Errorf("market_service: get user %q: %w", userID, err)
		}
		if contract.CreatorID != userID && !user.IsAdmin {
			return domain.NewAPIError(403, "permission denied")
		}

		groupIDs := make([]string, 0, len(contract.GroupIDs)+1)
		for _, id := range contract.GroupIDs {
			if id != groupID {
				groupIDs = append(groupIDs, id)
			}
		}
		if !remove {
			groupIDs = append(groupIDs, groupID)
		}
		contract.GroupIDs = groupIDs
		if err := tx.UpdateContract(ctx, contract); err != nil {
			return fmt.Errorf("market_service: update contract: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, contractID)
	return nil
}

// MarketUpdate is the set of mutable contract fields. Nil fields are left
// unchanged.
type MarketUpdate struct {
	Question       *string
	CloseTime      *time.Time
	AddAnswersMode *domain.AddAnswersMode
	Visibility     *domain.Visibility
}

func (u MarketUpdate) isEmpty() bool {
	return u.Question == nil && u.CloseTime == nil && u.AddAnswersMode == nil && u.Visibility == nil
}

// UpdateMarket applies a metadata update to a contract. Only the creator or
// an admin may update.
func (s *MarketService) UpdateMarket(ctx context.Context, contractID, userID string, update MarketUpdate) error {
	if update.isEmpty() {
		return domain.NewAPIError(400, "must provide some change to the contract")
	}

	err := s.ledger.RunTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		contract, err := tx.GetContract(ctx, contractID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NewAPIError(404, "contract not found")
			}
			return fmt.Errorf("market_service: get contract %q: %w", contractID, err)
		}
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NewAPIError(401, "your account was not found")
			}
			return fmt.Errorf("market_service: get user %q: %w", userID, err)
		}
		if contract.CreatorID != userID && !user.IsAdmin {
			return domain.NewAPIError(403, "only the creator or an admin can update the contract")
		}

		if update.Question != nil {
			contract.Question = *update.Question
		}
		if update.CloseTime != nil {
			t := *update.CloseTime
			contract.CloseTime = &t
		}
		if update.AddAnswersMode != nil {
			contract.AddAnswersMode = *update.AddAnswersMode
		}
		if update.Visibility != nil {
			contract.Visibility = *update.Visibility
		}
		if err := tx.UpdateContract(ctx, contract); err != nil {
			return fmt.Errorf("market_service: update contract: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, contractID)
	s.logger.InfoContext(ctx, "market_service: contract updated",
		slog.String("contract_id", contractID),
		slog.String("user_id", userID),
	)
	return nil
}

func (s *MarketService) invalidate(ctx context.Context, contractID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, contractID); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache invalidation failed",
			slog.String("contract_id", contractID),
			slog.String("error", err.Error()),
		)
	}
}
