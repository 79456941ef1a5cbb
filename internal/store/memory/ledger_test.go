package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylerheishman/manifold/internal/domain"
)

var ledgerNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func seededLedger() *Ledger {
	ledger := NewLedger()
	ledger.Seed(
		[]domain.User{{ID: "u1", Username: "alice", Balance: 100}},
		[]domain.Contract{{
			ID:          "c1",
			CreatorID:   "u1",
			Mechanism:   domain.MechanismCpmmMulti1,
			OutcomeType: domain.OutcomeTypeMultipleChoice,
			Visibility:  domain.VisibilityPublic,
			CreatedAt:   ledgerNow,
		}},
		[]domain.Answer{
			{ID: "a2", ContractID: "c1", Index: 1, PoolYes: 50, PoolNo: 50, Prob: 0.5},
			{ID: "a1", ContractID: "c1", Index: 0, PoolYes: 100, PoolNo: 100, Prob: 0.5},
		},
	)
	return ledger
}

func TestRunTx_RollsBackOnError(t *testing.T) {
	ledger := seededLedger()
	boom := errors.New("boom")

	err := ledger.RunTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		require.NoError(t, tx.IncrementBalance(ctx, "u1", 500, 0))
		require.NoError(t, tx.CreateBet(ctx, domain.Bet{ID: "b1", ContractID: "c1", UserID: "u1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = ledger.RunTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		u, err := tx.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 100.0, u.Balance)
		bets, err := tx.ListBetsByUser(ctx, "c1", "u1")
		require.NoError(t, err)
		assert.Empty(t, bets)
		return nil
	})
	require.NoError(t, err)
}

func TestRunTx_CommitsOnSuccess(t *testing.T) {
	ledger := seededLedger()

	err := ledger.RunTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.IncrementBalance(ctx, "u1", -25, -25)
	})
	require.NoError(t, err)

	err = ledger.RunTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		u, err := tx.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 75.0, u.Balance)
		assert.Equal(t, -25.0, u.TotalDeposits)
		return nil
	})
	require.NoError(t, err)
}

func TestTx_NotFound(t *testing.T) {
	ledger := seededLedger()

	err := ledger.RunTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.GetContract(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.GetUser(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = tx.GetGroup(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, tx.UpdateAnswer(ctx, domain.Answer{ID: "missing"}), domain.ErrNotFound)
		assert.ErrorIs(t, tx.CancelBet(ctx, "missing"), domain.ErrNotFound)
		assert.ErrorIs(t, tx.IncrementBalance(ctx, "missing", 1, 0), domain.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestTx_CreateDuplicates(t *testing.T) {
	ledger := seededLedger()

	err := ledger.RunTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		require.NoError(t, tx.CreateBet(ctx, domain.Bet{ID: "b1", ContractID: "c1", UserID: "u1"}))
		assert.ErrorIs(t, tx.CreateBet(ctx, domain.Bet{ID: "b1"}), domain.ErrAlreadyExists)
		assert.ErrorIs(t, tx.CreateAnswer(ctx, domain.Answer{ID: "a1"}), domain.ErrAlreadyExists)
		return nil
	})
	require.NoError(t, err)
}

func TestListAnswers_IndexOrder(t *testing.T) {
	ledger := seededLedger()

	err := ledger.RunTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		answers, err := tx.ListAnswers(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, answers, 2)
		assert.Equal(t, "a1", answers[0].ID)
		assert.Equal(t, "a2", answers[1].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestListBets_CreatedAtOrder(t *testing.T) {
	ledger := seededLedger()

	err := ledger.RunTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		require.NoError(t, tx.CreateBet(ctx, domain.Bet{
			ID: "b-late", ContractID: "c1", UserID: "u1", CreatedAt: ledgerNow.Add(time.Hour),
		}))
		require.NoError(t, tx.CreateBet(ctx, domain.Bet{
			ID: "b-early", ContractID: "c1", UserID: "u1", CreatedAt: ledgerNow,
		}))
		bets, err := tx.ListBetsByUser(ctx, "c1", "u1")
		require.NoError(t, err)
		require.Len(t, bets, 2)
		assert.Equal(t, "b-early", bets[0].ID)
		assert.Equal(t, "b-late", bets[1].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestListUnfilledLimitBets(t *testing.T) {
	ledger := seededLedger()
	orderAmount, limitProb := 50.0, 0.4

	err := ledger.RunTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		require.NoError(t, tx.CreateBet(ctx, domain.Bet{
			ID: "open", ContractID: "c1", UserID: "u1", Amount: 10,
			OrderAmount: &orderAmount, LimitProb: &limitProb, CreatedAt: ledgerNow,
		}))
		require.NoError(t, tx.CreateBet(ctx, domain.Bet{
			ID: "filled", ContractID: "c1", UserID: "u1", Amount: 50, IsFilled: true,
			OrderAmount: &orderAmount, LimitProb: &limitProb, CreatedAt: ledgerNow,
		}))
		require.NoError(t, tx.CreateBet(ctx, domain.Bet{
			ID: "market", ContractID: "c1", UserID: "u1", Amount: 10, CreatedAt: ledgerNow,
		}))

		bets, err := tx.ListUnfilledLimitBets(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, bets, 1)
		assert.Equal(t, "open", bets[0].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateAnswer_OnlyPoolFields(t *testing.T) {
	ledger := seededLedger()

	err := ledger.RunTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.UpdateAnswer(ctx, domain.Answer{
			ID:      "a1",
			Text:    "overwritten",
			PoolYes: 80,
			PoolNo:  120,
			Prob:    0.6,
			Index:   0,
		})
	})
	require.NoError(t, err)

	err = ledger.RunTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		answers, err := tx.ListAnswers(ctx, "c1")
		require.NoError(t, err)
		a := answers[0]
		assert.Equal(t, 80.0, a.PoolYes)
		assert.Equal(t, 120.0, a.PoolNo)
		assert.Equal(t, 0.6, a.Prob)
		// Text is immutable through UpdateAnswer.
		assert.Empty(t, a.Text)
		return nil
	})
	require.NoError(t, err)
}

func TestCancelBet(t *testing.T) {
	ledger := seededLedger()

	err := ledger.RunTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		require.NoError(t, tx.CreateBet(ctx, domain.Bet{ID: "b1", ContractID: "c1", UserID: "u1"}))
		require.NoError(t, tx.CancelBet(ctx, "b1"))
		bets, err := tx.ListBetsByUser(ctx, "c1", "u1")
		require.NoError(t, err)
		require.Len(t, bets, 1)
		assert.True(t, bets[0].IsCancelled)
		return nil
	})
	require.NoError(t, err)
}

func TestUserBalances(t *testing.T) {
	ledger := seededLedger()
	ledger.Seed([]domain.User{{ID: "u2", Username: "bob", Balance: 40}}, nil, nil)

	err := ledger.RunTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		balances, err := tx.UserBalances(ctx, []string{"u1", "u2", "missing"})
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"u1": 100, "u2": 40}, balances)
		return nil
	})
	require.NoError(t, err)
}
