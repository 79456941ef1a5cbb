package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylerheishman/manifold/internal/cpmm"
	"github.com/tylerheishman/manifold/internal/domain"
	"github.com/tylerheishman/manifold/internal/store/memory"
)

func newTestRedeemService(ledger *memory.Ledger) *RedeemService {
	svc := NewRedeemService(ledger, cpmm.ProportionalLoanPolicy{}, testLogger)
	svc.now = func() time.Time { return testNow }
	return svc
}

func binaryContract() domain.Contract {
	return domain.Contract{
		ID:          "contract-1",
		CreatorID:   "creator",
		Question:    "Will it?",
		Mechanism:   domain.MechanismCpmm1,
		OutcomeType: domain.OutcomeTypeBinary,
		Visibility:  domain.VisibilityPublic,
		CreatedAt:   testNow.Add(-24 * time.Hour),
	}
}

func TestRedeemShares_ContractNotFound(t *testing.T) {
	ledger := memory.NewLedger()
	svc := newTestRedeemService(ledger)

	err := svc.RedeemShares(context.Background(), "missing", "alice")
	assert.Equal(t, 404, domain.StatusCode(err))
}

func TestRedeemShares_UnsupportedMechanism(t *testing.T) {
	contract := binaryContract()
	contract.Mechanism = "dpm-2"
	ledger := memory.NewLedger()
	ledger.Seed(testUsers(), []domain.Contract{contract}, nil)
	svc := newTestRedeemService(ledger)

	err := svc.RedeemShares(context.Background(), "contract-1", "alice")
	assert.Equal(t, 403, domain.StatusCode(err))
}

func TestRedeemShares_MatchedBinaryPosition(t *testing.T) {
	ledger := memory.NewLedger()
	ledger.Seed(testUsers(), []domain.Contract{binaryContract()}, nil)
	seedBet(t, ledger, domain.Bet{
		ID: "b1", ContractID: "contract-1", UserID: "alice",
		Outcome: domain.OutcomeYes, Amount: 20, Shares: 30,
		ProbAfter: 0.55, IsFilled: true, CreatedAt: testNow.Add(-2 * time.Hour),
	})
	seedBet(t, ledger, domain.Bet{
		ID: "b2", ContractID: "contract-1", UserID: "alice",
		Outcome: domain.OutcomeNo, Amount: 15, Shares: 30,
		ProbAfter: 0.6, IsFilled: true, CreatedAt: testNow.Add(-time.Hour),
	})
	svc := newTestRedeemService(ledger)

	err := svc.RedeemShares(context.Background(), "contract-1", "alice")
	require.NoError(t, err)

	// One matched pair is worth one mana.
	alice := readUser(t, ledger, "alice")
	assert.InDelta(t, 530, alice.Balance, 1e-9)

	// A paired YES/NO sell at the latest bet's probability.
	bets := readUserBets(t, ledger, "contract-1", "alice")
	require.Len(t, bets, 4)
	var sells []domain.Bet
	for _, b := range bets {
		if b.IsRedemption {
			sells = append(sells, b)
		}
	}
	require.Len(t, sells, 2)
	for _, b := range sells {
		assert.InDelta(t, -30, b.Shares, 1e-9)
		assert.Equal(t, 0.6, b.ProbBefore)
		assert.Equal(t, 0.6, b.ProbAfter)
	}
}

func TestRedeemShares_Idempotent(t *testing.T) {
	ledger := memory.NewLedger()
	ledger.Seed(testUsers(), []domain.Contract{binaryContract()}, nil)
	seedBet(t, ledger, domain.Bet{
		ID: "b1", ContractID: "contract-1", UserID: "alice",
		Outcome: domain.OutcomeYes, Amount: 20, Shares: 30,
		ProbAfter: 0.5, IsFilled: true, CreatedAt: testNow.Add(-2 * time.Hour),
	})
	seedBet(t, ledger, domain.Bet{
		ID: "b2", ContractID: "contract-1", UserID: "alice",
		Outcome: domain.OutcomeNo, Amount: 15, Shares: 30,
		ProbAfter: 0.5, IsFilled: true, CreatedAt: testNow.Add(-time.Hour),
	})
	svc := newTestRedeemService(ledger)

	require.NoError(t, svc.RedeemShares(context.Background(), "contract-1", "alice"))
	balanceAfterFirst := readUser(t, ledger, "alice").Balance
	betsAfterFirst := len(readUserBets(t, ledger, "contract-1", "alice"))

	// The sell bets zero the matched position; a second run changes nothing.
	require.NoError(t, svc.RedeemShares(context.Background(), "contract-1", "alice"))
	assert.Equal(t, balanceAfterFirst, readUser(t, ledger, "alice").Balance)
	assert.Equal(t, betsAfterFirst, len(readUserBets(t, ledger, "contract-1", "alice")))
}

func TestRedeemShares_PerAnswerPositions(t *testing.T) {
	contract := multiContract(true)
	ledger := memory.NewLedger()
	ledger.Seed(testUsers(), []domain.Contract{contract}, sumToOneAnswers())
	a1, other := "a1", "other"
	// Matched pair on a1, one-sided position on Other.
	seedBet(t, ledger, domain.Bet{
		ID: "b1", ContractID: "contract-1", UserID: "alice", AnswerID: &a1,
		Outcome: domain.OutcomeYes, Amount: 10, Shares: 12,
		ProbAfter: 0.5, IsFilled: true, CreatedAt: testNow.Add(-3 * time.Hour),
	})
	seedBet(t, ledger, domain.Bet{
		ID: "b2", ContractID: "contract-1", UserID: "alice", AnswerID: &a1,
		Outcome: domain.OutcomeNo, Amount: 6, Shares: 12,
		ProbAfter: 0.45, IsFilled: true, CreatedAt: testNow.Add(-2 * time.Hour),
	})
	seedBet(t, ledger, domain.Bet{
		ID: "b3", ContractID: "contract-1", UserID: "alice", AnswerID: &other,
		Outcome: domain.OutcomeYes, Amount: 5, Shares: 9,
		ProbAfter: 0.52, IsFilled: true, CreatedAt: testNow.Add(-time.Hour),
	})
	svc := newTestRedeemService(ledger)

	require.NoError(t, svc.RedeemShares(context.Background(), "contract-1", "alice"))

	// Only a1's matched pair redeems; Other's one-sided position is left.
	alice := readUser(t, ledger, "alice")
	assert.InDelta(t, 512, alice.Balance, 1e-9)

	bets := readUserBets(t, ledger, "contract-1", "alice")
	for _, b := range bets {
		if b.IsRedemption {
			require.NotNil(t, b.AnswerID)
			assert.Equal(t, "a1", *b.AnswerID)
		}
	}
}

func TestRedeemShares_RepaysLoans(t *testing.T) {
	ledger := memory.NewLedger()
	ledger.Seed(testUsers(), []domain.Contract{binaryContract()}, nil)
	seedBet(t, ledger, domain.Bet{
		ID: "b1", ContractID: "contract-1", UserID: "alice",
		Outcome: domain.OutcomeYes, Amount: 50, Shares: 100, LoanAmount: 40,
		ProbAfter: 0.5, IsFilled: true, CreatedAt: testNow.Add(-2 * time.Hour),
	})
	seedBet(t, ledger, domain.Bet{
		ID: "b2", ContractID: "contract-1", UserID: "alice",
		Outcome: domain.OutcomeNo, Amount: 25, Shares: 50,
		ProbAfter: 0.5, IsFilled: true, CreatedAt: testNow.Add(-time.Hour),
	})
	svc := newTestRedeemService(ledger)

	require.NoError(t, svc.RedeemShares(context.Background(), "contract-1", "alice"))

	// 50 matched shares redeem for 50, half the loan (20) is repaid.
	alice := readUser(t, ledger, "alice")
	assert.InDelta(t, 530, alice.Balance, 1e-9)
}
