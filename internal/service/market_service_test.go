package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylerheishman/manifold/internal/domain"
	"github.com/tylerheishman/manifold/internal/store/memory"
)

func newTestMarketService(ledger *memory.Ledger) *MarketService {
	return NewMarketService(ledger, nil, testLogger)
}

func testGroups() []domain.Group {
	return []domain.Group{
		{ID: "g1", Name: "Politics", CreatedAt: testNow.Add(-48 * time.Hour)},
		{ID: "g2", Name: "Science", CreatedAt: testNow.Add(-48 * time.Hour)},
		{ID: "g-private", Name: "Inner Circle", PrivacyStatus: "private", CreatedAt: testNow.Add(-48 * time.Hour)},
	}
}

func readContract(t *testing.T, ledger *memory.Ledger, contractID string) domain.Contract {
	t.Helper()
	var contract domain.Contract
	err := ledger.RunTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		contract, err = tx.GetContract(ctx, contractID)
		return err
	})
	require.NoError(t, err)
	return contract
}

func TestGetMarket(t *testing.T) {
	ledger := memory.NewLedger()
	ledger.Seed(testUsers(), []domain.Contract{multiContract(true)}, nil)
	svc := newTestMarketService(ledger)

	contract, err := svc.GetMarket(context.Background(), "contract-1")
	require.NoError(t, err)
	assert.Equal(t, "contract-1", contract.ID)

	_, err = svc.GetMarket(context.Background(), "missing")
	assert.Equal(t, 404, domain.StatusCode(err))
}

func TestListAnswers(t *testing.T) {
	ledger := memory.NewLedger()
	ledger.Seed(testUsers(), []domain.Contract{multiContract(true)}, sumToOneAnswers())
	svc := newTestMarketService(ledger)

	answers, err := svc.ListAnswers(context.Background(), "contract-1")
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, "a1", answers[0].ID)
	assert.Equal(t, "other", answers[1].ID)

	_, err = svc.ListAnswers(context.Background(), "missing")
	assert.Equal(t, 404, domain.StatusCode(err))
}

func TestListUserBets(t *testing.T) {
	ledger := memory.NewLedger()
	ledger.Seed(testUsers(), []domain.Contract{multiContract(true)}, sumToOneAnswers())
	seedBet(t, ledger, domain.Bet{
		ID: "b1", ContractID: "contract-1", UserID: "alice",
		Outcome: domain.OutcomeYes, Amount: 10, Shares: 15,
		IsFilled: true, CreatedAt: testNow.Add(-time.Hour),
	})
	svc := newTestMarketService(ledger)

	bets, err := svc.ListUserBets(context.Background(), "contract-1", "alice")
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, "b1", bets[0].ID)

	bets, err = svc.ListUserBets(context.Background(), "contract-1", "creator")
	require.NoError(t, err)
	assert.Empty(t, bets)

	_, err = svc.ListUserBets(context.Background(), "missing", "alice")
	assert.Equal(t, 404, domain.StatusCode(err))
}

func TestAddOrRemoveTopic(t *testing.T) {
	ledger := memory.NewLedger()
	ledger.Seed(testUsers(), []domain.Contract{multiContract(true)}, nil)
	ledger.SeedGroups(testGroups())
	svc := newTestMarketService(ledger)

	err := svc.AddOrRemoveTopic(context.Background(), "contract-1", "g1", "creator", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, readContract(t, ledger, "contract-1").GroupIDs)

	// Tagging twice does not duplicate.
	require.NoError(t, svc.AddOrRemoveTopic(context.Background(), "contract-1", "g1", "creator", false))
	assert.Equal(t, []string{"g1"}, readContract(t, ledger, "contract-1").GroupIDs)

	require.NoError(t, svc.AddOrRemoveTopic(context.Background(), "contract-1", "g2", "creator", false))
	assert.Equal(t, []string{"g1", "g2"}, readContract(t, ledger, "contract-1").GroupIDs)

	err = svc.AddOrRemoveTopic(context.Background(), "contract-1", "g1", "creator", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"g2"}, readContract(t, ledger, "contract-1").GroupIDs)
}

func TestAddOrRemoveTopic_Errors(t *testing.T) {
	ledger := memory.NewLedger()
	ledger.Seed(testUsers(), []domain.Contract{multiContract(true)}, nil)
	ledger.SeedGroups(testGroups())
	svc := newTestMarketService(ledger)

	err := svc.AddOrRemoveTopic(context.Background(), "contract-1", "missing", "creator", false)
	assert.Equal(t, 404, domain.StatusCode(err))

	err = svc.AddOrRemoveTopic(context.Background(), "missing", "g1", "creator", false)
	assert.Equal(t, 404, domain.StatusCode(err))

	err = svc.AddOrRemoveTopic(context.Background(), "contract-1", "g-private", "creator", false)
	assert.Equal(t, 403, domain.StatusCode(err))

	err = svc.AddOrRemoveTopic(context.Background(), "contract-1", "g1", "nobody", false)
	assert.Equal(t, 401, domain.StatusCode(err))

	err = svc.AddOrRemoveTopic(context.Background(), "contract-1", "g1", "alice", false)
	assert.Equal(t, 403, domain.StatusCode(err))
}

func TestAddOrRemoveTopic_PrivateContract(t *testing.T) {
	contract := multiContract(true)
	contract.Visibility = domain.VisibilityPrivate
	ledger := memory.NewLedger()
	ledger.Seed(testUsers(), []domain.Contract{contract}, nil)
	ledger.SeedGroups(testGroups())
	svc := newTestMarketService(ledger)

	err := svc.AddOrRemoveTopic(context.Background(), "contract-1", "g1", "creator", false)
	assert.Equal(t, 403, domain.StatusCode(err))
}

func TestAddOrRemoveTopic_TagCap(t *testing.T) {
	contract := multiContract(true)
	var groups []domain.Group
	for i := 0; i < domain.MaxGroupsPerMarket; i++ {
		id := fmt.Sprintf("full-%d", i)
		groups = append(groups, domain.Group{ID: id, Name: id, CreatedAt: testNow})
		contract.GroupIDs = append(contract.GroupIDs, id)
	}
	ledger := memory.NewLedger()
	ledger.Seed(testUsers(), []domain.Contract{contract}, nil)
	ledger.SeedGroups(append(testGroups(), groups...))
	svc := newTestMarketService(ledger)

	err := svc.AddOrRemoveTopic(context.Background(), "contract-1", "g1", "creator", false)
	assert.Equal(t, 403, domain.StatusCode(err))

	// Removal is allowed even at the cap.
	require.NoError(t, svc.AddOrRemoveTopic(context.Background(), "contract-1", "full-0", "creator", true))
	assert.Len(t, readContract(t, ledger, "contract-1").GroupIDs, domain.MaxGroupsPerMarket-1)
}

func TestAddOrRemoveTopic_AdminAllowed(t *testing.T) {
	ledger := memory.NewLedger()
	ledger.Seed(testUsers(), []domain.Contract{multiContract(true)}, nil)
	ledger.SeedGroups(testGroups())
	svc := newTestMarketService(ledger)

	require.NoError(t, svc.AddOrRemoveTopic(context.Background(), "contract-1", "g1", "admin", false))
	assert.Equal(t, []string{"g1"}, readContract(t, ledger, "contract-1").GroupIDs)
}

func TestUpdateMarket(t *testing.T) {
	ledger := memory.NewLedger()
	ledger.Seed(testUsers(), []domain.Contract{multiContract(true)}, nil)
	svc := newTestMarketService(ledger)

	question := "Who wins the runoff?"
	closeTime := testNow.Add(72 * time.Hour)
	mode := domain.AddAnswersDisabled
	visibility := domain.VisibilityUnlisted
	err := svc.UpdateMarket(context.Background(), "contract-1", "creator", MarketUpdate{
		Question:       &question,
		CloseTime:      &closeTime,
		AddAnswersMode: &mode,
		Visibility:     &visibility,
	})
	require.NoError(t, err)

	contract := readContract(t, ledger, "contract-1")
	assert.Equal(t, question, contract.Question)
	require.NotNil(t, contract.CloseTime)
	assert.True(t, contract.CloseTime.Equal(closeTime))
	assert.Equal(t, mode, contract.AddAnswersMode)
	assert.Equal(t, visibility, contract.Visibility)
}

func TestUpdateMarket_PartialUpdate(t *testing.T) {
	ledger := memory.NewLedger()
	ledger.Seed(testUsers(), []domain.Contract{multiContract(true)}, nil)
	svc := newTestMarketService(ledger)
	before := readContract(t, ledger, "contract-1")

	question := "Updated question"
	err := svc.UpdateMarket(context.Background(), "contract-1", "creator", MarketUpdate{Question: &question})
	require.NoError(t, err)

	contract := readContract(t, ledger, "contract-1")
	assert.Equal(t, question, contract.Question)
	assert.Equal(t, before.AddAnswersMode, contract.AddAnswersMode)
	assert.Equal(t, before.Visibility, contract.Visibility)
}

func TestUpdateMarket_Errors(t *testing.T) {
	ledger := memory.NewLedger()
	ledger.Seed(testUsers(), []domain.Contract{multiContract(true)}, nil)
	svc := newTestMarketService(ledger)
	question := "q"

	err := svc.UpdateMarket(context.Background(), "contract-1", "creator", MarketUpdate{})
	assert.Equal(t, 400, domain.StatusCode(err))

	err = svc.UpdateMarket(context.Background(), "missing", "creator", MarketUpdate{Question: &question})
	assert.Equal(t, 404, domain.StatusCode(err))

	err = svc.UpdateMarket(context.Background(), "contract-1", "nobody", MarketUpdate{Question: &question})
	assert.Equal(t, 401, domain.StatusCode(err))

	err = svc.UpdateMarket(context.Background(), "contract-1", "alice", MarketUpdate{Question: &question})
	assert.Equal(t, 403, domain.StatusCode(err))
}

func TestUpdateMarket_AdminAllowed(t *testing.T) {
	ledger := memory.NewLedger()
	ledger.Seed(testUsers(), []domain.Contract{multiContract(true)}, nil)
	svc := newTestMarketService(ledger)

	question := "Admin edit"
	require.NoError(t, svc.UpdateMarket(context.Background(), "contract-1", "admin", MarketUpdate{Question: &question}))
	assert.Equal(t, question, readContract(t, ledger, "contract-1").Question)
}
