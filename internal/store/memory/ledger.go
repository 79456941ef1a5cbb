// Package memory implements the domain ledger in process memory. A global
// mutex serializes transactions and every transaction runs against a deep
// copy of the state, so a failed transaction leaves nothing behind. Used by
// tests and the dev store driver, where running without PostgreSQL mirrors
// paper-trading setups.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tylerheishman/manifold/internal/domain"
)

// Ledger is an in-memory domain.Ledger.
type Ledger struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	contracts map[string]domain.Contract
	users     map[string]domain.User
	groups    map[string]domain.Group
	answers   map[string]domain.Answer
	bets      map[string]domain.Bet
	liquidity map[string]domain.LiquidityProvision
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{state: &state{
		contracts: map[string]domain.Contract{},
		users:     map[string]domain.User{},
		groups:    map[string]domain.Group{},
		answers:   map[string]domain.Answer{},
		bets:      map[string]domain.Bet{},
		liquidity: map[string]domain.LiquidityProvision{},
	}}
}

// Seed loads documents outside any transaction, for wiring up tests and dev
// fixtures.
func (l *Ledger) Seed(users []domain.User, contracts []domain.Contract, answers []domain.Answer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, u := range users {
		l.state.users[u.ID] = u
	}
	for _, c := range contracts {
		l.state.contracts[c.ID] = c
	}
	for _, a := range answers {
		l.state.answers[a.ID] = a
	}
}

// SeedGroups loads group documents.
func (l *Ledger) SeedGroups(groups []domain.Group) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, g := range groups {
		l.state.groups[g.ID] = g
	}
}

// RunTx executes fn against a copy of the ledger state under the global
// lock. On success the copy replaces the state; on error it is discarded.
// The global lock gives strictly serial execution, the strongest form of
// serializable isolation, with no conflicts to retry.
func (l *Ledger) RunTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	staged := l.state.clone()
	if err := fn(ctx, &tx{s: staged}); err != nil {
		return err
	}
	l.state = staged
	return nil
}

func (s *state) clone() *state {
	out := &state{
		contracts: make(map[string]domain.Contract, len(s.contracts)),
		users:     make(map[string]domain.User, len(s.users)),
		groups:    make(map[string]domain.Group, len(s.groups)),
		answers:   make(map[string]domain.Answer, len(s.answers)),
		bets:      make(map[string]domain.Bet, len(s.bets)),
		liquidity: make(map[string]domain.LiquidityProvision, len(s.liquidity)),
	}
	for id, c := range s.contracts {
		c.GroupIDs = append([]string(nil), c.GroupIDs...)
		out.contracts[id] = c
	}
	for id, u := range s.users {
		out.users[id] = u
	}
	for id, g := range s.groups {
		out.groups[id] = g
	}
	for id, a := range s.answers {
		out.answers[id] = a
	}
	for id, b := range s.bets {
		b.Fills = append([]domain.Fill(nil), b.Fills...)
		out.bets[id] = b
	}
	for id, lp := range s.liquidity {
		out.liquidity[id] = lp
	}
	return out
}

// tx implements domain.Tx over a staged state copy.
type tx struct {
	s *state
}

func (t *tx) GetContract(_ context.Context, id string) (domain.Contract, error) {
	c, ok := t.s.contracts[id]
	if !ok {
		return domain.Contract{}, domain.ErrNotFound
	}
	return c, nil
}

func (t *tx) GetUser(_ context.Context, id string) (domain.User, error) {
	u, ok := t.s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (t *tx) GetGroup(_ context.Context, id string) (domain.Group, error) {
	g, ok := t.s.groups[id]
	if !ok {
		return domain.Group{}, domain.ErrNotFound
	}
	return g, nil
}

func (t *tx) ListAnswers(_ context.Context, contractID string) ([]domain.Answer, error) {
	var answers []domain.Answer
	for _, a := range t.s.answers {
		if a.ContractID == contractID {
			answers = append(answers, a)
		}
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].Index < answers[j].Index })
	return answers, nil
}

func (t *tx) listBets(match func(domain.Bet) bool) []domain.Bet {
	var bets []domain.Bet
	for _, b := range t.s.bets {
		if match(b) {
			bets = append(bets, b)
		}
	}
	sort.Slice(bets, func(i, j int) bool {
		if !bets[i].CreatedAt.Equal(bets[j].CreatedAt) {
			return bets[i].CreatedAt.Before(bets[j].CreatedAt)
		}
		return bets[i].ID < bets[j].ID
	})
	return bets
}

func (t *tx) ListBetsByUser(_ context.Context, contractID, userID string) ([]domain.Bet, error) {
	return t.listBets(func(b domain.Bet) bool {
		return b.ContractID == contractID && b.UserID == userID
	}), nil
}

func (t *tx) ListBetsByAnswer(_ context.Context, contractID, answerID string) ([]domain.Bet, error) {
	return t.listBets(func(b domain.Bet) bool {
		return b.ContractID == contractID && b.AnswerID != nil && *b.AnswerID == answerID
	}), nil
}

func (t *tx) ListUnfilledLimitBets(_ context.Context, contractID string) ([]domain.Bet, error) {
	return t.listBets(func(b domain.Bet) bool {
		return b.ContractID == contractID && b.IsUnfilledLimitOrder()
	}), nil
}

func (t *tx) UserBalances(_ context.Context, userIDs []string) (map[string]float64, error) {
	balances := make(map[string]float64, len(userIDs))
	for _, id := range userIDs {
		if u, ok := t.s.users[id]; ok {
			balances[id] = u.Balance
		}
	}
	return balances, nil
}

func (t *tx) CreateAnswer(_ context.Context, a domain.Answer) error {
	if _, ok := t.s.answers[a.ID]; ok {
		return domain.ErrAlreadyExists
	}
	t.s.answers[a.ID] = a
	return nil
}

func (t *tx) UpdateAnswer(_ context.Context, a domain.Answer) error {
	existing, ok := t.s.answers[a.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.Index = a.Index
	existing.PoolYes = a.PoolYes
	existing.PoolNo = a.PoolNo
	existing.Prob = a.Prob
	existing.TotalLiquidity = a.TotalLiquidity
	existing.SubsidyPool = a.SubsidyPool
	existing.Resolution = a.Resolution
	t.s.answers[a.ID] = existing
	return nil
}

func (t *tx) CreateBet(_ context.Context, b domain.Bet) error {
	if _, ok := t.s.bets[b.ID]; ok {
		return domain.ErrAlreadyExists
	}
	t.s.bets[b.ID] = b
	return nil
}

func (t *tx) UpdateBetFills(_ context.Context, betID string, fills []domain.Fill, amount, shares float64, isFilled bool) error {
	b, ok := t.s.bets[betID]
	if !ok {
		return domain.ErrNotFound
	}
	b.Fills = fills
	b.Amount = amount
	b.Shares = shares
	b.IsFilled = isFilled
	t.s.bets[betID] = b
	return nil
}

func (t *tx) CancelBet(_ context.Context, betID string) error {
	b, ok := t.s.bets[betID]
	if !ok {
		return domain.ErrNotFound
	}
	b.IsCancelled = true
	t.s.bets[betID] = b
	return nil
}

func (t *tx) CreateLiquidity(_ context.Context, lp domain.LiquidityProvision) error {
	if _, ok := t.s.liquidity[lp.ID]; ok {
		return domain.ErrAlreadyExists
	}
	t.s.liquidity[lp.ID] = lp
	return nil
}

func (t *tx) UpdateContract(_ context.Context, c domain.Contract) error {
	if _, ok := t.s.contracts[c.ID]; !ok {
		return domain.ErrNotFound
	}
	t.s.contracts[c.ID] = c
	return nil
}

func (t *tx) IncrementContractLiquidity(_ context.Context, contractID string, delta float64) error {
	c, ok := t.s.contracts[contractID]
	if !ok {
		return domain.ErrNotFound
	}
	c.TotalLiquidity += delta
	t.s.contracts[contractID] = c
	return nil
}

func (t *tx) IncrementBalance(_ context.Context, userID string, balanceDelta, depositsDelta float64) error {
	u, ok := t.s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Balance += balanceDelta
	u.TotalDeposits += depositsDelta
	t.s.users[userID] = u
	return nil
}
