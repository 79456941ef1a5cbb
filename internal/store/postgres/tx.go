package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tylerheishman/manifold/internal/domain"
)

// tx implements domain.Tx over a single pgx transaction.
type tx struct {
	q pgx.Tx
}

func (t *tx) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	const query = `
		SELECT id, creator_id, question, mechanism, outcome_type,
			add_answers_mode, should_answers_sum_to_one, visibility,
			close_time, total_liquidity, group_ids, is_resolved, created_at
		FROM contracts WHERE id = $1`

	var c domain.Contract
	var mechanism, outcomeType, addAnswersMode, visibility string
	err := t.q.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.CreatorID, &c.Question, &mechanism, &outcomeType,
		&addAnswersMode, &c.ShouldAnswersSumToOne, &visibility,
		&c.CloseTime, &c.TotalLiquidity, &c.GroupIDs, &c.IsResolved, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Contract{}, domain.ErrNotFound
		}
		return domain.Contract{}, fmt.Errorf("postgres: get contract %s: %w", id, err)
	}
	c.Mechanism = domain.Mechanism(mechanism)
	c.OutcomeType = domain.OutcomeType(outcomeType)
	c.AddAnswersMode = domain.AddAnswersMode(addAnswersMode)
	c.Visibility = domain.Visibility(visibility)
	return c, nil
}

func (t *tx) GetUser(ctx context.Context, id string) (domain.User, error) {
	const query = `
		SELECT id, username, balance, total_deposits,
			is_banned_from_posting, is_admin, created_at
		FROM users WHERE id = $1`

	var u domain.User
	err := t.q.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.Balance, &u.TotalDeposits,
		&u.IsBannedFromPosting, &u.IsAdmin, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	return u, nil
}

func (t *tx) GetGroup(ctx context.Context, id string) (domain.Group, error) {
	const query = `SELECT id, name, privacy_status, created_at FROM groups WHERE id = $1`

	var g domain.Group
	err := t.q.QueryRow(ctx, query, id).Scan(&g.ID, &g.Name, &g.PrivacyStatus, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Group{}, domain.ErrNotFound
		}
		return domain.Group{}, fmt.Errorf("postgres: get group %s: %w", id, err)
	}
	return g, nil
}

const answerSelectCols = `id, contract_id, user_id, idx, text, pool_yes, pool_no,
	prob, total_liquidity, subsidy_pool, is_other, resolution, created_at`

func scanAnswer(row pgx.Row) (domain.Answer, error) {
	var a domain.Answer
	err := row.Scan(
		&a.ID, &a.ContractID, &a.UserID, &a.Index, &a.Text, &a.PoolYes, &a.PoolNo,
		&a.Prob, &a.TotalLiquidity, &a.SubsidyPool, &a.IsOther, &a.Resolution, &a.CreatedAt,
	)
	return a, err
}

func (t *tx) ListAnswers(ctx context.Context, contractID string) ([]domain.Answer, error) {
	query := `SELECT ` + answerSelectCols + ` FROM answers WHERE contract_id = $1 ORDER BY idx`

	rows, err := t.q.Query(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list answers %s: %w", contractID, err)
	}
	defer rows.Close()

	var answers []domain.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

const betSelectCols = `id, contract_id, user_id, answer_id, outcome, amount, shares,
	order_amount, limit_prob, fills, prob_before, prob_after, fees, loan_amount,
	is_cancelled, is_filled, is_redemption, is_ante, is_challenge, is_api,
	visibility, created_at`

func scanBet(row pgx.Row) (domain.Bet, error) {
	var b domain.Bet
	var outcome, visibility string
	var fills, fees []byte
	err := row.Scan(
		&b.ID, &b.ContractID, &b.UserID, &b.AnswerID, &outcome, &b.Amount, &b.Shares,
		&b.OrderAmount, &b.LimitProb, &fills, &b.ProbBefore, &b.ProbAfter, &fees,
		&b.LoanAmount, &b.IsCancelled, &b.IsFilled, &b.IsRedemption, &b.IsAnte,
		&b.IsChallenge, &b.IsApi, &visibility, &b.CreatedAt,
	)
	if err != nil {
		return domain.Bet{}, err
	}
	b.Outcome = domain.Outcome(outcome)
	b.Visibility = domain.Visibility(visibility)
	if len(fills) > 0 {
		if err := json.Unmarshal(fills, &b.Fills); err != nil {
			return domain.Bet{}, fmt.Errorf("unmarshal fills: %w", err)
		}
	}
	if len(fees) > 0 {
		if err := json.Unmarshal(fees, &b.Fees); err != nil {
			return domain.Bet{}, fmt.Errorf("unmarshal fees: %w", err)
		}
	}
	return b, nil
}

func (t *tx) listBets(ctx context.Context, query string, args ...any) ([]domain.Bet, error) {
	rows, err := t.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

func (t *tx) ListBetsByUser(ctx context.Context, contractID, userID string) ([]domain.Bet, error) {
	query := `SELECT ` + betSelectCols + ` FROM bets
		WHERE contract_id = $1 AND user_id = $2 ORDER BY created_at`
	return t.listBets(ctx, query, contractID, userID)
}

func (t *tx) ListBetsByAnswer(ctx context.Context, contractID, answerID string) ([]domain.Bet, error) {
	query := `SELECT ` + betSelectCols + ` FROM bets
		WHERE contract_id = $1 AND answer_id = $2 ORDER BY created_at`
	return t.listBets(ctx, query, contractID, answerID)
}

func (t *tx) ListUnfilledLimitBets(ctx context.Context, contractID string) ([]domain.Bet, error) {
	query := `SELECT ` + betSelectCols + ` FROM bets
		WHERE contract_id = $1 AND limit_prob IS NOT NULL
			AND NOT is_filled AND NOT is_cancelled
		ORDER BY created_at`
	return t.listBets(ctx, query, contractID)
}

func (t *tx) UserBalances(ctx context.Context, userIDs []string) (map[string]float64, error) {
	if len(userIDs) == 0 {
		return map[string]float64{}, nil
	}
	rows, err := t.q.Query(ctx,
		`SELECT id, balance FROM users WHERE id = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: user balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[string]float64, len(userIDs))
	for rows.Next() {
		var id string
		var balance float64
		if err := rows.Scan(&id, &balance); err != nil {
			return nil, fmt.Errorf("postgres: scan balance: %w", err)
		}
		balances[id] = balance
	}
	return balances, rows.Err()
}

func (t *tx) CreateAnswer(ctx context.Context, a domain.Answer) error {
	const query = `
		INSERT INTO answers (id, contract_id, user_id, idx, text, pool_yes, pool_no,
			prob, total_liquidity, subsidy_pool, is_other, resolution, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := t.q.Exec(ctx, query,
		a.ID, a.ContractID, a.UserID, a.Index, a.Text, a.PoolYes, a.PoolNo,
		a.Prob, a.TotalLiquidity, a.SubsidyPool, a.IsOther, a.Resolution, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create answer %s: %w", a.ID, err)
	}
	return nil
}

func (t *tx) UpdateAnswer(ctx context.Context, a domain.Answer) error {
	const query = `
		UPDATE answers SET idx = $2, pool_yes = $3, pool_no = $4, prob = $5,
			total_liquidity = $6, subsidy_pool = $7, resolution = $8
		WHERE id = $1`

	tag, err := t.q.Exec(ctx, query,
		a.ID, a.Index, a.PoolYes, a.PoolNo, a.Prob,
		a.TotalLiquidity, a.SubsidyPool, a.Resolution,
	)
	if err != nil {
		return fmt.Errorf("postgres: update answer %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *tx) CreateBet(ctx context.Context, b domain.Bet) error {
	fills, err := json.Marshal(b.Fills)
	if err != nil {
		return fmt.Errorf("postgres: marshal fills: %w", err)
	}
	fees, err := json.Marshal(b.Fees)
	if err != nil {
		return fmt.Errorf("postgres: marshal fees: %w", err)
	}

	const query = `
		INSERT INTO bets (id, contract_id, user_id, answer_id, outcome, amount, shares,
			order_amount, limit_prob, fills, prob_before, prob_after, fees, loan_amount,
			is_cancelled, is_filled, is_redemption, is_ante, is_challenge, is_api,
			visibility, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22)`

	_, err = t.q.Exec(ctx, query,
		b.ID, b.ContractID, b.UserID, b.AnswerID, string(b.Outcome), b.Amount, b.Shares,
		b.OrderAmount, b.LimitProb, fills, b.ProbBefore, b.ProbAfter, fees, b.LoanAmount,
		b.IsCancelled, b.IsFilled, b.IsRedemption, b.IsAnte, b.IsChallenge, b.IsApi,
		string(b.Visibility), b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create bet %s: %w", b.ID, err)
	}
	return nil
}

func (t *tx) UpdateBetFills(ctx context.Context, betID string, fills []domain.Fill, amount, shares float64, isFilled bool) error {
	data, err := json.Marshal(fills)
	if err != nil {
		return fmt.Errorf("postgres: marshal fills: %w", err)
	}

	const query = `
		UPDATE bets SET fills = $2, amount = $3, shares = $4, is_filled = $5
		WHERE id = $1`

	tag, err := t.q.Exec(ctx, query, betID, data, amount, shares, isFilled)
	if err != nil {
		return fmt.Errorf("postgres: update bet fills %s: %w", betID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *tx) CancelBet(ctx context.Context, betID string) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE bets SET is_cancelled = TRUE WHERE id = $1`, betID)
	if err != nil {
		return fmt.Errorf("postgres: cancel bet %s: %w", betID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *tx) CreateLiquidity(ctx context.Context, lp domain.LiquidityProvision) error {
	const query = `
		INSERT INTO liquidity (id, contract_id, answer_id, user_id, amount,
			pool_yes, pool_no, is_ante, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := t.q.Exec(ctx, query,
		lp.ID, lp.ContractID, lp.AnswerID, lp.UserID, lp.Amount,
		lp.Pool.Yes, lp.Pool.No, lp.IsAnte, lp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create liquidity %s: %w", lp.ID, err)
	}
	return nil
}

func (t *tx) UpdateContract(ctx context.Context, c domain.Contract) error {
	const query = `
		UPDATE contracts SET question = $2, add_answers_mode = $3, close_time = $4,
			total_liquidity = $5, group_ids = $6, is_resolved = $7
		WHERE id = $1`

	tag, err := t.q.Exec(ctx, query,
		c.ID, c.Question, string(c.AddAnswersMode), c.CloseTime,
		c.TotalLiquidity, c.GroupIDs, c.IsResolved,
	)
	if err != nil {
		return fmt.Errorf("postgres: update contract %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *tx) IncrementContractLiquidity(ctx context.Context, contractID string, delta float64) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE contracts SET total_liquidity = total_liquidity + $2 WHERE id = $1`,
		contractID, delta)
	if err != nil {
		return fmt.Errorf("postgres: increment contract liquidity %s: %w", contractID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *tx) IncrementBalance(ctx context.Context, userID string, balanceDelta, depositsDelta float64) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE users SET balance = balance + $2, total_deposits = total_deposits + $3
		WHERE id = $1`,
		userID, balanceDelta, depositsDelta)
	if err != nil {
		return fmt.Errorf("postgres: increment balance %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
