package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/norkodev/finbot/internal/common"
	"github.com/norkodev/finbot/internal/model"
)

const statementColumns = `id, bank, source_type, account_suffix, period_start, period_end,
	statement_date, due_date, previous_balance, current_balance, minimum_payment,
	payment_no_interest, credit_limit, available_credit, total_regular,
	total_installments, total_interest, total_fees, total_payments,
	source_file, source_hash, raw_data, created_at`

const planColumns = `id, statement_id, description, original_amount, pending_balance,
	monthly_payment, current_installment, total_installments, start_date,
	has_interest, interest_rate, interest_this_period, tax_this_period,
	plan_type, status, source_bank`

func (s *SQLiteStorage) insertStatementTx(ctx context.Context, q queryable, st *model.Statement) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO statements (`+statementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		st.ID, st.Bank, st.SourceType, nullString(st.AccountSuffix),
		timeArg(st.PeriodStart), timeArg(st.PeriodEnd), timeArg(st.StatementDate), timeArg(st.DueDate),
		st.PreviousBalance, st.CurrentBalance, st.MinimumPayment,
		st.PaymentNoInterest, st.CreditLimit, st.AvailableCredit,
		st.Totals.Regular, st.Totals.Installments, st.Totals.Interest, st.Totals.Fees, st.Totals.Payments,
		st.SourceFile, st.SourceHash, nullString(st.RawData), st.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert statement: %w", err)
	}
	return nil
}

func scanStatement(row scanner) (*model.Statement, error) {
	var st model.Statement
	var suffix, rawData sql.NullString
	var periodStart, periodEnd, statementDate, dueDay sql.NullTime
	err := row.Scan(
		&st.ID, &st.Bank, &st.SourceType, &suffix,
		&periodStart, &periodEnd, &statementDate, &dueDay,
		&st.PreviousBalance, &st.CurrentBalance, &st.MinimumPayment,
		&st.PaymentNoInterest, &st.CreditLimit, &st.AvailableCredit,
		&st.Totals.Regular, &st.Totals.Installments, &st.Totals.Interest, &st.Totals.Fees, &st.Totals.Payments,
		&st.SourceFile, &st.SourceHash, &rawData, &st.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.AccountSuffix = suffix.String
	st.RawData = rawData.String
	st.PeriodStart = nullTime(periodStart)
	st.PeriodEnd = nullTime(periodEnd)
	st.StatementDate = nullTime(statementDate)
	st.DueDate = nullTime(dueDay)
	return &st, nil
}

// GetStatement retrieves a statement by id.
func (s *SQLiteStorage) GetStatement(ctx context.Context, id string) (*model.Statement, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	st, err := scanStatement(s.db.QueryRowContext(ctx,
		`SELECT `+statementColumns+` FROM statements WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statement: %w", err)
	}
	return st, nil
}

// GetStatementsByHash returns every statement produced from the document
// with the given content hash.
func (s *SQLiteStorage) GetStatementsByHash(ctx context.Context, hash string) ([]model.Statement, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(hash, "hash"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+statementColumns+` FROM statements WHERE source_hash = ? ORDER BY created_at`, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to query statements: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var statements []model.Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		statements = append(statements, *st)
	}
	return statements, rows.Err()
}

func (s *SQLiteStorage) insertPlanTx(ctx context.Context, q queryable, p *model.InstallmentPlan) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO installment_plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.StatementID, p.Description, p.OriginalAmount, p.PendingBalance,
		p.MonthlyPayment, p.CurrentInstallment, p.TotalInstallments, timeArg(p.StartDate),
		p.HasInterest, p.InterestRate, p.InterestThisPeriod, p.TaxThisPeriod,
		string(p.PlanType), string(p.Status), p.SourceBank,
	)
	if err != nil {
		return fmt.Errorf("failed to insert installment plan %q: %w", p.Description, err)
	}
	return nil
}

// GetInstallmentPlans returns the installment plans of a statement.
func (s *SQLiteStorage) GetInstallmentPlans(ctx context.Context, statementID string) ([]model.InstallmentPlan, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(statementID, "statementID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM installment_plans WHERE statement_id = ? ORDER BY description`, statementID)
	if err != nil {
		return nil, fmt.Errorf("failed to query installment plans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var plans []model.InstallmentPlan
	for rows.Next() {
		var p model.InstallmentPlan
		var start sql.NullTime
		var planType, status string
		if err := rows.Scan(
			&p.ID, &p.StatementID, &p.Description, &p.OriginalAmount, &p.PendingBalance,
			&p.MonthlyPayment, &p.CurrentInstallment, &p.TotalInstallments, &start,
			&p.HasInterest, &p.InterestRate, &p.InterestThisPeriod, &p.TaxThisPeriod,
			&planType, &status, &p.SourceBank,
		); err != nil {
			return nil, fmt.Errorf("failed to scan installment plan: %w", err)
		}
		p.StartDate = nullTime(start)
		p.PlanType = model.PlanType(planType)
		p.Status = model.PlanStatus(status)
		plans = append(plans, p)
	}
	return plans, rows.Err()
}
