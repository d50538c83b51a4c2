package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PlanType distinguishes interest-free, financed and balance-transfer plans.
type PlanType string

// Installment plan types.
const (
	PlanInterestFree    PlanType = "msi"
	PlanFinanced        PlanType = "msi_with_interest"
	PlanBalanceTransfer PlanType = "balance_transfer"
)

// PlanStatus is the lifecycle state of an installment plan.
type PlanStatus string

// Installment plan statuses.
const (
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
	PlanCancelled PlanStatus = "cancelled"
)

// ErrInvalidInstallment is returned when installment counts are inconsistent.
var ErrInvalidInstallment = errors.New("invalid installment plan")

// InstallmentPlan is a purchase split into monthly payments.
type InstallmentPlan struct {
	StartDate          *time.Time
	OriginalAmount     decimal.Decimal
	PendingBalance     decimal.Decimal
	MonthlyPayment     decimal.Decimal
	InterestRate       decimal.Decimal
	InterestThisPeriod decimal.Decimal
	TaxThisPeriod      decimal.Decimal
	ID                 string
	StatementID        string
	Description        string
	PlanType           PlanType
	Status             PlanStatus
	SourceBank         string
	CurrentInstallment int
	TotalInstallments  int
	HasInterest        bool
}

// EndDate is derived from the start date and the total installment count.
func (p *InstallmentPlan) EndDate() *time.Time {
	if p.StartDate == nil || p.TotalInstallments <= 0 {
		return nil
	}
	end := p.StartDate.AddDate(0, p.TotalInstallments, 0)
	return &end
}

// RemainingInstallments returns how many payments are left after the current one.
func (p *InstallmentPlan) RemainingInstallments() int {
	if p.TotalInstallments <= p.CurrentInstallment {
		return 0
	}
	return p.TotalInstallments - p.CurrentInstallment
}

// Validate checks the installment counters.
func (p *InstallmentPlan) Validate() error {
	if p.TotalInstallments < 0 || p.CurrentInstallment < 0 {
		return fmt.Errorf("%w: negative installment count", ErrInvalidInstallment)
	}
	if p.TotalInstallments > 0 && p.CurrentInstallment > p.TotalInstallments {
		return fmt.Errorf("%w: installment %d of %d", ErrInvalidInstallment, p.CurrentInstallment, p.TotalInstallments)
	}
	return nil
}

// RefreshStatus derives the status as of the statement date asOf. A plan is
// completed once nothing is pending and either its last installment has
// been billed or its end date has passed. Cancelled plans stay cancelled.
func (p *InstallmentPlan) RefreshStatus(asOf *time.Time) {
	if p.Status == PlanCancelled {
		return
	}

	finished := p.TotalInstallments > 0 && p.CurrentInstallment >= p.TotalInstallments
	if end := p.EndDate(); end != nil && asOf != nil && !end.After(*asOf) {
		finished = true
	}
	if finished && p.PendingBalance.LessThanOrEqual(decimal.Zero) {
		p.Status = PlanCompleted
		return
	}
	p.Status = PlanActive
}
