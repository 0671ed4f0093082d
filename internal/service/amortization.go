package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-engine/internal/domain"
	customError "github.com/segyhp/loan-engine/pkg/errors"
	"github.com/segyhp/loan-engine/pkg/utils"
)

// powPlaces bounds the intermediate precision of (1+r)^n.
const powPlaces = 24

// CalculateEMI returns the fixed monthly installment, rounded to the minor unit.
//
//	E = P·r·(1+r)^n / ((1+r)^n − 1), r = annual/1200
//	E = P/n when r = 0
func CalculateEMI(principal, annualRatePercent decimal.Decimal, tenureMonths int) decimal.Decimal {
	n := decimal.NewFromInt(int64(tenureMonths))
	r := utils.MonthlyRate(annualRatePercent)
	if r.IsZero() {
		return utils.RoundMoney(principal.Div(n))
	}

	factor := powInt(decimal.NewFromInt(1).Add(r), tenureMonths)
	emi := principal.Mul(r).Mul(factor).Div(factor.Sub(decimal.NewFromInt(1)))
	return utils.RoundMoney(emi)
}

func powInt(base decimal.Decimal, n int) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for i := 0; i < n; i++ {
		result = result.Mul(base).Round(powPlaces)
	}
	return result
}

// GenerateSchedule builds the amortization schedule for a loan disbursed on
// start. Installment i falls due i months after start. Each interest
// component is the rounded remaining principal times the monthly rate, and
// the last installment takes whatever principal remains so the principal
// components sum to exactly the loan principal.
//
// Entries carry no ids; the caller owns identity.
func GenerateSchedule(principal, annualRatePercent decimal.Decimal, tenureMonths int, start time.Time) (domain.Schedule, error) {
	if !principal.IsPositive() {
		return nil, customError.WrapValidation("principal must be greater than zero")
	}
	if tenureMonths <= 0 {
		return nil, customError.WrapValidation("tenure must be at least one month")
	}
	if annualRatePercent.IsNegative() {
		return nil, customError.WrapValidation("interest rate cannot be negative")
	}
	if !principal.Equal(utils.RoundMoney(principal)) {
		return nil, customError.WrapValidation("principal must have at most two decimal places")
	}

	r := utils.MonthlyRate(annualRatePercent)
	emi := CalculateEMI(principal, annualRatePercent, tenureMonths)

	schedule := make(domain.Schedule, 0, tenureMonths)
	remaining := principal
	for i := 1; i <= tenureMonths; i++ {
		interest := utils.RoundMoney(remaining.Mul(r))

		var part decimal.Decimal
		if i == tenureMonths {
			part = remaining
		} else {
			part = emi.Sub(interest)
			if !part.IsPositive() || part.GreaterThanOrEqual(remaining) {
				return nil, customError.WrapValidation(
					fmt.Sprintf("principal %s cannot be amortized over %d months", principal.StringFixed(2), tenureMonths),
				)
			}
		}
		remaining = remaining.Sub(part)

		schedule = append(schedule, &domain.EmiScheduleEntry{
			Sequence:           i,
			DueDate:            utils.CalculateDueDate(start, i),
			Principal:          part,
			Interest:           interest,
			Total:              part.Add(interest),
			RemainingPrincipal: remaining,
			Status:             domain.EntryStatusPending,
		})
	}

	return schedule, nil
}
