package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/segyhp/loan-engine/internal/config"
	"github.com/segyhp/loan-engine/internal/domain"
	"github.com/segyhp/loan-engine/internal/metrics"
	customError "github.com/segyhp/loan-engine/pkg/errors"
	"github.com/segyhp/loan-engine/pkg/utils"
)

var hundred = decimal.NewFromInt(100)

// ValueCollateral prices gold collateral: value = weight × rate, loan = value × LTV.
func ValueCollateral(weightGrams, ratePerGram, ltv decimal.Decimal, at time.Time) (*domain.CollateralValuation, error) {
	if !weightGrams.IsPositive() {
		return nil, customError.WrapValidation("collateral weight must be greater than zero")
	}
	if !ratePerGram.IsPositive() {
		return nil, customError.WrapValidation("rate per gram must be greater than zero")
	}
	if !ltv.IsPositive() || ltv.GreaterThan(decimal.NewFromInt(1)) {
		return nil, customError.WrapValidation("LTV ratio must be in (0, 1]")
	}

	value := utils.RoundMoney(weightGrams.Mul(ratePerGram))
	return &domain.CollateralValuation{
		WeightGrams: weightGrams,
		RatePerGram: ratePerGram,
		Value:       value,
		LTVRatio:    ltv,
		LoanAmount:  utils.RoundMoney(value.Mul(ltv)),
		ValuedAt:    at,
	}, nil
}

// CollateralValuer prices gold loans at the current market rate.
type CollateralValuer struct {
	rates  GoldRateProvider
	policy config.Policy
	logger *zap.Logger
}

func NewCollateralValuer(rates GoldRateProvider, policy config.Policy, logger *zap.Logger) *CollateralValuer {
	return &CollateralValuer{
		rates:  rates,
		policy: policy,
		logger: logger,
	}
}

// Quote values weightGrams at the current rate per gram.
func (v *CollateralValuer) Quote(ctx context.Context, weightGrams decimal.Decimal, at time.Time) (*domain.CollateralValuation, error) {
	if !weightGrams.IsPositive() {
		return nil, customError.WrapValidation("collateral weight must be greater than zero")
	}

	callCtx, cancel := dependencyContext(ctx, v.policy.DependencyTimeout)
	defer cancel()

	start := time.Now()
	rate, err := v.rates.CurrentRatePerGram(callCtx)
	metrics.ObserveDependency("gold_rate", "current_rate", start)
	if err != nil {
		v.logger.Warn("gold rate lookup failed", zap.Error(err))
		return nil, customError.WrapDependencyUnavailable("gold rate provider", err)
	}
	if !rate.IsPositive() {
		return nil, customError.WrapDependencyUnavailable("gold rate provider", customError.ErrRateUnavailable)
	}

	return ValueCollateral(weightGrams, rate, v.policy.GoldLTVRatio, at)
}

// LendingWeight checks the admin-verified weight against the declared one
// and returns the weight the loan is valued on. A verified weight more than
// the tolerance below the declared weight blocks approval for manual review.
// The loan is never valued above what the borrower declared.
func (v *CollateralValuer) LendingWeight(declared, verified decimal.Decimal) (decimal.Decimal, error) {
	if !verified.IsPositive() {
		return decimal.Zero, customError.WrapValidation("verified weight must be greater than zero")
	}

	floor := declared.Mul(hundred.Sub(v.policy.GoldWeightTolerancePercent)).Div(hundred)
	if verified.LessThan(floor) {
		return decimal.Zero, customError.WrapCollateralMismatch(declared.String(), verified.String())
	}

	return decimal.Min(declared, verified), nil
}
