package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	customError "github.com/segyhp/loan-engine/pkg/errors"
)

func TestValueCollateral(t *testing.T) {
	at := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	valuation, err := ValueCollateral(decimal.NewFromInt(10), decimal.NewFromInt(6000), decimal.RequireFromString("0.75"), at)
	require.NoError(t, err)

	assert.Equal(t, "60000.00", valuation.Value.StringFixed(2))
	assert.Equal(t, "45000.00", valuation.LoanAmount.StringFixed(2))
	assert.True(t, valuation.LoanAmount.Equal(decimal.NewFromInt(45000)))
	assert.Equal(t, at, valuation.ValuedAt)

	valuation, err = ValueCollateral(decimal.RequireFromString("7.333"), decimal.RequireFromString("6123.45"), decimal.RequireFromString("0.75"), at)
	require.NoError(t, err)
	assert.Equal(t, "44903.26", valuation.Value.StringFixed(2))
	assert.Equal(t, "33677.45", valuation.LoanAmount.StringFixed(2))
}

func TestValueCollateral_Validation(t *testing.T) {
	tests := []struct {
		name   string
		weight string
		rate   string
		ltv    string
	}{
		{"zero weight", "0", "6000", "0.75"},
		{"zero rate", "10", "0", "0.75"},
		{"ltv above one", "10", "6000", "1.2"},
		{"zero ltv", "10", "6000", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValueCollateral(decimal.RequireFromString(tt.weight), decimal.RequireFromString(tt.rate), decimal.RequireFromString(tt.ltv), time.Now())
			assert.ErrorIs(t, err, customError.ErrValidation)
		})
	}
}

func TestCollateralValuer_LendingWeight(t *testing.T) {
	valuer := NewCollateralValuer(&fakeGoldRate{rate: decimal.NewFromInt(6000)}, testPolicy(t), zaptest.NewLogger(t))

	tests := []struct {
		name     string
		declared string
		verified string
		expected string
		code     string
	}{
		{name: "exact match", declared: "10", verified: "10", expected: "10"},
		{name: "within tolerance", declared: "10", verified: "9.85", expected: "9.85"},
		{name: "at tolerance floor", declared: "10", verified: "9.8", expected: "9.8"},
		{name: "heavier than declared", declared: "10", verified: "10.4", expected: "10"},
		{name: "materially lower", declared: "10", verified: "9.79", code: customError.ErrCodeCollateralMismatch},
		{name: "zero verified", declared: "10", verified: "0", code: customError.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weight, err := valuer.LendingWeight(decimal.RequireFromString(tt.declared), decimal.RequireFromString(tt.verified))
			if tt.code != "" {
				var be *customError.BusinessError
				require.ErrorAs(t, err, &be)
				assert.Equal(t, tt.code, be.Code)
				assert.ErrorIs(t, err, customError.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.True(t, weight.Equal(decimal.RequireFromString(tt.expected)), "got %s", weight)
		})
	}
}

func TestCollateralValuer_Quote(t *testing.T) {
	rates := &fakeGoldRate{rate: decimal.NewFromInt(6000)}
	valuer := NewCollateralValuer(rates, testPolicy(t), zaptest.NewLogger(t))

	valuation, err := valuer.Quote(context.Background(), decimal.NewFromInt(10), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "45000.00", valuation.LoanAmount.StringFixed(2))

	rates.set(0)
	_, err = valuer.Quote(context.Background(), decimal.NewFromInt(10), time.Now())
	assert.ErrorIs(t, err, customError.ErrDependencyUnavailable)
}
