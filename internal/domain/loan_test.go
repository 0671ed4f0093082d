package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoanStatus_CanTransitionTo(t *testing.T) {
	all := []LoanStatus{
		LoanStatusPending, LoanStatusApproved, LoanStatusActive,
		LoanStatusRejected, LoanStatusForeclosed, LoanStatusPaid,
	}
	allowed := map[LoanStatus]map[LoanStatus]bool{
		LoanStatusPending:  {LoanStatusApproved: true, LoanStatusRejected: true},
		LoanStatusApproved: {LoanStatusActive: true, LoanStatusForeclosed: true, LoanStatusPaid: true},
		LoanStatusActive:   {LoanStatusForeclosed: true, LoanStatusPaid: true},
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[from][to], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	for _, s := range []LoanStatus{LoanStatusRejected, LoanStatusForeclosed, LoanStatusPaid} {
		assert.True(t, s.IsTerminal(), s)
	}
	assert.False(t, LoanStatusActive.IsTerminal())
}

func TestLoanApplication_Transitions(t *testing.T) {
	at := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	loan := &LoanApplication{LoanCore: LoanCore{ID: "loan-1", Status: LoanStatusPending}}

	require.NoError(t, loan.Approve("LN2024011500000000AB", "officer-1", decimal.NewFromInt(1000), decimal.NewFromInt(12), at))
	assert.Equal(t, LoanStatusApproved, loan.Status)
	require.NotNil(t, loan.ApprovedAt)

	err := loan.Reject("officer-1", "late", at)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, LoanStatusApproved, loan.Status)

	require.NoError(t, loan.Activate(at))
	require.NoError(t, loan.Foreclose(decimal.RequireFromString("1030.50"), at))
	assert.Equal(t, LoanStatusForeclosed, loan.Status)
	assert.True(t, loan.ForeclosureAmount.Valid)
	require.NotNil(t, loan.ClosedAt)

	assert.ErrorIs(t, loan.MarkPaid(at), ErrInvalidTransition)
}

func TestLoanApplication_CloneIsIndependent(t *testing.T) {
	loan := &LoanApplication{
		LoanCore: LoanCore{ID: "loan-1", Category: CategoryGold, Status: LoanStatusPending},
		Details: &GoldDetails{
			DeclaredWeightGrams: decimal.NewFromInt(10),
			Valuation:           &CollateralValuation{RatePerGram: decimal.NewFromInt(6000)},
		},
	}

	c := loan.Clone()
	c.Status = LoanStatusApproved
	gold, ok := c.Gold()
	require.True(t, ok)
	gold.Valuation.RatePerGram = decimal.NewFromInt(7000)
	gold.DeclaredWeightGrams = decimal.NewFromInt(11)

	orig, _ := loan.Gold()
	assert.Equal(t, LoanStatusPending, loan.Status)
	assert.True(t, orig.DeclaredWeightGrams.Equal(decimal.NewFromInt(10)))
	assert.True(t, orig.Valuation.RatePerGram.Equal(decimal.NewFromInt(6000)))
}

func TestLoanApplication_JSONKeepsCategoryDetails(t *testing.T) {
	tests := []struct {
		name    string
		details LoanDetails
	}{
		{"personal", &PersonalDetails{Purpose: "travel"}},
		{"home", &HomeDetails{PropertyAddress: "12 MG Road", PropertyValue: decimal.NewFromInt(9000000)}},
		{"education", &EducationDetails{Institution: "IIT Bombay", CourseDurationMonths: 24}},
		{"gold", &GoldDetails{DeclaredWeightGrams: decimal.RequireFromString("7.333"), VerifiedBy: "assayer-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loan := &LoanApplication{
				LoanCore: LoanCore{ID: "loan-1", Category: tt.details.Category(), Status: LoanStatusPending},
				Details:  tt.details,
			}
			raw, err := json.Marshal(loan)
			require.NoError(t, err)

			var decoded LoanApplication
			require.NoError(t, json.Unmarshal(raw, &decoded))
			assert.Equal(t, tt.details.Category(), decoded.Details.Category())
			assert.Equal(t, loan.ID, decoded.ID)
			assert.IsType(t, tt.details, decoded.Details)
		})
	}

	_, err := DecodeDetails("auto", []byte("{}"))
	assert.Error(t, err)
}

func TestSchedule_Helpers(t *testing.T) {
	due := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	schedule := Schedule{
		{ID: "e1", Sequence: 1, Principal: decimal.NewFromInt(100), Status: EntryStatusPaid, DueDate: due},
		{ID: "e2", Sequence: 2, Principal: decimal.NewFromInt(110), Status: EntryStatusOverdue},
		{ID: "e3", Sequence: 3, Principal: decimal.NewFromInt(120), Status: EntryStatusPending},
	}

	assert.Equal(t, "230", schedule.OutstandingPrincipal().String())
	assert.Equal(t, "e1", schedule.LastPaid().ID)
	assert.Len(t, schedule.Payable(), 2)
	assert.False(t, schedule.AllSettled())

	schedule[1].MarkPaid("ACC-1", "tx-2", decimal.NewFromInt(500), decimal.NewFromInt(390), due)
	schedule[2].Status = EntryStatusSkipped
	assert.True(t, schedule.AllSettled())
	assert.Equal(t, "e2", schedule.LastPaid().ID)
	assert.True(t, schedule[1].BalanceAfter.Valid)

	assert.False(t, Schedule{}.AllSettled())
}

func TestBatchPaymentResult_Add(t *testing.T) {
	var result BatchPaymentResult
	result.Add(EntryPaymentResult{
		EntryID: "e1",
		Receipt: &PaymentReceipt{Entry: &EmiScheduleEntry{Total: decimal.RequireFromString("10661.85")}},
	})
	result.Add(EntryPaymentResult{EntryID: "e2", Err: assert.AnError})

	assert.Equal(t, 1, result.SucceededCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.Equal(t, "10661.85", result.TotalCollected.StringFixed(2))
	assert.Equal(t, assert.AnError.Error(), result.PerEntryErrors["e2"])
	assert.Equal(t, assert.AnError.Error(), result.Results[1].Error)
}

func TestBatchPaymentResult_RepeatedEntry(t *testing.T) {
	var result BatchPaymentResult
	result.Add(EntryPaymentResult{EntryID: "e1", Err: errors.New("insufficient funds")})
	result.Add(EntryPaymentResult{EntryID: "e1", Err: errors.New("already paid")})

	assert.Equal(t, 2, result.FailedCount)
	require.Len(t, result.Results, 2)
	assert.Equal(t, "insufficient funds", result.Results[0].Error)
	assert.Equal(t, "already paid", result.Results[1].Error)
	assert.Equal(t, map[string]string{"e1": "already paid"}, result.PerEntryErrors)
}
