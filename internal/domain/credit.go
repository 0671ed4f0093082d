package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditProfile is derived on demand from the bureau score and the rate
// policy. It is never persisted or mutated.
type CreditProfile struct {
	PAN          string          `json:"pan"`
	Score        int             `json:"score"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	CreditLimit  decimal.Decimal `json:"credit_limit"`
}

// ForeclosureQuote is the payoff for closing a loan early on QuotedAt.
type ForeclosureQuote struct {
	LoanID               string          `json:"loan_id"`
	OutstandingPrincipal decimal.Decimal `json:"outstanding_principal"`
	AccruedInterest      decimal.Decimal `json:"accrued_interest"`
	AccruedDays          int             `json:"accrued_days"`
	Charge               decimal.Decimal `json:"charge"`
	Tax                  decimal.Decimal `json:"tax"`
	Total                decimal.Decimal `json:"total"`
	QuotedAt             time.Time       `json:"quoted_at"`
}

// CollateralValuation records how a gold loan amount was derived.
type CollateralValuation struct {
	WeightGrams decimal.Decimal `json:"weight_grams"`
	RatePerGram decimal.Decimal `json:"rate_per_gram"`
	Value       decimal.Decimal `json:"value"`
	LTVRatio    decimal.Decimal `json:"ltv_ratio"`
	LoanAmount  decimal.Decimal `json:"loan_amount"`
	ValuedAt    time.Time       `json:"valued_at"`
}

// TransactionType labels ledger movements made on behalf of a loan.
type TransactionType string

const (
	TransactionDisbursal   TransactionType = "LOAN_DISBURSAL"
	TransactionEmiPayment  TransactionType = "EMI_PAYMENT"
	TransactionForeclosure TransactionType = "FORECLOSURE"
	TransactionReversal    TransactionType = "REVERSAL"
)
