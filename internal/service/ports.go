package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-engine/internal/domain"
)

// Ledger is the external account store. The engine never holds balances of
// its own; it reads them and requests mutations here.
type Ledger interface {
	GetBalance(ctx context.Context, accountNumber string) (decimal.Decimal, error)
	// Debit returns errors.ErrLedgerNoFunds when the balance cannot cover amount.
	Debit(ctx context.Context, accountNumber string, amount decimal.Decimal) (decimal.Decimal, error)
	Credit(ctx context.Context, accountNumber string, amount decimal.Decimal) (decimal.Decimal, error)
	RecordTransaction(ctx context.Context, accountNumber string, txType domain.TransactionType, amount decimal.Decimal, description string) (string, error)
}

// CreditBureau returns the raw bureau score for a PAN, or
// errors.ErrCreditRecordEmpty when the bureau has no record.
type CreditBureau interface {
	GetCreditScore(ctx context.Context, pan string) (int, error)
}

// GoldRateProvider returns the current market rate per gram.
type GoldRateProvider interface {
	CurrentRatePerGram(ctx context.Context) (decimal.Decimal, error)
}
