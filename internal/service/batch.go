package service

import (
	"context"

	"github.com/segyhp/loan-engine/internal/domain"
	customError "github.com/segyhp/loan-engine/pkg/errors"
)

// PaymentBatch walks a list of installments and pays one per Next call.
// It never rolls back: each step's outcome is final once returned.
type PaymentBatch struct {
	pay      func(ctx context.Context, entryID, accountNumber string) (*domain.PaymentReceipt, error)
	account  string
	entryIDs []string
	pos      int
	result   domain.BatchPaymentResult
}

func (s *LoanService) NewPaymentBatch(accountNumber string, entryIDs []string) *PaymentBatch {
	return newPaymentBatch(s.PayOne, accountNumber, entryIDs)
}

func newPaymentBatch(
	pay func(ctx context.Context, entryID, accountNumber string) (*domain.PaymentReceipt, error),
	accountNumber string,
	entryIDs []string,
) *PaymentBatch {
	ids := make([]string, len(entryIDs))
	copy(ids, entryIDs)
	return &PaymentBatch{
		pay:      pay,
		account:  accountNumber,
		entryIDs: ids,
	}
}

// Next pays the next installment and returns its outcome. It returns false
// once every installment has been attempted. A cancelled context fails the
// remaining installments without touching the ledger.
func (b *PaymentBatch) Next(ctx context.Context) (domain.EntryPaymentResult, bool) {
	if b.pos >= len(b.entryIDs) {
		return domain.EntryPaymentResult{}, false
	}
	entryID := b.entryIDs[b.pos]
	b.pos++

	r := domain.EntryPaymentResult{EntryID: entryID}
	if err := ctx.Err(); err != nil {
		r.Err = customError.WrapDependencyUnavailable("caller", err)
	} else {
		r.Receipt, r.Err = b.pay(ctx, entryID, b.account)
	}

	b.result.Add(r)
	return b.result.Results[len(b.result.Results)-1], true
}

// Remaining reports how many installments have not been attempted yet.
func (b *PaymentBatch) Remaining() int {
	return len(b.entryIDs) - b.pos
}

// Result returns the summary so far.
func (b *PaymentBatch) Result() *domain.BatchPaymentResult {
	res := b.result
	return &res
}
