package domain

import (
	"github.com/shopspring/decimal"
)

// PaymentReceipt is returned for every collected installment.
type PaymentReceipt struct {
	Entry      *EmiScheduleEntry `json:"entry"`
	LoanStatus LoanStatus        `json:"loan_status"`
}

// EntryPaymentResult is the outcome of one installment inside a batch.
type EntryPaymentResult struct {
	EntryID string          `json:"entry_id"`
	Receipt *PaymentReceipt `json:"receipt,omitempty"`
	Err     error           `json:"-"`
	Error   string          `json:"error,omitempty"`
}

// Succeeded reports whether the installment was collected.
func (r EntryPaymentResult) Succeeded() bool {
	return r.Err == nil
}

// BatchPaymentResult summarises a batch. Successful entries stay committed
// regardless of later failures.
//
// Results holds one outcome per batch position and is authoritative; the
// counts are per position too. PerEntryErrors is an index by entry ID that
// keeps only the latest failure when an ID repeats in the batch.
type BatchPaymentResult struct {
	SucceededCount int                  `json:"succeeded_count"`
	FailedCount    int                  `json:"failed_count"`
	TotalCollected decimal.Decimal      `json:"total_collected"`
	Results        []EntryPaymentResult `json:"results"`
	PerEntryErrors map[string]string    `json:"per_entry_errors,omitempty"`
}

// Add folds one entry outcome into the summary.
func (b *BatchPaymentResult) Add(r EntryPaymentResult) {
	if r.Err != nil {
		r.Error = r.Err.Error()
		b.FailedCount++
		if b.PerEntryErrors == nil {
			b.PerEntryErrors = make(map[string]string)
		}
		b.PerEntryErrors[r.EntryID] = r.Error
	} else {
		b.SucceededCount++
		if r.Receipt != nil && r.Receipt.Entry != nil {
			b.TotalCollected = b.TotalCollected.Add(r.Receipt.Entry.Total)
		}
	}
	b.Results = append(b.Results, r)
}

type ForeclosureResponse struct {
	Quote *ForeclosureQuote `json:"quote"`
	Loan  *LoanApplication  `json:"loan"`
}
