package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryStatus is the payment state of one installment.
type EntryStatus string

const (
	EntryStatusPending EntryStatus = "pending"
	EntryStatusPaid    EntryStatus = "paid"
	EntryStatusOverdue EntryStatus = "overdue"
	EntryStatusSkipped EntryStatus = "skipped"
)

// Payable reports whether an installment can still be collected.
func (s EntryStatus) Payable() bool {
	return s == EntryStatusPending || s == EntryStatusOverdue
}

// EmiScheduleEntry represents one installment of a loan's repayment schedule.
type EmiScheduleEntry struct {
	ID                 string              `json:"id" db:"id"`
	LoanID             string              `json:"loan_id" db:"loan_id"`
	Sequence           int                 `json:"sequence" db:"sequence"`
	DueDate            time.Time           `json:"due_date" db:"due_date"`
	Principal          decimal.Decimal     `json:"principal" db:"principal"`
	Interest           decimal.Decimal     `json:"interest" db:"interest"`
	Total              decimal.Decimal     `json:"total" db:"total"`
	RemainingPrincipal decimal.Decimal     `json:"remaining_principal" db:"remaining_principal"`
	Status             EntryStatus         `json:"status" db:"status"`
	PaidAt             *time.Time          `json:"paid_at,omitempty" db:"paid_at"`
	PaidFrom           string              `json:"paid_from,omitempty" db:"paid_from"`
	TransactionID      string              `json:"transaction_id,omitempty" db:"transaction_id"`
	BalanceBefore      decimal.NullDecimal `json:"balance_before" db:"balance_before"`
	BalanceAfter       decimal.NullDecimal `json:"balance_after" db:"balance_after"`
	CreatedAt          time.Time           `json:"created_at" db:"created_at"`
}

// MarkPaid records a successful collection against the installment.
func (e *EmiScheduleEntry) MarkPaid(account, transactionID string, before, after decimal.Decimal, at time.Time) {
	e.Status = EntryStatusPaid
	e.PaidAt = &at
	e.PaidFrom = account
	e.TransactionID = transactionID
	e.BalanceBefore = decimal.NewNullDecimal(before)
	e.BalanceAfter = decimal.NewNullDecimal(after)
}

// Schedule is the ordered installment list of one loan.
type Schedule []*EmiScheduleEntry

// OutstandingPrincipal sums the principal of every installment not yet paid.
func (s Schedule) OutstandingPrincipal() decimal.Decimal {
	total := decimal.Zero
	for _, e := range s {
		if e.Status.Payable() {
			total = total.Add(e.Principal)
		}
	}
	return total
}

// LastPaid returns the paid installment with the highest sequence, if any.
func (s Schedule) LastPaid() *EmiScheduleEntry {
	var last *EmiScheduleEntry
	for _, e := range s {
		if e.Status == EntryStatusPaid && (last == nil || e.Sequence > last.Sequence) {
			last = e
		}
	}
	return last
}

// AllSettled reports whether no installment is left to collect.
func (s Schedule) AllSettled() bool {
	for _, e := range s {
		if e.Status.Payable() {
			return false
		}
	}
	return len(s) > 0
}

// Payable returns the installments still open for collection.
func (s Schedule) Payable() Schedule {
	var out Schedule
	for _, e := range s {
		if e.Status.Payable() {
			out = append(out, e)
		}
	}
	return out
}

type ScheduleResponse struct {
	LoanID   string   `json:"loan_id"`
	Schedule Schedule `json:"schedule"`
}
