package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan application.
type LoanStatus string

const (
	LoanStatusPending    LoanStatus = "pending"
	LoanStatusApproved   LoanStatus = "approved"
	LoanStatusActive     LoanStatus = "active"
	LoanStatusRejected   LoanStatus = "rejected"
	LoanStatusForeclosed LoanStatus = "foreclosed"
	LoanStatusPaid       LoanStatus = "paid"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusPending:  {LoanStatusApproved, LoanStatusRejected},
	LoanStatusApproved: {LoanStatusActive, LoanStatusForeclosed, LoanStatusPaid},
	LoanStatusActive:   {LoanStatusForeclosed, LoanStatusPaid},
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s LoanStatus) IsTerminal() bool {
	return len(loanTransitions[s]) == 0
}

// Documents are the identity and credit papers attached to an application.
type Documents struct {
	PAN           string `json:"pan" db:"pan"`
	IdentityProof string `json:"identity_proof" db:"identity_proof"`
	IncomeProof   string `json:"income_proof,omitempty" db:"income_proof"`
}

// LoanCore holds the fields shared by every loan category.
type LoanCore struct {
	ID                string              `json:"id" db:"id"`
	LoanAccountNumber string              `json:"loan_account_number,omitempty" db:"loan_account_number"`
	BorrowerAccount   string              `json:"borrower_account" db:"borrower_account"`
	Category          LoanCategory        `json:"category" db:"category"`
	Principal         decimal.Decimal     `json:"principal" db:"principal"`
	TenureMonths      int                 `json:"tenure_months" db:"tenure_months"`
	InterestRate      decimal.Decimal     `json:"interest_rate" db:"interest_rate"`
	CreditScore       int                 `json:"credit_score,omitempty" db:"credit_score"`
	Status            LoanStatus          `json:"status" db:"status"`
	Documents         Documents           `json:"documents"`
	AppliedAt         time.Time           `json:"applied_at" db:"applied_at"`
	ApprovedAt        *time.Time          `json:"approved_at,omitempty" db:"approved_at"`
	ApprovedBy        string              `json:"approved_by,omitempty" db:"approved_by"`
	RejectedAt        *time.Time          `json:"rejected_at,omitempty" db:"rejected_at"`
	RejectedBy        string              `json:"rejected_by,omitempty" db:"rejected_by"`
	RejectionReason   string              `json:"rejection_reason,omitempty" db:"rejection_reason"`
	ForeclosedAt      *time.Time          `json:"foreclosed_at,omitempty" db:"foreclosed_at"`
	ForeclosureAmount decimal.NullDecimal `json:"foreclosure_amount,omitempty" db:"foreclosure_amount"`
	ClosedAt          *time.Time          `json:"closed_at,omitempty" db:"closed_at"`
	Version           int                 `json:"version" db:"version"`
	UpdatedAt         time.Time           `json:"updated_at" db:"updated_at"`
}

// LoanApplication is a loan from submission to closure. Details carries the
// category-specific fields.
type LoanApplication struct {
	LoanCore
	Details LoanDetails `json:"details"`
}

func (l *LoanApplication) transition(next LoanStatus, at time.Time) error {
	if !l.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Status, next)
	}
	l.Status = next
	l.UpdatedAt = at
	return nil
}

// Approve locks in the principal and rate and moves the loan to approved.
// Principal and rate cannot change after this point.
func (l *LoanApplication) Approve(accountNumber, approverID string, principal, rate decimal.Decimal, at time.Time) error {
	if err := l.transition(LoanStatusApproved, at); err != nil {
		return err
	}
	l.LoanAccountNumber = accountNumber
	l.ApprovedBy = approverID
	l.ApprovedAt = &at
	l.Principal = principal
	l.InterestRate = rate
	return nil
}

// Activate marks an approved loan as disbursed with a live schedule.
func (l *LoanApplication) Activate(at time.Time) error {
	return l.transition(LoanStatusActive, at)
}

// Reject closes a pending application.
func (l *LoanApplication) Reject(approverID, reason string, at time.Time) error {
	if err := l.transition(LoanStatusRejected, at); err != nil {
		return err
	}
	l.RejectedBy = approverID
	l.RejectionReason = reason
	l.RejectedAt = &at
	return nil
}

// Foreclose records an early settlement.
func (l *LoanApplication) Foreclose(amount decimal.Decimal, at time.Time) error {
	if err := l.transition(LoanStatusForeclosed, at); err != nil {
		return err
	}
	l.ForeclosedAt = &at
	l.ForeclosureAmount = decimal.NewNullDecimal(amount)
	l.ClosedAt = &at
	return nil
}

// MarkPaid closes a loan whose schedule has been fully repaid.
func (l *LoanApplication) MarkPaid(at time.Time) error {
	if err := l.transition(LoanStatusPaid, at); err != nil {
		return err
	}
	l.ClosedAt = &at
	return nil
}

// Gold returns the gold details when the loan is collateral backed.
func (l *LoanApplication) Gold() (*GoldDetails, bool) {
	g, ok := l.Details.(*GoldDetails)
	return g, ok
}

// Clone returns a deep enough copy for staging a transition without touching
// the original.
func (l *LoanApplication) Clone() *LoanApplication {
	c := *l
	if l.Details != nil {
		c.Details = l.Details.clone()
	}
	return &c
}
