package repository

import (
	"context"
	"time"

	"github.com/segyhp/loan-engine/internal/domain"
)

// LoanRepository defines the interface for loan and schedule persistence.
//
// Every method that changes a loan guards it with the loan's Version and
// returns errors.ErrConcurrentUpdate when the stored version has moved on.
// On success the in-memory Version is advanced to match the stored one.
type LoanRepository interface {
	// Create stores a new pending application
	Create(ctx context.Context, loan *domain.LoanApplication) error

	// GetByID retrieves a loan; errors.ErrLoanNotFound when absent
	GetByID(ctx context.Context, loanID string) (*domain.LoanApplication, error)

	// Update persists loan fields and status
	Update(ctx context.Context, loan *domain.LoanApplication) error

	// SaveApproval updates the loan and inserts its schedule in one transaction
	SaveApproval(ctx context.Context, loan *domain.LoanApplication, schedule domain.Schedule) error

	// GetSchedule retrieves the schedule ordered by sequence
	GetSchedule(ctx context.Context, loanID string) (domain.Schedule, error)

	// GetEntry retrieves one installment; errors.ErrEntryNotFound when absent
	GetEntry(ctx context.Context, entryID string) (*domain.EmiScheduleEntry, error)

	// SavePayment marks a still-payable entry paid and, when closed is
	// non-nil, persists the loan closure in the same transaction
	SavePayment(ctx context.Context, entry *domain.EmiScheduleEntry, closed *domain.LoanApplication) error

	// SaveSettlement persists a foreclosed loan and its skipped entries atomically
	SaveSettlement(ctx context.Context, loan *domain.LoanApplication, skipped domain.Schedule) error

	// ListIDsByStatus lists loan ids in a status
	ListIDsByStatus(ctx context.Context, status domain.LoanStatus) ([]string, error)

	// MarkOverdue moves pending entries of a loan due before asOf to overdue
	MarkOverdue(ctx context.Context, loanID string, asOf time.Time) (int64, error)

	// ListDueBetween lists pending entries of active loans due in [from, to)
	ListDueBetween(ctx context.Context, from, to time.Time) (domain.Schedule, error)
}
